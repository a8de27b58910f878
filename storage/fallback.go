package storage

import "context"

// Probe is one step of an ordered fallback chain.
type Probe[T comparable] func(ctx context.Context) (T, error)

// FirstNonZero runs probes in order and returns the first result that is not
// the zero value of T, with its index. Errors and zero results fall through to
// the next probe; probes after the winner are never run. The index is -1 when
// nothing resolved or ctx was cancelled between probes.
func FirstNonZero[T comparable](ctx context.Context, probes ...Probe[T]) (T, int) {
	var zero T
	for i, probe := range probes {
		if ctx.Err() != nil {
			return zero, -1
		}
		v, err := probe(ctx)
		if err != nil || v == zero {
			continue
		}
		return v, i
	}
	return zero, -1
}
