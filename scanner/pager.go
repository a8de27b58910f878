package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/colorfulnotion/zylith/types"
)

// EventSource is the part of the RPC provider the scanner depends on.
type EventSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	Events(ctx context.Context, filter types.EventFilter, continuation string, chunkSize int) (types.EventChunk, error)
}

// Pager walks the pages of one event query by following continuation tokens.
// It holds no deadline of its own; cancel ctx to stop it.
type Pager struct {
	src       EventSource
	filter    types.EventFilter
	chunkSize int

	token string
	done  bool
	pages int
}

func NewPager(src EventSource, filter types.EventFilter, chunkSize int) *Pager {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pager{src: src, filter: filter, chunkSize: chunkSize}
}

// Next fetches the following page. It returns false once the previous page
// carried no continuation token.
func (p *Pager) Next(ctx context.Context) (types.EventChunk, bool, error) {
	if p.done {
		return types.EventChunk{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return types.EventChunk{}, false, err
	}
	chunk, err := p.src.Events(ctx, p.filter, p.token, p.chunkSize)
	if err != nil {
		if !errors.Is(err, poolerrors.ErrRemoteCallFailure) {
			err = fmt.Errorf("%w: events page %d: %w", poolerrors.ErrRemoteCallFailure, p.pages+1, err)
		}
		return types.EventChunk{}, false, err
	}
	p.pages++
	p.token = chunk.ContinuationToken
	if !chunk.HasMore() {
		p.done = true
	}
	return chunk, true, nil
}

// Reset rewinds the pager to the first page of the same filter.
func (p *Pager) Reset() {
	p.token = ""
	p.done = false
	p.pages = 0
}

// Pages returns how many pages have been fetched since the last reset.
func (p *Pager) Pages() int {
	return p.pages
}

// Cursor returns the continuation token the next fetch will use.
func (p *Pager) Cursor() string {
	return p.token
}
