package telemetry

import (
	"time"

	"github.com/colorfulnotion/zylith/poolerrors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names exported by the query client.
const (
	MetricRPCCalls     = "zylith_rpc_calls_total"
	MetricRPCErrors    = "zylith_rpc_errors_total"
	MetricRPCLatency   = "zylith_rpc_latency_seconds"
	MetricProbes       = "zylith_storage_probes_total"
	MetricScanPages    = "zylith_scan_pages_total"
	MetricScanEvents   = "zylith_scan_events_total"
	MetricScanDeposits = "zylith_scan_deposits_total"
)

// Metrics holds the prometheus collectors of one client. A nil or no-op
// Metrics accepts every observation and records nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	probes   *prometheus.CounterVec
	pages    prometheus.Counter
	events   prometheus.Counter
	deposits prometheus.Counter
	disabled bool
}

// NewNoOpMetrics returns metrics that record nothing.
func NewNoOpMetrics() *Metrics {
	return &Metrics{disabled: true}
}

// NewMetrics builds the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRPCCalls,
			Help: "Starknet JSON-RPC calls issued, by method.",
		}, []string{"method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRPCErrors,
			Help: "Failed Starknet JSON-RPC calls, by method and error kind.",
		}, []string{"method", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRPCLatency,
			Help:    "Round-trip latency of Starknet JSON-RPC calls.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"method"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricProbes,
			Help: "Storage candidate probes, by field and outcome.",
		}, []string{"field", "outcome"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricScanPages,
			Help: "Event pages fetched by commitment scans.",
		}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricScanEvents,
			Help: "Events inspected by commitment scans.",
		}),
		deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricScanDeposits,
			Help: "Deposit events inspected by commitment scans.",
		}),
	}
	reg.MustRegister(m.calls, m.errors, m.latency, m.probes, m.pages, m.events, m.deposits)
	return m
}

func (m *Metrics) off() bool {
	return m == nil || m.disabled
}

// ObserveCall records one remote call. The error kind label is the
// poolerrors name, or "Unknown" for foreign errors.
func (m *Metrics) ObserveCall(method string, elapsed time.Duration, err error) {
	if m.off() {
		return
	}
	m.calls.WithLabelValues(method).Inc()
	m.latency.WithLabelValues(method).Observe(elapsed.Seconds())
	if err != nil {
		m.errors.WithLabelValues(method, errorKind(err)).Inc()
	}
}

// ObserveProbe records the outcome of one storage candidate probe.
func (m *Metrics) ObserveProbe(field, outcome string) {
	if m.off() {
		return
	}
	m.probes.WithLabelValues(field, outcome).Inc()
}

// ObserveScan records the work done by one commitment scan.
func (m *Metrics) ObserveScan(pages, events, deposits int) {
	if m.off() {
		return
	}
	m.pages.Add(float64(pages))
	m.events.Add(float64(events))
	m.deposits.Add(float64(deposits))
}

func errorKind(err error) string {
	if poolerrors.Kind(err) == nil {
		return "Unknown"
	}
	return poolerrors.GetErrorName(err)
}
