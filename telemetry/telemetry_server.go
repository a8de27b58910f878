package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	log "github.com/colorfulnotion/zylith/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes a prometheus registry on /metrics.
type MetricsServer struct {
	srv      *http.Server
	listener net.Listener
}

// NewMetricsServer binds addr immediately so a port conflict is reported
// before any query runs.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &MetricsServer{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
	}, nil
}

// Addr is the bound listen address.
func (s *MetricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background until Close.
func (s *MetricsServer) Start() {
	go func() {
		if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(log.RPCMonitoring, "metrics server stopped", "addr", s.Addr(), "err", err)
		}
	}()
	log.Info(log.RPCMonitoring, "metrics server listening", "addr", s.Addr())
}

func (s *MetricsServer) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
