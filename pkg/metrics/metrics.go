// Package metrics exposes Prometheus counters/histograms for engine and
// server operations over a small HTTP server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goerzh/kvs/pkg/config"
	"github.com/goerzh/kvs/pkg/logger"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kv_requests_total",
			Help: "Total number of engine operations by kind.",
		},
		[]string{"op"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kv_request_duration_seconds",
			Help:    "Engine operation latency by kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	compactionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kv_compactions_total",
			Help: "Total number of compactions run by the engine.",
		},
	)
	compactionBytesReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kv_compaction_bytes_reclaimed_total",
			Help: "Cumulative stale bytes reclaimed across all compactions.",
		},
	)
	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kv_connections_active",
			Help: "Number of currently open client connections.",
		},
	)
)

// Sink implements engine.Metrics and kvserver's connection-count hooks,
// recording every observation into the package-level Prometheus collectors
// above.
type Sink struct{}

// NewSink returns a ready-to-use metrics sink.
func NewSink() *Sink { return &Sink{} }

func (s *Sink) ObserveSet()    { requestsTotal.WithLabelValues("set").Inc() }
func (s *Sink) ObserveGet()    { requestsTotal.WithLabelValues("get").Inc() }
func (s *Sink) ObserveRemove() { requestsTotal.WithLabelValues("remove").Inc() }

func (s *Sink) ObserveCompaction(bytesReclaimed int64) {
	compactionsTotal.Inc()
	if bytesReclaimed > 0 {
		compactionBytesReclaimed.Add(float64(bytesReclaimed))
	}
}

// ObserveDuration records how long an operation of the given kind took.
func (s *Sink) ObserveDuration(op string, d time.Duration) {
	requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ConnectionOpened increments the active-connection gauge.
func (s *Sink) ConnectionOpened() { connectionsActive.Inc() }

// ConnectionClosed decrements the active-connection gauge.
func (s *Sink) ConnectionClosed() { connectionsActive.Dec() }

// Server exposes the collectors above over HTTP.
type Server struct {
	cfg    config.MetricsConfig
	log    *logger.Logger
	server *http.Server
}

// New builds a metrics HTTP server from cfg. Start is a no-op when the
// config disables metrics.
func New(cfg config.MetricsConfig) *Server {
	return &Server{cfg: cfg, log: logger.Default().WithComponent("metrics")}
}

// Start begins serving /metrics in the background. It returns immediately;
// errors after that point are logged, not returned.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.log.Infow("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{Addr: addr, Handler: mux}

	s.log.Infow("starting metrics server", "address", addr, "path", s.cfg.Path)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("metrics server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the metrics server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
