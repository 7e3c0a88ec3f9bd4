// Package metrics exposes Prometheus counters for the dispatcher and serves
// them over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HendryAvila/paroxysm/internal/store"
)

const namespace = "paroxysm"

// Outcome labels for Commands.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeDenied    = "denied"
	OutcomeThrottled = "throttled"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Commands *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Notices  prometheus.Counter
	Ignored  prometheus.Counter
}

// New creates collectors registered on a private registry, so tests can build
// as many as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Keyword commands handled, by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Time spent handling one keyword command",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		Notices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_sent_total",
			Help:      "Notices sent back to chat",
		}),
		Ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ignored_total",
			Help:      "Chat lines that were not keyword commands",
		}),
	}
	m.registry.MustRegister(m.Commands, m.Duration, m.Notices, m.Ignored)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCommand records one handled command.
func (m *Metrics) ObserveCommand(command, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, outcome).Inc()
	m.Duration.WithLabelValues(command).Observe(d.Seconds())
}

// NoticeSent counts one outgoing notice.
func (m *Metrics) NoticeSent() {
	if m == nil {
		return
	}
	m.Notices.Inc()
}

// MessageIgnored counts one line that did not parse as a command.
func (m *Metrics) MessageIgnored() {
	if m == nil {
		return
	}
	m.Ignored.Inc()
}

// StatsFunc reports knowledge-base totals.
type StatsFunc func(ctx context.Context) (*store.Stats, error)

// WatchStore registers gauges that read keyword and entry totals on scrape.
func (m *Metrics) WatchStore(stats StatsFunc) {
	read := func(pick func(*store.Stats) int) func() float64 {
		return func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s, err := stats(ctx)
			if err != nil || s == nil {
				return 0
			}
			return float64(pick(s))
		}
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keywords",
			Help:      "Keywords stored",
		}, read(func(s *store.Stats) int { return s.Keywords })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries",
			Help:      "Entries stored",
		}, read(func(s *store.Stats) int { return s.Entries })),
	)
}

// Handler routes /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}

// Serve listens on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("metrics listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
