package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gftdcojp/tickstore-verify/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swmr_poll_cycles_total",
		Help: "Completed poll cycles",
	})

	StreamsChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swmr_checks_total",
		Help: "Stream checks performed, by selection subset",
	}, []string{"subset"})

	FillRaces = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swmr_fill_races_total",
		Help: "Benign fill values observed in place of a committed record",
	}, []string{"stream"})

	Corruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swmr_corruptions_total",
		Help: "Corrupt records detected (fatal)",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swmr_cycle_duration_seconds",
		Help:    "Wall time of one open-check-close cycle",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	OpenHandleGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swmr_open_handles",
		Help: "Store sessions and stream descriptors currently open",
	})
)

// RunServer starts the Prometheus metrics HTTP server.
func RunServer(ctx context.Context, cfg config.MetricsConfig) error {
	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
