// Package metrics exposes the detector and candle state to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "birthday"

// Blow sources
const (
	SourceMic    = "mic"
	SourceManual = "manual"
)

// Recorder owns a private registry so tests and multiple instances never
// collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	level        prometheus.Gauge
	listening    prometheus.Gauge
	candlesBlown prometheus.Gauge
	candlesTotal prometheus.Gauge
	blows        *prometheus.CounterVec
	celebrations prometheus.Counter
	failures     *prometheus.CounterVec
}

// New registers every collector on a fresh registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mic_level",
			Help:      "Most recent microphone level on the 0-255 scale.",
		}),
		listening: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listening",
			Help:      "1 while the blow detector holds the microphone.",
		}),
		candlesBlown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candles_blown",
			Help:      "Candles currently out.",
		}),
		candlesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candles_total",
			Help:      "Candles on the cake.",
		}),
		blows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blows_total",
			Help:      "Blows counted, by source.",
		}, []string{"source"}),
		celebrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "celebrations_total",
			Help:      "Times the last candle went out.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_failures_total",
			Help:      "Failed attempts to start listening, by kind.",
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		r.level,
		r.listening,
		r.candlesBlown,
		r.candlesTotal,
		r.blows,
		r.celebrations,
		r.failures,
		collectors.NewGoCollector(),
	)
	return r
}

func (r *Recorder) Level(level float64) { r.level.Set(level) }

func (r *Recorder) Listening(on bool) {
	if on {
		r.listening.Set(1)
		return
	}
	r.listening.Set(0)
	r.level.Set(0)
}

func (r *Recorder) Candles(blown, total int) {
	r.candlesBlown.Set(float64(blown))
	r.candlesTotal.Set(float64(total))
}

func (r *Recorder) Blow(source string)  { r.blows.WithLabelValues(source).Inc() }
func (r *Recorder) Celebration()        { r.celebrations.Inc() }
func (r *Recorder) Failure(kind string) { r.failures.WithLabelValues(kind).Inc() }

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done
func (r *Recorder) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
