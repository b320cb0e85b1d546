// Package metrics exposes readings and cycle outcomes as prometheus
// metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mklimuk/weather/acquisition"
	"github.com/mklimuk/weather/bme280"
)

const namespace = "weather"

var (
	_ acquisition.Emitter  = &Collector{}
	_ acquisition.Observer = &Collector{}
)

// Collector is both the emitter for readings and the observer of cycles.
type Collector struct {
	temperature prometheus.Gauge
	pressure    prometheus.Gauge
	humidity    prometheus.Gauge
	cycles      *prometheus.CounterVec
	duration    prometheus.Histogram
}

func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last compensated temperature.",
		}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pressure_pascals",
			Help:      "Last compensated pressure.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last compensated relative humidity.",
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Measurement cycles by outcome and the phase they ended in.",
		}, []string{"result", "phase"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of measurement cycles.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
	for _, col := range []prometheus.Collector{c.temperature, c.pressure, c.humidity, c.cycles, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("metrics: register collector: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) Emit(ctx context.Context, r bme280.Reading) error {
	c.temperature.Set(r.Temperature)
	c.pressure.Set(r.Pressure)
	c.humidity.Set(r.Humidity)
	return nil
}

func (c *Collector) Observe(res acquisition.CycleResult) {
	result := "ok"
	if !res.OK() {
		result = "failed"
	}
	c.cycles.WithLabelValues(result, res.Phase.String()).Inc()
	c.duration.Observe(res.Duration.Seconds())
}

func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("metrics: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
