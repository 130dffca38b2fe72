// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package telemetry counts harvest progress with OpenTelemetry instruments
// and exposes them in Prometheus text format.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/pdiddy/arxiv-harvester/internal/classify"
	"github.com/pdiddy/arxiv-harvester/internal/logctx"
	"github.com/pdiddy/arxiv-harvester/pkg/types"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// Telemetry holds the meter provider and the harvest instruments. A
// Telemetry built with Enabled false records nothing.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *prometheus.Registry
	meter         metric.Meter

	attempts    metric.Int64Counter
	outcomes    metric.Int64Counter
	bytes       metric.Int64Counter
	identifiers metric.Int64Counter
	links       metric.Int64Counter
	sessions    metric.Int64Counter
	duration    metric.Float64Histogram
}

// New creates a telemetry instance backed by its own Prometheus registry.
func New(cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)

	t := &Telemetry{
		meterProvider: meterProvider,
		registry:      registry,
		meter: meterProvider.Meter(cfg.ServiceName,
			metric.WithInstrumentationVersion(cfg.ServiceVersion)),
	}
	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return t, nil
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	if t.attempts, err = t.meter.Int64Counter("arxiv_download_attempts",
		metric.WithDescription("Document fetch attempts by response classification"),
	); err != nil {
		return fmt.Errorf("failed to create download attempts counter: %w", err)
	}

	if t.outcomes, err = t.meter.Int64Counter("arxiv_downloads",
		metric.WithDescription("Terminal download outcomes by kind"),
	); err != nil {
		return fmt.Errorf("failed to create downloads counter: %w", err)
	}

	if t.bytes, err = t.meter.Int64Counter("arxiv_downloaded",
		metric.WithDescription("Bytes written by fresh saves"),
		metric.WithUnit("By"),
	); err != nil {
		return fmt.Errorf("failed to create downloaded bytes counter: %w", err)
	}

	if t.identifiers, err = t.meter.Int64Counter("arxiv_identifiers_harvested",
		metric.WithDescription("Identifiers emitted by the metadata walker"),
	); err != nil {
		return fmt.Errorf("failed to create identifiers counter: %w", err)
	}

	if t.links, err = t.meter.Int64Counter("arxiv_links_resolved",
		metric.WithDescription("Download links produced by the link resolver"),
	); err != nil {
		return fmt.Errorf("failed to create links counter: %w", err)
	}

	if t.sessions, err = t.meter.Int64Counter("arxiv_sessions",
		metric.WithDescription("Finished harvest sessions by status"),
	); err != nil {
		return fmt.Errorf("failed to create sessions counter: %w", err)
	}

	if t.duration, err = t.meter.Float64Histogram("arxiv_session_duration",
		metric.WithDescription("Harvest session duration"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create session duration histogram: %w", err)
	}

	return nil
}

// Attempted counts one fetch attempt.
func (t *Telemetry) Attempted(ctx context.Context, result classify.Result) {
	if t.attempts != nil {
		t.attempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("classification", result.Kind.String()),
		))
	}
}

// Finished counts one terminal outcome and the bytes it wrote.
func (t *Telemetry) Finished(ctx context.Context, out types.DownloadOutcome) {
	if t.outcomes != nil {
		t.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(out.Kind)),
			attribute.Bool("skipped", out.Skipped),
		))
	}
	if t.bytes != nil && out.Size > 0 {
		t.bytes.Add(ctx, out.Size)
	}
}

// Harvested counts identifiers emitted for set.
func (t *Telemetry) Harvested(ctx context.Context, set string, n int) {
	if t.identifiers != nil {
		t.identifiers.Add(ctx, int64(n), metric.WithAttributes(attribute.String("set", set)))
	}
}

// Resolved counts download links produced for set.
func (t *Telemetry) Resolved(ctx context.Context, set string, n int) {
	if t.links != nil {
		t.links.Add(ctx, int64(n), metric.WithAttributes(attribute.String("set", set)))
	}
}

// SessionEnded records a finished session. status is the ledger status.
func (t *Telemetry) SessionEnded(ctx context.Context, set, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("set", set),
		attribute.String("status", status),
	)
	if t.sessions != nil {
		t.sessions.Add(ctx, 1, attrs)
	}
	if t.duration != nil {
		t.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Routes mounts the metrics and health endpoints.
func (t *Telemetry) Routes() chi.Router {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", t.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve exposes Routes on addr until ctx is cancelled.
func (t *Telemetry) Serve(ctx context.Context, addr string) error {
	logger := logctx.From(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           t.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown", "err", err)
		}
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.meterProvider != nil {
		return t.meterProvider.Shutdown(ctx)
	}
	return nil
}
