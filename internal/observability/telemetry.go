package observability

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultServiceName = "lantern"
	tracerPrefix       = "lantern."
)

// TelemetryConfig selects how spans leave the process. The zero value
// disables tracing.
type TelemetryConfig struct {
	Enabled bool
	// Endpoint overrides OTEL_EXPORTER_OTLP_ENDPOINT when set.
	Endpoint    string
	ServiceName string
	Version     string
	Commit      string
	// ServerURL is reduced to its host before it is attached to spans.
	ServerURL string
	// SampleRatio in (0,1] samples root spans; anything else samples all.
	SampleRatio float64
}

// TelemetryFromEnv builds a TelemetryConfig from OTEL_* variables.
func TelemetryFromEnv(version, commit, serverURL string) *TelemetryConfig {
	cfg := &TelemetryConfig{
		Enabled:     IsTelemetryEnabled(),
		ServiceName: strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")),
		Version:     version,
		Commit:      commit,
		ServerURL:   serverURL,
	}

	if raw := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.SampleRatio = ratio
		}
	}

	return cfg
}

// TelemetryShutdown flushes pending spans and restores the previous globals.
type TelemetryShutdown func(ctx context.Context) error

// SetupTelemetry installs an OTLP/HTTP tracer provider as the global one.
// A nil or disabled config leaves the globals untouched.
func SetupTelemetry(ctx context.Context, cfg *TelemetryConfig) (TelemetryShutdown, error) {
	if cfg == nil || !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(cfg.attributes()...))
	if err != nil {
		return noopShutdown, fmt.Errorf("merge otel resource: %w", err)
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithCompression(otlptracehttp.GzipCompression)}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noopShutdown, fmt.Errorf("create otel exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)

	prev := captureGlobals()

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	// Export failures must not reach the operator's terminal.
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(error) {}))

	return func(shutdownCtx context.Context) error {
		err := provider.Shutdown(shutdownCtx)

		prev.restore()

		if err != nil {
			return fmt.Errorf("shutdown otel provider: %w", err)
		}

		return nil
	}, nil
}

func (c *TelemetryConfig) attributes() []attribute.KeyValue {
	name := c.ServiceName
	if name == "" {
		name = defaultServiceName
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", name),
		attribute.String("service.version", c.Version),
	}

	if c.Commit != "" {
		attrs = append(attrs, attribute.String("service.commit", c.Commit))
	}

	if host := serverHost(c.ServerURL); host != "" {
		attrs = append(attrs, attribute.String("lantern.server.host", host))
	}

	return attrs
}

func (c *TelemetryConfig) sampler() sdktrace.Sampler {
	if c.SampleRatio > 0 && c.SampleRatio < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}

	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

func serverHost(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return u.Host
}

type otelGlobals struct {
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
	errHandler otel.ErrorHandler
}

func captureGlobals() otelGlobals {
	return otelGlobals{
		provider:   otel.GetTracerProvider(),
		propagator: otel.GetTextMapPropagator(),
		errHandler: otel.GetErrorHandler(),
	}
}

func (g otelGlobals) restore() {
	otel.SetTracerProvider(g.provider)
	otel.SetTextMapPropagator(g.propagator)
	otel.SetErrorHandler(g.errHandler)
}

// Tracer returns the tracer for a lantern component, e.g. "realtime".
func Tracer(component string) trace.Tracer {
	if !strings.HasPrefix(component, tracerPrefix) {
		component = tracerPrefix + component
	}

	return otel.GetTracerProvider().Tracer(component)
}

// IsTelemetryEnabled reports whether OTEL_ENABLED is truthy.
func IsTelemetryEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_ENABLED"))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func noopShutdown(context.Context) error { return nil }
