// Package telemetry wires OpenTelemetry metrics/tracing and zerolog
// structured logging for the engine process.
package telemetry

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/agentplexus/voiceengine"

// Metrics holds every OpenTelemetry instrument the engine records.
type Metrics struct {
	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram
	TurnDuration metric.Float64Histogram

	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter
	ProviderFallbacks metric.Int64Counter
	ToolCalls        metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16}

// NewMetrics builds every instrument against the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.STTDuration, err = m.Float64Histogram("voiceengine.stt.duration",
		metric.WithDescription("STT transcription latency."), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voiceengine.llm.duration",
		metric.WithDescription("LLM generation latency."), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voiceengine.tts.duration",
		metric.WithDescription("TTS synthesis latency."), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("voiceengine.turn.duration",
		metric.WithDescription("End-to-end user-speech-to-assistant-audio turn latency."),
		metric.WithUnit("s"), metric.WithExplicitBucketBoundaries(latencyBuckets...)); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("voiceengine.provider.requests",
		metric.WithDescription("Provider API calls by provider, role, and status.")); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voiceengine.provider.errors",
		metric.WithDescription("Provider API failures by provider and role.")); err != nil {
		return nil, err
	}
	if met.ProviderFallbacks, err = m.Int64Counter("voiceengine.provider.fallbacks",
		metric.WithDescription("Times a Client fell through to a fallback provider.")); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("voiceengine.tool.calls",
		metric.WithDescription("Tool invocations by tool name and outcome.")); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voiceengine.active_sessions",
		metric.WithDescription("Number of live call sessions.")); err != nil {
		return nil, err
	}

	return met, nil
}

// ProviderConfig configures InitProvider.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	TraceExporter  sdktrace.SpanExporter
}

// InitProvider registers global OTel metric and trace providers: a
// Prometheus exporter bridge for metrics, and an optional span exporter for
// traces. Returns a shutdown func to defer from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voiceengine"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(promExp))
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}, nil
}

// NewLogger returns the process-wide zerolog.Logger, console-formatted for
// an interactive TTY and JSON otherwise.
func NewLogger(level zerolog.Level) zerolog.Logger {
	zerolog.SetGlobalLevel(level)
	if isTerminal(os.Stderr) {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
