// Package observability wires the process-wide slog default and, when an
// OTLP endpoint is configured, bridges log records into an OpenTelemetry
// log pipeline.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/hllvc/grantline"

// Exporter selection, read from the environment like the rest of the OTel
// SDK configuration surface.
const (
	envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envLogExporter  = "GRANTLINE_LOG_EXPORTER" // "stdout" for local debugging
)

var loggerProvider *sdklog.LoggerProvider

// Instrument installs the process-wide slog default: a text or JSON handler
// on stderr, fanned out to an OpenTelemetry log exporter when one is
// configured via the environment. Severity below level is dropped in both
// sinks.
func Instrument(level slog.Level, format string) error {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}

	exporter, err := newExporter()
	if err != nil {
		return fmt.Errorf("failed to create log exporter: %w", err)
	}

	if exporter != nil {
		loggerProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(
				minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level)),
			),
		)
		bridge := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(loggerProvider))
		handler = newFanoutHandler(handler, bridge)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// Shutdown flushes and stops the OTel log pipeline, if one was started.
func Shutdown(ctx context.Context) error {
	if loggerProvider == nil {
		return nil
	}
	return loggerProvider.Shutdown(ctx)
}

// newExporter picks the exporter from the environment: OTLP/HTTP when an
// endpoint is set, stdout for debugging, none otherwise.
func newExporter() (sdklog.Exporter, error) {
	switch {
	case os.Getenv(envOTLPEndpoint) != "":
		return otlploghttp.New(context.Background())
	case os.Getenv(envLogExporter) == "stdout":
		return stdoutlog.New()
	default:
		return nil, nil
	}
}

// severity maps a slog level to the minimum OTel severity kept by the
// exporter pipeline.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// fanoutHandler delivers each record to every underlying handler.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	return fanoutHandler{handlers: handlers}
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: next}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return fanoutHandler{handlers: next}
}
