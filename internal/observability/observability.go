// Package observability configures the process-wide slog logger.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Log formats accepted by Instrument.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatOTel = "otel"
)

const instrumentationName = "github.com/florianilch/decentstore"

// ShutdownFunc flushes and releases logging resources.
type ShutdownFunc func(ctx context.Context) error

// Instrument installs the default slog logger for format, writing to stderr.
//
// The otel format bridges slog into an OpenTelemetry logger provider. The
// exporter follows OTEL_LOGS_EXPORTER (stdout or otlp, default stdout); otlp
// picks its transport from OTEL_EXPORTER_OTLP_LOGS_PROTOCOL or
// OTEL_EXPORTER_OTLP_PROTOCOL (grpc or http/protobuf).
func Instrument(ctx context.Context, level slog.Level, format string) (ShutdownFunc, error) {
	return instrument(ctx, level, format, os.Stderr, os.Getenv)
}

func instrument(ctx context.Context, level slog.Level, format string, w io.Writer, getenv func(string) string) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	switch format {
	case FormatText, "":
		slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
		return noop, nil
	case FormatJSON:
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
		return noop, nil
	case FormatOTel:
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	exporter, err := newExporter(ctx, w, getenv)
	if err != nil {
		return nil, err
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))

	global.SetLoggerProvider(provider)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		_, _ = fmt.Fprintf(w, "opentelemetry: %v\n", err)
	}))

	slog.SetDefault(slog.New(otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))))

	return func(ctx context.Context) error {
		return errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx))
	}, nil
}

func newExporter(ctx context.Context, w io.Writer, getenv func(string) string) (sdklog.Exporter, error) {
	switch kind := strings.ToLower(getenv("OTEL_LOGS_EXPORTER")); kind {
	case "", "stdout", "console":
		return stdoutlog.New(stdoutlog.WithWriter(w))
	case "otlp":
		protocol := getenv("OTEL_EXPORTER_OTLP_LOGS_PROTOCOL")
		if protocol == "" {
			protocol = getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
		}
		switch protocol {
		case "grpc":
			return otlploggrpc.New(ctx)
		case "", "http/protobuf":
			return otlploghttp.New(ctx)
		default:
			return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
		}
	default:
		return nil, fmt.Errorf("unsupported logs exporter %q", kind)
	}
}

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
