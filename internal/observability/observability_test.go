package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/processors/minsev"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestInstrument_Formats(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	tests := []struct {
		format string
		want   string
	}{
		{format: FormatText, want: "msg=hello"},
		{format: FormatJSON, want: `"msg":"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			shutdown, err := instrument(context.Background(), slog.LevelInfo, tt.format, &buf, env(nil))
			require.NoError(t, err)

			slog.Debug("hidden")
			slog.Info("hello")

			assert.Contains(t, buf.String(), tt.want)
			assert.NotContains(t, buf.String(), "hidden")
			assert.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestInstrument_OTelStdout(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	shutdown, err := instrument(context.Background(), slog.LevelWarn, FormatOTel, &buf, env(nil))
	require.NoError(t, err)

	slog.Info("dropped below minimum severity")
	slog.Warn("provider unavailable")
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "provider unavailable")
	assert.NotContains(t, buf.String(), "dropped below minimum severity")
}

func TestInstrument_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := instrument(ctx, slog.LevelInfo, "xml", &bytes.Buffer{}, env(nil))
	assert.ErrorContains(t, err, "unknown log format")

	_, err = instrument(ctx, slog.LevelInfo, FormatOTel, &bytes.Buffer{}, env(map[string]string{"OTEL_LOGS_EXPORTER": "zipkin"}))
	assert.ErrorContains(t, err, "unsupported logs exporter")

	_, err = instrument(ctx, slog.LevelInfo, FormatOTel, &bytes.Buffer{}, env(map[string]string{
		"OTEL_LOGS_EXPORTER":          "otlp",
		"OTEL_EXPORTER_OTLP_PROTOCOL": "http/json",
	}))
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}

func TestSeverity(t *testing.T) {
	assert.Equal(t, minsev.SeverityDebug, severity(slog.LevelDebug))
	assert.Equal(t, minsev.SeverityInfo, severity(slog.LevelInfo))
	assert.Equal(t, minsev.SeverityWarn, severity(slog.LevelWarn))
	assert.Equal(t, minsev.SeverityError, severity(slog.LevelError))
	assert.Equal(t, minsev.SeverityError, severity(slog.LevelError+4))
}
