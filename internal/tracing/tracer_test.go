package tracing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be disabled by default")
	require.Equal(t, ExporterFile, cfg.Exporter)
	require.Equal(t, DefaultOTLPEndpoint, cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, DefaultServiceName, cfg.ServiceName)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "disabled ignores everything", cfg: Config{Exporter: "carrier-pigeon"}},
		{name: "file without path", cfg: Config{Enabled: true, Exporter: ExporterFile}, wantErr: "file_path"},
		{name: "unknown exporter", cfg: Config{Enabled: true, Exporter: "zipkin"}, wantErr: "unsupported exporter"},
		{name: "bad sample rate", cfg: Config{Enabled: true, Exporter: ExporterNone, SampleRate: 2}, wantErr: "sample_rate"},
		{name: "stdout ok", cfg: Config{Enabled: true, Exporter: ExporterStdout, SampleRate: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	ctx, span := provider.Tracer().Start(context.Background(), "noop-span")
	require.NotNil(t, ctx)
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
	require.NoError(t, provider.Close(context.Background()))
}

func TestNewProvider_FileExporter(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")

	provider, err := NewProvider(Config{
		Enabled:     true,
		Exporter:    ExporterFile,
		FilePath:    tracePath,
		SampleRate:  1.0,
		ServiceName: "test-service",
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), SpanReset)
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
	require.Equal(t, 1, countLines(t, tracePath))
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: ExporterFile})
	require.Error(t, err)
}

func TestStartEnd_RecordsOutcome(t *testing.T) {
	recorder := tracetest.NewInMemoryExporter()
	provider := NewProviderWithExporter(recorder)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	_, ok := Start(context.Background(), provider.Tracer(), SpanBuild, attribute.String(AttrIndexName, "a"))
	End(ok, nil)

	_, failed := Start(context.Background(), provider.Tracer(), SpanBuild)
	End(failed, errors.New("factory exploded"))

	spans := recorder.GetSpans()
	require.Len(t, spans, 2)
	require.Equal(t, codes.Ok, spans[0].Status.Code)
	require.Contains(t, spans[0].Attributes, attribute.String(AttrIndexName, "a"))
	require.Equal(t, codes.Error, spans[1].Status.Code)
	require.Equal(t, "factory exploded", spans[1].Status.Description)
}

func TestStart_NilTracer(t *testing.T) {
	ctx, span := Start(context.Background(), nil, SpanBuild)
	require.NotNil(t, ctx)
	require.False(t, span.IsRecording())
	End(span, errors.New("ignored"))
}
