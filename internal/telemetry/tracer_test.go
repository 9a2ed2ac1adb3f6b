// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ManuGH/xstream/internal/config"
)

func TestNewProvider_DisabledInstallsNoop(t *testing.T) {
	cfg := config.Defaults().Telemetry
	cfg.Enabled = false

	p, err := NewProvider(context.Background(), cfg, "v1")
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_RejectsUnknownExporter(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: true, Exporter: "zipkin", Endpoint: "localhost:9411"}

	_, err := NewProvider(context.Background(), cfg, "v1")
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: zipkin (supported: grpc, http)", err.Error())
}

func TestNewProvider_HTTPExporterRecordsSpans(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: true, Exporter: "http", Endpoint: "127.0.0.1:1", SamplingRate: 1}

	p, err := NewProvider(context.Background(), cfg, "v1")
	require.NoError(t, err)
	require.True(t, p.Enabled())
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, span := Tracer("xstream/test").Start(context.Background(), "segment")
	assert.True(t, span.IsRecording())
	span.End()

	// The collector is unreachable; only the flush may fail.
	_ = p.Shutdown(context.Background())
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		got := samplerFor(tt.rate).Description()
		assert.True(t, strings.HasPrefix(got, tt.want), "rate %v: %s", tt.rate, got)
	}
}

func TestProvider_NilIsSafe(t *testing.T) {
	var p *Provider
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}
