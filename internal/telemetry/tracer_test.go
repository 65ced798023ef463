// SPDX-License-Identifier: MIT
package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviderDisabled(t *testing.T) {
	cfg := Config{
		Enabled:      false,
		ServiceName:  "memscreen-test",
		ExporterType: "grpc",
	}

	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if provider.tp != nil {
		t.Error("expected noop provider (tp == nil)")
	}

	tracer := otel.Tracer("test")
	_, span := tracer.Start(context.Background(), "noop-check")
	if span.IsRecording() {
		t.Error("expected noop span to be non-recording")
	}
	span.End()
}

func TestNewProviderInvalidExporter(t *testing.T) {
	cfg := Config{
		Enabled:      true,
		ServiceName:  "memscreen-test",
		ExporterType: "carrier-pigeon",
	}

	if _, err := NewProvider(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unsupported exporter type")
	}
}

func TestShutdownNoopProvider(t *testing.T) {
	provider := &Provider{tp: nil}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown should not fail: %v", err)
	}
}

func TestTracerReturnsNamedTracer(t *testing.T) {
	if Tracer("memscreen/recorder") == nil {
		t.Fatal("expected a tracer instance")
	}
}
