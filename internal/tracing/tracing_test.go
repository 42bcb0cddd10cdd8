package tracing

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("daedalus")

	if config.ServiceName != "daedalus" {
		t.Errorf("ServiceName = %q", config.ServiceName)
	}
	if config.OTLPEndpoint == "" {
		t.Error("OTLPEndpoint should have a default")
	}
	if config.SampleRatio != 1.0 {
		t.Errorf("SampleRatio = %v, want 1.0", config.SampleRatio)
	}
}

func TestSetupAndShutdown(t *testing.T) {
	// The OTLP HTTP exporter connects lazily, so setup succeeds without a
	// collector; spans are simply dropped at export time.
	config := DefaultConfig("daedalus-test")
	config.OTLPEndpoint = "127.0.0.1:0"

	shutdown, err := Setup(context.Background(), config, zap.NewNop())
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Setup returned nil shutdown")
	}
	if err := Shutdown(shutdown, zap.NewNop()); err != nil {
		t.Logf("shutdown flush reported: %v", err)
	}
}
