package client

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/internal/nats"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("nats://localhost:4222", zap.NewNop())

	config := c.Config()
	if config.URL != "nats://localhost:4222" {
		t.Errorf("URL = %q", config.URL)
	}
	if config.Name != "daedalus-client" {
		t.Errorf("Name = %q", config.Name)
	}
	if c.IsConnected() {
		t.Error("new client should not report connected")
	}
	if c.JetStream() != nil {
		t.Error("JetStream should be nil before Connect")
	}
}

func TestNewClientWithConfigNilLogger(t *testing.T) {
	c := NewClientWithConfig(nats.DefaultConnectionConfig("nats://localhost:4222"), nil)
	if c.logger == nil {
		t.Error("nil logger should be replaced with a nop logger")
	}
}

func TestDisconnectedClientBehavior(t *testing.T) {
	c := NewClient("nats://localhost:4222", zap.NewNop())

	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping on a disconnected client should fail")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on a disconnected client = %v", err)
	}
	if stats := c.Stats(); stats != (ConnectionStats{}) {
		t.Errorf("Stats on a disconnected client = %+v", stats)
	}
}
