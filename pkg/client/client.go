// Package client is the JetStream entry point for queue-based execution. It
// owns the NATS connection lifecycle and exposes the JetStream context the
// worker builds its consumers on.
package client

import (
	"context"
	"fmt"

	natsclient "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/internal/nats"
)

// Client manages the NATS connection and JetStream context.
//
// Example usage:
//
//	c := client.NewClient("nats://localhost:4222", logger)
//	if err := c.Connect(ctx); err != nil {
//	    logger.Fatal("Failed to connect", zap.Error(err))
//	}
//	defer c.Close()
type Client struct {
	conn   *natsclient.Conn
	js     natsclient.JetStreamContext
	config *nats.ConnectionConfig
	logger *zap.Logger
}

// NewClient creates a client with default configuration for the given URL.
func NewClient(url string, logger *zap.Logger) *Client {
	return NewClientWithConfig(nats.DefaultConnectionConfig(url), logger)
}

// NewClientWithConfig creates a client with full control over connection
// parameters.
func NewClientWithConfig(config *nats.ConnectionConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{config: config, logger: logger}
}

// Connect establishes the NATS connection and initializes the JetStream
// context. JetStream must be enabled on the server.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	conn, err := nats.Connect(ctx, c.config, c.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	c.conn = conn

	js, err := conn.JetStream()
	if err != nil {
		_ = nats.Close(c.conn)
		c.conn = nil
		return fmt.Errorf("JetStream is not enabled on the NATS server: %w", err)
	}
	c.js = js
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := nats.Close(c.conn)
	c.conn = nil
	c.js = nil
	return err
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return nats.IsConnected(c.conn)
}

// Config returns the connection configuration.
func (c *Client) Config() *nats.ConnectionConfig {
	return c.config
}

// JetStream returns the JetStream context for stream and consumer management.
// Nil before Connect.
func (c *Client) JetStream() natsclient.JetStreamContext {
	return c.js
}

// Ping verifies connectivity by flushing the connection within its timeout.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected to NATS")
	}

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- c.conn.FlushTimeout(c.config.Timeout)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("ping cancelled: %w", ctx.Err())
	case err := <-resultCh:
		if err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	}
}

// ConnectionStats holds connection statistics for monitoring.
type ConnectionStats struct {
	InMsgs     uint64
	OutMsgs    uint64
	InBytes    uint64
	OutBytes   uint64
	Reconnects uint64
}

// Stats returns current connection statistics.
func (c *Client) Stats() ConnectionStats {
	if c.conn == nil {
		return ConnectionStats{}
	}
	stats := c.conn.Stats()
	return ConnectionStats{
		InMsgs:     stats.InMsgs,
		OutMsgs:    stats.OutMsgs,
		InBytes:    stats.InBytes,
		OutBytes:   stats.OutBytes,
		Reconnects: stats.Reconnects,
	}
}
