// Package stepauth provides a framework-agnostic Go SDK for layered
// authentication and step-up access control.
//
// The SDK defines interfaces for the session/token lifecycle, local
// device-trust bookkeeping, WebAuthn ceremonies, device management, and the
// network-origin allow-list probe. Concrete implementations are injected via
// Option functions, making the SDK independent of any specific backend;
// httpapi provides the HTTP adapter and fake provides in-memory
// implementations for tests.
//
// Example usage with the HTTP backend:
//
//	client, err := stepauth.NewClient(
//	    stepauth.LoadConfigFromEnv(),
//	    stepauth.WithSessionService(mgr),
//	    stepauth.WithDeviceTrust(trust),
//	    stepauth.WithCeremonyService(cer),
//	    stepauth.WithAccessProber(api),
//	)
package stepauth

import (
	"fmt"
	"io"
	"log/slog"
)

// Client is the main entry point for step-up auth operations.
// Service implementations are injected via Option functions.
type Client struct {
	config   Config
	logger   *slog.Logger
	sessions SessionService
	trust    DeviceTrust
	ceremony CeremonyService
	devices  DeviceService
	prober   AccessProber
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSessionService sets the session lifecycle implementation.
func WithSessionService(s SessionService) Option {
	return func(c *Client) { c.sessions = s }
}

// WithDeviceTrust sets the local device-trust implementation.
func WithDeviceTrust(t DeviceTrust) Option {
	return func(c *Client) { c.trust = t }
}

// WithCeremonyService sets the WebAuthn ceremony implementation.
func WithCeremonyService(s CeremonyService) Option {
	return func(c *Client) { c.ceremony = s }
}

// WithDeviceService sets the device management implementation.
func WithDeviceService(d DeviceService) Option {
	return func(c *Client) { c.devices = d }
}

// WithAccessProber sets the allow-list probe implementation.
func WithAccessProber(p AccessProber) Option {
	return func(c *Client) { c.prober = p }
}

// NewClient creates a new step-up auth client with the given configuration
// and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{config: cfg.withDefaults(), logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	if c.sessions == nil && c.ceremony == nil && c.prober == nil {
		return nil, fmt.Errorf("stepauth: at least one service is required")
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the configured logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Sessions returns the session service, or nil if not configured.
func (c *Client) Sessions() SessionService { return c.sessions }

// Trust returns the device-trust store, or nil if not configured.
func (c *Client) Trust() DeviceTrust { return c.trust }

// Ceremony returns the ceremony service, or nil if not configured.
func (c *Client) Ceremony() CeremonyService { return c.ceremony }

// Devices returns the device management service, or nil if not configured.
func (c *Client) Devices() DeviceService { return c.devices }

// Prober returns the allow-list prober, or nil if not configured.
func (c *Client) Prober() AccessProber { return c.prober }

// Close releases all resources held by the client.
// Any injected service that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{
		c.sessions, c.trust, c.ceremony, c.devices, c.prober,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
