// Package device provides the DeviceService implementation.
//
// Operations are thin passthroughs to the backend with two local rules:
// revoking a device the server reports as already gone is a success, and
// revoking the currently-marked device clears the local trust marker.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	stepauth "github.com/stepauth/stepauth-go"
)

// ErrNotFound is returned by backends when the server reports 404 for a
// device. Revoke treats it as already-revoked success.
var ErrNotFound = errors.New("stepauth/device: device not found")

// Backend defines the contract for pluggable device-management backends.
type Backend interface {
	List(ctx context.Context) ([]stepauth.Device, error)
	Rename(ctx context.Context, deviceID, label string) error
	Revoke(ctx context.Context, deviceID string) error
	RevokeAll(ctx context.Context) error
}

// Service implements stepauth.DeviceService with a configurable backend.
type Service struct {
	backend Backend
	trust   stepauth.DeviceTrust
	logger  *slog.Logger
}

var _ stepauth.DeviceService = (*Service)(nil)

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a device-management service. trust may be nil when no local
// marker bookkeeping is wanted.
func New(backend Backend, trust stepauth.DeviceTrust, opts ...Option) *Service {
	s := &Service{backend: backend, trust: trust, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// List returns all enrolled devices for the current user.
func (s *Service) List(ctx context.Context) ([]stepauth.Device, error) {
	devices, err := s.backend.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("stepauth/device: %w", err)
	}
	return devices, nil
}

// Rename updates a device's display label.
func (s *Service) Rename(ctx context.Context, deviceID, label string) error {
	if deviceID == "" {
		return fmt.Errorf("stepauth/device: deviceID cannot be empty")
	}
	if err := s.backend.Rename(ctx, deviceID, label); err != nil {
		return fmt.Errorf("stepauth/device: %w", err)
	}
	return nil
}

// Revoke removes a device server-side. A device the server already forgot
// counts as revoked. The local marker clears only when the revocation of
// the currently-marked device is confirmed (success or 404).
func (s *Service) Revoke(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("stepauth/device: deviceID cannot be empty")
	}

	err := s.backend.Revoke(ctx, deviceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("stepauth/device: %w", err)
	}

	if s.trust != nil && s.trust.TrustedMarker() == deviceID {
		s.trust.ClearTrustedMarker()
		s.trust.ClearBiometricFreshness()
	}
	return nil
}

// RevokeAll removes every enrolled device and always clears the local
// marker on success.
func (s *Service) RevokeAll(ctx context.Context) error {
	if err := s.backend.RevokeAll(ctx); err != nil {
		return fmt.Errorf("stepauth/device: %w", err)
	}
	if s.trust != nil {
		s.trust.ClearTrustedMarker()
		s.trust.ClearBiometricFreshness()
	}
	return nil
}
