// Package devicetrust provides local trusted-device and biometric-freshness
// bookkeeping.
//
// The store makes no network calls. Loss of the marker only downgrades
// convenience, not security, so storage failures are logged and swallowed;
// every read degrades to the least-trusting outcome.
package devicetrust

import (
	"log/slog"
	"strconv"
	"time"

	stepauth "github.com/stepauth/stepauth-go"
	"github.com/stepauth/stepauth-go/localstore"
)

const (
	keyMarker        = "device_marker"
	keyLastBiometric = "last_biometric_auth"

	// minMarkerLen is the shortest marker accepted as valid. Anything
	// shorter is treated as absent.
	minMarkerLen = 10
)

// Store implements stepauth.DeviceTrust over an injectable key-value store.
type Store struct {
	kv     localstore.Store
	logger *slog.Logger
	maxAge time.Duration
	now    func() time.Time
}

var _ stepauth.DeviceTrust = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a structured logger for storage-failure diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxAge overrides the biometric re-auth freshness window.
// Default: 24 hours.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a device-trust store over the given key-value namespace.
func New(kv localstore.Store, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: slog.Default(),
		maxAge: 24 * time.Hour,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HasTrustedMarker reports whether a valid trusted-device marker is present.
// A storage-access failure reads as "not trusted", never as an error.
func (s *Store) HasTrustedMarker() bool {
	return s.TrustedMarker() != ""
}

// TrustedMarker returns the stored marker, or empty if absent or invalid.
func (s *Store) TrustedMarker() string {
	v, ok, err := s.kv.Get(keyMarker)
	if err != nil {
		s.logger.Debug("device trust: marker read failed", "error", err)
		return ""
	}
	if !ok || len(v) < minMarkerLen {
		return ""
	}
	return v
}

// SetTrustedMarker stores the server-issued device identifier. Markers
// shorter than the validity threshold are ignored.
func (s *Store) SetTrustedMarker(id string) {
	if len(id) < minMarkerLen {
		s.logger.Debug("device trust: refusing short marker", "len", len(id))
		return
	}
	if err := s.kv.Set(keyMarker, id); err != nil {
		s.logger.Warn("device trust: marker write failed", "error", err)
	}
}

// ClearTrustedMarker removes the marker. Idempotent.
func (s *Store) ClearTrustedMarker() {
	if err := s.kv.Delete(keyMarker); err != nil {
		s.logger.Warn("device trust: marker clear failed", "error", err)
	}
}

// RecordBiometricSuccess stores the current time as the last successful
// biometric ceremony. This is the only writer of the freshness timestamp;
// password login never refreshes it.
func (s *Store) RecordBiometricSuccess() {
	ms := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.kv.Set(keyLastBiometric, ms); err != nil {
		s.logger.Warn("device trust: freshness write failed", "error", err)
	}
}

// ClearBiometricFreshness removes the freshness timestamp, forcing the next
// admin entry through re-verification.
func (s *Store) ClearBiometricFreshness() {
	if err := s.kv.Delete(keyLastBiometric); err != nil {
		s.logger.Warn("device trust: freshness clear failed", "error", err)
	}
}

// LastBiometricAuth returns the last successful ceremony time, if recorded.
func (s *Store) LastBiometricAuth() (time.Time, bool) {
	v, ok, err := s.kv.Get(keyLastBiometric)
	if err != nil {
		s.logger.Debug("device trust: freshness read failed", "error", err)
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// IsBiometricFresh reports whether the last successful ceremony is within
// the re-auth freshness window. Never authenticated reads as stale.
func (s *Store) IsBiometricFresh() bool {
	last, ok := s.LastBiometricAuth()
	if !ok {
		return false
	}
	return s.now().Sub(last) <= s.maxAge
}
