// Package ceremony provides the CeremonyService implementation.
//
// A ceremony is three steps: fetch a server challenge, run the platform
// authenticator against it, and submit the result for verification. The
// two network steps are raced against a fixed wall-clock deadline; the
// platform step suspends on user interaction and cannot be cancelled once
// started. Every failure is normalized into *stepauth.CeremonyError.
package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	stepauth "github.com/stepauth/stepauth-go"
	"github.com/stepauth/stepauth-go/metrics"
)

// Backend defines the challenge/verify contract for both ceremonies.
// Transport-level failures arrive pre-classified as *stepauth.CeremonyError
// (rate limiting, expired challenge, server error); anything else is
// classified here.
type Backend interface {
	Challenge(ctx context.Context) (*stepauth.Challenge, error)
	Verify(ctx context.Context, challengeID string, credential []byte) (*stepauth.CeremonyResult, error)
	EnrollOptions(ctx context.Context, label string) (*stepauth.Challenge, error)
	EnrollVerify(ctx context.Context, challengeID string, credential []byte) (*stepauth.EnrollResult, error)
}

// Client implements stepauth.CeremonyService with a configurable backend.
type Client struct {
	backend Backend
	authn   stepauth.Authenticator
	trust   stepauth.DeviceTrust
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	online  func() bool
	now     func() time.Time
}

var _ stepauth.CeremonyService = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTimeout overrides the per-call network deadline. Default: 10 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOnlineProbe sets the connectivity hint used to distinguish Offline
// from NetworkUnreachable. Default: always online.
func WithOnlineProbe(online func() bool) Option {
	return func(c *Client) { c.online = online }
}

// New creates a ceremony client.
func New(backend Backend, authn stepauth.Authenticator, trust stepauth.DeviceTrust, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		authn:   authn,
		trust:   trust,
		logger:  slog.Default(),
		metrics: metrics.New(false),
		timeout: 10 * time.Second,
		online:  func() bool { return true },
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Supported reports whether a platform authenticator is usable.
func (c *Client) Supported() bool {
	return c.authn != nil && c.authn.Available()
}

// Authenticate runs the authentication ceremony. On success the device
// marker and the biometric-freshness timestamp are both refreshed.
func (c *Client) Authenticate(ctx context.Context) (*stepauth.CeremonyResult, error) {
	started := c.now()
	result, err := c.authenticate(ctx)
	if err != nil {
		c.metrics.RecordCeremony("authenticate", failureKind(err), c.now().Sub(started).Seconds())
		return nil, err
	}
	c.metrics.RecordCeremony("authenticate", "success", c.now().Sub(started).Seconds())
	return result, nil
}

func (c *Client) authenticate(ctx context.Context) (*stepauth.CeremonyResult, error) {
	if !c.Supported() {
		return nil, stepauth.ErrCeremonyUnsupported
	}

	challenge, err := c.fetchChallenge(ctx)
	if err != nil {
		return nil, err
	}

	var assertion protocol.CredentialAssertion
	if err := json.Unmarshal(challenge.Options, &assertion); err != nil {
		return nil, stepauth.WrapCeremonyError(stepauth.FailureUnknown, err)
	}

	credential, err := c.authn.Get(ctx, &assertion)
	if err != nil {
		return nil, classifyAuthenticator(err)
	}

	result, err := c.verify(ctx, challenge.ID, credential)
	if err != nil {
		return nil, err
	}

	if c.trust != nil {
		c.trust.SetTrustedMarker(result.DeviceID)
		c.trust.RecordBiometricSuccess()
	}
	return result, nil
}

// Enroll runs the registration ceremony. An empty label falls back to a
// best-effort device descriptor for audit display.
func (c *Client) Enroll(ctx context.Context, label string) (*stepauth.EnrollResult, error) {
	started := c.now()
	result, err := c.enroll(ctx, label)
	if err != nil {
		c.metrics.RecordCeremony("enroll", failureKind(err), c.now().Sub(started).Seconds())
		return nil, err
	}
	c.metrics.RecordCeremony("enroll", "success", c.now().Sub(started).Seconds())
	return result, nil
}

func (c *Client) enroll(ctx context.Context, label string) (*stepauth.EnrollResult, error) {
	if !c.Supported() {
		return nil, stepauth.ErrCeremonyUnsupported
	}
	if label == "" {
		label = DeviceDescriptor()
	}

	nctx, cancel := context.WithTimeout(ctx, c.timeout)
	challenge, err := c.backend.EnrollOptions(nctx, label)
	cancel()
	if err != nil {
		return nil, c.classifyTransport(err)
	}

	var creation protocol.CredentialCreation
	if err := json.Unmarshal(challenge.Options, &creation); err != nil {
		return nil, stepauth.WrapCeremonyError(stepauth.FailureUnknown, err)
	}

	credential, err := c.authn.Create(ctx, &creation)
	if err != nil {
		return nil, classifyAuthenticator(err)
	}

	nctx, cancel = context.WithTimeout(ctx, c.timeout)
	result, err := c.backend.EnrollVerify(nctx, challenge.ID, credential)
	cancel()
	if err != nil {
		return nil, c.classifyTransport(err)
	}

	if c.trust != nil {
		c.trust.SetTrustedMarker(result.DeviceID)
	}
	return result, nil
}

func (c *Client) fetchChallenge(ctx context.Context) (*stepauth.Challenge, error) {
	nctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	challenge, err := c.backend.Challenge(nctx)
	if err != nil {
		return nil, c.classifyTransport(err)
	}
	return challenge, nil
}

func (c *Client) verify(ctx context.Context, challengeID string, credential []byte) (*stepauth.CeremonyResult, error) {
	nctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	result, err := c.backend.Verify(nctx, challengeID, credential)
	if err != nil {
		return nil, c.classifyTransport(err)
	}
	return result, nil
}

// classifyTransport normalizes a network-step failure. Pre-classified and
// sentinel errors pass through; a deadline reads as Timeout, distinct from
// the no-response cases, which are the only ones that may read as Offline
// or NetworkUnreachable.
func (c *Client) classifyTransport(err error) error {
	if ce, ok := stepauth.AsCeremonyError(err); ok {
		return ce
	}
	if errors.Is(err, stepauth.ErrUnauthenticated) || errors.Is(err, stepauth.ErrDeviceLimit) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return stepauth.WrapCeremonyError(stepauth.FailureTimeout, err)
	}
	if !c.online() {
		return stepauth.WrapCeremonyError(stepauth.FailureOffline, err)
	}
	return stepauth.WrapCeremonyError(stepauth.FailureNetworkUnreachable, err)
}

func classifyAuthenticator(err error) error {
	switch {
	case errors.Is(err, stepauth.ErrAuthenticatorCancelled):
		return stepauth.WrapCeremonyError(stepauth.FailureUserCancelled, err)
	case errors.Is(err, stepauth.ErrAuthenticatorInvalidState):
		return stepauth.WrapCeremonyError(stepauth.FailureCredentialStateInvalid, err)
	default:
		return stepauth.WrapCeremonyError(stepauth.FailureUnknown, err)
	}
}

func failureKind(err error) string {
	if ce, ok := stepauth.AsCeremonyError(err); ok {
		return string(ce.Kind)
	}
	return "error"
}
