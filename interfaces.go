package stepauth

import (
	"context"

	"github.com/go-webauthn/webauthn/protocol"
)

// SessionService maintains the single source of truth for "who is the
// current actor" across restarts, network blips, and explicit auth actions.
// Implementations: session/ (backend-driven), fake/ (testing).
type SessionService interface {
	// Snapshot returns the current session state.
	Snapshot() Session

	// Hydrate restores the cached identity (if any) and schedules a
	// background refresh. Intended for cold start.
	Hydrate(ctx context.Context)

	// RefreshSilently exchanges the refresh cookie for a new bearer token
	// in the background, retrying transient failures with backoff.
	RefreshSilently(ctx context.Context)

	// Login performs a credential login. Ban and verification-required
	// outcomes surface as *BanError and *VerificationRequiredError.
	Login(ctx context.Context, in LoginInput) (*Identity, error)

	// Register creates an account. ErrAccountExists and
	// *VerificationRequiredError distinguish the non-active outcomes.
	Register(ctx context.Context, in RegisterInput) (*Identity, error)

	// Logout terminates the session. Navigation is initiated before
	// in-memory state is cleared; server failure is still honored locally.
	Logout(ctx context.Context)

	// Adopt materializes an identity from an external source, e.g. a
	// successful biometric ceremony.
	Adopt(identity *Identity, accessToken string)
}

// DeviceTrust is the local trusted-device and biometric-freshness
// bookkeeping. Every accessor degrades to the least-trusting outcome on
// storage error; no failure is fatal.
type DeviceTrust interface {
	HasTrustedMarker() bool
	SetTrustedMarker(id string)
	TrustedMarker() string
	ClearTrustedMarker()
	RecordBiometricSuccess()
	ClearBiometricFreshness()
	IsBiometricFresh() bool
}

// CeremonyService performs the two WebAuthn ceremonies against the server
// challenge/verify protocol. Failures are normalized into *CeremonyError.
type CeremonyService interface {
	// Supported reports whether a platform authenticator is usable.
	Supported() bool

	// Authenticate runs the authentication ceremony. On success the device
	// marker and biometric freshness are refreshed.
	Authenticate(ctx context.Context) (*CeremonyResult, error)

	// Enroll runs the registration ceremony, transmitting a human-readable
	// device label for audit display. Empty label means best-effort sniff.
	Enroll(ctx context.Context, label string) (*EnrollResult, error)
}

// DeviceService manages enrolled devices server-side. Revoking the
// currently-marked device also clears the local marker; a 404 on revoke is
// treated as already-revoked success.
type DeviceService interface {
	List(ctx context.Context) ([]Device, error)
	Rename(ctx context.Context, deviceID, label string) error
	Revoke(ctx context.Context, deviceID string) error
	RevokeAll(ctx context.Context) error
}

// AccessProber resolves the network-origin allow-list decision. Probe never
// returns an error for view selection: an unreachable backend degrades to
// DecisionUnknown.
type AccessProber interface {
	Probe(ctx context.Context) AccessDecision
}

// Authenticator is the platform ceremony surface. The platform call
// suspends on user interaction and cannot be forcibly cancelled once
// started; only its result can be ignored.
// Implementations: a browser/OS bridge in the host application, fake/ (testing).
type Authenticator interface {
	// Available reports whether a platform authenticator is present.
	Available() bool

	// Get runs the assertion (authentication) ceremony and returns the raw
	// credential response for server verification.
	Get(ctx context.Context, assertion *protocol.CredentialAssertion) ([]byte, error)

	// Create runs the attestation (registration) ceremony and returns the
	// raw credential response for server verification.
	Create(ctx context.Context, creation *protocol.CredentialCreation) ([]byte, error)
}
