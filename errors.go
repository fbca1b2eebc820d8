package stepauth

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a ceremony failure. Callers branch on the kind:
// user cancellation redirects silently, rate limiting keeps the challenge
// view open with a retry affordance, everything else surfaces a distinct
// message.
type FailureKind string

const (
	FailureUserCancelled           FailureKind = "user_cancelled"
	FailureCredentialStateInvalid  FailureKind = "credential_state_invalid"
	FailureTimeout                 FailureKind = "timeout"
	FailureOffline                 FailureKind = "offline"
	FailureNetworkUnreachable      FailureKind = "network_unreachable"
	FailureRateLimited             FailureKind = "rate_limited"
	FailureChallengeExpired        FailureKind = "challenge_expired"
	FailureServerError             FailureKind = "server_error"
	FailureCredentialNotRecognized FailureKind = "credential_not_recognized"
	FailureUnknown                 FailureKind = "unknown"
)

// CeremonyError is the normalized failure produced by the ceremony and
// device packages. RetryAfter is populated only for FailureRateLimited.
type CeremonyError struct {
	Kind       FailureKind
	RetryAfter time.Duration
	Message    string
	cause      error
}

func (e *CeremonyError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("stepauth: ceremony %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("stepauth: ceremony %s", e.Kind)
}

func (e *CeremonyError) Unwrap() error { return e.cause }

// NewCeremonyError builds a CeremonyError of the given kind.
func NewCeremonyError(kind FailureKind, message string) *CeremonyError {
	return &CeremonyError{Kind: kind, Message: message}
}

// WrapCeremonyError builds a CeremonyError that preserves its cause for
// errors.Is/As chains.
func WrapCeremonyError(kind FailureKind, err error) *CeremonyError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &CeremonyError{Kind: kind, Message: msg, cause: err}
}

// AsCeremonyError extracts a CeremonyError from an error chain.
func AsCeremonyError(err error) (*CeremonyError, bool) {
	var ce *CeremonyError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// BanError is returned by login when the account is banned. The structured
// payload is handed to the caller rather than treated as a generic failure.
type BanError struct {
	Info BanInfo
}

func (e *BanError) Error() string {
	return fmt.Sprintf("stepauth: account banned: %s", e.Info.Reason)
}

// VerificationRequiredError signals that the account exists but its email
// is not yet verified; Email lets the caller resume onboarding.
type VerificationRequiredError struct {
	Email string
}

func (e *VerificationRequiredError) Error() string {
	return fmt.Sprintf("stepauth: verification required for %s", e.Email)
}

var (
	// ErrUnauthenticated is the definitive-unauthenticated outcome of a
	// refresh (401/403). It is the only condition that actively logs the
	// user out.
	ErrUnauthenticated = errors.New("stepauth: not authenticated")

	// ErrAccountExists is returned by register when the account already
	// exists and is verified.
	ErrAccountExists = errors.New("stepauth: account already exists")

	// ErrDeviceLimit is returned when the server refuses enrollment
	// because the device limit was reached.
	ErrDeviceLimit = errors.New("stepauth: device limit reached")

	// ErrCeremonyUnsupported is returned when the platform lacks a usable
	// authenticator.
	ErrCeremonyUnsupported = errors.New("stepauth: platform authenticator unavailable")

	// ErrAuthenticatorCancelled is returned by Authenticator
	// implementations when the user dismissed the platform prompt.
	ErrAuthenticatorCancelled = errors.New("stepauth: authenticator prompt cancelled")

	// ErrAuthenticatorInvalidState is returned by Authenticator
	// implementations when the local credential state is unusable and
	// re-registration is required.
	ErrAuthenticatorInvalidState = errors.New("stepauth: authenticator credential state invalid")
)
