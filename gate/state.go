// Package gate provides the admin-access state machine.
//
// The gate composes the allow-list probe, device trust, biometric
// freshness, and session identity into one of six views. The transition
// logic is a pure function over those signals, so it is testable without
// rendering anything; the Gate orchestrator sequences the signal reads and
// resolves biometric challenges.
package gate

import stepauth "github.com/stepauth/stepauth-go"

// State is the view the admin surface should render.
type State int

const (
	// StateChecking is the initial state while signals resolve.
	StateChecking State = iota

	// StateBiometricChallenge prompts for the WebAuthn ceremony.
	StateBiometricChallenge

	// StateNotFoundDecoy disguises a blocked admin route as a generic
	// not-found page.
	StateNotFoundDecoy

	// StatePasswordLogin shows the password form for a recognized origin.
	StatePasswordLogin

	// StateAccessDenied is rendered for an authenticated non-admin role.
	StateAccessDenied

	// StateAdminSurface renders the privileged area.
	StateAdminSurface
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateBiometricChallenge:
		return "biometric_challenge"
	case StateNotFoundDecoy:
		return "not_found_decoy"
	case StatePasswordLogin:
		return "password_login"
	case StateAccessDenied:
		return "access_denied"
	case StateAdminSurface:
		return "admin_surface"
	default:
		return "unknown"
	}
}

// ChallengeReason distinguishes a first-time challenge from the periodic
// re-verification of an already-trusted device.
type ChallengeReason string

const (
	ReasonNone   ChallengeReason = ""
	ReasonFresh  ChallengeReason = "fresh"
	ReasonReauth ChallengeReason = "reauth"
)

// View is the gate's rendering decision.
type View struct {
	State  State
	Reason ChallengeReason

	// DeniedRole carries the non-admin role behind StateAccessDenied.
	DeniedRole stepauth.Role
}
