package gate

import stepauth "github.com/stepauth/stepauth-go"

// Inputs are the trust signals a view decision is derived from.
type Inputs struct {
	Decision          stepauth.AccessDecision
	ForceSignal       bool
	CeremonySupported bool
	Trusted           bool
	BiometricFresh    bool
	HasIdentity       bool
	Role              stepauth.Role
}

// Decide maps trust signals to a view. It is pure: the orchestrator owns
// signal resolution and ordering.
//
// User-declared intent (the force signal) dominates the allow-list
// decision; a challenge is only ever chosen when the platform can actually
// run the ceremony.
func Decide(in Inputs) View {
	if in.ForceSignal && in.CeremonySupported {
		return View{State: StateBiometricChallenge, Reason: ReasonFresh}
	}

	decision := in.Decision
	if decision == stepauth.DecisionUnknown && in.ForceSignal {
		// An unreachable probe with user-declared intent is treated as a
		// recognized origin rather than falling to the decoy.
		decision = stepauth.DecisionAllowed
	}

	switch decision {
	case stepauth.DecisionAllowed:
		if in.Trusted && !in.BiometricFresh && in.CeremonySupported {
			// Periodic re-verification applies even on a trusted origin.
			return View{State: StateBiometricChallenge, Reason: ReasonReauth}
		}
		if !in.HasIdentity {
			return View{State: StatePasswordLogin}
		}
		return roleView(in.Role)

	case stepauth.DecisionBlocked:
		if in.Trusted && in.CeremonySupported {
			// Recovery path for administrators on an unrecognized network.
			return View{State: StateBiometricChallenge, Reason: ReasonReauth}
		}
		return View{State: StateNotFoundDecoy}

	default:
		return View{State: StateNotFoundDecoy}
	}
}

func roleView(role stepauth.Role) View {
	if role.CanAdmin() {
		return View{State: StateAdminSurface}
	}
	return View{State: StateAccessDenied, DeniedRole: role}
}
