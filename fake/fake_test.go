package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	stepauth "github.com/stepauth/stepauth-go"
	"github.com/stepauth/stepauth-go/gate"
)

func TestLogin(t *testing.T) {
	c := NewClient(WithUser("u1", "alice@example.com", "hunter22", stepauth.RoleAdmin))

	identity, err := c.Sessions().Login(context.Background(), stepauth.LoginInput{
		Identifier: "alice@example.com",
		Password:   "hunter22",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if identity.ID != "u1" || identity.Role != stepauth.RoleAdmin {
		t.Errorf("unexpected identity: %+v", identity)
	}
	if snap := c.Sessions().Snapshot(); !snap.Authenticated() {
		t.Error("session should be authenticated after login")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	c := NewClient(WithUser("u1", "alice@example.com", "hunter22", stepauth.RoleUser))

	_, err := c.Sessions().Login(context.Background(), stepauth.LoginInput{
		Identifier: "alice@example.com",
		Password:   "wrong",
	})
	if !errors.Is(err, stepauth.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestLogin_Banned(t *testing.T) {
	c := NewClient(WithBannedUser("u2", "bob@example.com", stepauth.BanInfo{Reason: "abuse"}))

	_, err := c.Sessions().Login(context.Background(), stepauth.LoginInput{
		Identifier: "bob@example.com",
		Password:   "anything",
	})
	var banErr *stepauth.BanError
	if !errors.As(err, &banErr) {
		t.Fatalf("expected *BanError, got %v", err)
	}
	if banErr.Info.Reason != "abuse" {
		t.Errorf("expected reason carried, got %q", banErr.Info.Reason)
	}
}

func TestLogin_Unverified(t *testing.T) {
	c := NewClient(WithUnverifiedUser("u3", "carol@example.com", "pw"))

	_, err := c.Sessions().Login(context.Background(), stepauth.LoginInput{
		Identifier: "carol@example.com",
		Password:   "pw",
	})
	var verr *stepauth.VerificationRequiredError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerificationRequiredError, got %v", err)
	}
}

func TestRegister_Exists(t *testing.T) {
	c := NewClient(WithUser("u1", "alice@example.com", "pw", stepauth.RoleUser))

	_, err := c.Sessions().Register(context.Background(), stepauth.RegisterInput{
		Email:    "alice@example.com",
		Password: "pw2",
	})
	if !errors.Is(err, stepauth.ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}
}

func TestCeremony_AdoptsAdminAndTrust(t *testing.T) {
	c := NewClient(WithUser("u1", "alice@example.com", "pw", stepauth.RoleAdmin))

	result, err := c.Ceremony().Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if result.Identity == nil || !result.Identity.Role.CanAdmin() {
		t.Errorf("expected admin identity, got %+v", result.Identity)
	}
	if !c.Trust().HasTrustedMarker() {
		t.Error("marker should be set after a successful ceremony")
	}
	if !c.Trust().IsBiometricFresh() {
		t.Error("freshness should be recorded after a successful ceremony")
	}
}

func TestCeremony_NoAdminEnrolled(t *testing.T) {
	c := NewClient(WithUser("u1", "alice@example.com", "pw", stepauth.RoleUser))

	_, err := c.Ceremony().Authenticate(context.Background())
	ce, ok := stepauth.AsCeremonyError(err)
	if !ok || ce.Kind != stepauth.FailureCredentialNotRecognized {
		t.Errorf("expected credential-not-recognized, got %v", err)
	}
}

func TestRevoke_ClearsTrust(t *testing.T) {
	c := NewClient(
		WithDevice("fake-device-000001", "Laptop"),
		WithTrustedDevice("fake-device-000001", time.Now()),
	)

	if err := c.Devices().Revoke(context.Background(), "fake-device-000001"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if c.Trust().HasTrustedMarker() {
		t.Error("marker should clear when the current device is revoked")
	}
	if c.Trust().IsBiometricFresh() {
		t.Error("freshness should clear with the marker")
	}
}

func TestGateIntegration_TrustedStaleBiometric(t *testing.T) {
	c := NewClient(
		WithUser("u1", "alice@example.com", "pw", stepauth.RoleAdmin),
		WithTrustedDevice("fake-device-000001", time.Now().Add(-25*time.Hour)),
	)

	g := gate.New(c.Sessions(), c.Trust(), c.Ceremony(), c.Prober(), gate.WithSuccessDelay(0))
	view := g.Evaluate(context.Background())
	if view.State != gate.StateBiometricChallenge || view.Reason != gate.ReasonReauth {
		t.Fatalf("expected re-auth challenge, got %+v", view)
	}

	res := g.ResolveChallenge(context.Background())
	if res.Outcome != gate.OutcomeAdminSurface {
		t.Errorf("expected admin surface after ceremony, got %v", res.Outcome)
	}
	if !c.Sessions().Snapshot().Authenticated() {
		t.Error("identity should be adopted into the session")
	}
}

func TestAuthenticator(t *testing.T) {
	a := &Authenticator{}
	if !a.Available() {
		t.Error("default authenticator should be available")
	}
	resp, err := a.Get(context.Background(), nil)
	if err != nil || len(resp) == 0 {
		t.Errorf("Get: got (%q, %v)", resp, err)
	}
	if a.GetCalls != 1 {
		t.Errorf("expected 1 Get call, got %d", a.GetCalls)
	}

	a = &Authenticator{Err: stepauth.ErrAuthenticatorCancelled}
	if _, err := a.Create(context.Background(), nil); !errors.Is(err, stepauth.ErrAuthenticatorCancelled) {
		t.Errorf("expected cancellation error, got %v", err)
	}
}

func TestGateIntegration_BlockedDecoy(t *testing.T) {
	c := NewClient(WithDecision(stepauth.DecisionBlocked))

	g := gate.New(c.Sessions(), c.Trust(), c.Ceremony(), c.Prober(), gate.WithSuccessDelay(0))
	if view := g.Evaluate(context.Background()); view.State != gate.StateNotFoundDecoy {
		t.Errorf("expected decoy, got %v", view.State)
	}
}
