package gate

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	stepauth "github.com/stepauth/stepauth-go"
)

type mockSessions struct {
	mu       sync.Mutex
	session  stepauth.Session
	adopted  *stepauth.Identity
	adoptTok string
}

func (m *mockSessions) Snapshot() stepauth.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *mockSessions) Hydrate(ctx context.Context)         {}
func (m *mockSessions) RefreshSilently(ctx context.Context) {}
func (m *mockSessions) Logout(ctx context.Context)          {}

func (m *mockSessions) Login(ctx context.Context, in stepauth.LoginInput) (*stepauth.Identity, error) {
	return nil, stepauth.ErrUnauthenticated
}

func (m *mockSessions) Register(ctx context.Context, in stepauth.RegisterInput) (*stepauth.Identity, error) {
	return nil, stepauth.ErrAccountExists
}

func (m *mockSessions) Adopt(identity *stepauth.Identity, accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adopted = identity
	m.adoptTok = accessToken
	m.session = stepauth.Session{Identity: identity, AccessToken: accessToken, CachedAt: time.Now()}
}

type mockTrust struct {
	marker string
	fresh  bool
}

func (m *mockTrust) HasTrustedMarker() bool    { return m.marker != "" }
func (m *mockTrust) SetTrustedMarker(id string) { m.marker = id }
func (m *mockTrust) TrustedMarker() string     { return m.marker }
func (m *mockTrust) ClearTrustedMarker()       { m.marker = "" }
func (m *mockTrust) RecordBiometricSuccess()   { m.fresh = true }
func (m *mockTrust) ClearBiometricFreshness()  { m.fresh = false }
func (m *mockTrust) IsBiometricFresh() bool    { return m.fresh }

type mockCeremony struct {
	supported bool
	result    *stepauth.CeremonyResult
	err       error
	calls     int
}

func (m *mockCeremony) Supported() bool { return m.supported }

func (m *mockCeremony) Authenticate(ctx context.Context) (*stepauth.CeremonyResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockCeremony) Enroll(ctx context.Context, label string) (*stepauth.EnrollResult, error) {
	return &stepauth.EnrollResult{DeviceID: "dev-1"}, nil
}

type staticProber struct {
	decision stepauth.AccessDecision
}

func (p staticProber) Probe(ctx context.Context) stepauth.AccessDecision { return p.decision }

func newTestGate(t *testing.T, sessions *mockSessions, trust *mockTrust, ceremony *mockCeremony, decision stepauth.AccessDecision, opts ...Option) *Gate {
	t.Helper()
	opts = append([]Option{WithSuccessDelay(0), WithRedirectDelay(0)}, opts...)
	return New(sessions, trust, ceremony, staticProber{decision: decision}, opts...)
}

func TestEvaluate_TrustedStaleChallenges(t *testing.T) {
	sessions := &mockSessions{session: stepauth.Session{
		Identity:    &stepauth.Identity{ID: "u1", Role: stepauth.RoleAdmin},
		AccessToken: "tok",
	}}
	trust := &mockTrust{marker: "device-abc", fresh: false}
	ceremony := &mockCeremony{supported: true}

	g := newTestGate(t, sessions, trust, ceremony, stepauth.DecisionAllowed)
	view := g.Evaluate(context.Background())

	if view.State != StateBiometricChallenge {
		t.Fatalf("expected re-auth challenge, got %v", view.State)
	}
	if view.Reason != ReasonReauth {
		t.Errorf("expected reauth reason, got %q", view.Reason)
	}
}

func TestEvaluate_TrustedFreshRendersAdmin(t *testing.T) {
	sessions := &mockSessions{session: stepauth.Session{
		Identity:    &stepauth.Identity{ID: "u1", Role: stepauth.RoleAdmin},
		AccessToken: "tok",
	}}
	trust := &mockTrust{marker: "device-abc", fresh: true}
	ceremony := &mockCeremony{supported: true}

	g := newTestGate(t, sessions, trust, ceremony, stepauth.DecisionAllowed)
	if view := g.Evaluate(context.Background()); view.State != StateAdminSurface {
		t.Errorf("expected admin surface, got %v", view.State)
	}
}

func TestEvaluate_BlockedUntrustedDecoys(t *testing.T) {
	g := newTestGate(t, &mockSessions{}, &mockTrust{}, &mockCeremony{supported: true}, stepauth.DecisionBlocked)
	if view := g.Evaluate(context.Background()); view.State != StateNotFoundDecoy {
		t.Errorf("expected decoy, got %v", view.State)
	}
}

func TestEvaluate_ForceSignalDominatesBlockedProbe(t *testing.T) {
	g := newTestGate(t, &mockSessions{}, &mockTrust{}, &mockCeremony{supported: true},
		stepauth.DecisionBlocked, WithForceSignal(true))

	view := g.Evaluate(context.Background())
	if view.State != StateBiometricChallenge {
		t.Fatalf("expected forced challenge, got %v", view.State)
	}
	if view.Reason != ReasonFresh {
		t.Errorf("expected fresh reason, got %q", view.Reason)
	}
}

type proberFunc func(ctx context.Context) stepauth.AccessDecision

func (f proberFunc) Probe(ctx context.Context) stepauth.AccessDecision { return f(ctx) }

func TestEvaluate_SupersededAttemptDropped(t *testing.T) {
	var g *Gate
	// A newer evaluation claims the attempt slot while this one's probe is
	// still in flight.
	prober := proberFunc(func(ctx context.Context) stepauth.AccessDecision {
		g.mu.Lock()
		g.attempt = "newer"
		g.view = View{State: StateAdminSurface}
		g.mu.Unlock()
		return stepauth.DecisionBlocked
	})
	g = New(&mockSessions{}, &mockTrust{}, &mockCeremony{supported: true}, prober, WithSuccessDelay(0))

	view := g.Evaluate(context.Background())
	if view.State != StateAdminSurface {
		t.Errorf("superseded evaluation should return the newer view, got %v", view.State)
	}
	if got := g.View(); got.State != StateAdminSurface {
		t.Errorf("stored view must not be overwritten by the stale attempt, got %v", got.State)
	}
}

func TestResolveChallenge_SuccessAdoptsIdentity(t *testing.T) {
	sessions := &mockSessions{}
	ceremony := &mockCeremony{
		supported: true,
		result: &stepauth.CeremonyResult{
			UserID:      "u1",
			AccessToken: "fresh-token",
			DeviceID:    "device-abc",
			Identity:    &stepauth.Identity{ID: "u1", Role: stepauth.RoleAdmin},
		},
	}

	g := newTestGate(t, sessions, &mockTrust{}, ceremony, stepauth.DecisionAllowed)
	res := g.ResolveChallenge(context.Background())

	if res.Outcome != OutcomeAdminSurface {
		t.Fatalf("expected admin surface outcome, got %v", res.Outcome)
	}
	if sessions.adopted == nil || sessions.adopted.ID != "u1" {
		t.Error("identity should be adopted into the session before rendering")
	}
	if sessions.adoptTok != "fresh-token" {
		t.Errorf("expected adopted token %q, got %q", "fresh-token", sessions.adoptTok)
	}
	if g.View().State != StateAdminSurface {
		t.Errorf("expected admin surface view, got %v", g.View().State)
	}
}

func TestResolveChallenge_NonAdminDenied(t *testing.T) {
	sessions := &mockSessions{}
	ceremony := &mockCeremony{
		supported: true,
		result: &stepauth.CeremonyResult{
			UserID:      "u2",
			AccessToken: "tok",
			Identity:    &stepauth.Identity{ID: "u2", Role: stepauth.RoleUser},
		},
	}

	g := newTestGate(t, sessions, &mockTrust{}, ceremony, stepauth.DecisionAllowed)
	res := g.ResolveChallenge(context.Background())

	if res.Outcome != OutcomeAccessDenied {
		t.Fatalf("expected access denied outcome, got %v", res.Outcome)
	}
	if g.View().State != StateAccessDenied {
		t.Errorf("expected access denied view, got %v", g.View().State)
	}
}

func TestResolveChallenge_CancelRedirectsSilently(t *testing.T) {
	ceremony := &mockCeremony{
		supported: true,
		err:       stepauth.NewCeremonyError(stepauth.FailureUserCancelled, "user dismissed the prompt"),
	}

	g := newTestGate(t, &mockSessions{}, &mockTrust{}, ceremony, stepauth.DecisionAllowed)
	res := g.ResolveChallenge(context.Background())

	if res.Outcome != OutcomeSilentRedirect {
		t.Fatalf("expected silent redirect, got %v", res.Outcome)
	}
	if res.Failure == nil || res.Failure.Kind != stepauth.FailureUserCancelled {
		t.Error("cancellation kind should be carried for diagnostics")
	}
}

func TestResolveChallenge_RateLimitedStays(t *testing.T) {
	ce := stepauth.NewCeremonyError(stepauth.FailureRateLimited, "too many attempts")
	ce.RetryAfter = 30 * time.Second
	ceremony := &mockCeremony{supported: true, err: ce}

	g := newTestGate(t, &mockSessions{}, &mockTrust{}, ceremony, stepauth.DecisionAllowed)
	res := g.ResolveChallenge(context.Background())

	if res.Outcome != OutcomeRetry {
		t.Fatalf("expected retry outcome, got %v", res.Outcome)
	}
	if res.RetryAfter != 30*time.Second {
		t.Errorf("expected retry-after 30s, got %v", res.RetryAfter)
	}
}

func TestResolveChallenge_ServerErrorRedirectsWithError(t *testing.T) {
	ceremony := &mockCeremony{
		supported: true,
		err:       stepauth.NewCeremonyError(stepauth.FailureServerError, "verify failed"),
	}

	g := newTestGate(t, &mockSessions{}, &mockTrust{}, ceremony, stepauth.DecisionAllowed)
	res := g.ResolveChallenge(context.Background())

	if res.Outcome != OutcomeErrorRedirect {
		t.Fatalf("expected error redirect, got %v", res.Outcome)
	}
	if res.Failure == nil || res.Failure.Kind != stepauth.FailureServerError {
		t.Error("failure kind should be carried for display")
	}
}

func TestDeclineBiometric(t *testing.T) {
	tests := []struct {
		name     string
		decision stepauth.AccessDecision
		want     State
		wantExit bool
	}{
		{"allowed origin falls back to password", stepauth.DecisionAllowed, StatePasswordLogin, false},
		{"blocked origin exits", stepauth.DecisionBlocked, StateNotFoundDecoy, true},
		{"unknown origin exits", stepauth.DecisionUnknown, StateNotFoundDecoy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(t, &mockSessions{}, &mockTrust{marker: "device-abc"},
				&mockCeremony{supported: true}, tt.decision)
			g.Evaluate(context.Background())
			view, exit := g.DeclineBiometric()
			if view.State != tt.want {
				t.Errorf("expected %v, got %v", tt.want, view.State)
			}
			if exit != tt.wantExit {
				t.Errorf("expected exit=%v, got %v", tt.wantExit, exit)
			}
		})
	}
}

func TestTapDecoyHeading_OpensChallenge(t *testing.T) {
	g := newTestGate(t, &mockSessions{}, &mockTrust{}, &mockCeremony{supported: true}, stepauth.DecisionBlocked)
	g.Evaluate(context.Background())

	base := time.Now()
	var triggered bool
	for i := 0; i < 5; i++ {
		_, triggered = g.TapDecoyHeading(base.Add(time.Duration(i) * 200 * time.Millisecond))
	}
	if !triggered {
		t.Fatal("five rapid taps should open the covert challenge")
	}
	if g.View().State != StateBiometricChallenge {
		t.Errorf("expected challenge view, got %v", g.View().State)
	}
}

func TestTapDecoyHeading_NoCeremonySupport(t *testing.T) {
	g := newTestGate(t, &mockSessions{}, &mockTrust{}, &mockCeremony{supported: false}, stepauth.DecisionBlocked)
	g.Evaluate(context.Background())

	base := time.Now()
	for i := 0; i < 5; i++ {
		if _, triggered := g.TapDecoyHeading(base.Add(time.Duration(i) * 200 * time.Millisecond)); triggered {
			t.Fatal("gesture must be inert without a platform authenticator")
		}
	}
	if g.View().State != StateNotFoundDecoy {
		t.Errorf("decoy view should be unchanged, got %v", g.View().State)
	}
}

func TestHoldLoginIcon_OpensChallenge(t *testing.T) {
	g := newTestGate(t, &mockSessions{}, &mockTrust{}, &mockCeremony{supported: true}, stepauth.DecisionAllowed)
	g.Evaluate(context.Background())

	base := time.Now()
	g.PressLoginIcon(base)
	view, triggered := g.ReleaseLoginIcon(base.Add(3 * time.Second))
	if !triggered {
		t.Fatal("3-second hold should open the covert challenge")
	}
	if view.State != StateBiometricChallenge {
		t.Errorf("expected challenge view, got %v", view.State)
	}
}

func TestHoldLoginIcon_ShortHoldInert(t *testing.T) {
	g := newTestGate(t, &mockSessions{}, &mockTrust{}, &mockCeremony{supported: true}, stepauth.DecisionAllowed)
	g.Evaluate(context.Background())

	base := time.Now()
	g.PressLoginIcon(base)
	if _, triggered := g.ReleaseLoginIcon(base.Add(time.Second)); triggered {
		t.Error("short hold should not trigger")
	}
}

func TestConsumeForceSignal(t *testing.T) {
	u, _ := url.Parse("https://example.com/admin?stepup=1&tab=users")
	force, stripped := ConsumeForceSignal(u)
	if !force {
		t.Fatal("expected force signal to be detected")
	}
	if stripped.Query().Has(ForceSignalParam) {
		t.Error("force parameter should be stripped")
	}
	if stripped.Query().Get("tab") != "users" {
		t.Error("other query parameters should be preserved")
	}

	plain, _ := url.Parse("https://example.com/admin")
	if force, _ := ConsumeForceSignal(plain); force {
		t.Error("expected no force signal on a plain URL")
	}
}
