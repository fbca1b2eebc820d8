package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	stepauth "github.com/stepauth/stepauth-go"
	"github.com/stepauth/stepauth-go/metrics"
)

// Outcome describes how a resolved biometric challenge should be presented.
type Outcome int

const (
	// OutcomeAdminSurface advances to the privileged view.
	OutcomeAdminSurface Outcome = iota

	// OutcomeAccessDenied rejects a verified but non-admin identity.
	OutcomeAccessDenied

	// OutcomeSilentRedirect leaves the admin route with no error banner.
	OutcomeSilentRedirect

	// OutcomeRetry keeps the challenge view open with a retry affordance.
	OutcomeRetry

	// OutcomeErrorRedirect shows the failure inline, then leaves the admin
	// route after RedirectDelay.
	OutcomeErrorRedirect
)

// ChallengeResult carries the outcome of one ceremony resolution.
type ChallengeResult struct {
	Outcome    Outcome
	Identity   *stepauth.Identity
	Failure    *stepauth.CeremonyError
	RetryAfter time.Duration
}

// Gate orchestrates the admin-access decision for one admin-route entry.
// Construct a fresh Gate per entry; the force signal is captured at
// construction so user-declared intent dominates the async probe
// regardless of completion order.
type Gate struct {
	sessions stepauth.SessionService
	trust    stepauth.DeviceTrust
	ceremony stepauth.CeremonyService
	prober   stepauth.AccessProber
	logger   *slog.Logger
	metrics  *metrics.Metrics

	force         bool
	successDelay  time.Duration
	redirectDelay time.Duration
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	attempt  string
	view     View
	decision stepauth.AccessDecision
	taps     *TapCounter
	hold     *HoldDetector
}

// Option configures the Gate.
type Option func(*Gate)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithForceSignal marks the one-shot force-biometric entry signal, as
// consumed from the deep link by ConsumeForceSignal.
func WithForceSignal(force bool) Option {
	return func(g *Gate) { g.force = force }
}

// WithSuccessDelay overrides the post-success animation delay before the
// privileged view renders. Default: 900 ms.
func WithSuccessDelay(d time.Duration) Option {
	return func(g *Gate) { g.successDelay = d }
}

// WithRedirectDelay overrides how long an inline ceremony error stays
// visible before the route exits. Default: 2 s.
func WithRedirectDelay(d time.Duration) Option {
	return func(g *Gate) { g.redirectDelay = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a gate over the given trust-signal sources.
func New(sessions stepauth.SessionService, trust stepauth.DeviceTrust, ceremony stepauth.CeremonyService, prober stepauth.AccessProber, opts ...Option) *Gate {
	g := &Gate{
		sessions:      sessions,
		trust:         trust,
		ceremony:      ceremony,
		prober:        prober,
		logger:        slog.Default(),
		metrics:       metrics.New(false),
		successDelay:  900 * time.Millisecond,
		redirectDelay: 2 * time.Second,
		now:           time.Now,
		sleep:         sleepContext,
		view:          View{State: StateChecking},
		taps:          NewTapCounter(),
		hold:          NewHoldDetector(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// View returns the current rendering decision.
func (g *Gate) View() View {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view
}

// Evaluate resolves the view for this route entry. The probe, trust check,
// and freshness check are sequenced because later branching depends on
// earlier results. A later Evaluate supersedes an in-flight one: the stale
// evaluation's result is dropped rather than cancelled.
func (g *Gate) Evaluate(ctx context.Context) View {
	attempt := uuid.NewString()
	g.mu.Lock()
	g.attempt = attempt
	force := g.force
	g.mu.Unlock()

	started := g.now()
	decision := g.probe(ctx)
	g.metrics.RecordProbe(g.now().Sub(started).Seconds())

	supported := g.ceremony != nil && g.ceremony.Supported()
	trusted := g.trust != nil && g.trust.HasTrustedMarker()
	fresh := g.trust != nil && g.trust.IsBiometricFresh()
	snapshot := g.sessions.Snapshot()

	view := Decide(Inputs{
		Decision:          decision,
		ForceSignal:       force,
		CeremonySupported: supported,
		Trusted:           trusted,
		BiometricFresh:    fresh,
		HasIdentity:       snapshot.Authenticated(),
		Role:              roleOf(snapshot.Identity),
	})

	g.mu.Lock()
	if g.attempt != attempt {
		// Superseded by a newer evaluation; drop this result.
		current := g.view
		g.mu.Unlock()
		return current
	}
	g.view = view
	g.decision = decision
	g.mu.Unlock()

	g.metrics.RecordGateDecision(view.State.String())
	return view
}

// probe resolves the allow-list decision. View selection must never
// hard-crash, so an unreachable backend degrades to DecisionUnknown.
func (g *Gate) probe(ctx context.Context) stepauth.AccessDecision {
	if g.prober == nil {
		return stepauth.DecisionUnknown
	}
	return g.prober.Probe(ctx)
}

// ResolveChallenge runs the biometric ceremony and folds its result back
// into the session and the view. Success adopts the returned identity
// before the privileged view renders; cancellation redirects silently;
// rate limiting stays on the challenge view.
func (g *Gate) ResolveChallenge(ctx context.Context) ChallengeResult {
	if g.ceremony == nil {
		return ChallengeResult{Outcome: OutcomeSilentRedirect}
	}

	result, err := g.ceremony.Authenticate(ctx)
	if err != nil {
		ce, ok := stepauth.AsCeremonyError(err)
		if !ok {
			ce = stepauth.WrapCeremonyError(stepauth.FailureUnknown, err)
		}
		switch ce.Kind {
		case stepauth.FailureUserCancelled:
			return ChallengeResult{Outcome: OutcomeSilentRedirect, Failure: ce}
		case stepauth.FailureRateLimited:
			return ChallengeResult{Outcome: OutcomeRetry, Failure: ce, RetryAfter: ce.RetryAfter}
		default:
			return ChallengeResult{Outcome: OutcomeErrorRedirect, Failure: ce}
		}
	}

	identity := result.Identity
	if identity == nil {
		identity = &stepauth.Identity{ID: result.UserID}
	}
	g.sessions.Adopt(identity, result.AccessToken)

	if err := g.sleep(ctx, g.successDelay); err != nil {
		return ChallengeResult{Outcome: OutcomeSilentRedirect, Identity: identity}
	}

	view := roleView(identity.Role)
	g.setView(view)
	if view.State == StateAdminSurface {
		return ChallengeResult{Outcome: OutcomeAdminSurface, Identity: identity}
	}
	return ChallengeResult{Outcome: OutcomeAccessDenied, Identity: identity}
}

// DeclineBiometric handles the user opting out of the ceremony. On a
// recognized origin it returns to the plain password form. On a blocked or
// unknown origin password login cannot help, so exit reports true: the
// caller should leave the admin route, and the decoy view is what renders
// if it stays, keeping the blocked route indistinguishable from a missing
// one.
func (g *Gate) DeclineBiometric() (view View, exit bool) {
	g.mu.Lock()
	decision := g.decision
	g.mu.Unlock()

	if decision == stepauth.DecisionAllowed {
		view = View{State: StatePasswordLogin}
		g.setView(view)
		return view, false
	}
	view = View{State: StateNotFoundDecoy}
	g.setView(view)
	return view, true
}

// TapDecoyHeading records a covert tap on the decoy heading and reports
// whether the recovery sequence completed. A no-op without ceremony
// support.
func (g *Gate) TapDecoyHeading(at time.Time) (View, bool) {
	if g.ceremony == nil || !g.ceremony.Supported() {
		return g.View(), false
	}
	g.mu.Lock()
	completed := g.taps.Tap(at)
	g.mu.Unlock()
	if !completed {
		return g.View(), false
	}
	view := View{State: StateBiometricChallenge, Reason: ReasonFresh}
	g.setView(view)
	return view, true
}

// PressLoginIcon records the start of the press-and-hold gesture on the
// password view's entry icon.
func (g *Gate) PressLoginIcon(at time.Time) {
	g.mu.Lock()
	g.hold.Press(at)
	g.mu.Unlock()
}

// ReleaseLoginIcon ends the hold gesture and reports whether it triggered
// the covert challenge. A no-op without ceremony support.
func (g *Gate) ReleaseLoginIcon(at time.Time) (View, bool) {
	g.mu.Lock()
	completed := g.hold.Release(at)
	g.mu.Unlock()
	if completed && (g.ceremony == nil || !g.ceremony.Supported()) {
		completed = false
	}
	if !completed {
		return g.View(), false
	}
	view := View{State: StateBiometricChallenge, Reason: ReasonFresh}
	g.setView(view)
	return view, true
}

// RedirectDelay is how long an inline ceremony error stays visible before
// the caller should leave the admin route.
func (g *Gate) RedirectDelay() time.Duration { return g.redirectDelay }

func (g *Gate) setView(view View) {
	g.mu.Lock()
	g.view = view
	g.mu.Unlock()
	g.metrics.RecordGateDecision(view.State.String())
}

func roleOf(identity *stepauth.Identity) stepauth.Role {
	if identity == nil {
		return ""
	}
	return identity.Role
}
