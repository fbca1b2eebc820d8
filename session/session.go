// Package session provides the SessionService implementation.
//
// The manager is the single source of truth for "who is the current actor".
// The bearer token lives only in process memory; the identity snapshot may
// be persisted for instant-render hydration, bounded by a maximum cache age.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	stepauth "github.com/stepauth/stepauth-go"
	"github.com/stepauth/stepauth-go/localstore"
	"github.com/stepauth/stepauth-go/metrics"
	"github.com/stepauth/stepauth-go/token"
	"golang.org/x/sync/singleflight"
)

const (
	keyIdentity = "identity"
	keyCachedAt = "cached_at"
)

// RefreshResponse is the backend's answer to a cookie-for-token exchange.
// Identity is populated when the server embeds the full profile, which
// saves the fallback profile fetch.
type RefreshResponse struct {
	AccessToken string
	Identity    *stepauth.Identity
}

// AuthResponse is the backend's answer to a login or register call.
type AuthResponse struct {
	Identity    *stepauth.Identity
	AccessToken string
}

// Backend defines the contract for pluggable session backends.
// Banned-account and verification-required outcomes surface as
// *stepauth.BanError and *stepauth.VerificationRequiredError; a
// definitive-unauthenticated refresh surfaces stepauth.ErrUnauthenticated.
type Backend interface {
	Login(ctx context.Context, in stepauth.LoginInput) (*AuthResponse, error)
	Register(ctx context.Context, in stepauth.RegisterInput) (*AuthResponse, error)
	Refresh(ctx context.Context) (*RefreshResponse, error)
	Profile(ctx context.Context, accessToken string) (*stepauth.Identity, error)
	Logout(ctx context.Context) error
}

// Navigator receives the client-side redirect issued on logout.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(target string)

// Navigate calls f(target).
func (f NavigatorFunc) Navigate(target string) { f(target) }

// Manager implements stepauth.SessionService with a configurable backend.
type Manager struct {
	backend   Backend
	cache     localstore.Store
	trust     stepauth.DeviceTrust
	navigator Navigator
	logger    *slog.Logger
	metrics   *metrics.Metrics

	cacheMaxAge   time.Duration
	safetyTimeout time.Duration
	maxRetries    int
	logoutTarget  string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.RWMutex
	identity    *stepauth.Identity
	accessToken string
	cachedAt    time.Time
	loading     bool

	refreshMu  sync.Mutex
	refreshing bool

	sf singleflight.Group
}

var _ stepauth.SessionService = (*Manager)(nil)

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithDeviceTrust lets logout clear the biometric-freshness state.
func WithDeviceTrust(t stepauth.DeviceTrust) Option {
	return func(m *Manager) { m.trust = t }
}

// WithNavigator sets the client-side redirect sink used on logout.
func WithNavigator(n Navigator) Option {
	return func(m *Manager) { m.navigator = n }
}

// WithLogoutTarget overrides where logout navigates. Default: "/".
func WithLogoutTarget(target string) Option {
	return func(m *Manager) { m.logoutTarget = target }
}

// WithCacheMaxAge overrides the persisted-identity TTL. Default: 7 days.
func WithCacheMaxAge(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cacheMaxAge = d
		}
	}
}

// WithSafetyTimeout overrides the loading-flag safety timeout. Default: 15 s.
func WithSafetyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.safetyTimeout = d
		}
	}
}

// WithMaxRetries overrides the silent-refresh retry budget. Default: 5.
func WithMaxRetries(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxRetries = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSleeper overrides the retry-delay sleeper, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = sleep }
}

// New creates a session manager over the given backend and cache namespace.
func New(backend Backend, cache localstore.Store, opts ...Option) *Manager {
	m := &Manager{
		backend:       backend,
		cache:         cache,
		logger:        slog.Default(),
		metrics:       metrics.New(false),
		cacheMaxAge:   7 * 24 * time.Hour,
		safetyTimeout: 15 * time.Second,
		maxRetries:    5,
		logoutTarget:  "/",
		now:           time.Now,
		sleep:         sleepContext,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() stepauth.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return stepauth.Session{
		Identity:    m.identity,
		AccessToken: m.accessToken,
		CachedAt:    m.cachedAt,
		Loading:     m.loading,
	}
}

// Hydrate restores the cached identity, if recent enough, and schedules a
// background refresh. A cache at or past its maximum age is discarded and
// the session is marked as requiring verification before first render.
func (m *Manager) Hydrate(ctx context.Context) {
	identity, cachedAt, ok := m.readCache()

	m.mu.Lock()
	if ok && m.now().Sub(cachedAt) < m.cacheMaxAge {
		m.identity = identity
		m.cachedAt = cachedAt
		m.loading = false
		m.mu.Unlock()
		m.metrics.RecordCacheHit()
	} else {
		m.loading = true
		m.mu.Unlock()
		m.metrics.RecordCacheMiss()
		if ok {
			m.dropCache()
		}
	}

	go m.RefreshSilently(context.WithoutCancel(ctx))
}

// RefreshSilently exchanges the refresh cookie for a new bearer token,
// retrying transient failures with exponential backoff (1 s initial,
// doubling, capped at 10 s). Only one chain may be in flight at a time; a
// call while a chain is active is a no-op. An unreachable server never
// evicts a previously-valid session.
func (m *Manager) RefreshSilently(ctx context.Context) {
	m.refreshMu.Lock()
	if m.refreshing {
		m.refreshMu.Unlock()
		return
	}
	m.refreshing = true
	m.refreshMu.Unlock()
	defer func() {
		m.refreshMu.Lock()
		m.refreshing = false
		m.refreshMu.Unlock()
	}()

	// The safety timeout bounds the visible loading state even if the
	// chain is still running.
	safety := time.AfterFunc(m.safetyTimeout, func() { m.setLoading(false) })
	defer safety.Stop()

	policy := newRetryPolicy()

	for attempt := 0; ; attempt++ {
		resp, err := m.backend.Refresh(ctx)
		if err == nil {
			if done := m.completeRefresh(ctx, resp); done {
				m.metrics.RecordRefreshOutcome("success")
				return
			}
			err = errors.New("profile unavailable")
		} else if errors.Is(err, stepauth.ErrUnauthenticated) {
			// The only condition that actively logs the user out.
			m.clearState(true)
			m.metrics.RecordRefreshOutcome("unauthenticated")
			return
		}

		if attempt >= m.maxRetries {
			m.logger.Warn("session: silent refresh exhausted retries", "error", err)
			m.setLoading(false)
			m.metrics.RecordRefreshOutcome("exhausted")
			return
		}

		m.metrics.RecordRefreshRetry()
		if serr := m.sleep(ctx, policy.NextBackOff()); serr != nil {
			m.setLoading(false)
			m.metrics.RecordRefreshOutcome("cancelled")
			return
		}
	}
}

// newRetryPolicy yields 1 s, 2 s, 4 s, 8 s, 10 s, 10 s, ... without jitter.
func newRetryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 1 * time.Second
	policy.Multiplier = 2
	policy.MaxInterval = 10 * time.Second
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

// completeRefresh adopts the refresh result, falling back to a profile
// fetch when the server did not embed one.
func (m *Manager) completeRefresh(ctx context.Context, resp *RefreshResponse) bool {
	identity := resp.Identity
	if identity == nil {
		var err error
		identity, err = m.backend.Profile(ctx, resp.AccessToken)
		if err != nil || identity == nil {
			m.logger.Debug("session: profile fallback failed", "error", err)
			return false
		}
	}
	m.adopt(identity, resp.AccessToken)
	return true
}

// Token returns a usable bearer token, refreshing once synchronously if the
// in-memory one is absent or expired. Concurrent callers share one refresh.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	tok := m.accessToken
	m.mu.RUnlock()
	if tok != "" && token.RemainingLife(tok, m.now()) > 0 {
		return tok, nil
	}

	v, err, _ := m.sf.Do("refresh", func() (interface{}, error) {
		resp, err := m.backend.Refresh(ctx)
		if err != nil {
			if errors.Is(err, stepauth.ErrUnauthenticated) {
				m.clearState(true)
			}
			return "", err
		}
		m.completeRefresh(ctx, resp)
		return resp.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Login performs a credential login. The partial profile is adopted and
// returned immediately; a background refresh reconciles any fields the
// login response omitted.
func (m *Manager) Login(ctx context.Context, in stepauth.LoginInput) (*stepauth.Identity, error) {
	resp, err := m.backend.Login(ctx, in)
	if err != nil {
		return nil, err
	}
	m.adopt(resp.Identity, resp.AccessToken)
	go m.RefreshSilently(context.WithoutCancel(ctx))
	return resp.Identity, nil
}

// Register creates an account. A nil error with a non-nil identity means
// the account is immediately active; ErrAccountExists and
// *VerificationRequiredError cover the other outcomes.
func (m *Manager) Register(ctx context.Context, in stepauth.RegisterInput) (*stepauth.Identity, error) {
	resp, err := m.backend.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	m.adopt(resp.Identity, resp.AccessToken)
	go m.RefreshSilently(context.WithoutCancel(ctx))
	return resp.Identity, nil
}

// Logout terminates the session. The redirect is issued before in-memory
// identity clears so a route guard reading identity mid-navigation never
// observes a guest on a protected route. The server call is best-effort;
// logout is always honored locally.
func (m *Manager) Logout(ctx context.Context) {
	if m.trust != nil {
		m.trust.ClearBiometricFreshness()
	}

	go func() {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := m.backend.Logout(lctx); err != nil {
			m.logger.Debug("session: server logout failed", "error", err)
		}
	}()

	if m.navigator != nil {
		m.navigator.Navigate(m.logoutTarget)
	}
	m.clearState(true)
}

// Adopt materializes an identity from an external source, e.g. a
// successful biometric ceremony.
func (m *Manager) Adopt(identity *stepauth.Identity, accessToken string) {
	m.adopt(identity, accessToken)
}

func (m *Manager) adopt(identity *stepauth.Identity, accessToken string) {
	if identity == nil {
		return
	}
	now := m.now()
	m.mu.Lock()
	m.identity = identity
	if accessToken != "" {
		m.accessToken = accessToken
	}
	m.cachedAt = now
	m.loading = false
	m.mu.Unlock()
	m.writeCache(identity, now)
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) clearState(dropCache bool) {
	m.mu.Lock()
	m.identity = nil
	m.accessToken = ""
	m.cachedAt = time.Time{}
	m.loading = false
	m.mu.Unlock()
	if dropCache {
		m.dropCache()
	}
}

func (m *Manager) readCache() (*stepauth.Identity, time.Time, bool) {
	raw, ok, err := m.cache.Get(keyIdentity)
	if err != nil || !ok {
		return nil, time.Time{}, false
	}
	at, ok, err := m.cache.Get(keyCachedAt)
	if err != nil || !ok {
		return nil, time.Time{}, false
	}
	ms, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return nil, time.Time{}, false
	}
	var identity stepauth.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, time.Time{}, false
	}
	return &identity, time.UnixMilli(ms), true
}

func (m *Manager) writeCache(identity *stepauth.Identity, at time.Time) {
	raw, err := json.Marshal(identity)
	if err != nil {
		m.logger.Warn("session: cache encode failed", "error", err)
		return
	}
	if err := m.cache.Set(keyIdentity, string(raw)); err != nil {
		m.logger.Warn("session: cache write failed", "error", err)
		return
	}
	if err := m.cache.Set(keyCachedAt, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		m.logger.Warn("session: cache timestamp write failed", "error", err)
	}
}

func (m *Manager) dropCache() {
	if err := m.cache.Delete(keyIdentity); err != nil {
		m.logger.Debug("session: cache drop failed", "error", err)
	}
	if err := m.cache.Delete(keyCachedAt); err != nil {
		m.logger.Debug("session: cache timestamp drop failed", "error", err)
	}
}
