// Package fake provides in-memory implementations of all stepauth
// interfaces for testing.
//
// Use fake.NewClient() in unit tests to avoid network calls and platform
// authenticators.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	stepauth "github.com/stepauth/stepauth-go"
)

// Option configures the fake client.
type Option func(*state)

type state struct {
	mu        sync.RWMutex
	users     map[string]*userEntry // identifier → entry
	devices   map[string]stepauth.Device
	decision  stepauth.AccessDecision
	supported bool
	bioMaxAge time.Duration
	now       func() time.Time

	session stepauth.Session
	marker  string
	lastBio time.Time
	nextID  int
}

type userEntry struct {
	identity   stepauth.Identity
	password   string
	ban        *stepauth.BanInfo
	unverified bool
}

// WithUser adds a fake account reachable by password login and by the
// biometric ceremony.
func WithUser(id, email, password string, role stepauth.Role) Option {
	return func(s *state) {
		s.users[email] = &userEntry{
			identity: stepauth.Identity{ID: id, Email: email, Name: email, Role: role, Verified: true},
			password: password,
		}
	}
}

// WithBannedUser adds an account whose login fails with *BanError.
func WithBannedUser(id, email string, info stepauth.BanInfo) Option {
	return func(s *state) {
		s.users[email] = &userEntry{
			identity: stepauth.Identity{ID: id, Email: email, Role: stepauth.RoleUser},
			ban:      &info,
		}
	}
}

// WithUnverifiedUser adds an account whose login fails with
// *VerificationRequiredError.
func WithUnverifiedUser(id, email, password string) Option {
	return func(s *state) {
		s.users[email] = &userEntry{
			identity:   stepauth.Identity{ID: id, Email: email, Role: stepauth.RoleUser},
			password:   password,
			unverified: true,
		}
	}
}

// WithDevice pre-enrolls a device.
func WithDevice(id, label string) Option {
	return func(s *state) {
		s.devices[id] = stepauth.Device{ID: id, Label: label, CreatedAt: s.now()}
	}
}

// WithDecision fixes the allow-list probe outcome. Default: Allowed.
func WithDecision(d stepauth.AccessDecision) Option {
	return func(s *state) { s.decision = d }
}

// WithCeremonySupport toggles platform authenticator availability.
// Default: supported.
func WithCeremonySupport(supported bool) Option {
	return func(s *state) { s.supported = supported }
}

// WithTrustedDevice seeds the local trust marker and a biometric success
// at the given instant.
func WithTrustedDevice(markerID string, lastBiometric time.Time) Option {
	return func(s *state) {
		s.marker = markerID
		s.lastBio = lastBiometric
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *state) { s.now = now }
}

// NewClient creates a *stepauth.Client with all services wired to
// in-memory fakes.
func NewClient(opts ...Option) *stepauth.Client {
	s := &state{
		users:     make(map[string]*userEntry),
		devices:   make(map[string]stepauth.Device),
		decision:  stepauth.DecisionAllowed,
		supported: true,
		bioMaxAge: 24 * time.Hour,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	c, _ := stepauth.NewClient(
		stepauth.Config{Endpoint: "fake://localhost"},
		stepauth.WithSessionService(&fakeSessions{s: s}),
		stepauth.WithDeviceTrust(&fakeTrust{s: s}),
		stepauth.WithCeremonyService(&fakeCeremony{s: s}),
		stepauth.WithDeviceService(&fakeDevices{s: s}),
		stepauth.WithAccessProber(&fakeProber{s: s}),
	)
	return c
}

// --- SessionService ---

type fakeSessions struct {
	s *state
}

var _ stepauth.SessionService = (*fakeSessions)(nil)

func (f *fakeSessions) Snapshot() stepauth.Session {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	return f.s.session
}

func (f *fakeSessions) Hydrate(ctx context.Context) {}

func (f *fakeSessions) RefreshSilently(ctx context.Context) {}

func (f *fakeSessions) Login(ctx context.Context, in stepauth.LoginInput) (*stepauth.Identity, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	entry, ok := f.s.users[in.Identifier]
	if !ok || (entry.ban == nil && entry.password != in.Password) {
		return nil, stepauth.ErrUnauthenticated
	}
	if entry.ban != nil {
		return nil, &stepauth.BanError{Info: *entry.ban}
	}
	if entry.unverified {
		return nil, &stepauth.VerificationRequiredError{Email: entry.identity.Email}
	}

	identity := entry.identity
	f.s.session = stepauth.Session{
		Identity:    &identity,
		AccessToken: fmt.Sprintf("fake-token-%s", identity.ID),
		CachedAt:    f.s.now(),
	}
	return &identity, nil
}

func (f *fakeSessions) Register(ctx context.Context, in stepauth.RegisterInput) (*stepauth.Identity, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if _, ok := f.s.users[in.Email]; ok {
		return nil, stepauth.ErrAccountExists
	}

	f.s.nextID++
	identity := stepauth.Identity{
		ID:       fmt.Sprintf("user-%d", f.s.nextID),
		Email:    in.Email,
		Name:     in.Name,
		Role:     stepauth.RoleUser,
		Verified: true,
	}
	f.s.users[in.Email] = &userEntry{identity: identity, password: in.Password}
	f.s.session = stepauth.Session{
		Identity:    &identity,
		AccessToken: fmt.Sprintf("fake-token-%s", identity.ID),
		CachedAt:    f.s.now(),
	}
	return &identity, nil
}

func (f *fakeSessions) Logout(ctx context.Context) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.session = stepauth.Session{}
	f.s.lastBio = time.Time{}
}

func (f *fakeSessions) Adopt(identity *stepauth.Identity, accessToken string) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.session = stepauth.Session{Identity: identity, AccessToken: accessToken, CachedAt: f.s.now()}
}

// --- DeviceTrust ---

type fakeTrust struct {
	s *state
}

var _ stepauth.DeviceTrust = (*fakeTrust)(nil)

func (f *fakeTrust) HasTrustedMarker() bool {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	return len(f.s.marker) >= 10
}

func (f *fakeTrust) SetTrustedMarker(id string) {
	if len(id) < 10 {
		return
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.marker = id
}

func (f *fakeTrust) TrustedMarker() string {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	if len(f.s.marker) < 10 {
		return ""
	}
	return f.s.marker
}

func (f *fakeTrust) ClearTrustedMarker() {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.marker = ""
}

func (f *fakeTrust) RecordBiometricSuccess() {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.lastBio = f.s.now()
}

func (f *fakeTrust) ClearBiometricFreshness() {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.lastBio = time.Time{}
}

func (f *fakeTrust) IsBiometricFresh() bool {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	if f.s.lastBio.IsZero() {
		return false
	}
	return f.s.now().Sub(f.s.lastBio) <= f.s.bioMaxAge
}

// --- CeremonyService ---

type fakeCeremony struct {
	s *state
}

var _ stepauth.CeremonyService = (*fakeCeremony)(nil)

func (f *fakeCeremony) Supported() bool {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	return f.s.supported
}

// Authenticate succeeds as the first admin-capable account, which models a
// resident credential tied to the administrator.
func (f *fakeCeremony) Authenticate(ctx context.Context) (*stepauth.CeremonyResult, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if !f.s.supported {
		return nil, stepauth.ErrCeremonyUnsupported
	}
	for _, entry := range f.s.users {
		if !entry.identity.Role.CanAdmin() {
			continue
		}
		identity := entry.identity
		deviceID := f.s.marker
		if deviceID == "" {
			f.s.nextID++
			deviceID = fmt.Sprintf("fake-device-%06d", f.s.nextID)
			f.s.marker = deviceID
		}
		f.s.lastBio = f.s.now()
		f.s.session = stepauth.Session{
			Identity:    &identity,
			AccessToken: fmt.Sprintf("fake-token-%s", identity.ID),
			CachedAt:    f.s.now(),
		}
		return &stepauth.CeremonyResult{
			UserID:      identity.ID,
			AccessToken: f.s.session.AccessToken,
			DeviceID:    deviceID,
			Identity:    &identity,
		}, nil
	}
	return nil, stepauth.NewCeremonyError(stepauth.FailureCredentialNotRecognized, "no admin account enrolled")
}

func (f *fakeCeremony) Enroll(ctx context.Context, label string) (*stepauth.EnrollResult, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if !f.s.supported {
		return nil, stepauth.ErrCeremonyUnsupported
	}
	if label == "" {
		label = "Fake Device"
	}
	f.s.nextID++
	id := fmt.Sprintf("fake-device-%06d", f.s.nextID)
	f.s.devices[id] = stepauth.Device{ID: id, Label: label, CreatedAt: f.s.now()}
	f.s.marker = id
	return &stepauth.EnrollResult{DeviceID: id}, nil
}

// --- DeviceService ---

type fakeDevices struct {
	s *state
}

var _ stepauth.DeviceService = (*fakeDevices)(nil)

func (f *fakeDevices) List(ctx context.Context) ([]stepauth.Device, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	out := make([]stepauth.Device, 0, len(f.s.devices))
	for _, d := range f.s.devices {
		d.Current = d.ID == f.s.marker
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDevices) Rename(ctx context.Context, deviceID, label string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	d, ok := f.s.devices[deviceID]
	if !ok {
		return fmt.Errorf("fake: device %q not found", deviceID)
	}
	d.Label = label
	f.s.devices[deviceID] = d
	return nil
}

// Revoke is idempotent: an unknown ID is already-revoked success.
func (f *fakeDevices) Revoke(ctx context.Context, deviceID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	delete(f.s.devices, deviceID)
	if f.s.marker == deviceID {
		f.s.marker = ""
		f.s.lastBio = time.Time{}
	}
	return nil
}

func (f *fakeDevices) RevokeAll(ctx context.Context) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	f.s.devices = make(map[string]stepauth.Device)
	f.s.marker = ""
	f.s.lastBio = time.Time{}
	return nil
}

// --- AccessProber ---

type fakeProber struct {
	s *state
}

var _ stepauth.AccessProber = (*fakeProber)(nil)

func (f *fakeProber) Probe(ctx context.Context) stepauth.AccessDecision {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	return f.s.decision
}
