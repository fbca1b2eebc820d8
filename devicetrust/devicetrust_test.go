package devicetrust

import (
	"errors"
	"testing"
	"time"

	"github.com/stepauth/stepauth-go/localstore/memory"
)

func TestHasTrustedMarker_Valid(t *testing.T) {
	kv := memory.New()
	s := New(kv)

	s.SetTrustedMarker("device-abc-123")

	if !s.HasTrustedMarker() {
		t.Fatal("expected marker to be trusted")
	}
	if got := s.TrustedMarker(); got != "device-abc-123" {
		t.Errorf("expected marker device-abc-123, got %q", got)
	}
}

func TestSetTrustedMarker_TooShort(t *testing.T) {
	kv := memory.New()
	s := New(kv)

	s.SetTrustedMarker("short")

	if s.HasTrustedMarker() {
		t.Fatal("expected short marker to be rejected")
	}
}

func TestHasTrustedMarker_ShortStoredValue(t *testing.T) {
	kv := memory.New()
	if err := kv.Set("device_marker", "tiny"); err != nil {
		t.Fatal(err)
	}
	s := New(kv)

	if s.HasTrustedMarker() {
		t.Fatal("expected stored short marker to read as untrusted")
	}
}

func TestHasTrustedMarker_StorageFailure(t *testing.T) {
	kv := memory.New()
	s := New(kv)
	s.SetTrustedMarker("device-abc-123")

	kv.Err = errors.New("storage restricted")

	if s.HasTrustedMarker() {
		t.Fatal("storage failure must degrade to not trusted")
	}
}

func TestClearTrustedMarker_Idempotent(t *testing.T) {
	kv := memory.New()
	s := New(kv)
	s.SetTrustedMarker("device-abc-123")

	s.ClearTrustedMarker()
	s.ClearTrustedMarker()

	if s.HasTrustedMarker() {
		t.Fatal("expected marker cleared")
	}
}

func TestIsBiometricFresh_NeverAuthenticated(t *testing.T) {
	s := New(memory.New())

	if s.IsBiometricFresh() {
		t.Fatal("no recorded ceremony must read as stale")
	}
}

func TestIsBiometricFresh_Window(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"23 hours old", 23 * time.Hour, true},
		{"25 hours old", 25 * time.Hour, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kv := memory.New()
			clock := now.Add(-tc.age)
			s := New(kv, WithClock(func() time.Time { return clock }))
			s.RecordBiometricSuccess()

			clock = now
			if got := s.IsBiometricFresh(); got != tc.want {
				t.Errorf("IsBiometricFresh() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsBiometricFresh_ConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-2 * time.Hour)
	s := New(memory.New(),
		WithMaxAge(1*time.Hour),
		WithClock(func() time.Time { return clock }),
	)
	s.RecordBiometricSuccess()

	clock = now
	if s.IsBiometricFresh() {
		t.Fatal("2-hour-old ceremony must be stale under a 1-hour window")
	}
}

func TestIsBiometricFresh_StorageFailure(t *testing.T) {
	kv := memory.New()
	s := New(kv)
	s.RecordBiometricSuccess()

	kv.Err = errors.New("storage restricted")

	if s.IsBiometricFresh() {
		t.Fatal("storage failure must degrade to stale")
	}
}

func TestClearBiometricFreshness(t *testing.T) {
	s := New(memory.New())
	s.RecordBiometricSuccess()

	s.ClearBiometricFreshness()

	if _, ok := s.LastBiometricAuth(); ok {
		t.Fatal("expected freshness timestamp cleared")
	}
}
