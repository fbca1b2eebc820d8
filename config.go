package stepauth

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds connection and policy configuration. Every policy value can
// be overridden from the environment.
type Config struct {
	// Endpoint is the base URL of the backend service.
	Endpoint string `env:"STEPAUTH_ENDPOINT"`

	// BiometricMaxAge is the re-auth freshness window: the maximum age of
	// the last successful biometric ceremony before it must be repeated,
	// independent of overall session validity.
	BiometricMaxAge time.Duration `env:"STEPAUTH_BIOMETRIC_MAX_AGE" envDefault:"24h"`

	// IdentityCacheMaxAge bounds how old a persisted identity snapshot may
	// be before cold start discards it.
	IdentityCacheMaxAge time.Duration `env:"STEPAUTH_IDENTITY_CACHE_MAX_AGE" envDefault:"168h"`

	// CeremonyTimeout is the wall-clock deadline raced against every
	// network call made on behalf of a ceremony.
	CeremonyTimeout time.Duration `env:"STEPAUTH_CEREMONY_TIMEOUT" envDefault:"10s"`

	// RefreshSafetyTimeout forces the loading flag off regardless of
	// refresh outcome, to prevent indefinite spinners.
	RefreshSafetyTimeout time.Duration `env:"STEPAUTH_REFRESH_SAFETY_TIMEOUT" envDefault:"15s"`

	// MaxRefreshRetries bounds the silent-refresh retry chain.
	MaxRefreshRetries int `env:"STEPAUTH_MAX_REFRESH_RETRIES" envDefault:"5"`
}

// DefaultConfig returns the built-in policy defaults.
func DefaultConfig() Config {
	return Config{
		BiometricMaxAge:      24 * time.Hour,
		IdentityCacheMaxAge:  7 * 24 * time.Hour,
		CeremonyTimeout:      10 * time.Second,
		RefreshSafetyTimeout: 15 * time.Second,
		MaxRefreshRetries:    5,
	}
}

// LoadConfigFromEnv returns configuration from STEPAUTH_* environment
// variables, falling back to the built-in defaults on parse failure.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return DefaultConfig()
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BiometricMaxAge <= 0 {
		c.BiometricMaxAge = d.BiometricMaxAge
	}
	if c.IdentityCacheMaxAge <= 0 {
		c.IdentityCacheMaxAge = d.IdentityCacheMaxAge
	}
	if c.CeremonyTimeout <= 0 {
		c.CeremonyTimeout = d.CeremonyTimeout
	}
	if c.RefreshSafetyTimeout <= 0 {
		c.RefreshSafetyTimeout = d.RefreshSafetyTimeout
	}
	if c.MaxRefreshRetries <= 0 {
		c.MaxRefreshRetries = d.MaxRefreshRetries
	}
	return c
}
