package integration

import (
	"strconv"
	"time"
)

// Config is one operator-authored external service configuration. It is
// immutable during a run and read-only to integration instances.
type Config struct {
	ID          int64
	Name        string
	Integration string // registry key resolving the executable implementation
	Address     string
	Login       string
	Password    string
	Timeout     time.Duration

	// CacheLifetime is how long a prior successful result may be reused.
	// nil disables caching for this service entirely.
	CacheLifetime *time.Duration

	Params Params
	Active bool
}

// CacheDays converts a day count from configuration storage into a lifetime.
// Zero or negative days mean caching is disabled.
func CacheDays(days int) *time.Duration {
	if days <= 0 {
		return nil
	}
	d := time.Duration(days) * 24 * time.Hour
	return &d
}

// Params is the free-form parameter map attached to a service config.
// Integrations read it through typed accessors at their boundary instead of
// mapping arbitrary keys onto subject fields.
type Params map[string]string

// String returns the raw value for key, or fallback when absent.
func (p Params) String(key, fallback string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return fallback
}

// Int parses the value for key, or returns fallback when absent or invalid.
func (p Params) Int(key string, fallback int) int {
	if v, ok := p[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Bool parses the value for key, or returns fallback when absent or invalid.
func (p Params) Bool(key string, fallback bool) bool {
	if v, ok := p[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// Duration parses the value for key, or returns fallback when absent or
// invalid.
func (p Params) Duration(key string, fallback time.Duration) time.Duration {
	if v, ok := p[key]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
