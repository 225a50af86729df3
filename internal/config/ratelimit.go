package config

import (
	"errors"

	"github.com/iliyamo/realty-crm/internal/ratelimit"
)

// RateLimitConfig selects the limiter backend and the caps of the general
// and auth buckets.
type RateLimitConfig struct {
	Enabled          bool   `env:"RATE_LIMIT_ENABLED" env-default:"true"`
	Backend          string `env:"RATE_LIMIT_STORE" env-default:"memory"` // memory | redis
	Prefix           string `env:"RATE_LIMIT_PREFIX" env-default:"rl"`
	GeneralPerMinute int    `env:"RATE_LIMIT_GENERAL_PER_MINUTE" env-default:"60"`
	GeneralPerHour   int    `env:"RATE_LIMIT_GENERAL_PER_HOUR" env-default:"1000"`
	AuthPerMinute    int    `env:"RATE_LIMIT_AUTH_PER_MINUTE" env-default:"10"`
	AuthPerHour      int    `env:"RATE_LIMIT_AUTH_PER_HOUR" env-default:"100"`
}

// Policies converts the caps into limiter policies keyed by bucket.
func (c RateLimitConfig) Policies() map[string]ratelimit.Policy {
	return map[string]ratelimit.Policy{
		ratelimit.BucketGeneral: {PerMinute: c.GeneralPerMinute, PerHour: c.GeneralPerHour},
		ratelimit.BucketAuth:    {PerMinute: c.AuthPerMinute, PerHour: c.AuthPerHour},
	}
}

func (c RateLimitConfig) validate() error {
	if c.Backend != "memory" && c.Backend != "redis" {
		return errors.New("RATE_LIMIT_STORE must be memory or redis")
	}
	if c.GeneralPerMinute < 1 || c.GeneralPerHour < 1 || c.AuthPerMinute < 1 || c.AuthPerHour < 1 {
		return errors.New("rate limit caps must be positive")
	}
	return nil
}
