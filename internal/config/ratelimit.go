package config

import (
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig configures the token bucket in front of the mutating
// routes.  Capacity tokens are available in a burst and RefillTokens are
// added every RefillInterval.
type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"RATE_LIMIT_ENABLED"`
	Capacity       int           `mapstructure:"RATE_LIMIT_CAPACITY"`
	RefillTokens   int           `mapstructure:"RATE_LIMIT_REFILL_TOKENS"`
	RefillInterval time.Duration `mapstructure:"RATE_LIMIT_REFILL_INTERVAL"`
	TTL            time.Duration `mapstructure:"RATE_LIMIT_TTL"`
	KeyStrategy    string        `mapstructure:"RATE_LIMIT_KEY_STRATEGY"`
	Prefix         string        `mapstructure:"RATE_LIMIT_PREFIX"`
}

func LoadRateLimitConfig() RateLimitConfig {
	v := viper.New()
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_CAPACITY", 50)
	v.SetDefault("RATE_LIMIT_REFILL_TOKENS", 25)
	v.SetDefault("RATE_LIMIT_REFILL_INTERVAL", "1s")
	v.SetDefault("RATE_LIMIT_TTL", "10m")
	v.SetDefault("RATE_LIMIT_KEY_STRATEGY", "ip")
	v.SetDefault("RATE_LIMIT_PREFIX", "rl")
	v.AutomaticEnv()

	var def RateLimitConfig
	if err := v.Unmarshal(&def); err != nil {
		def = RateLimitConfig{Enabled: true, Capacity: 50, RefillTokens: 25,
			RefillInterval: time.Second, TTL: 10 * time.Minute, KeyStrategy: "ip", Prefix: "rl"}
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}
