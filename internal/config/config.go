// Package config loads application configuration from the environment.  An
// optional .env file is read first; real environment variables win over it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Ledger drivers accepted by LEDGER_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable of the same name in upper snake case.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`   // application environment (dev, test, prod)
	Port     string `mapstructure:"APP_PORT"`  // HTTP port to listen on
	LogLevel string `mapstructure:"LOG_LEVEL"` // logrus level name

	LedgerDriver string        `mapstructure:"LEDGER_DRIVER"`
	DBUser       string        `mapstructure:"DB_USER"`
	DBPass       string        `mapstructure:"DB_PASS"` // empty allowed
	DBHost       string        `mapstructure:"DB_HOST"`
	DBPort       string        `mapstructure:"DB_PORT"`
	DBName       string        `mapstructure:"DB_NAME"`
	RowLockWait  time.Duration `mapstructure:"ROW_LOCK_WAIT"`

	Redis RedisConfig `mapstructure:"-"`

	HoldTTL      time.Duration `mapstructure:"HOLD_TTL"`
	ReaperPeriod time.Duration `mapstructure:"REAPER_PERIOD"`
	ReaperBuffer time.Duration `mapstructure:"REAPER_BUFFER"`
	LeaseAtLeast time.Duration `mapstructure:"LEASE_AT_LEAST"`
	LeaseAtMost  time.Duration `mapstructure:"LEASE_AT_MOST"`

	AMQPURL       string `mapstructure:"AMQP_URL"` // empty disables publishing
	AuditLogPath  string `mapstructure:"AUDIT_LOG_PATH"`
	JWTSecret     string `mapstructure:"JWT_SECRET"` // empty disables token auth
	SeedOnStartup bool   `mapstructure:"SEED_ON_STARTUP"`
}

// RedisConfig describes the Redis connection shared by the fast lock, the
// waitlist, leases, rate limiting and the response cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

var defaults = map[string]any{
	"APP_ENV":         "dev",
	"APP_PORT":        "8080",
	"LOG_LEVEL":       "info",
	"LEDGER_DRIVER":   DriverMySQL,
	"DB_USER":         "root",
	"DB_PASS":         "",
	"DB_HOST":         "127.0.0.1",
	"DB_PORT":         "3306",
	"DB_NAME":         "flight_reservation",
	"ROW_LOCK_WAIT":   "5s",
	"REDIS_ADDR":      "localhost:6379",
	"REDIS_PASSWORD":  "",
	"REDIS_DB":        0,
	"REDIS_TLS":       false,
	"HOLD_TTL":        "120s",
	"REAPER_PERIOD":   "60s",
	"REAPER_BUFFER":   "5s",
	"LEASE_AT_LEAST":  "30s",
	"LEASE_AT_MOST":   "50s",
	"AMQP_URL":        "",
	"AUDIT_LOG_PATH":  "audit.log",
	"JWT_SECRET":      "",
	"SEED_ON_STARTUP": false,
}

// Load reads .env (if present) and the environment into a Config and
// validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.Redis = RedisConfig{
		Addr:     v.GetString("REDIS_ADDR"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		TLS:      v.GetBool("REDIS_TLS"),
	}
	// REDIS_HOST/REDIS_PORT take precedence over REDIS_ADDR when both are set.
	if h, p := v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT"); h != "" && p != "" {
		c.Redis.Addr = h + ":" + p
	}
	c.LedgerDriver = strings.ToLower(strings.TrimSpace(c.LedgerDriver))
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	switch c.LedgerDriver {
	case DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("invalid LEDGER_DRIVER %q", c.LedgerDriver)
	}
	positive := map[string]time.Duration{
		"HOLD_TTL":      c.HoldTTL,
		"REAPER_PERIOD": c.ReaperPeriod,
		"LEASE_AT_MOST": c.LeaseAtMost,
		"ROW_LOCK_WAIT": c.RowLockWait,
	}
	for k, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", k, d)
		}
	}
	if c.ReaperBuffer < 0 || c.LeaseAtLeast < 0 {
		return fmt.Errorf("REAPER_BUFFER and LEASE_AT_LEAST must not be negative")
	}
	if c.LeaseAtLeast > c.LeaseAtMost {
		return fmt.Errorf("LEASE_AT_LEAST (%s) exceeds LEASE_AT_MOST (%s)", c.LeaseAtLeast, c.LeaseAtMost)
	}
	return nil
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") }
