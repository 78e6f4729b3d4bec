// Package config loads the service configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cvrpsolver/internal/opt"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Broker   BrokerConfig   `yaml:"broker"`
	Workers  WorkersConfig  `yaml:"workers"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Solver   SolverConfig   `yaml:"solver"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
}

type StoreConfig struct {
	DatabaseURL   string `yaml:"databaseURL"`
	Migrate       bool   `yaml:"migrate"`
	MigrationsDir string `yaml:"migrationsDir"`
}

type BrokerConfig struct {
	RedisURL string `yaml:"redisURL"`
	// EventsPerSecond throttles progress events per run; terminal events are never dropped.
	EventsPerSecond float64 `yaml:"eventsPerSecond"`
	Burst           int     `yaml:"burst"`
}

type WorkersConfig struct {
	PoolSize int `yaml:"poolSize"`
	// MaxQueued bounds submissions waiting for a free worker; 0 means unbounded.
	MaxQueued int `yaml:"maxQueued"`
}

type WebhooksConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

type SolverConfig struct {
	Defaults    opt.Config `yaml:"defaults"`
	MaxStarts   int        `yaml:"maxStarts"`
	TraceFrames int        `yaml:"traceFrames"`
}

// AuthConfig selects how callers are identified. Mode "header" trusts the
// X-Tenant-Id and X-Role headers; "hmac" and "jwks" require a bearer JWT.
type AuthConfig struct {
	Mode        string `yaml:"mode"`
	HMACSecret  string `yaml:"hmacSecret"`
	JWKSURL     string `yaml:"jwksURL"`
	TenantClaim string `yaml:"tenantClaim"`
	RoleClaim   string `yaml:"roleClaim"`
}

func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080", ReadHeaderTimeout: 5 * time.Second, MaxBodyBytes: 8 << 20},
		Store:    StoreConfig{Migrate: true, MigrationsDir: "db/migrations"},
		Broker:   BrokerConfig{EventsPerSecond: 5, Burst: 10},
		Workers:  WorkersConfig{PoolSize: runtime.GOMAXPROCS(0)},
		Webhooks: WebhooksConfig{MaxAttempts: 10, PollInterval: time.Second},
		Solver:   SolverConfig{Defaults: opt.DefaultConfig(), MaxStarts: 16, TraceFrames: 2000},
		Auth:     AuthConfig{Mode: "header", TenantClaim: "tenant", RoleClaim: "role"},
	}
}

// Load reads path (skipped when empty), applies environment overrides and validates.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		c.Store.DatabaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("DB_MIGRATE"); ok {
		c.Store.Migrate = v != "false"
	}
	if v, ok := lookup("REDIS_URL"); ok {
		c.Broker.RedisURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("AUTH_MODE"); ok && v != "" {
		c.Auth.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("AUTH_HMAC_SECRET"); ok {
		c.Auth.HMACSecret = v
	}
	if v, ok := lookup("AUTH_JWKS_URL"); ok {
		c.Auth.JWKSURL = strings.TrimSpace(v)
	}
	var errs []error
	if v, ok := lookup("WEBHOOK_MAX_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("WEBHOOK_MAX_ATTEMPTS", err))
		if err == nil {
			c.Webhooks.MaxAttempts = n
		}
	}
	if v, ok := lookup("SOLVER_POOL_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("SOLVER_POOL_SIZE", err))
		if err == nil {
			c.Workers.PoolSize = n
		}
	}
	return errors.Join(errs...)
}

func envErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("env %s: %w", name, err)
}

func (c Config) Validate() error {
	switch {
	case c.Workers.PoolSize < 1:
		return fmt.Errorf("workers.poolSize must be >= 1, got %d", c.Workers.PoolSize)
	case c.Webhooks.MaxAttempts < 1:
		return fmt.Errorf("webhooks.maxAttempts must be >= 1, got %d", c.Webhooks.MaxAttempts)
	case c.Broker.EventsPerSecond <= 0 || c.Broker.Burst < 1:
		return errors.New("broker.eventsPerSecond and broker.burst must be positive")
	case c.Solver.MaxStarts < 1:
		return fmt.Errorf("solver.maxStarts must be >= 1, got %d", c.Solver.MaxStarts)
	case c.Solver.TraceFrames < 0:
		return fmt.Errorf("solver.traceFrames must be >= 0, got %d", c.Solver.TraceFrames)
	}
	switch c.Auth.Mode {
	case "header":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return errors.New("auth.hmacSecret is required in hmac mode")
		}
	case "jwks":
		if c.Auth.JWKSURL == "" {
			return errors.New("auth.jwksURL is required in jwks mode")
		}
	default:
		return fmt.Errorf("auth.mode must be header, hmac or jwks, got %q", c.Auth.Mode)
	}
	return c.Solver.Defaults.Validate()
}
