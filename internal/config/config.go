// Package config loads the coordinator's runtime configuration: a YAML
// file with environment-variable overrides, generalized from the
// teacher's internal/config/config.go (same Default/Load/Validate shape,
// same env-override convention) to the environment knobs the routing and
// saga engines actually use (§6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the coordinator's top-level configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	Routing    RoutingConfig    `yaml:"routing"`
	Saga       SagaConfig       `yaml:"saga"`
	Validation ValidationConfig `yaml:"validation"`
}

// ServerConfig holds the coordinator's listen addresses.
type ServerConfig struct {
	GRPCAddr       string `yaml:"grpc_addr"`
	MetricsAddr    string `yaml:"metrics_addr"`
	MaxMessageSize int    `yaml:"max_message_size"`
}

// RoutingConfig holds the routing decision engine's tunables (§4.3).
type RoutingConfig struct {
	RuleEvaluationTimeout  time.Duration `yaml:"rule_evaluation_timeout"`
	FallbackClearingSystem string        `yaml:"fallback_clearing_system"`
	DecisionCacheEnabled   bool          `yaml:"decision_cache_enabled"`
}

// SagaRetryConfig holds the saga step retry/backoff policy (§4.5).
type SagaRetryConfig struct {
	Base        time.Duration `yaml:"base"`
	Factor      float64       `yaml:"factor"`
	Cap         time.Duration `yaml:"cap"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// SagaConfig holds the saga orchestrator's tunables (§4.5, §5).
type SagaConfig struct {
	StepTimeout          time.Duration   `yaml:"step_timeout"`
	WallClockTimeout     time.Duration   `yaml:"wall_clock_timeout"`
	Retry                SagaRetryConfig `yaml:"retry"`
	MaxInFlightPerTenant int             `yaml:"max_in_flight_per_tenant"`
}

// ValidationConfig holds the validation rule engine's scoring weights (§4.2).
type ValidationConfig struct {
	FraudFailureWeight int `yaml:"fraud_failure_weight"`
	RiskFailureWeight  int `yaml:"risk_failure_weight"`
}

// Default returns the coordinator's default configuration.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Server: ServerConfig{
			GRPCAddr:       "0.0.0.0:50053",
			MetricsAddr:    "0.0.0.0:9090",
			MaxMessageSize: 4 * 1024 * 1024,
		},
		Routing: RoutingConfig{
			RuleEvaluationTimeout:  2 * time.Second,
			FallbackClearingSystem: "DEFAULT_CLEARING",
			DecisionCacheEnabled:   true,
		},
		Saga: SagaConfig{
			StepTimeout:      30 * time.Second,
			WallClockTimeout: 5 * time.Minute,
			Retry: SagaRetryConfig{
				Base:        1 * time.Second,
				Factor:      2,
				Cap:         30 * time.Second,
				MaxAttempts: 3,
			},
			MaxInFlightPerTenant: 64,
		},
		Validation: ValidationConfig{
			FraudFailureWeight: 25,
			RiskFailureWeight:  20,
		},
	}
}

// Load loads configuration from the file named by COORDINATOR_CONFIG (or
// ./config.yaml if unset and present), falling back to Default with
// environment overrides applied either way.
func Load() (*Config, error) {
	configPath := os.Getenv("COORDINATOR_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return loadFromFile(configPath)
	}

	cfg := Default()
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("COORDINATOR_GRPC_ADDR"); addr != "" {
		cfg.Server.GRPCAddr = addr
	}
	if addr := os.Getenv("COORDINATOR_METRICS_ADDR"); addr != "" {
		cfg.Server.MetricsAddr = addr
	}
	if sys := os.Getenv("COORDINATOR_FALLBACK_CLEARING_SYSTEM"); sys != "" {
		cfg.Routing.FallbackClearingSystem = sys
	}
	if n := os.Getenv("COORDINATOR_MAX_IN_FLIGHT_PER_TENANT"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil {
			cfg.Saga.MaxInFlightPerTenant = parsed
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("config: server.grpc_addr is required")
	}
	if c.Routing.RuleEvaluationTimeout <= 0 {
		return fmt.Errorf("config: routing.rule_evaluation_timeout must be positive")
	}
	if c.Routing.FallbackClearingSystem == "" {
		return fmt.Errorf("config: routing.fallback_clearing_system is required")
	}
	if c.Saga.StepTimeout <= 0 {
		return fmt.Errorf("config: saga.step_timeout must be positive")
	}
	if c.Saga.WallClockTimeout < c.Saga.StepTimeout {
		return fmt.Errorf("config: saga.wall_clock_timeout must be >= saga.step_timeout")
	}
	if c.Saga.Retry.MaxAttempts < 0 {
		return fmt.Errorf("config: saga.retry.max_attempts must be non-negative")
	}
	if c.Saga.MaxInFlightPerTenant <= 0 {
		return fmt.Errorf("config: saga.max_in_flight_per_tenant must be positive")
	}
	return nil
}
