// Package config loads estimator settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/estimate"
	"github.com/zhongzachary/MultinomialCIProject2020/internal/multinomial"
)

// Environment variables that override the config file.
const (
	EnvPostgresDSN   = "MCI_POSTGRES_DSN"
	EnvClickhouseDSN = "MCI_CLICKHOUSE_DSN"
	EnvAlpha         = "MCI_ALPHA"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full estimator configuration.
type Config struct {
	Alpha      float64       `yaml:"alpha"`
	RefIndex   int           `yaml:"ref_index"`
	CurIndex   int           `yaml:"cur_index"` // negative counts from the end
	Method     string        `yaml:"ci_method"`
	CandidateA string        `yaml:"candidate_a"`
	CandidateB string        `yaml:"candidate_b"`
	Regions    []string      `yaml:"regions"`
	Interval   time.Duration `yaml:"interval"` // serve mode refresh period
	LogLevel   string        `yaml:"log_level"`

	Postgres   DatabaseSection `yaml:"postgres"`
	Clickhouse DatabaseSection `yaml:"clickhouse"`
	Server     ServerSection   `yaml:"server"`
}

// DatabaseSection holds a connection string.
type DatabaseSection struct {
	DSN string `yaml:"dsn"`
}

// ServerSection holds serve mode listener settings.
type ServerSection struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Alpha:      0.05,
		RefIndex:   0,
		CurIndex:   -1,
		Method:     string(multinomial.MethodGoodman),
		CandidateA: "Biden",
		CandidateB: "Trump",
		Interval:   time.Minute,
		LogLevel:   "info",
		Server:     ServerSection{Addr: ":8080"},
	}
}

// Load reads configPath over the defaults and applies environment overrides.
// A missing file is not an error; the defaults stand.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if dsn := os.Getenv(EnvPostgresDSN); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if dsn := os.Getenv(EnvClickhouseDSN); dsn != "" {
		cfg.Clickhouse.DSN = dsn
	}
	if alpha := os.Getenv(EnvAlpha); alpha != "" {
		val, err := strconv.ParseFloat(alpha, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvAlpha, alpha, err)
		}
		cfg.Alpha = val
	}
	return nil
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", configPath, err)
	}
	return nil
}

// MethodValue parses the configured interval method.
func (c *Config) MethodValue() (multinomial.Method, error) {
	return multinomial.ParseMethod(c.Method)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if err := estimate.ValidateAlpha(c.Alpha); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := c.MethodValue(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.CandidateA == "" || c.CandidateB == "" {
		return fmt.Errorf("%w: candidate_a and candidate_b are required", ErrInvalidConfig)
	}
	if c.CandidateA == c.CandidateB {
		return fmt.Errorf("%w: candidate_a and candidate_b must differ", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	return nil
}
