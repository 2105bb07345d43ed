// Package config loads stratgate.yaml, then .env and environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "stratgate.yaml"

type Config struct {
	Harness   Harness    `yaml:"harness"`
	Scenarios Scenarios  `yaml:"scenarios"`
	Quality   Quality    `yaml:"quality"`
	Analyzers []Analyzer `yaml:"analyzers"`
	Results   Results    `yaml:"results"`
	Store     Store      `yaml:"store"`
	Metrics   Metrics    `yaml:"metrics"`
	Server    Server     `yaml:"server"`
	Log       Log        `yaml:"log"`
	Secrets   Secrets    `yaml:"secrets"`
}

type Harness struct {
	Timeout     time.Duration `yaml:"timeout"`
	LoadTimeout time.Duration `yaml:"load_timeout"`
	MaxSteps    uint64        `yaml:"max_steps"`
	Parallel    int           `yaml:"parallel"`
}

type Scenarios struct {
	Symbol         string    `yaml:"symbol"`
	RandomCount    int       `yaml:"random_count"`
	Seed           *int64    `yaml:"seed"`
	NullRate       float64   `yaml:"null_rate"`
	NaNRate        float64   `yaml:"nan_rate"`
	PositionStates []float64 `yaml:"position_states"`
}

type Quality struct {
	BranchThreshold int    `yaml:"branch_threshold"`
	RulesFile       string `yaml:"rules_file"`
}

type Analyzer struct {
	Name    string        `yaml:"name"`
	Command []string      `yaml:"command"`
	Image   string        `yaml:"image"`
	Timeout time.Duration `yaml:"timeout"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type Store struct {
	DSN string `yaml:"dsn"`
}

type Metrics struct {
	Textfile string `yaml:"textfile"`
}

type Server struct {
	Addr         string  `yaml:"addr"`
	RatePerSec   float64 `yaml:"rate_per_sec"`
	Burst        int     `yaml:"burst"`
	MaxBodyBytes int64   `yaml:"max_body_bytes"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

// Default is the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Harness: Harness{
			Timeout:     3 * time.Second,
			LoadTimeout: 5 * time.Second,
			Parallel:    runtime.NumCPU(),
		},
		Scenarios: Scenarios{
			Symbol:         "TEST_SYMBOL",
			RandomCount:    50,
			NullRate:       0.10,
			NaNRate:        0.05,
			PositionStates: []float64{0, 100, -100},
		},
		Quality: Quality{BranchThreshold: 10},
		Results: Results{Dir: "results"},
		Server: Server{
			Addr:         ":8080",
			RatePerSec:   5,
			Burst:        10,
			MaxBodyBytes: 256 << 10,
		},
		Log:     Log{Level: "info", Format: "console"},
		Secrets: Secrets{EnvFile: ".env"},
	}
}

// Load reads path over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file at the default path
// yields Default with environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg, err := Load(path)
	if err == nil || path != DefaultPath || !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	cfg = Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv loads the .env file, which never overrides variables already
// set, then applies STRATGATE_* overrides.
func applyEnv(cfg *Config) error {
	if cfg.Secrets.EnvFile != "" {
		if err := godotenv.Load(cfg.Secrets.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading env file %s: %w", cfg.Secrets.EnvFile, err)
		}
	}
	if v := os.Getenv("STRATGATE_DATABASE_URL"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("STRATGATE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STRATGATE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STRATGATE_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("STRATGATE_SEED: %w", err)
		}
		cfg.Scenarios.Seed = &seed
	}
	return nil
}

var logLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true, "disabled": true}

func validate(cfg *Config) error {
	h := &cfg.Harness
	if h.Timeout <= 0 {
		return fmt.Errorf("harness.timeout must be positive")
	}
	if h.LoadTimeout <= 0 {
		h.LoadTimeout = 5 * time.Second
	}
	if h.Parallel < 1 {
		h.Parallel = runtime.NumCPU()
	}

	s := &cfg.Scenarios
	if s.Symbol == "" {
		s.Symbol = "TEST_SYMBOL"
	}
	if s.RandomCount < 0 {
		return fmt.Errorf("scenarios.random_count must not be negative")
	}
	if s.NullRate < 0 || s.NullRate > 1 {
		return fmt.Errorf("scenarios.null_rate must be within [0,1]")
	}
	if s.NaNRate < 0 || s.NaNRate > 1 {
		return fmt.Errorf("scenarios.nan_rate must be within [0,1]")
	}
	if len(s.PositionStates) == 0 {
		return fmt.Errorf("scenarios.position_states must not be empty")
	}

	if cfg.Quality.BranchThreshold < 1 {
		return fmt.Errorf("quality.branch_threshold must be at least 1")
	}
	for i, a := range cfg.Analyzers {
		if a.Name == "" {
			return fmt.Errorf("analyzer %d: name is required", i)
		}
		if len(a.Command) == 0 {
			return fmt.Errorf("analyzer %q: command is required", a.Name)
		}
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}

	if cfg.Server.RatePerSec <= 0 {
		return fmt.Errorf("server.rate_per_sec must be positive")
	}
	if cfg.Server.Burst < 1 {
		cfg.Server.Burst = 1
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 256 << 10
	}

	if !logLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}
	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json")
	}
	return nil
}
