// Package config resolves run settings from defaults, a YAML file, a .env file and the
// environment. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvFile is loaded when present and no other env file is named.
const DefaultEnvFile = ".env"

type Config struct {
	Server     string `yaml:"server"`
	GeneColumn string `yaml:"gene_column"`

	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	DefaultCAPath  string        `yaml:"default_ca_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server:         "https://rest.ensembl.org",
		GeneColumn:     "Rat Gene",
		Workers:        10,
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

type LoadOptions struct {
	// ConfigPath is an optional YAML file.
	ConfigPath string
	// EnvFile is an optional dotenv file. When empty, DefaultEnvFile is read if it exists.
	EnvFile string
	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(string) string
}

// Load layers defaults, the YAML file, the env file and the environment, in that order.
// Variables already set in the environment win over the env file.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if p := strings.TrimSpace(opts.ConfigPath); p != "" {
		if err := cfg.mergeFile(p); err != nil {
			return Config{}, err
		}
	}
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	e := envReader{getenv: getenv}

	e.str("ORTHOMAP_SERVER", &c.Server)
	e.str("ORTHOMAP_GENE_COLUMN", &c.GeneColumn)
	e.int("WORKERS", &c.Workers)
	e.int("MAX_ATTEMPTS", &c.MaxAttempts)
	e.duration("BASE_DELAY", &c.BaseDelay)
	e.duration("REQUEST_TIMEOUT", &c.RequestTimeout)
	e.float("RATE_LIMIT_RPS", &c.RateLimitRPS)
	e.str("DEFAULT_CA_PATH", &c.DefaultCAPath)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_FORMAT", &c.LogFormat)

	return e.err
}

// Validate rejects settings no run could use.
func (c Config) Validate() error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive (got %d)", c.Workers))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max attempts must be positive (got %d)", c.MaxAttempts))
	}
	if c.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("base delay must not be negative (got %s)", c.BaseDelay))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative (got %s)", c.RequestTimeout))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative (got %g)", c.RateLimitRPS))
	}
	if strings.TrimSpace(c.GeneColumn) == "" {
		errs = append(errs, errors.New("gene column is required"))
	}
	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateServer(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("server URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server URL must use http or https (got %q)", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("server URL must include a host (got %q)", raw)
	}
	return nil
}

// envReader parses variables and keeps the first error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) lookup(name string) (string, bool) {
	v := strings.TrimSpace(e.getenv(name))
	return v, v != "" && e.err == nil
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
		return
	}
	*dst = out
}

func (e *envReader) float(name string, dst *float64) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
		return
	}
	*dst = out
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
		return
	}
	*dst = out
}
