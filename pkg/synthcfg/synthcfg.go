// Package synthcfg loads and validates the synthesis driver's own
// configuration, grounded on the teacher's pkg/config: same TOML-driven
// struct tags validated with go-playground/validator, same
// environment-variable override convention as cmd/froyo/main.go's
// LOG_LEVEL switch, generalized to a SYNTHCTL_ prefix covering the
// top-level scalar fields and a few nested ones.
package synthcfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/izgzhen/synthctl/pkg/synth/metrics"
	"github.com/izgzhen/synthctl/pkg/synthlog"
	"github.com/izgzhen/synthctl/pkg/synthtrace"
)

// Config is the top-level configuration for one synthctl invocation.
type Config struct {
	// SpecPath is the path to the JSON-serialized Specification to load.
	SpecPath string `toml:"spec_path" validate:"required"`

	// DeduplicateSubqueries makes the equivalence oracle ask the solver
	// whether two queries are equivalent; when false, it falls back to
	// alpha-equivalence of their return expressions.
	DeduplicateSubqueries bool `toml:"deduplicate_subqueries"`

	// MaxConcurrentImprove bounds how many improvement jobs may run at
	// once; zero means the driver picks a default.
	MaxConcurrentImprove int `toml:"max_concurrent_improve" validate:"gte=0"`

	// PerQueryTimeout is a single deadline for the whole improvement phase,
	// shared by all improvement jobs rather than applied to each one;
	// zero means no timeout.
	PerQueryTimeout time.Duration `toml:"per_query_timeout"`

	Logging synthlog.Config   `toml:"logging"`
	Tracing synthtrace.Config `toml:"tracing"`
	Metrics metrics.Config    `toml:"metrics"`
}

// Default returns a Config with the driver's out-of-the-box defaults.
func Default() Config {
	return Config{
		DeduplicateSubqueries: true,
		MaxConcurrentImprove:  4,
		PerQueryTimeout:       60 * time.Second,
		Logging:               synthlog.DefaultConfig(),
		Tracing:               synthtrace.DefaultConfig(),
		Metrics: metrics.Config{
			Enabled:       false,
			Namespace:     "synthctl",
			ListenAddress: ":9090",
			Path:          "/metrics",
		},
	}
}

// Load reads a TOML configuration file at path, applies SYNTHCTL_*
// environment overrides, and validates the result. An empty path loads
// defaults with overrides applied on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides mirrors the teacher's LOG_LEVEL convention, extended to
// every top-level scalar field under a SYNTHCTL_ prefix. Unset or
// unparsable variables are left alone.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SYNTHCTL_SPEC_PATH"); v != "" {
		cfg.SpecPath = v
	}
	if v := os.Getenv("SYNTHCTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("SYNTHCTL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("SYNTHCTL_MAX_CONCURRENT_IMPROVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentImprove = n
		}
	}
	if v := os.Getenv("SYNTHCTL_DEDUPLICATE_SUBQUERIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DeduplicateSubqueries = b
		}
	}
	if v := os.Getenv("SYNTHCTL_PER_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PerQueryTimeout = d
		}
	}
	if v := os.Getenv("SYNTHCTL_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("SYNTHCTL_TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = b
		}
	}
}
