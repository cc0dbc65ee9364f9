// Package config loads and validates the engine configuration: per-pillar
// normalization and combination settings, the weight vector, data sources
// and output sinks.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aibps/aibps/internal/combine"
	"github.com/aibps/aibps/internal/normalize"
)

// PillarNames is the fixed pillar set, in output column order.
var PillarNames = []string{"Market", "Capex_Supply", "Infra", "Adoption", "Sentiment", "Credit"}

// ClipConfig bounds a combined pillar series.
type ClipConfig struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// FillConfig is the post-combination gap-fill policy for one pillar.
type FillConfig struct {
	Mode  string `yaml:"mode"`
	Limit int    `yaml:"limit"`
}

// PillarConfig carries every per-pillar tunable. No literals live inside
// the normalization logic; it all flows from here.
type PillarConfig struct {
	Method     string      `yaml:"method"`
	Window     int         `yaml:"window"`
	MinPeriods int         `yaml:"min_periods"`
	ZClip      float64     `yaml:"z_clip"`
	Combine    string      `yaml:"combine"`
	Fill       FillConfig  `yaml:"fill"`
	Clip       *ClipConfig `yaml:"clip,omitempty"`
}

// ServerConfig configures the read-only HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RedisConfig configures the optional raw-series fetch cache. An empty
// Addr disables it.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// PostgresConfig configures the optional run sink. An empty DSN disables
// it.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// OutputConfig locates the tabular artifact written each run.
type OutputConfig struct {
	Path string `yaml:"path"`
}

// Config is the full engine configuration.
type Config struct {
	Pillars  map[string]PillarConfig `yaml:"pillars"`
	Weights  map[string]float64      `yaml:"weights"`
	Sources  map[string][]string     `yaml:"sources"`
	Output   OutputConfig            `yaml:"output"`
	Server   ServerConfig            `yaml:"server"`
	Redis    RedisConfig             `yaml:"redis"`
	Postgres PostgresConfig          `yaml:"postgres"`
}

// Default returns the canonical configuration: z-sigmoid everywhere with
// long-cycle 120-month windows for Market and Credit, 36 for the
// investment-cycle pillars and 24 for the hype pillars, equal weights, and
// fill policies matching each pillar's source density.
func Default() *Config {
	return &Config{
		Pillars: map[string]PillarConfig{
			"Market": {
				Method:  string(normalize.MethodZSigmoid),
				Window:  120,
				ZClip:   4.0,
				Combine: string(combine.ModeMeanOfSources),
				Fill:    FillConfig{Mode: string(combine.FillInterpolate)},
			},
			"Credit": {
				Method:  string(normalize.MethodZSigmoid),
				Window:  120,
				ZClip:   4.0,
				Combine: string(combine.ModeMeanOfSources),
				Fill:    FillConfig{Mode: string(combine.FillInterpolate)},
			},
			"Capex_Supply": {
				Method:  string(normalize.MethodZSigmoid),
				Window:  36,
				ZClip:   4.0,
				Combine: string(combine.ModeMeanOfSources),
				Fill:    FillConfig{Mode: string(combine.FillForward), Limit: 12},
			},
			"Infra": {
				Method:  string(normalize.MethodZSigmoid),
				Window:  36,
				ZClip:   4.0,
				Combine: string(combine.ModeMeanOfSources),
				Fill:    FillConfig{Mode: string(combine.FillForward), Limit: 6},
				Clip:    &ClipConfig{Low: 1, High: 99},
			},
			"Adoption": {
				Method:  string(normalize.MethodZSigmoid),
				Window:  24,
				ZClip:   4.0,
				Combine: string(combine.ModeMeanOfSources),
				Fill:    FillConfig{Mode: string(combine.FillForward), Limit: 3},
			},
			"Sentiment": {
				Method:  string(normalize.MethodZSigmoid),
				Window:  24,
				ZClip:   4.0,
				Combine: string(combine.ModeMeanOfSources),
				Fill:    FillConfig{Mode: string(combine.FillForward), Limit: 3},
			},
		},
		Weights: equalWeights(),
		Output:  OutputConfig{Path: "data/processed/aibps_monthly.csv"},
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8080},
		Redis:   RedisConfig{TTLSeconds: 3600},
	}
}

func equalWeights() map[string]float64 {
	w := make(map[string]float64, len(PillarNames))
	for _, pillar := range PillarNames {
		w[pillar] = 1.0
	}
	return w
}

// Load reads a YAML config from path, fills unset sections from Default
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if cfg.Weights == nil {
		cfg.Weights = equalWeights()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks pillar names, methods, windows and weights.
func (c *Config) Validate() error {
	known := make(map[string]bool, len(PillarNames))
	for _, pillar := range PillarNames {
		known[pillar] = true
	}

	for pillar, pc := range c.Pillars {
		if !known[pillar] {
			return fmt.Errorf("unknown pillar %q", pillar)
		}
		if _, err := normalize.ForMethod(normalize.Method(pc.Method), normalize.Params{Window: pc.Window}); err != nil {
			return fmt.Errorf("pillar %s: %w", pillar, err)
		}
		if pc.Window <= 0 {
			return fmt.Errorf("pillar %s: window must be positive, got %d", pillar, pc.Window)
		}
		switch combine.Mode(pc.Combine) {
		case combine.ModeMeanOfSources, combine.ModeRebaseAverage:
		default:
			return fmt.Errorf("pillar %s: unknown combine mode %q", pillar, pc.Combine)
		}
		switch combine.FillMode(pc.Fill.Mode) {
		case combine.FillNone, combine.FillForward, combine.FillInterpolate, "":
		default:
			return fmt.Errorf("pillar %s: unknown fill mode %q", pillar, pc.Fill.Mode)
		}
		if pc.Fill.Limit < 0 {
			return fmt.Errorf("pillar %s: fill limit must not be negative", pillar)
		}
		if pc.Clip != nil && pc.Clip.Low >= pc.Clip.High {
			return fmt.Errorf("pillar %s: clip low %v must be below high %v", pillar, pc.Clip.Low, pc.Clip.High)
		}
	}

	for pillar, weight := range c.Weights {
		if !known[pillar] {
			return fmt.Errorf("weight for unknown pillar %q", pillar)
		}
		if weight < 0 {
			return fmt.Errorf("pillar %s: weight must not be negative, got %v", pillar, weight)
		}
	}

	for pillar := range c.Sources {
		if !known[pillar] {
			return fmt.Errorf("sources for unknown pillar %q", pillar)
		}
	}
	return nil
}

// NormalizeParams maps a pillar config onto normalizer parameters.
func (pc PillarConfig) NormalizeParams() normalize.Params {
	return normalize.Params{
		Window:     pc.Window,
		MinPeriods: pc.MinPeriods,
		ZClip:      pc.ZClip,
	}
}

// FillPolicy maps a pillar config onto the combiner's fill policy.
func (pc PillarConfig) FillPolicy() combine.FillPolicy {
	policy := combine.FillPolicy{
		Mode:  combine.FillMode(pc.Fill.Mode),
		Limit: pc.Fill.Limit,
	}
	if pc.Clip != nil {
		policy.Clip = &combine.ClipRange{Low: pc.Clip.Low, High: pc.Clip.High}
	}
	return policy
}
