// Package config loads the TOML or YAML configuration and applies .env and
// ADAPTRADER_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// SourceSynthetic selects the generated random walk instead of a CSV table.
const SourceSynthetic = "synthetic"

type SyntheticConfig struct {
	Length      int     `toml:"length" yaml:"length"`
	Start       float64 `toml:"start" yaml:"start"`
	Drift       float64 `toml:"drift" yaml:"drift"`
	Volatility  float64 `toml:"volatility" yaml:"volatility"`
	ShiftAt     int     `toml:"shift_at" yaml:"shift_at"`
	DriftFactor float64 `toml:"drift_factor" yaml:"drift_factor"`
	VolFactor   float64 `toml:"vol_factor" yaml:"vol_factor"`
	Seed        int64   `toml:"seed" yaml:"seed"`
}

type DriftConfig struct {
	Delta       float64 `toml:"delta" yaml:"delta"`
	Clock       int     `toml:"clock" yaml:"clock"`
	MaxBuckets  int     `toml:"max_buckets" yaml:"max_buckets"`
	MinWindow   int     `toml:"min_window" yaml:"min_window"`
	GracePeriod int     `toml:"grace_period" yaml:"grace_period"`
}

type Config struct {
	App struct {
		LogLevel  string `toml:"log_level" yaml:"log_level"`
		LogFormat string `toml:"log_format" yaml:"log_format"` // console | json
	} `toml:"app" yaml:"app"`

	Market struct {
		Source              string          `toml:"source" yaml:"source"` // CSV path, http(s) URL or "synthetic"
		StartBalance        float64         `toml:"start_balance" yaml:"start_balance"`
		FetchTimeoutSeconds int             `toml:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
		Synthetic           SyntheticConfig `toml:"synthetic" yaml:"synthetic"`
	} `toml:"market" yaml:"market"`

	Session struct {
		StepIntervalSeconds float64 `toml:"step_interval_seconds" yaml:"step_interval_seconds"`
		DurationSeconds     float64 `toml:"duration_seconds" yaml:"duration_seconds"`
		MaxSteps            int     `toml:"max_steps" yaml:"max_steps"`
	} `toml:"session" yaml:"session"`

	Agent struct {
		Hidden       int         `toml:"hidden" yaml:"hidden"`
		Seed         int64       `toml:"seed" yaml:"seed"`
		WeightStd    float64     `toml:"weight_std" yaml:"weight_std"`
		Optimizer    string      `toml:"optimizer" yaml:"optimizer"`
		LearningRate float64     `toml:"learning_rate" yaml:"learning_rate"`
		ONNXModel    string      `toml:"onnx_model" yaml:"onnx_model"`
		ONNXLibrary  string      `toml:"onnx_library" yaml:"onnx_library"`
		Drift        DriftConfig `toml:"drift" yaml:"drift"`
	} `toml:"agent" yaml:"agent"`

	Output struct {
		TraceCSV   string `toml:"trace_csv" yaml:"trace_csv"`
		ReportHTML string `toml:"report_html" yaml:"report_html"`
		SMAPeriod  int    `toml:"sma_period" yaml:"sma_period"`
		Quiet      bool   `toml:"quiet" yaml:"quiet"`
	} `toml:"output" yaml:"output"`

	Store struct {
		Path string `toml:"path" yaml:"path"` // empty disables persistence
	} `toml:"store" yaml:"store"`

	Server struct {
		Addr string `toml:"addr" yaml:"addr"`
	} `toml:"server" yaml:"server"`

	Notify struct {
		DiscordWebhook string `toml:"discord_webhook" yaml:"discord_webhook"`
	} `toml:"notify" yaml:"notify"`
}

// Load reads path (TOML or YAML by extension), applies the environment and
// defaults, then validates. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse toml: %w", err)
			}
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse yaml: %w", err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFromEnv() error {
	if val := os.Getenv("ADAPTRADER_LOG_LEVEL"); val != "" {
		c.App.LogLevel = val
	}
	if val := os.Getenv("ADAPTRADER_LOG_FORMAT"); val != "" {
		c.App.LogFormat = val
	}
	if val := os.Getenv("ADAPTRADER_PRICE_SOURCE"); val != "" {
		c.Market.Source = val
	}
	if val := os.Getenv("ADAPTRADER_DB"); val != "" {
		c.Store.Path = val
	}
	if val := os.Getenv("ADAPTRADER_SERVER_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("ADAPTRADER_DISCORD_WEBHOOK"); val != "" {
		c.Notify.DiscordWebhook = val
	}
	if val := os.Getenv("ADAPTRADER_MAX_STEPS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("ADAPTRADER_MAX_STEPS: %w", err)
		}
		c.Session.MaxSteps = n
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "console"
	}
	if c.Market.Source == "" {
		c.Market.Source = SourceSynthetic
	}
	if c.Market.StartBalance == 0 {
		c.Market.StartBalance = 10000
	}
	if c.Market.FetchTimeoutSeconds <= 0 {
		c.Market.FetchTimeoutSeconds = 30
	}
	if c.Market.Synthetic == (SyntheticConfig{}) {
		c.Market.Synthetic = SyntheticConfig{
			Length:      500,
			Start:       100,
			Drift:       0.0005,
			Volatility:  0.01,
			ShiftAt:     250,
			DriftFactor: -4,
			VolFactor:   3,
			Seed:        1,
		}
	}
	if c.Agent.Hidden <= 0 {
		c.Agent.Hidden = 64
	}
	if c.Agent.WeightStd <= 0 {
		c.Agent.WeightStd = 0.1
	}
	if c.Agent.Optimizer == "" {
		c.Agent.Optimizer = "adam"
	}
	if c.Agent.LearningRate == 0 {
		c.Agent.LearningRate = 0.01
	}
	d := &c.Agent.Drift
	if d.Delta == 0 {
		d.Delta = 0.002
	}
	if d.Clock <= 0 {
		d.Clock = 32
	}
	if d.MaxBuckets <= 0 {
		d.MaxBuckets = 5
	}
	if d.MinWindow <= 0 {
		d.MinWindow = 5
	}
	if d.GracePeriod <= 0 {
		d.GracePeriod = 10
	}
	if c.Output.SMAPeriod == 0 {
		c.Output.SMAPeriod = 20
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

func validate(c *Config) error {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be debug, info, warn or error, got %q", c.App.LogLevel)
	}
	switch c.App.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("app.log_format must be console or json, got %q", c.App.LogFormat)
	}
	if c.Market.StartBalance < 0 {
		return fmt.Errorf("market.start_balance must not be negative")
	}
	if c.Session.StepIntervalSeconds < 0 || c.Session.DurationSeconds < 0 {
		return fmt.Errorf("session durations must not be negative")
	}
	if c.Session.MaxSteps < 0 {
		return fmt.Errorf("session.max_steps must not be negative")
	}
	if c.Agent.LearningRate <= 0 {
		return fmt.Errorf("agent.learning_rate must be positive")
	}
	if c.Agent.Drift.Delta <= 0 || c.Agent.Drift.Delta >= 1 {
		return fmt.Errorf("agent.drift.delta must be in (0,1)")
	}
	if c.Agent.Drift.MaxBuckets < 2 {
		return fmt.Errorf("agent.drift.max_buckets must be at least 2")
	}
	if c.Output.SMAPeriod < 0 {
		return fmt.Errorf("output.sma_period must not be negative")
	}
	if c.Market.Source == SourceSynthetic && c.Market.Synthetic.Length < 1 {
		return fmt.Errorf("market.synthetic.length must be positive")
	}
	return nil
}

func (c *Config) StepInterval() time.Duration {
	return time.Duration(c.Session.StepIntervalSeconds * float64(time.Second))
}

func (c *Config) Duration() time.Duration {
	return time.Duration(c.Session.DurationSeconds * float64(time.Second))
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Market.FetchTimeoutSeconds) * time.Second
}
