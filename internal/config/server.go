// Package config layers configuration from defaults, an optional YAML file,
// environment variables, and command line flags, in that order.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the world-model inference server.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	ClientKey      string        `yaml:"client_key"`
	RunnerKey      string        `yaml:"runner_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ConfigFile     string        `yaml:"-"`
	LogLevel       string        `yaml:"log_level"`
	RedisAddr      string        `yaml:"redis_addr"`

	SeedDir string `yaml:"seed_dir"`

	ContextWindow     int     `yaml:"context_window"`
	PredictionHorizon int     `yaml:"prediction_horizon"`
	Temperature       float64 `yaml:"temperature"`
	Precision         string  `yaml:"precision"`
	HistorySlack      int     `yaml:"history_slack"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 5 * time.Minute
	}
	if c.ContextWindow == 0 {
		c.ContextWindow = 4
	}
	if c.PredictionHorizon == 0 {
		c.PredictionHorizon = 1
	}
	if c.Temperature == 0 {
		c.Temperature = 1.0
	}
	if c.Precision == "" {
		c.Precision = "bf16"
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("server.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	} else if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if v := GetEnv("CLIENT_KEY", ""); v != "" {
		c.ClientKey = v
	}
	if v := GetEnv("RUNNER_KEY", ""); v != "" {
		c.RunnerKey = v
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := GetEnv("SEED_DIR", ""); v != "" {
		c.SeedDir = v
	}
	if v := GetEnv("REQUEST_TIMEOUT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestTimeout = time.Duration(f * float64(time.Second))
		}
	}
	if v := GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("CONTEXT_WINDOW", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ContextWindow = n
		}
	}
	if v := GetEnv("PREDICTION_HORIZON", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PredictionHorizon = n
		}
	}
	if v := GetEnv("TEMPERATURE", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Temperature = f
		}
	}
	if v := GetEnv("PRECISION", ""); v != "" {
		c.Precision = v
	}
	if v := GetEnv("HISTORY_SLACK", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HistorySlack = n
		}
	}
}

// BindFlagsFromCurrent binds command line flags using the current config values as defaults.
func (c *ServerConfig) BindFlagsFromCurrent() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the public API")
	flag.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port; defaults to the value of --port")
	flag.StringVar(&c.ClientKey, "client-key", c.ClientKey, "shared key players must present when connecting; leave empty to disable auth")
	flag.StringVar(&c.RunnerKey, "runner-key", c.RunnerKey, "shared key model runners must present when registering")
	flag.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for server state")
	flag.StringVar(&c.SeedDir, "seed-dir", c.SeedDir, "directory of numbered frames used to seed new sessions")
	flag.IntVar(&c.ContextWindow, "context-window", c.ContextWindow, "number of trailing frames used as model context")
	flag.IntVar(&c.PredictionHorizon, "prediction-horizon", c.PredictionHorizon, "number of frames generated per step")
	flag.Float64Var(&c.Temperature, "temperature", c.Temperature, "sampling temperature passed to the dynamics model")
	flag.StringVar(&c.Precision, "precision", c.Precision, "numeric precision requested from the dynamics model (bf16, fp32)")
	flag.IntVar(&c.HistorySlack, "history-slack", c.HistorySlack, "frames retained beyond the context window")
	flag.Func("request-timeout", "request timeout in seconds without runner activity", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.RequestTimeout = time.Duration(f * float64(time.Second))
		return nil
	})
	flag.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight requests on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	flag.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}
