package config

import (
	"flag"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// CaptureConfig holds configuration for the capture sink that records a
// play stream to disk.
type CaptureConfig struct {
	Port       int    `yaml:"port"`
	OutputPath string `yaml:"output_path"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FPS        int    `yaml:"fps"`
	LogLevel   string `yaml:"log_level"`
	ConfigFile string `yaml:"-"`
}

func (c *CaptureConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8765
	}
	if c.OutputPath == "" {
		c.OutputPath = "capture.mp4"
	}
	if c.Width == 0 {
		c.Width = 640
	}
	if c.Height == 0 {
		c.Height = 360
	}
	if c.FPS == 0 {
		c.FPS = 15
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("capture.yaml")
	}
}

func (c *CaptureConfig) ApplyEnv() {
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
	if v := GetEnv("OUTPUT_PATH", ""); v != "" {
		c.OutputPath = v
	}
	if v := GetEnv("CAPTURE_WIDTH", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Width = n
		}
	}
	if v := GetEnv("CAPTURE_HEIGHT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Height = n
		}
	}
	if v := GetEnv("CAPTURE_FPS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FPS = n
		}
	}
}

func (c *CaptureConfig) BindFlagsFromCurrent() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "capture config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the capture sink")
	flag.StringVar(&c.OutputPath, "output", c.OutputPath, "MP4 output path")
	flag.IntVar(&c.Width, "width", c.Width, "output video width")
	flag.IntVar(&c.Height, "height", c.Height, "output video height")
	flag.IntVar(&c.FPS, "fps", c.FPS, "output video frame rate")
}

func (c *CaptureConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}
