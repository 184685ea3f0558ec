package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Data sources: local paths (optionally compressed) or s3:// URIs.
	AdlbcPath string `mapstructure:"adlbc_path" yaml:"adlbc_path"`
	AdslPath  string `mapstructure:"adsl_path" yaml:"adsl_path"`
	WatchData bool   `mapstructure:"watch_data" yaml:"watch_data"`

	// HTTP server
	ListenAddr         string `mapstructure:"listen_addr" yaml:"listen_addr"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
	FigureCacheSize    int    `mapstructure:"figure_cache_size" yaml:"figure_cache_size"`

	// Static rendering
	ChartWidth  int `mapstructure:"chart_width" yaml:"chart_width"`
	ChartHeight int `mapstructure:"chart_height" yaml:"chart_height"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// S3-compatible object storage
	S3Region    string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	S3PathStyle bool   `mapstructure:"s3_path_style" yaml:"s3_path_style"`
}

// DefaultPath is ~/.labdash/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".labdash", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.labdash/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("LABDASH")
	v.AutomaticEnv()

	v.SetDefault("adlbc_path", "data/adlbc.csv")
	v.SetDefault("adsl_path", "data/adsl.csv")
	v.SetDefault("watch_data", false)
	v.SetDefault("listen_addr", "127.0.0.1:8050")
	v.SetDefault("shutdown_timeout_sec", 10)
	v.SetDefault("figure_cache_size", 256)
	v.SetDefault("chart_width", 1200)
	v.SetDefault("chart_height", 700)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("s3_region", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_path_style", false)
	return v
}

// Defaults returns the configuration from defaults and env only.
func Defaults() *Global {
	var c Global
	_ = newViper().Unmarshal(&c)
	return &c
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Command-line flags are applied
// on top by the caller.
func Load(cfgFile string) (*Global, error) {
	v := newViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".labdash"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		// only a missing default file is tolerated
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Set assigns one key from its string form.
func (c *Global) Set(key, val string) error {
	switch key {
	case "adlbc_path":
		c.AdlbcPath = val
	case "adsl_path":
		c.AdslPath = val
	case "listen_addr":
		c.ListenAddr = val
	case "log_level":
		switch val {
		case "debug", "info", "warn", "error":
			c.LogLevel = val
		default:
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
	case "log_format":
		switch val {
		case "text", "json":
			c.LogFormat = val
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	case "s3_region":
		c.S3Region = val
	case "s3_endpoint":
		c.S3Endpoint = val
	case "watch_data", "s3_path_style":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for %s: %v", key, val)
		}
		if key == "watch_data" {
			c.WatchData = b
		} else {
			c.S3PathStyle = b
		}
	case "chart_width", "chart_height", "figure_cache_size", "shutdown_timeout_sec":
		i, err := strconv.Atoi(val)
		if err != nil || i <= 0 {
			return fmt.Errorf("invalid positive int for %s: %v", key, val)
		}
		switch key {
		case "chart_width":
			c.ChartWidth = i
		case "chart_height":
			c.ChartHeight = i
		case "figure_cache_size":
			c.FigureCacheSize = i
		default:
			c.ShutdownTimeoutSec = i
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}
