package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Audio  AudioConfig  `mapstructure:"audio" yaml:"audio"`
	Visual VisualConfig `mapstructure:"visual" yaml:"visual"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

type AudioConfig struct {
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int    `mapstructure:"channels" yaml:"channels"`
	FrameSize  int    `mapstructure:"frame_size" yaml:"frame_size"` // samples per capture callback
	Backend    string `mapstructure:"backend" yaml:"backend"`       // "malgo", "auto"
}

type VisualConfig struct {
	BarCount  int     `mapstructure:"bar_count" yaml:"bar_count"`
	Bins      int     `mapstructure:"bins" yaml:"bins"`
	MinHeight float64 `mapstructure:"min_height" yaml:"min_height"`
	MaxHeight float64 `mapstructure:"max_height" yaml:"max_height"`
	FrameRate int     `mapstructure:"frame_rate" yaml:"frame_rate"` // visualiser ticks per second
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		SampleRate: 48000,
		Channels:   1,
		FrameSize:  1024,
		Backend:    "auto",
	},
	Visual: VisualConfig{
		BarCount:  20,
		Bins:      128,
		MinHeight: 4,
		MaxHeight: 52,
		FrameRate: 60,
	},
	Server: ServerConfig{
		Port: "8080",
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load reads the YAML configuration file and merges it over the defaults.
// A missing file is not an error: the widget runs fine on defaults.
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig

	if configFile == "" {
		return &cfg, nil
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return &cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for values the audio pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 (mono) or 2 (stereo), got %d", c.Audio.Channels)
	}
	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("audio.frame_size must be positive, got %d", c.Audio.FrameSize)
	}
	if c.Visual.Bins <= 0 {
		return fmt.Errorf("visual.bins must be positive, got %d", c.Visual.Bins)
	}
	if c.Visual.BarCount < 1 || c.Visual.BarCount > c.Visual.Bins {
		return fmt.Errorf("visual.bar_count must be between 1 and visual.bins (%d), got %d", c.Visual.Bins, c.Visual.BarCount)
	}
	if c.Visual.MinHeight < 0 || c.Visual.MaxHeight <= c.Visual.MinHeight {
		return fmt.Errorf("visual heights invalid: min=%g max=%g", c.Visual.MinHeight, c.Visual.MaxHeight)
	}
	if c.Visual.FrameRate < 1 || c.Visual.FrameRate > 240 {
		return fmt.Errorf("visual.frame_rate must be between 1 and 240, got %d", c.Visual.FrameRate)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must not be empty")
	}
	return nil
}
