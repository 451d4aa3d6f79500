// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppConfig holds all application configuration.
// It is instantiated by NewConfig() and passed to components that need it (dependency injection).
type AppConfig struct {
	Store      StoreConfig      `mapstructure:"store"`
	Log        LogConfig        `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Image      ImageConfig      `mapstructure:"image"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
}

// StoreConfig holds content-addressed store configuration.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
	// OrphanClaimAge is how old a Claimed-but-never-Committed row must be
	// before a startup scan removes it. Zero disables the scan.
	OrphanClaimAge time.Duration `mapstructure:"orphan_claim_age"`
}

// GetDSN returns the sqlite DSN for the named project's store file.
func (sc *StoreConfig) GetDSN(project string) string {
	if project == "" {
		project = "default"
	}
	return filepath.Join(sc.DataDir, project+".db")
}

// LogConfig holds comprehensive logging configuration
type LogConfig struct {
	Level    string            `mapstructure:"level"`
	Format   string            `mapstructure:"format"`
	Output   []LogOutputConfig `mapstructure:"output"`
	Levels   map[string]string `mapstructure:"levels"`
	Context  LogContextConfig  `mapstructure:"context"`
	Sampling LogSamplingConfig `mapstructure:"sampling"`
}

// LogOutputConfig defines where logs are written
type LogOutputConfig struct {
	Type    string          `mapstructure:"type"` // "file" or "console"
	Enabled bool            `mapstructure:"enabled"`
	Path    string          `mapstructure:"path"`   // For file output
	Rotate  LogRotateConfig `mapstructure:"rotate"` // For file output
}

// LogRotateConfig defines log rotation settings
type LogRotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// LogContextConfig defines what context to include in logs
type LogContextConfig struct {
	IncludeCaller     bool   `mapstructure:"include_caller"`
	IncludeTimestamp  bool   `mapstructure:"include_timestamp"`
	IncludeStackTrace string `mapstructure:"include_stack_trace"`
}

// LogSamplingConfig defines log sampling settings
type LogSamplingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Initial    uint32        `mapstructure:"initial"`
	Thereafter uint32        `mapstructure:"thereafter"`
	Tick       time.Duration `mapstructure:"tick"`
}

// Sampler holds the default LLM sampling parameters.
type Sampler struct {
	Temperature       float64 `mapstructure:"temperature"`
	MinP              float64 `mapstructure:"min_p"`
	RepetitionPenalty float64 `mapstructure:"repetition_penalty"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	MinTokens         int     `mapstructure:"min_tokens"`
}

// LLMConfig holds configuration for the unified LLM HTTP client.
type LLMConfig struct {
	BaseURLEnv     string        `mapstructure:"base_url_env"`
	APIKeyEnv      string        `mapstructure:"api_key_env"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DefaultSampler Sampler       `mapstructure:"default_sampler"`
}

// ImageConfig holds configuration for the AUTOMATIC1111-style image backend.
type ImageConfig struct {
	BaseURLEnv     string        `mapstructure:"base_url_env"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DefaultWidth   int           `mapstructure:"default_width"`
	DefaultHeight  int           `mapstructure:"default_height"`
	DefaultSteps   int           `mapstructure:"default_steps"`
}

// DispatcherConfig holds the drive-to-quiescence loop's sleep intervals.
type DispatcherConfig struct {
	SmallDelay time.Duration `mapstructure:"small_delay"`
	BigDelay   time.Duration `mapstructure:"big_delay"`
}

// NewConfig creates a new AppConfig by reading from a file, environment variables,
// and applying defaults.
func NewConfig(configPath string) (*AppConfig, error) {
	cfg := defaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scribe/")
		v.AddConfigPath("$HOME/.scribe")
	}

	v.SetEnvPrefix("SCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// defaultConfig returns an AppConfig with default values.
// This is more type-safe than using viper.SetDefault().
func defaultConfig() AppConfig {
	return AppConfig{
		Store: StoreConfig{
			DataDir:        "./data",
			OrphanClaimAge: 0,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "console",
			Output: []LogOutputConfig{
				{
					Type:    "file",
					Enabled: true,
					Path:    "./logs/scribe.log",
					Rotate: LogRotateConfig{
						MaxSizeMB:  100,
						MaxBackups: 7,
						MaxAgeDays: 30,
						Compress:   true,
					},
				},
				{
					Type:    "console",
					Enabled: true,
				},
			},
			Levels: map[string]string{
				"store":      "INFO",
				"dispatcher": "INFO",
				"steps":      "INFO",
				"llm":        "INFO",
				"cli":        "INFO",
			},
			Context: LogContextConfig{
				IncludeCaller:     false,
				IncludeTimestamp:  true,
				IncludeStackTrace: "ERROR",
			},
			Sampling: LogSamplingConfig{
				Enabled:    false,
				Initial:    100,
				Thereafter: 100,
				Tick:       time.Second,
			},
		},
		LLM: LLMConfig{
			BaseURLEnv:     "OPENAI_BASE_URL",
			APIKeyEnv:      "OPENAI_API_KEY",
			RequestTimeout: 3 * time.Minute,
			DefaultSampler: Sampler{
				Temperature:       1.0,
				MinP:              0.05,
				RepetitionPenalty: 1.1,
				MaxTokens:         2048,
				MinTokens:         10,
			},
		},
		Image: ImageConfig{
			BaseURLEnv:     "IMAGE_API_URL",
			RequestTimeout: 10 * time.Minute,
			DefaultWidth:   512,
			DefaultHeight:  512,
			DefaultSteps:   20,
		},
		Dispatcher: DispatcherConfig{
			SmallDelay: time.Second,
			BigDelay:   5 * time.Second,
		},
	}
}

// expandPaths expands ~ and environment variables in path configuration values
func (c *AppConfig) expandPaths() {
	if c.Store.DataDir != "" {
		c.Store.DataDir = expandPath(c.Store.DataDir)
	}
	for i := range c.Log.Output {
		if c.Log.Output[i].Path != "" {
			c.Log.Output[i].Path = expandPath(c.Log.Output[i].Path)
		}
	}
}

// expandPath expands ~ to home directory and environment variables
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	path = os.ExpandEnv(path)

	return path
}

// validate checks if the configuration is valid.
func (c *AppConfig) validate() error {
	if c.Store.DataDir == "" {
		return errors.New("store.data_dir is required")
	}

	validLogLevels := map[string]bool{
		"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true, "PANIC": true,
	}
	if !validLogLevels[strings.ToUpper(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.LLM.APIKeyEnv == "" {
		return errors.New("llm.api_key_env is required")
	}
	if c.LLM.DefaultSampler.MaxTokens <= 0 {
		return fmt.Errorf("llm.default_sampler.max_tokens must be positive, got: %d", c.LLM.DefaultSampler.MaxTokens)
	}

	if c.Dispatcher.SmallDelay <= 0 {
		return errors.New("dispatcher.small_delay must be positive")
	}
	if c.Dispatcher.BigDelay <= 0 {
		return errors.New("dispatcher.big_delay must be positive")
	}

	return nil
}
