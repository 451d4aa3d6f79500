// Copyright (C) 2025-2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/the-crypt-keeper/scribe/internal/config"
)

func TestStaticLoggerGetters(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "console", Enabled: true},
		},
		Levels: map[string]string{
			"store":      "debug",
			"dispatcher": "warn",
			"steps":      "error",
			"llm":        "trace",
			"cli":        "warn",
		},
		Context: config.LogContextConfig{
			IncludeTimestamp: true,
		},
	}

	err := Initialize(cfg)
	if err != nil {
		t.Fatalf("failed to initialize global logger: %v", err)
	}
	defer CloseGlobal()

	tests := []struct {
		name          string
		getterFunc    func() zerolog.Logger
		expectedPkg   string
		expectedLevel zerolog.Level
	}{
		{"store_logger", GetStoreLogger, "store", zerolog.DebugLevel},
		{"dispatcher_logger", GetDispatcherLogger, "dispatcher", zerolog.WarnLevel},
		{"steps_logger", GetStepsLogger, "steps", zerolog.ErrorLevel},
		{"llm_logger", GetLLMLogger, "llm", zerolog.TraceLevel},
		{"cli_logger", GetCLILogger, "cli", zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := tt.getterFunc()
			testLogger := logger.With().Str("test", "value").Logger()

			switch tt.expectedLevel {
			case zerolog.TraceLevel:
				testLogger.Trace().Msg("trace test")
				testLogger.Debug().Msg("debug test")
				testLogger.Info().Msg("info test")
				testLogger.Warn().Msg("warn test")
				testLogger.Error().Msg("error test")
			case zerolog.DebugLevel:
				testLogger.Debug().Msg("debug test")
				testLogger.Info().Msg("info test")
				testLogger.Warn().Msg("warn test")
				testLogger.Error().Msg("error test")
			case zerolog.WarnLevel:
				testLogger.Warn().Msg("warn test")
				testLogger.Error().Msg("error test")
			case zerolog.ErrorLevel:
				testLogger.Error().Msg("error test")
			}

			logger2 := tt.getterFunc()
			logger2.Info().Msg("second logger test")
		})
	}
}

func TestStaticLoggerGetters_Uninitialized(t *testing.T) {
	originalManager := globalManager
	globalManager = nil
	defer func() {
		globalManager = originalManager
	}()

	tests := []struct {
		name       string
		getterFunc func() zerolog.Logger
	}{
		{"store_uninitialized", GetStoreLogger},
		{"dispatcher_uninitialized", GetDispatcherLogger},
		{"steps_uninitialized", GetStepsLogger},
		{"llm_uninitialized", GetLLMLogger},
		{"cli_uninitialized", GetCLILogger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := tt.getterFunc()
			logger.Info().Str("test", "uninitialized").Msg("test message")
			logger.Error().Str("test", "uninitialized").Msg("error message")
		})
	}
}

func TestStaticLoggerGetters_Consistency(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "console", Enabled: true},
		},
	}

	err := Initialize(cfg)
	if err != nil {
		t.Fatalf("failed to initialize global logger: %v", err)
	}
	defer CloseGlobal()

	tests := []struct {
		name       string
		getterFunc func() zerolog.Logger
		pkgName    string
	}{
		{"store_consistency", GetStoreLogger, "store"},
		{"dispatcher_consistency", GetDispatcherLogger, "dispatcher"},
		{"steps_consistency", GetStepsLogger, "steps"},
		{"llm_consistency", GetLLMLogger, "llm"},
		{"cli_consistency", GetCLILogger, "cli"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			staticLogger := tt.getterFunc()
			directLogger := GetLogger(tt.pkgName)

			staticLogger.Info().Msg("static logger test")
			directLogger.Info().Msg("direct logger test")
		})
	}
}

func TestStaticLoggerGetters_PackageSpecificLevels(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "console", Enabled: true},
		},
		Levels: map[string]string{
			"store":      "debug",
			"dispatcher": "error",
			"llm":        "trace",
		},
	}

	err := Initialize(cfg)
	if err != nil {
		t.Fatalf("failed to initialize global logger: %v", err)
	}
	defer CloseGlobal()

	storeLogger := GetStoreLogger()
	storeLogger.Debug().Msg("store debug message")
	storeLogger.Info().Msg("store info message")

	dispatcherLogger := GetDispatcherLogger()
	dispatcherLogger.Error().Msg("dispatcher error message")

	llmLogger := GetLLMLogger()
	llmLogger.Trace().Msg("llm trace message")
	llmLogger.Debug().Msg("llm debug message")

	stepsLogger := GetStepsLogger()
	stepsLogger.Info().Msg("steps info message")
}

func TestStaticLoggerGetters_DynamicLevelChanges(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "console", Enabled: true},
		},
	}

	err := Initialize(cfg)
	if err != nil {
		t.Fatalf("failed to initialize global logger: %v", err)
	}
	defer CloseGlobal()

	logger := GetStoreLogger()

	if globalManager != nil {
		globalManager.SetPackageLevel("store", "debug")
	}

	logger.Debug().Msg("debug message after level change")
	logger.Info().Msg("info message after level change")

	logger2 := GetStoreLogger()
	logger2.Debug().Msg("debug message from new logger instance")
}

func BenchmarkStaticLoggerGetters(b *testing.B) {
	cfg := &config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{
			{Type: "console", Enabled: true},
		},
	}

	err := Initialize(cfg)
	if err != nil {
		b.Fatalf("failed to initialize global logger: %v", err)
	}
	defer CloseGlobal()

	b.Run("GetStoreLogger", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = GetStoreLogger()
		}
	})

	b.Run("GetDispatcherLogger", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = GetDispatcherLogger()
		}
	})

	b.Run("Direct_GetLogger", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = GetLogger("store")
		}
	})
}
