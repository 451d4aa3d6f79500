// Copyright (C) 2025-2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"github.com/rs/zerolog"
)

// Static logger getters that map directly to config.yaml log.levels
// These ensure consistent logger names across the codebase

// GetStoreLogger returns a logger for the content-addressed store.
func GetStoreLogger() zerolog.Logger {
	return GetLogger("store")
}

// GetDispatcherLogger returns a logger for the pipeline dispatcher.
func GetDispatcherLogger() zerolog.Logger {
	return GetLogger("dispatcher")
}

// GetStepsLogger returns a logger for built-in step execution.
func GetStepsLogger() zerolog.Logger {
	return GetLogger("steps")
}

// GetLLMLogger returns a logger for the LLM/image HTTP client.
func GetLLMLogger() zerolog.Logger {
	return GetLogger("llm")
}

// GetCLILogger returns a logger for CLI command handling.
func GetCLILogger() zerolog.Logger {
	return GetLogger("cli")
}

// ForStep returns a dispatcher logger tagged with the step and record id
// a unit of work belongs to, so every log line from one Run call can be
// grepped out of an interleaved concurrent run.
func ForStep(step, id string) zerolog.Logger {
	return GetDispatcherLogger().With().Str("step", step).Str("id", id).Logger()
}
