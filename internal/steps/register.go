// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"github.com/the-crypt-keeper/scribe/internal/config"
	"github.com/the-crypt-keeper/scribe/internal/llm"
	"github.com/the-crypt-keeper/scribe/internal/pipeline"
)

// Backends bundles the shared clients every LLM-family step kind needs,
// built once per process and handed to Register.
type Backends struct {
	LLM             *llm.Client
	Image           *llm.ImageClient
	TokenizerLookup llm.Resolver
	Sampler         llm.Sampler
	ImageDefaults   config.ImageConfig
}

// Register wires every built-in step kind into reg.
// Generate and ExpandTemplate need no backend and are always
// registered; LLMCompletion/LLMExtraction register only if b.LLM is
// set, and Text2Image only if b.Image is set, so a process that never
// configures those environment variables can still run the rest of a
// pipeline.
func Register(reg *pipeline.Registry, b Backends) {
	reg.Register("Generate", NewGenerate)
	reg.Register("ExpandTemplate", NewExpandTemplate)

	if b.LLM != nil {
		reg.Register("LLMCompletion", NewLLMCompletionFactory(b.LLM, b.TokenizerLookup, b.Sampler))
		reg.Register("LLMExtraction", NewLLMExtractionFactory(b.LLM, b.TokenizerLookup))
	}
	if b.Image != nil {
		reg.Register("Text2Image", NewText2ImageFactory(b.Image, b.ImageDefaults))
	}
}
