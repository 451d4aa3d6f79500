// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package steps implements the built-in step kinds:
// Generate, ExpandTemplate, LLMCompletion, LLMExtraction and Text2Image.
// Each composes pipeline.BaseStep or pipeline.GeneratorBase and only
// adds Run (and, for the LLM-family kinds, a PendingInputs override for
// the per-model quota).
package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/the-crypt-keeper/scribe/internal/pipeline"
)

// Generate mints fresh ids up to the "max" param, seeding each one with
// an optional fixed payload declared by the "vars" param (a JSON object
// literal). Generators have no inkey: they are how a pipeline creates
// its first key.
type Generate struct {
	pipeline.GeneratorBase
	seed map[string]any
}

// NewGenerate builds a Generate step. params["max"] (default 1) is the
// target row count; params["vars"], if set, must be a JSON object and is
// committed verbatim as every generated id's payload.
func NewGenerate(name, _, outKey string, params pipeline.ParamBundle) (pipeline.Step, error) {
	seed := map[string]any{}
	if raw := params.String("vars", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &seed); err != nil {
			return nil, fmt.Errorf("generate %q: params.vars is not a JSON object: %w", name, err)
		}
	}
	return &Generate{
		GeneratorBase: pipeline.NewGeneratorBase(name, outKey, params),
		seed:          seed,
	}, nil
}

func (g *Generate) Run(ctx context.Context, id string, input any) (payload, meta any, err error) {
	return g.seed, map[string]any{}, nil
}
