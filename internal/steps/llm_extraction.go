// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/the-crypt-keeper/scribe/internal/llm"
	"github.com/the-crypt-keeper/scribe/internal/pipeline"
	"github.com/the-crypt-keeper/scribe/internal/store"
)

// buildSchemaExtra translates a step's schema_mode param into the
// backend-specific request fields that ask for constrained/JSON output,
// per schema_mode.
func buildSchemaExtra(mode string, schema map[string]any) (map[string]any, error) {
	switch mode {
	case "", "none":
		return nil, nil
	case "openai-json":
		return map[string]any{"response_format": map[string]any{"type": "json_object"}}, nil
	case "openai-schema":
		if schema == nil {
			return nil, fmt.Errorf("schema_mode openai-schema requires params.schema_json")
		}
		return map[string]any{"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "extraction",
				"schema": schema,
				"strict": true,
			},
		}}, nil
	case "vllm":
		if schema == nil {
			return nil, fmt.Errorf("schema_mode vllm requires params.schema_json")
		}
		return map[string]any{"guided_json": schema}, nil
	case "llama":
		if schema == nil {
			return nil, fmt.Errorf("schema_mode llama requires params.schema_json")
		}
		return map[string]any{"json_schema": schema}, nil
	default:
		return nil, fmt.Errorf("unsupported schema_mode %q", mode)
	}
}

// LLMExtraction behaves like LLMCompletion but forces deterministic
// sampling, optionally steers the backend towards JSON output via
// schema_mode, and runs the completion through llm.ExtractJSON rather
// than committing raw text.
type LLMExtraction struct {
	pipeline.BaseStep
	client    *llm.Client
	resolver  llm.Resolver
	model     string
	tokenizer string
	sampler   llm.Sampler
	prompts   *promptTemplates
	modelMax  int
	extra     map[string]any
	firstKey  bool
}

// NewLLMExtractionFactory returns a pipeline.Factory bound to a shared
// llm.Client and tokenizer resolver, to be registered once per process.
func NewLLMExtractionFactory(client *llm.Client, resolver llm.Resolver) pipeline.Factory {
	return func(name, inKey, outKey string, params pipeline.ParamBundle) (pipeline.Step, error) {
		model := params.String("model", "")
		if model == "" {
			return nil, fmt.Errorf("llm_extraction %q: params.model is required", name)
		}

		// params.prompt is the extraction instruction; when no explicit
		// user template is given, prepend it to the input text the same
		// way the default user template already renders that text.
		templateParams := params
		if _, hasUser := params["user"]; !hasUser {
			if instruction := params.String("prompt", ""); instruction != "" {
				templateParams = params.Clone()
				templateParams["user"] = instruction + "\n\n{{index . \"text\"}}"
			}
		}
		prompts, err := newPromptTemplates(name, templateParams)
		if err != nil {
			return nil, err
		}

		var schema map[string]any
		if raw := params.String("schema_json", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &schema); err != nil {
				return nil, fmt.Errorf("llm_extraction %q: params.schema_json is not a JSON object: %w", name, err)
			}
		}
		extra, err := buildSchemaExtra(params.String("schema_mode", "none"), schema)
		if err != nil {
			return nil, fmt.Errorf("llm_extraction %q: %w", name, err)
		}

		// Deterministic sampling: extraction wants the model's single best
		// reading of the input, not sampled variety, so temperature is
		// pinned to 0, and a larger default token budget since structured
		// output tends to run longer than prose.
		defaults := llm.Sampler{Temperature: 0, MaxTokens: params.Int("max_tokens", 3000)}
		sampler := samplerFromParams(defaults, params)
		sampler.Temperature = 0

		return &LLMExtraction{
			BaseStep:  pipeline.NewBaseStep(name, inKey, outKey, params),
			client:    client,
			resolver:  resolver,
			model:     model,
			tokenizer: params.String("tokenizer", ""),
			sampler:   sampler,
			prompts:   prompts,
			modelMax:  params.Int("model_max", 0),
			extra:     extra,
			firstKey:  params.Bool("first_key", false),
		}, nil
	}
}

func (s *LLMExtraction) PendingInputs(ctx context.Context, st store.Store, inFlight map[string]bool) ([]pipeline.WorkItem, error) {
	items, err := s.BaseStep.PendingInputs(ctx, st, inFlight)
	if err != nil {
		return nil, err
	}
	if s.modelMax <= 0 {
		return items, nil
	}
	committed, err := pipeline.CountCommittedByModel(ctx, st, s.OutKey(), s.model)
	if err != nil {
		return nil, err
	}
	return pipeline.LimitByModelQuota(items, s.modelMax, committed, len(inFlight)), nil
}

func (s *LLMExtraction) Run(ctx context.Context, id string, input any) (payload, meta any, err error) {
	vars, err := decodeInput(input)
	if err != nil {
		return nil, nil, fmt.Errorf("llm_extraction %q: %w", s.Name(), err)
	}

	messages, err := s.prompts.render(vars)
	if err != nil {
		return nil, nil, fmt.Errorf("llm_extraction %q: %w", s.Name(), err)
	}

	opts := llm.RequestOptions{Model: s.model, Sampler: s.sampler, N: 1, Extra: s.extra}
	if s.tokenizer != "" {
		tok, err := llm.BuildTokenizer(s.tokenizer, s.resolver)
		if err != nil {
			return nil, nil, fmt.Errorf("llm_extraction %q: %w", s.Name(), err)
		}
		prompt, err := tok.Render(messages)
		if err != nil {
			return nil, nil, fmt.Errorf("llm_extraction %q: render prompt: %w", s.Name(), err)
		}
		opts.Prompt = prompt
	} else {
		opts.Messages = messages
	}

	completions, err := s.client.Complete(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("llm_extraction %q: %w", s.Name(), err)
	}
	if len(completions) == 0 {
		return nil, nil, fmt.Errorf("llm_extraction %q: backend returned no completions", s.Name())
	}

	data, err := llm.ExtractJSON(completions[0], s.firstKey)
	if err != nil {
		return nil, nil, fmt.Errorf("llm_extraction %q: %w", s.Name(), err)
	}

	return data, s.meta(len(completions)), nil
}

// meta mirrors LLMCompletion's {model, tokenizer, sampler, n, timestamp}
// record; extraction is "like LLMCompletion but constrained", not a
// different reporting shape.
func (s *LLMExtraction) meta(n int) map[string]any {
	return map[string]any{
		"model":     s.model,
		"tokenizer": s.tokenizer,
		"sampler":   s.sampler,
		"n":         n,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}
