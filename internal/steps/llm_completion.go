// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/the-crypt-keeper/scribe/internal/llm"
	"github.com/the-crypt-keeper/scribe/internal/pipeline"
	"github.com/the-crypt-keeper/scribe/internal/store"
)

// promptTemplates holds the optional system/user message templates an
// LLM-family step renders against its decoded input before calling the
// backend.
type promptTemplates struct {
	system *template.Template
	user   *template.Template
}

func newPromptTemplates(name string, params pipeline.ParamBundle) (*promptTemplates, error) {
	pt := &promptTemplates{}
	if raw := params.String("system", ""); raw != "" {
		t, err := template.New(name + ".system").Parse(rewriteBareVars(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: parse system template: %w", name, err)
		}
		pt.system = t
	}

	userRaw := params.String("user", "{{index . \"text\"}}")
	t, err := template.New(name + ".user").Parse(rewriteBareVars(userRaw))
	if err != nil {
		return nil, fmt.Errorf("%s: parse user template: %w", name, err)
	}
	pt.user = t
	return pt, nil
}

func (pt *promptTemplates) render(vars map[string]any) ([]llm.Message, error) {
	var messages []llm.Message
	if pt.system != nil {
		var buf bytes.Buffer
		if err := pt.system.Execute(&buf, vars); err != nil {
			return nil, fmt.Errorf("render system template: %w", err)
		}
		messages = append(messages, llm.Message{Role: "system", Content: buf.String()})
	}

	var buf bytes.Buffer
	if err := pt.user.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("render user template: %w", err)
	}
	messages = append(messages, llm.Message{Role: "user", Content: buf.String()})
	return messages, nil
}

// samplerFromParams builds an llm.Sampler starting from defaults and
// applying any per-step overrides, using the documented defaults
// (temperature 1.0, min_p 0.05, repetition_penalty 1.1, max_tokens 2048,
// min_tokens 10).
func samplerFromParams(defaults llm.Sampler, params pipeline.ParamBundle) llm.Sampler {
	return llm.Sampler{
		Temperature:       params.Float("temperature", defaults.Temperature),
		MinP:              params.Float("min_p", defaults.MinP),
		RepetitionPenalty: params.Float("repetition_penalty", defaults.RepetitionPenalty),
		MaxTokens:         params.Int("max_tokens", defaults.MaxTokens),
		MinTokens:         params.Int("min_tokens", defaults.MinTokens),
	}
}

// LLMCompletion calls the configured chat/completion backend with
// rendered system/user messages and commits the first completion's text.
type LLMCompletion struct {
	pipeline.BaseStep
	client    *llm.Client
	resolver  llm.Resolver
	model     string
	tokenizer string
	sampler   llm.Sampler
	prompts   *promptTemplates
	modelMax  int
}

// NewLLMCompletionFactory returns a pipeline.Factory bound to a shared
// llm.Client and tokenizer resolver, to be registered once per process.
func NewLLMCompletionFactory(client *llm.Client, resolver llm.Resolver, defaults llm.Sampler) pipeline.Factory {
	return func(name, inKey, outKey string, params pipeline.ParamBundle) (pipeline.Step, error) {
		model := params.String("model", "")
		if model == "" {
			return nil, fmt.Errorf("llm_completion %q: params.model is required", name)
		}
		prompts, err := newPromptTemplates(name, params)
		if err != nil {
			return nil, err
		}
		return &LLMCompletion{
			BaseStep:  pipeline.NewBaseStep(name, inKey, outKey, params),
			client:    client,
			resolver:  resolver,
			model:     model,
			tokenizer: params.String("tokenizer", ""),
			sampler:   samplerFromParams(defaults, params),
			prompts:   prompts,
			modelMax:  params.Int("model_max", 0),
		}, nil
	}
}

func (s *LLMCompletion) PendingInputs(ctx context.Context, st store.Store, inFlight map[string]bool) ([]pipeline.WorkItem, error) {
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

func (s *LLMCompletion) Run(ctx context.Context, id string, input any) (payload, meta any, err error) {
	vars, err := decodeInput(input)
	if err != nil {
		return nil, nil, fmt.Errorf("llm_completion %q: %w", s.Name(), err)
	}

	messages, err := s.prompts.render(vars)
	if err != nil {
		return nil, nil, fmt.Errorf("llm_completion %q: %w", s.Name(), err)
	}

	opts := llm.RequestOptions{Model: s.model, Sampler: s.sampler, N: 1}
	if s.tokenizer != "" {
		tok, err := llm.BuildTokenizer(s.tokenizer, s.resolver)
		if err != nil {
			return nil, nil, fmt.Errorf("llm_completion %q: %w", s.Name(), err)
		}
		prompt, err := tok.Render(messages)
		if err != nil {
			return nil, nil, fmt.Errorf("llm_completion %q: render prompt: %w", s.Name(), err)
		}
		opts.Prompt = prompt
	} else {
		opts.Messages = messages
	}

	completions, err := s.client.Complete(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("llm_completion %q: %w", s.Name(), err)
	}
	if len(completions) == 0 {
		return nil, nil, fmt.Errorf("llm_completion %q: backend returned no completions", s.Name())
	}

	return map[string]any{"text": completions[0]}, s.meta(len(completions)), nil
}

// meta builds the {model, tokenizer, sampler, n, timestamp} record
// LLMCompletion commits alongside its output.
func (s *LLMCompletion) meta(n int) map[string]any {
	return map[string]any{
		"model":     s.model,
		"tokenizer": s.tokenizer,
		"sampler":   s.sampler,
		"n":         n,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}
