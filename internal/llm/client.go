// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm implements a unified HTTP client for chat and legacy
// single entry point that can drive either an OpenAI-shaped
// /chat/completions backend or a legacy /completions backend, plus the
// tokenizer chat templates and JSON-extraction heuristic the built-in
// LLM steps (internal/steps) depend on.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/the-crypt-keeper/scribe/internal/config"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Sampler mirrors the sampler fields the original project's request
// builder forwards to the backend verbatim.
type Sampler struct {
	Temperature       float64 `json:"temperature"`
	MinP              float64 `json:"min_p,omitempty"`
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
	MaxTokens         int     `json:"max_tokens"`
	MinTokens         int     `json:"min_tokens,omitempty"`
}

// RequestOptions configures a single LLM call. Exactly one of Messages
// (chat backend) or Prompt (legacy backend, pre-rendered by a Tokenizer)
// should be set.
type RequestOptions struct {
	Model    string
	Messages []Message
	Prompt   string
	Sampler  Sampler
	N        int
	// Extra carries schema-mode fields (response_format, guided_json,
	// json_schema) that LLMExtraction adds on top of the sampler.
	Extra map[string]any
}

// Client is the unified chat/completion HTTP client. It has no
// client-side retry logic — callers (steps) decide
// whether a failure is retryable by aborting the claim and letting the
// dispatcher pick the id back up on a later pass.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient builds a Client from the configured base-URL and API-key
// environment variable names.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	baseURL := os.Getenv(cfg.BaseURLEnv)
	if baseURL == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.BaseURLEnv)
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     os.Getenv(cfg.APIKeyEnv),
	}, nil
}

// Complete performs either a chat or legacy completion call, depending
// on whether opts.Messages or opts.Prompt is set, and returns every
// completion string the backend produced: one request with n=N when the
// backend honors server-side n, topped up with one sequential
// single-completion request per completion the backend didn't return.
func (c *Client) Complete(ctx context.Context, opts RequestOptions) ([]string, error) {
	path := "/chat/completions"
	if len(opts.Messages) == 0 {
		if opts.Prompt == "" {
			return nil, fmt.Errorf("llm request: neither Messages nor Prompt set")
		}
		path = "/completions"
	}

	n := opts.N
	if n <= 0 {
		n = 1
	}

	results, err := c.request(ctx, path, opts, n)
	if err != nil {
		return nil, err
	}

	for len(results) < n {
		one, err := c.request(ctx, path, opts, 1)
		if err != nil {
			return nil, err
		}
		results = append(results, one...)
	}

	return results[:n], nil
}

func (c *Client) request(ctx context.Context, path string, opts RequestOptions, n int) ([]string, error) {
	payload := map[string]any{
		"model":       opts.Model,
		"temperature": opts.Sampler.Temperature,
		"max_tokens":  opts.Sampler.MaxTokens,
		"n":           n,
	}
	if opts.Sampler.MinP > 0 {
		payload["min_p"] = opts.Sampler.MinP
	}
	if opts.Sampler.RepetitionPenalty > 0 {
		payload["repetition_penalty"] = opts.Sampler.RepetitionPenalty
	}
	if opts.Sampler.MinTokens > 0 {
		payload["min_tokens"] = opts.Sampler.MinTokens
	}
	for k, v := range opts.Extra {
		payload[k] = v
	}

	if len(opts.Messages) > 0 {
		payload["messages"] = opts.Messages
	} else {
		payload["prompt"] = opts.Prompt
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm backend returned %d: %s", resp.StatusCode, string(respBody))
	}

	return parseCompletions(respBody)
}

// parseCompletions handles both response shapes the original project
// supported: OpenAI's choices[].message.content (chat) or
// choices[].text (legacy completion), falling back to a bare "content"
// field some minimal backends return.
func parseCompletions(body []byte) ([]string, error) {
	var generic struct {
		Choices []struct {
			Message *struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, fmt.Errorf("parse llm response: %w", err)
	}

	if len(generic.Choices) > 0 {
		out := make([]string, 0, len(generic.Choices))
		for _, choice := range generic.Choices {
			switch {
			case choice.Message != nil:
				out = append(out, choice.Message.Content)
			default:
				out = append(out, choice.Text)
			}
		}
		return out, nil
	}

	if generic.Content != "" {
		return []string{generic.Content}, nil
	}

	return nil, fmt.Errorf("llm response had no choices and no content field")
}
