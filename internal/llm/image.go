// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

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

// ImageClient talks to an AUTOMATIC1111-compatible txt2img backend.
type ImageClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewImageClient builds an ImageClient from the configured base-URL
// environment variable.
func NewImageClient(cfg *config.ImageConfig) (*ImageClient, error) {
	baseURL := os.Getenv(cfg.BaseURLEnv)
	if baseURL == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.BaseURLEnv)
	}
	return &ImageClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// Txt2ImgOptions configures a single image generation call.
type Txt2ImgOptions struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
}

// Txt2Img posts to /sdapi/v1/txt2img and returns the first base64-encoded
// image string in the response.
func (c *ImageClient) Txt2Img(ctx context.Context, opts Txt2ImgOptions) (string, error) {
	payload := map[string]any{
		"prompt":          opts.Prompt,
		"negative_prompt": opts.NegativePrompt,
		"width":           opts.Width,
		"height":          opts.Height,
		"steps":           opts.Steps,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal txt2img request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build txt2img request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("txt2img request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read txt2img response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image backend returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse txt2img response: %w", err)
	}
	if len(parsed.Images) == 0 {
		return "", fmt.Errorf("txt2img response had no images")
	}
	return parsed.Images[0], nil
}
