// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"context"
	"fmt"

	"github.com/the-crypt-keeper/scribe/internal/config"
	"github.com/the-crypt-keeper/scribe/internal/llm"
	"github.com/the-crypt-keeper/scribe/internal/pipeline"
)

// Text2Image renders params["prompt"] (a bare-var template, per
// ExpandTemplate) against the step's input and commits the backend's
// base64-encoded image.
type Text2Image struct {
	pipeline.BaseStep
	client *llm.ImageClient
	prompt *promptOnlyTemplate
	negative *promptOnlyTemplate
	width, height, steps int
}

// NewText2ImageFactory returns a pipeline.Factory bound to a shared
// llm.ImageClient and the configured image defaults.
func NewText2ImageFactory(client *llm.ImageClient, defaults config.ImageConfig) pipeline.Factory {
	return func(name, inKey, outKey string, params pipeline.ParamBundle) (pipeline.Step, error) {
		raw := params.String("prompt", "")
		if raw == "" {
			return nil, fmt.Errorf("text2image %q: params.prompt is required", name)
		}
		prompt, err := newPromptOnlyTemplate(name+".prompt", raw)
		if err != nil {
			return nil, fmt.Errorf("text2image %q: %w", name, err)
		}

		var negative *promptOnlyTemplate
		if negRaw := params.String("negative_prompt", ""); negRaw != "" {
			negative, err = newPromptOnlyTemplate(name+".negative_prompt", negRaw)
			if err != nil {
				return nil, fmt.Errorf("text2image %q: %w", name, err)
			}
		}

		return &Text2Image{
			BaseStep: pipeline.NewBaseStep(name, inKey, outKey, params),
			client:   client,
			prompt:   prompt,
			negative: negative,
			width:    params.Int("width", defaults.DefaultWidth),
			height:   params.Int("height", defaults.DefaultHeight),
			steps:    params.Int("steps", defaults.DefaultSteps),
		}, nil
	}
}

func (s *Text2Image) Run(ctx context.Context, id string, input any) (payload, meta any, err error) {
	vars, err := decodeInput(input)
	if err != nil {
		return nil, nil, fmt.Errorf("text2image %q: %w", s.Name(), err)
	}

	prompt, err := s.prompt.render(vars)
	if err != nil {
		return nil, nil, fmt.Errorf("text2image %q: render prompt: %w", s.Name(), err)
	}

	var negative string
	if s.negative != nil {
		negative, err = s.negative.render(vars)
		if err != nil {
			return nil, nil, fmt.Errorf("text2image %q: render negative_prompt: %w", s.Name(), err)
		}
	}

	image, err := s.client.Txt2Img(ctx, llm.Txt2ImgOptions{
		Prompt:         prompt,
		NegativePrompt: negative,
		Width:          s.width,
		Height:         s.height,
		Steps:          s.steps,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("text2image %q: %w", s.Name(), err)
	}

	return map[string]any{"image": image},
		map[string]any{"width": s.width, "height": s.height, "steps": s.steps},
		nil
}
