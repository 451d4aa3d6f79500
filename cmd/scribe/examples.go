// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/the-crypt-keeper/scribe/internal/pipeline"
)

//go:embed world_builder.yaml
var worldBuilderYAML []byte

type yamlStepDef struct {
	Name   string            `yaml:"name"`
	Kind   string            `yaml:"kind"`
	InKey  string            `yaml:"inkey"`
	OutKey string            `yaml:"outkey"`
	Params map[string]string `yaml:"params"`
}

type yamlPipeline struct {
	Name  string        `yaml:"name"`
	Steps []yamlStepDef `yaml:"steps"`
}

// worldBuilderPipeline loads the built-in illustrative pipeline — four
// steps chained entirely from built-in kinds (Generate, ExpandTemplate,
// LLMCompletion, LLMExtraction) — from its embedded YAML declaration.
func worldBuilderPipeline() pipeline.Pipeline {
	var parsed yamlPipeline
	if err := yaml.Unmarshal(worldBuilderYAML, &parsed); err != nil {
		panic(fmt.Sprintf("parse embedded world_builder.yaml: %v", err))
	}

	defs := make([]pipeline.Definition, 0, len(parsed.Steps))
	for _, s := range parsed.Steps {
		defs = append(defs, pipeline.Definition{
			Name:   s.Name,
			Kind:   s.Kind,
			InKey:  s.InKey,
			OutKey: s.OutKey,
			Params: pipeline.ParamBundle(s.Params),
		})
	}
	return pipeline.Pipeline{Name: parsed.Name, Steps: defs}
}
