// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"text/template"

	"github.com/the-crypt-keeper/scribe/internal/pipeline"
)

// bareVarPattern rewrites the original project's Jinja-style "{{x}}"
// placeholders into text/template's "{{index . "x"}}" so a template can
// reference input fields by bare name instead of requiring the Go
// "{{.x}}" dotted form.
var bareVarPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

func rewriteBareVars(tmpl string) string {
	return bareVarPattern.ReplaceAllString(tmpl, `{{index . "$1"}}`)
}

// ExpandTemplate renders params["template"] against the step's decoded
// input dict.
type ExpandTemplate struct {
	pipeline.BaseStep
	tmpl *template.Template
}

// NewExpandTemplate builds an ExpandTemplate step.
func NewExpandTemplate(name, inKey, outKey string, params pipeline.ParamBundle) (pipeline.Step, error) {
	raw := params.String("template", "")
	if raw == "" {
		return nil, fmt.Errorf("expand_template %q: params.template is required", name)
	}
	tmpl, err := template.New(name).Parse(rewriteBareVars(raw))
	if err != nil {
		return nil, fmt.Errorf("expand_template %q: parse template: %w", name, err)
	}
	return &ExpandTemplate{
		BaseStep: pipeline.NewBaseStep(name, inKey, outKey, params),
		tmpl:     tmpl,
	}, nil
}

func (e *ExpandTemplate) Run(ctx context.Context, id string, input any) (payload, meta any, err error) {
	vars, err := decodeInput(input)
	if err != nil {
		return nil, nil, fmt.Errorf("expand_template %q: %w", e.Name(), err)
	}

	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, vars); err != nil {
		return nil, nil, fmt.Errorf("expand_template %q: render: %w", e.Name(), err)
	}

	return map[string]any{"text": buf.String()}, map[string]any{}, nil
}
