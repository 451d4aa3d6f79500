// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"bytes"
	"fmt"
	"text/template"
)

// promptOnlyTemplate wraps a single pre-parsed bare-var template for
// steps (like Text2Image) that render one string field rather than a
// full chat message list.
type promptOnlyTemplate struct {
	tmpl *template.Template
}

func newPromptOnlyTemplate(name, raw string) (*promptOnlyTemplate, error) {
	tmpl, err := template.New(name).Parse(rewriteBareVars(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	return &promptOnlyTemplate{tmpl: tmpl}, nil
}

func (p *promptOnlyTemplate) render(vars map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
