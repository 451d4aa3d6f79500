// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"fmt"
	"strings"
)

// slashEscape is the sentinel substituted for a literal "//" (escaped
// slash) before splitting a --step argument on "/". It must not appear
// in any legitimate step spec text.
const slashEscape = "\x00"

// Definition is one step's declared shape in a registered pipeline: the
// kind to build (looked up in a Registry), its wiring (inkey/outkey),
// and its default params. A CLI --step clause overrides a subset of
// these params by name.
type Definition struct {
	Name   string
	Kind   string
	InKey  string
	OutKey string
	Params ParamBundle
}

// Clone returns a copy safe to mutate with CLI overrides.
func (d Definition) Clone() Definition {
	return Definition{
		Name:   d.Name,
		Kind:   d.Kind,
		InKey:  d.InKey,
		OutKey: d.OutKey,
		Params: d.Params.Clone(),
	}
}

// Pipeline is an ordered, named list of step definitions, the unit a
// pipeline registration (cmd/scribe/examples.go) contributes.
type Pipeline struct {
	Name  string
	Steps []Definition
}

// ParseStepSpec parses a single --step CLI argument of the form
// "NAME[/key=value]..." into a step name and an override ParamBundle. A
// literal "/" inside a value is written "//" to distinguish it from the
// key=value separator.
func ParseStepSpec(spec string) (name string, overrides ParamBundle, err error) {
	if spec == "" {
		return "", nil, fmt.Errorf("empty --step argument")
	}

	escaped := strings.ReplaceAll(spec, "//", slashEscape)
	segments := strings.Split(escaped, "/")

	name = strings.ReplaceAll(segments[0], slashEscape, "/")
	if name == "" {
		return "", nil, fmt.Errorf("--step argument %q has an empty step name", spec)
	}

	overrides = make(ParamBundle)
	for _, seg := range segments[1:] {
		unescaped := strings.ReplaceAll(seg, slashEscape, "/")
		k, v, ok := strings.Cut(unescaped, "=")
		if !ok {
			return "", nil, fmt.Errorf("--step argument %q: malformed key=value segment %q", spec, unescaped)
		}
		overrides[k] = v
	}
	return name, overrides, nil
}

// Resolve finds the named step in a registered Pipeline and applies the
// parsed CLI overrides on top of its declared defaults.
func (p Pipeline) Resolve(name string, overrides ParamBundle) (Definition, error) {
	for _, def := range p.Steps {
		if def.Name == name {
			resolved := def.Clone()
			for k, v := range overrides {
				resolved.Params[k] = v
			}
			return resolved, nil
		}
	}
	return Definition{}, fmt.Errorf("pipeline %q has no step named %q", p.Name, name)
}
