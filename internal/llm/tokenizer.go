// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"fmt"
	"strings"
)

// Tokenizer renders a chat message list into the single prompt string a
// legacy /completions backend expects.
type Tokenizer interface {
	Render(messages []Message) (string, error)
}

// defaultSystemPrompt is injected when a chat template needs a system
// turn but the step never set params.system, matching the original
// project's apply_chat_template defaulting behavior.
const defaultSystemPrompt = "You are a helpful assistant."

type vicunaTokenizer struct{}

func (vicunaTokenizer) Render(messages []Message) (string, error) {
	system := defaultSystemPrompt
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SYSTEM: %s\n\n", system)
	for _, m := range messages {
		switch m.Role {
		case "system":
			continue
		case "user":
			fmt.Fprintf(&b, "USER: %s\n\n", m.Content)
		case "assistant":
			fmt.Fprintf(&b, "ASSISTANT: %s\n\n", m.Content)
		default:
			return "", fmt.Errorf("internal:vicuna: unsupported role %q", m.Role)
		}
	}
	b.WriteString("ASSISTANT:")
	return b.String(), nil
}

type alpacaTokenizer struct{}

func (alpacaTokenizer) Render(messages []Message) (string, error) {
	var system, instruction strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			system.WriteString(m.Content)
		case "user":
			if instruction.Len() > 0 {
				instruction.WriteString("\n")
			}
			instruction.WriteString(m.Content)
		case "assistant":
			// Alpaca's single-turn template has no slot for prior
			// assistant turns; fold them into the instruction so
			// multi-turn input is never silently dropped.
			fmt.Fprintf(&instruction, "\n%s", m.Content)
		default:
			return "", fmt.Errorf("internal:alpaca: unsupported role %q", m.Role)
		}
	}

	var b strings.Builder
	if system.Len() > 0 {
		b.WriteString(system.String())
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "### Instruction:\n%s\n\n### Response:\n", instruction.String())
	return b.String(), nil
}

// builtins holds the two chat templates carried over from the original
// project; tokenizer libraries proper (HuggingFace-format vocab/merges)
// are out of scope.
var builtins = map[string]Tokenizer{
	"internal:vicuna": vicunaTokenizer{},
	"internal:alpaca": alpacaTokenizer{},
}

// Resolver looks up a tokenizer by name for anything not built in —
// e.g. an external HuggingFace tokenizer file. The default resolver
// always fails; callers needing external tokenizers supply their own.
type Resolver func(name string) (Tokenizer, error)

// DefaultResolver rejects every name; wiring in an external tokenizer
// implementation is left to the caller.
func DefaultResolver(name string) (Tokenizer, error) {
	return nil, fmt.Errorf("no external tokenizer resolver configured for %q", name)
}

// BuildTokenizer resolves a tokenizer name, checking the built-in
// templates before falling back to resolve.
func BuildTokenizer(name string, resolve Resolver) (Tokenizer, error) {
	if t, ok := builtins[name]; ok {
		return t, nil
	}
	if resolve == nil {
		resolve = DefaultResolver
	}
	t, err := resolve(name)
	if err != nil {
		return nil, fmt.Errorf("build tokenizer %q: %w", name, err)
	}
	return t, nil
}
