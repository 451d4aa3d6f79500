// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTokenizer_Vicuna(t *testing.T) {
	tok, err := BuildTokenizer("internal:vicuna", nil)
	require.NoError(t, err)

	rendered, err := tok.Render([]Message{
		{Role: "system", Content: "Be helpful."},
		{Role: "user", Content: "Hi"},
	})
	require.NoError(t, err)
	require.Contains(t, rendered, "SYSTEM: Be helpful.")
	require.Contains(t, rendered, "USER: Hi")
	require.True(t, strings.HasSuffix(rendered, "ASSISTANT:"))
}

func TestBuildTokenizer_VicunaDefaultsSystemWhenOmitted(t *testing.T) {
	tok, err := BuildTokenizer("internal:vicuna", nil)
	require.NoError(t, err)

	rendered, err := tok.Render([]Message{{Role: "user", Content: "Hi"}})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rendered, "SYSTEM: You are a helpful assistant.\n\n"))
	require.Contains(t, rendered, "USER: Hi")
	require.True(t, strings.HasSuffix(rendered, "ASSISTANT:"))
}

func TestBuildTokenizer_Alpaca(t *testing.T) {
	tok, err := BuildTokenizer("internal:alpaca", nil)
	require.NoError(t, err)

	rendered, err := tok.Render([]Message{
		{Role: "user", Content: "Summarize this."},
	})
	require.NoError(t, err)
	require.Contains(t, rendered, "### Instruction:")
	require.Contains(t, rendered, "Summarize this.")
	require.True(t, strings.HasSuffix(rendered, "### Response:\n"))
}

func TestBuildTokenizer_UnknownFallsBackToResolver(t *testing.T) {
	called := false
	resolver := func(name string) (Tokenizer, error) {
		called = true
		require.Equal(t, "external:llama3", name)
		return vicunaTokenizer{}, nil
	}

	tok, err := BuildTokenizer("external:llama3", resolver)
	require.NoError(t, err)
	require.NotNil(t, tok)
	require.True(t, called)
}

func TestBuildTokenizer_DefaultResolverRejectsUnknown(t *testing.T) {
	_, err := BuildTokenizer("external:mystery", nil)
	require.Error(t, err)
}
