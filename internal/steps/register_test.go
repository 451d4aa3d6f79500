// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/the-crypt-keeper/scribe/internal/config"
	"github.com/the-crypt-keeper/scribe/internal/llm"
	"github.com/the-crypt-keeper/scribe/internal/pipeline"
)

func TestRegister_AlwaysRegistersBackendFreeKinds(t *testing.T) {
	reg := pipeline.NewRegistry()
	Register(reg, Backends{})

	kinds := reg.Kinds()
	require.Contains(t, kinds, "Generate")
	require.Contains(t, kinds, "ExpandTemplate")
	require.NotContains(t, kinds, "LLMCompletion")
	require.NotContains(t, kinds, "LLMExtraction")
	require.NotContains(t, kinds, "Text2Image")
}

func TestRegister_RegistersLLMAndImageKindsWhenBackendsProvided(t *testing.T) {
	t.Setenv("TEST_REGISTER_LLM_URL", "http://127.0.0.1:0")
	llmClient, err := llm.NewClient(&config.LLMConfig{BaseURLEnv: "TEST_REGISTER_LLM_URL", APIKeyEnv: "TEST_REGISTER_LLM_KEY", RequestTimeout: time.Second})
	require.NoError(t, err)

	t.Setenv("TEST_REGISTER_IMAGE_URL", "http://127.0.0.1:0")
	imageClient, err := llm.NewImageClient(&config.ImageConfig{BaseURLEnv: "TEST_REGISTER_IMAGE_URL", RequestTimeout: time.Second})
	require.NoError(t, err)

	reg := pipeline.NewRegistry()
	Register(reg, Backends{LLM: llmClient, Image: imageClient})

	kinds := reg.Kinds()
	require.Contains(t, kinds, "LLMCompletion")
	require.Contains(t, kinds, "LLMExtraction")
	require.Contains(t, kinds, "Text2Image")
}
