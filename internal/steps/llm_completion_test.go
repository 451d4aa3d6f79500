// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/the-crypt-keeper/scribe/internal/config"
	"github.com/the-crypt-keeper/scribe/internal/llm"
	"github.com/the-crypt-keeper/scribe/internal/pipeline"
	"github.com/the-crypt-keeper/scribe/internal/store"
)

func newTestLLMClient(t *testing.T, handler http.HandlerFunc) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	envVar := "TEST_LLM_BASE_URL_" + t.Name()
	t.Setenv(envVar, srv.URL)
	cfg := &config.LLMConfig{BaseURLEnv: envVar, APIKeyEnv: "TEST_LLM_API_KEY_UNSET", RequestTimeout: 5 * time.Second}
	client, err := llm.NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestLLMCompletion_RendersPromptsAndCommitsText(t *testing.T) {
	var captured map[string]any
	client := newTestLLMClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "a tale of alchemy"}}},
		})
	})

	factory := NewLLMCompletionFactory(client, nil, llm.Sampler{Temperature: 1, MaxTokens: 2048})
	step, err := factory("idea", "prompts", "ideas", pipeline.ParamBundle{
		"model":  "gpt-test",
		"system": "You are a writer.",
		"user":   "Write about {{technique}}.",
	})
	require.NoError(t, err)

	payload, meta, err := step.Run(context.Background(), "id-1", `{"technique": "alchemy"}`)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"text": "a tale of alchemy"}, payload)
	metaMap := meta.(map[string]any)
	require.Equal(t, "gpt-test", metaMap["model"])
	require.Equal(t, "", metaMap["tokenizer"])
	require.Equal(t, llm.Sampler{Temperature: 1, MaxTokens: 2048}, metaMap["sampler"])
	require.Equal(t, 1, metaMap["n"])
	_, err = time.Parse(time.RFC3339, metaMap["timestamp"].(string))
	require.NoError(t, err)

	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].(map[string]any)["role"])
	require.Equal(t, "You are a writer.", messages[0].(map[string]any)["content"])
	require.Equal(t, "Write about alchemy.", messages[1].(map[string]any)["content"])
}

func TestLLMCompletion_MissingModelIsRejected(t *testing.T) {
	factory := NewLLMCompletionFactory(nil, nil, llm.Sampler{})
	_, err := factory("idea", "prompts", "ideas", pipeline.ParamBundle{})
	require.Error(t, err)
}

func TestLLMCompletion_NoCompletionsIsError(t *testing.T) {
	client := newTestLLMClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{}})
	})

	factory := NewLLMCompletionFactory(client, nil, llm.Sampler{Temperature: 1, MaxTokens: 100})
	step, err := factory("idea", "prompts", "ideas", pipeline.ParamBundle{"model": "gpt-test"})
	require.NoError(t, err)

	_, _, err = step.Run(context.Background(), "id-1", nil)
	require.Error(t, err)
}

func TestLLMCompletion_PendingInputs_ModelMaxQuota(t *testing.T) {
	cfg := &config.StoreConfig{DataDir: t.TempDir()}
	st, err := store.Open(cfg, "llm-quota-test")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := st.Claim(ctx, "prompts", id)
		require.NoError(t, err)
		require.NoError(t, st.Commit(ctx, "prompts", id, "x", map[string]string{}))
	}

	_, err = st.Claim(ctx, "ideas", "a")
	require.NoError(t, err)
	require.NoError(t, st.Commit(ctx, "ideas", "a", "done", map[string]string{"model": "gpt-test"}))

	factory := NewLLMCompletionFactory(nil, nil, llm.Sampler{Temperature: 1, MaxTokens: 100})
	step, err := factory("idea", "prompts", "ideas", pipeline.ParamBundle{"model": "gpt-test", "model_max": "2"})
	require.NoError(t, err)

	items, err := step.PendingInputs(ctx, st, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestLLMCompletion_UsesTokenizerForLegacyPrompt(t *testing.T) {
	var captured map[string]any
	client := newTestLLMClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"choices": []map[string]any{{"text": "ok"}}})
	})

	factory := NewLLMCompletionFactory(client, nil, llm.Sampler{Temperature: 1, MaxTokens: 100})
	step, err := factory("idea", "prompts", "ideas", pipeline.ParamBundle{
		"model":     "gpt-test",
		"user":      "hello",
		"tokenizer": "internal:vicuna",
	})
	require.NoError(t, err)

	_, _, err = step.Run(context.Background(), "id-1", nil)
	require.NoError(t, err)
	require.Contains(t, captured["prompt"], "USER: hello")
}
