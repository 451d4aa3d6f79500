// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/the-crypt-keeper/scribe/internal/config"
)

func TestImageClient_Txt2Img(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sdapi/v1/txt2img", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "a cat", req["prompt"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"images": []string{"base64data"}})
	}))
	defer srv.Close()

	t.Setenv("TEST_IMAGE_API_URL", srv.URL)
	cfg := &config.ImageConfig{BaseURLEnv: "TEST_IMAGE_API_URL", RequestTimeout: 5 * time.Second, DefaultWidth: 512, DefaultHeight: 512, DefaultSteps: 20}

	c, err := NewImageClient(cfg)
	require.NoError(t, err)

	img, err := c.Txt2Img(context.Background(), Txt2ImgOptions{Prompt: "a cat", Width: 512, Height: 512, Steps: 20})
	require.NoError(t, err)
	require.Equal(t, "base64data", img)
}

func TestImageClient_NoImagesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"images": []string{}})
	}))
	defer srv.Close()

	t.Setenv("TEST_IMAGE_API_URL_2", srv.URL)
	cfg := &config.ImageConfig{BaseURLEnv: "TEST_IMAGE_API_URL_2", RequestTimeout: 5 * time.Second}
	c, err := NewImageClient(cfg)
	require.NoError(t, err)

	_, err = c.Txt2Img(context.Background(), Txt2ImgOptions{Prompt: "x"})
	require.Error(t, err)
}
