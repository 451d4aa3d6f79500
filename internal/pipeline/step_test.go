// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/the-crypt-keeper/scribe/internal/config"
	"github.com/the-crypt-keeper/scribe/internal/store"
)

func TestGeneratorBase_PendingInputs_RespectsMax(t *testing.T) {
	cfg := &config.StoreConfig{DataDir: t.TempDir()}
	st, err := store.Open(cfg, "gen-test")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	g := NewGeneratorBase("gen", "seeds", ParamBundle{"max": "3"})

	items, err := g.PendingInputs(ctx, st, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)

	for _, item := range items {
		_, err := st.Claim(ctx, "seeds", item.ID)
		require.NoError(t, err)
		require.NoError(t, st.Commit(ctx, "seeds", item.ID, "p", "m"))
	}

	items, err = g.PendingInputs(ctx, st, nil)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestGeneratorBase_PendingInputs_AccountsForInFlight(t *testing.T) {
	cfg := &config.StoreConfig{DataDir: t.TempDir()}
	st, err := store.Open(cfg, "gen-test2")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	g := NewGeneratorBase("gen", "seeds", ParamBundle{"max": "3"})
	inFlight := map[string]bool{"a": true, "b": true}

	items, err := g.PendingInputs(ctx, st, inFlight)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestBaseStep_PendingInputs_SetDifference(t *testing.T) {
	cfg := &config.StoreConfig{DataDir: t.TempDir()}
	st, err := store.Open(cfg, "base-test")
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := st.Claim(ctx, "in", id)
		require.NoError(t, err)
		require.NoError(t, st.Commit(ctx, "in", id, id, map[string]string{}))
	}
	// "a" already has a committed output.
	_, err = st.Claim(ctx, "out", "a")
	require.NoError(t, err)
	require.NoError(t, st.Commit(ctx, "out", "a", "done", map[string]string{}))

	b := NewBaseStep("step", "in", "out", ParamBundle{})
	items, err := b.PendingInputs(ctx, st, map[string]bool{"b": true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "c", items[0].ID)
}

func TestBaseStep_QDepthDefault(t *testing.T) {
	b := NewBaseStep("step", "in", "out", ParamBundle{})
	require.Equal(t, 4, b.QDepth())

	b2 := NewBaseStep("step", "in", "out", ParamBundle{"qdepth": "1"})
	require.Equal(t, 1, b2.QDepth())
}

func TestBaseStep_ParallelDefault(t *testing.T) {
	b := NewBaseStep("step", "in", "out", ParamBundle{})
	require.Equal(t, 1, b.Parallel())

	b2 := NewBaseStep("step", "in", "out", ParamBundle{"parallel": "4"})
	require.Equal(t, 4, b2.Parallel())
}
