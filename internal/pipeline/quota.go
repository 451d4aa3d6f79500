// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/the-crypt-keeper/scribe/internal/store"
)

// CountCommittedByModel counts committed rows under outKey whose meta
// carries a "model" field equal to model. LLM-family steps use this to
// implement model_max back-pressure: once a step's outKey holds
// model_max committed (or in-flight) outputs for its model, no further
// work is submitted for that step. Rows under other keys are not counted.
func CountCommittedByModel(ctx context.Context, st store.Store, outKey, model string) (int, error) {
	recs, err := st.Find(ctx, outKey, "")
	if err != nil {
		return 0, fmt.Errorf("count committed by model: %w", err)
	}
	count := 0
	for _, rec := range recs {
		if rec.Meta == nil {
			continue
		}
		var meta struct {
			Model string `json:"model"`
		}
		if err := json.Unmarshal([]byte(*rec.Meta), &meta); err != nil {
			continue
		}
		if meta.Model == model {
			count++
		}
	}
	return count, nil
}

// LimitByModelQuota trims items so that committed+inFlight for the given
// model never exceeds modelMax. modelMax <= 0 disables the quota
// entirely (unlimited).
func LimitByModelQuota(items []WorkItem, modelMax, alreadyCommitted, alreadyInFlight int) []WorkItem {
	if modelMax <= 0 {
		return items
	}
	budget := modelMax - alreadyCommitted - alreadyInFlight
	if budget <= 0 {
		return nil
	}
	if budget >= len(items) {
		return items
	}
	return items[:budget]
}
