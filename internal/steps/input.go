// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package steps

import (
	"encoding/json"
	"fmt"
)

// decodeInput turns a step's input — the JSON text a prior step
// committed, handed down by pipeline.BaseStep.PendingInputs as a string
// — into a plain map so templates and prompt builders can look up
// fields by name. A nil/empty input (generators have none) decodes to
// an empty map.
func decodeInput(input any) (map[string]any, error) {
	switch v := input.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		if v == "" {
			return map[string]any{}, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("decode step input: %w", err)
		}
		return m, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("decode step input: unsupported input type %T", input)
	}
}

// stringField fetches a string field from a decoded input map, falling
// back to def if absent or the wrong type.
func stringField(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}
