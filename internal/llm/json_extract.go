// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON locates a JSON object embedded in free-form model output
// by taking the substring from the first '{' to the last '}' — the same
// heuristic the original project used, kept verbatim because model
// output commonly wraps JSON in prose or markdown fences.
//
// When firstKey is true, ExtractJSON returns the value of the object's
// first key (in source document order, not Go's unordered map
// iteration) rather than the wrapping object, unconditionally —
// matching the original's `data.get(list(data.keys())[0])`, which
// unwraps regardless of how many keys the object has. This is the
// bug-fixed form: the original returned the firstKey flag itself
// instead of the extracted data when that branch was taken.
func ExtractJSON(response string, firstKey bool) (any, error) {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	candidate := response[start : end+1]
	var data any
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		return nil, fmt.Errorf("invalid JSON in response: %w", err)
	}

	if firstKey {
		if obj, ok := data.(map[string]any); ok {
			if key, ok := firstObjectKey([]byte(candidate)); ok {
				return obj[key], nil
			}
		}
	}

	return data, nil
}

// firstObjectKey returns the name of the first key of a top-level JSON
// object, in source document order. encoding/json's Decoder emits
// tokens in document order even though the decoded map is unordered, so
// the object's opening brace is always immediately followed by its
// first key.
func firstObjectKey(raw []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", false
	}
	tok, err = dec.Token()
	if err != nil {
		return "", false
	}
	key, ok := tok.(string)
	return key, ok
}
