package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalCallIDs converts call ids to JSON TEXT for storage.
// A nil slice is stored as "[]" so the column is never NULL.
func marshalCallIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ids); err != nil {
		return "", fmt.Errorf("marshal call ids: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalCallIDs parses JSON TEXT into call ids.
// An empty array decodes to nil, matching lamps loaded without callIds.
func unmarshalCallIDs(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal call ids: %w", err)
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
