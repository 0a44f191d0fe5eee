package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// parsePayload parses a --data value: inline JSON, or @path to read JSON
// from a file ("@-" reads stdin is not supported; pipe to a file instead).
func parsePayload(data string) (map[string]any, error) {
	if strings.TrimSpace(data) == "" {
		return nil, fmt.Errorf("payload is empty")
	}

	raw := []byte(data)
	if strings.HasPrefix(data, "@") {
		content, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		raw = content
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse payload JSON: %w", err)
	}

	return payload, nil
}
