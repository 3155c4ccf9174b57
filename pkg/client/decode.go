package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/Sternrassler/postview/pkg/record"
)

// decodeRecords parses a list payload. A body that is valid JSON but not an
// array yields no records and coerced=true. Invalid JSON is an error.
//
// Elements are decoded leniently: unknown fields are ignored, missing or
// mistyped fields fall back to zero values, and non-object elements are
// skipped.
func decodeRecords(body []byte) (records []record.Record, coerced bool, err error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, false, fmt.Errorf("decode response: invalid JSON")
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []record.Record{}, true, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}

	records = make([]record.Record, 0, len(elems))
	for _, raw := range elems {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			continue
		}
		records = append(records, record.Record{
			ID:      looseInt(fields["id"]),
			OwnerID: looseInt(fields["userId"]),
			Title:   looseString(fields["title"]),
			Body:    looseString(fields["body"]),
		})
	}

	return records, false, nil
}

func looseInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

// looseString returns strings as-is and other scalars in their JSON text
// form. null and absent fields give "".
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return text
}
