package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record field codec. Every list- or time-valued column is flattened to a
// string here and nowhere else; the repositories hand typed structs upward.

const recordTimeLayout = time.RFC3339Nano

func putTime(fields map[string]string, key string, t time.Time) {
	if t.IsZero() {
		fields[key] = ""
		return
	}
	fields[key] = t.UTC().Format(recordTimeLayout)
}

func getTime(fields map[string]string, key string) (time.Time, error) {
	raw := fields[key]
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(recordTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", key, err)
	}
	return t.UTC(), nil
}

func putJSON(fields map[string]string, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fields[key] = "[]"
		return
	}
	fields[key] = string(b)
}

func getAttachments(fields map[string]string, key string) ([]AttachmentRef, error) {
	raw := fields[key]
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var refs []AttachmentRef
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, fmt.Errorf("field %s: %w", key, err)
	}
	return refs, nil
}

func getChangeLog(fields map[string]string, key string) ([]ChangeEntry, error) {
	raw := fields[key]
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var log []ChangeEntry
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		return nil, fmt.Errorf("field %s: %w", key, err)
	}
	return log, nil
}

func getInt(fields map[string]string, key string) (int, error) {
	raw := fields[key]
	if raw == "" {
		return 0, nil
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, fmt.Errorf("field %s: %w", key, err)
	}
	return n, nil
}
