// Package snapshot converts raw document field maps into comparison-safe
// snapshots: reference values become "collection/id" path strings and
// timestamp values become formatted date strings, so two snapshots of the
// same document are directly comparable regardless of whether they were
// built from Go values or decoded from the wire.
package snapshot

import (
	"time"

	"arena/sync/internal/store"
)

// TimeFormat is the rendering used for timestamp fields in history
// payloads and diffs.
const TimeFormat = time.RFC1123

// Normalize returns a comparison-safe copy of raw. Nil values are
// omitted, never copied, because the store forbids null fields. The
// input is not mutated.
func Normalize(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		if value == nil {
			continue
		}
		out[key] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case store.Ref:
		return v.Path()
	case store.Timestamp:
		return v.Time().Format(TimeFormat)
	case time.Time:
		return v.UTC().Format(TimeFormat)
	case map[string]any:
		if path, ok := refPath(v); ok {
			return path
		}
		if formatted, ok := timestampString(v); ok {
			return formatted
		}
		return Normalize(v)
	case []any:
		items := make([]any, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			items = append(items, normalizeValue(item))
		}
		return items
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	default:
		return v
	}
}

// refPath duck-types the wire shape of a document reference.
func refPath(m map[string]any) (string, bool) {
	collection, ok := m["collection"].(string)
	if !ok || collection == "" {
		return "", false
	}
	id, ok := m["id"].(string)
	if !ok || id == "" {
		return "", false
	}
	if len(m) != 2 {
		return "", false
	}
	return store.NewRef(collection, id).Path(), true
}

// timestampString duck-types the epoch-seconds marker of a stored
// timestamp.
func timestampString(m map[string]any) (string, bool) {
	raw, ok := m["_seconds"]
	if !ok {
		return "", false
	}
	var seconds int64
	switch s := raw.(type) {
	case float64:
		seconds = int64(s)
	case int64:
		seconds = s
	case int:
		seconds = int64(s)
	default:
		return "", false
	}
	return time.Unix(seconds, 0).UTC().Format(TimeFormat), true
}

// Ref reads a reference-valued field from a raw document, accepting both
// the Go-typed and the wire shape.
func Ref(fields map[string]any, key string) (store.Ref, bool) {
	switch v := fields[key].(type) {
	case store.Ref:
		return v, !v.IsZero()
	case map[string]any:
		if path, ok := refPath(v); ok {
			return mustParseRef(path)
		}
	case string:
		return mustParseRef(v)
	}
	return store.Ref{}, false
}

func mustParseRef(path string) (store.Ref, bool) {
	ref, ok := store.ParseRef(path)
	return ref, ok
}

// String reads a string-valued field, returning "" when absent.
func String(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// Bool reads a bool-valued field, returning false when absent.
func Bool(fields map[string]any, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

// Strings reads a string-list field, tolerating []any from the wire.
func Strings(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []string:
		return v
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
		return items
	}
	return nil
}
