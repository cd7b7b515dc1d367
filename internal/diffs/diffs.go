// Package diffs computes ordered field-level changes between two
// normalized document snapshots. The output is lossless: applying the
// entries to the before snapshot reconstructs the after snapshot.
package diffs

import (
	"reflect"
	"sort"
	"strconv"
)

// Kind tags what happened to one path.
type Kind string

const (
	KindNew     Kind = "new"
	KindDeleted Kind = "deleted"
	KindEdited  Kind = "edited"
	KindArray   Kind = "array"
)

// Entry is one change. Path segments are field names, with array indexes
// rendered as decimal strings. New entries carry only After, Deleted
// entries only Before. Array entries describe an added or removed element
// through exactly one nested Item; the pointer is omitted from
// serialization when absent because the store disallows nulls.
type Entry struct {
	Kind   Kind     `json:"kind"`
	Path   []string `json:"path,omitempty"`
	Before any      `json:"before,omitempty"`
	After  any      `json:"after,omitempty"`
	Index  int      `json:"index"`
	Item   *Entry   `json:"item,omitempty"`
}

// Diff compares two snapshots. Entries are emitted in pre-order over the
// object graph with map keys visited in sorted order, so the output is
// deterministic. Diff(a, a) is nil.
func Diff(before, after map[string]any) []Entry {
	var entries []Entry
	walkMaps(nil, before, after, &entries)
	return entries
}

func walkMaps(path []string, before, after map[string]any, entries *[]Entry) {
	keys := make([]string, 0, len(before)+len(after))
	seen := make(map[string]bool, len(before)+len(after))
	for key := range before {
		keys = append(keys, key)
		seen[key] = true
	}
	for key := range after {
		if !seen[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		keyPath := appendPath(path, key)
		bv, inBefore := before[key]
		av, inAfter := after[key]
		switch {
		case !inAfter:
			*entries = append(*entries, Entry{Kind: KindDeleted, Path: keyPath, Before: bv})
		case !inBefore:
			*entries = append(*entries, Entry{Kind: KindNew, Path: keyPath, After: av})
		default:
			walkValue(keyPath, bv, av, entries)
		}
	}
}

func walkValue(path []string, before, after any, entries *[]Entry) {
	switch bv := before.(type) {
	case map[string]any:
		if av, ok := after.(map[string]any); ok {
			walkMaps(path, bv, av, entries)
			return
		}
	case []any:
		if av, ok := after.([]any); ok {
			walkSlices(path, bv, av, entries)
			return
		}
	}
	if !reflect.DeepEqual(before, after) {
		*entries = append(*entries, Entry{Kind: KindEdited, Path: path, Before: before, After: after})
	}
}

// walkSlices compares arrays positionally: elements present on both
// sides diff in place, surplus elements become nested New/Deleted items.
func walkSlices(path []string, before, after []any, entries *[]Entry) {
	shared := len(before)
	if len(after) < shared {
		shared = len(after)
	}
	for i := 0; i < shared; i++ {
		walkValue(appendPath(path, strconv.Itoa(i)), before[i], after[i], entries)
	}
	for i := shared; i < len(after); i++ {
		*entries = append(*entries, Entry{
			Kind:  KindArray,
			Path:  path,
			Index: i,
			Item:  &Entry{Kind: KindNew, After: after[i]},
		})
	}
	for i := shared; i < len(before); i++ {
		*entries = append(*entries, Entry{
			Kind:  KindArray,
			Path:  path,
			Index: i,
			Item:  &Entry{Kind: KindDeleted, Before: before[i]},
		})
	}
}

func appendPath(path []string, segment string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, segment)
}
