package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"arena/sync/internal/util"
)

// Memory is an in-process Store used by tests and local development. It
// round-trips every document through JSON so reads observe the same
// shapes a real backend would return.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string]map[string]any
	sink EventSink
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]map[string]any)}
}

// WithSink attaches a change-event sink, mirroring NewPostgresStore.
func (m *Memory) WithSink(sink EventSink) *Memory {
	m.sink = sink
	return m
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields, ok := m.data[collection][id]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return Doc{ID: id, Fields: copyFields(fields)}, nil
}

func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]Doc, 0)
	for id, fields := range m.data[collection] {
		if !matches(fields, q.Wheres) {
			continue
		}
		items = append(items, Doc{ID: id, Fields: copyFields(fields)})
	}

	sort.Slice(items, func(i, j int) bool {
		if q.OrderBy == "" {
			return items[i].ID < items[j].ID
		}
		a := fmt.Sprint(items[i].Fields[q.OrderBy])
		b := fmt.Sprint(items[j].Fields[q.OrderBy])
		if q.Desc {
			return a > b
		}
		return a < b
	})

	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items, nil
}

func (m *Memory) Add(ctx context.Context, collection string, fields map[string]any) (Ref, error) {
	id := util.NewID()
	if err := m.Set(ctx, collection, id, fields); err != nil {
		return Ref{}, err
	}
	return Ref{Collection: collection, ID: id}, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	return m.write(ctx, collection, id, fields, false)
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return m.write(ctx, collection, id, fields, true)
}

func (m *Memory) write(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	if err := checkFields(fields); err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}

	m.mu.Lock()
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	before := m.data[collection][id]

	data := copyFields(fields)
	if merge && before != nil {
		merged := copyFields(before)
		for key, value := range data {
			merged[key] = value
		}
		data = merged
	}
	m.data[collection][id] = data
	after := copyFields(data)
	m.mu.Unlock()

	if m.sink != nil {
		kind := Update
		if before == nil {
			kind = Create
		}
		event := Event{Collection: collection, Kind: kind, ID: id, Before: copyFields(before), After: after}
		if err := m.sink.Publish(ctx, event); err != nil {
			log.Printf("store: publish change event for %s/%s: %v", collection, id, err)
		}
	}
	return nil
}

func (m *Memory) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func matches(fields map[string]any, wheres []Where) bool {
	for _, where := range wheres {
		got, ok := fields[where.Field]
		if !ok {
			return false
		}
		want := where.Value
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// copyFields round-trips through JSON, both to deep-copy and to collapse
// typed values (refs, timestamps) into their stored wire shapes.
func copyFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		panic(fmt.Sprintf("store: encode fields: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("store: decode fields: %v", err))
	}
	return out
}
