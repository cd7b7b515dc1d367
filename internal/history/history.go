// Package history persists the append-only audit trail. Entries are
// written once per tracked mutation and never updated or deleted.
package history

import (
	"context"
	"fmt"

	"arena/sync/internal/diffs"
	"arena/sync/internal/store"
)

// Recorder appends audit entries to the history collection.
type Recorder struct {
	store store.Store
}

func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s}
}

// Created records a creation with the full normalized field set.
func (r *Recorder) Created(ctx context.Context, message string, parent store.Ref, fields map[string]any, actor store.Ref) error {
	return r.add(ctx, message, parent, map[string]any{"fields": fields}, actor)
}

// Edited records a mutation as the structural diff between the two
// normalized snapshots.
func (r *Recorder) Edited(ctx context.Context, message string, parent store.Ref, entries []diffs.Entry, actor store.Ref) error {
	return r.add(ctx, message, parent, map[string]any{"diff": entries}, actor)
}

// Event records an entry with no payload, such as an account signup.
func (r *Recorder) Event(ctx context.Context, message string, parent store.Ref) error {
	return r.add(ctx, message, parent, nil, store.Ref{})
}

func (r *Recorder) add(ctx context.Context, message string, parent store.Ref, data map[string]any, actor store.Ref) error {
	entry := map[string]any{
		"message":   message,
		"createdAt": store.Now(),
	}
	// absent fields are omitted, never stored as null
	if !parent.IsZero() {
		entry["parent"] = parent
	}
	if data != nil {
		entry["data"] = data
	}
	if !actor.IsZero() {
		entry["createdBy"] = actor
	}

	if _, err := r.store.Add(ctx, store.History, entry); err != nil {
		return fmt.Errorf("record history %q: %w", message, err)
	}
	return nil
}
