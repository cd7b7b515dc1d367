package store

import "context"

// Kind distinguishes document creation from mutation.
type Kind string

const (
	Create Kind = "create"
	Update Kind = "update"
)

// Event is one document-state transition as observed by the sync
// pipeline. Before is nil for creations. Events are delivered
// at-least-once; handlers tolerate redelivery.
type Event struct {
	Collection string         `json:"collection"`
	Kind       Kind           `json:"kind"`
	ID         string         `json:"id"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
}

func (e Event) Ref() Ref {
	return Ref{Collection: e.Collection, ID: e.ID}
}

// EventSink receives change events emitted by the store write path.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}
