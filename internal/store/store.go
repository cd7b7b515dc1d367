// Package store provides the document-store capability: collections of
// schemaless documents addressed by collection name and id, with a
// Postgres-backed implementation and an in-memory one for tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Collection names of the primary documents and their derived records.
const (
	Assets        = "assets"
	Authors       = "authors"
	Comments      = "comments"
	Users         = "users"
	Profiles      = "profiles"
	Requests      = "requests"
	Tweets        = "tweets"
	History       = "history"
	Notifications = "notifications"
	Mail          = "mail"
	Special       = "special"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Ref points at a document in a collection.
type Ref struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

func NewRef(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// Path renders the reference as "collection/id".
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

func (r Ref) IsZero() bool {
	return r.Collection == "" && r.ID == ""
}

// ParseRef parses a "collection/id" path back into a Ref.
func ParseRef(path string) (Ref, bool) {
	collection, id, ok := strings.Cut(path, "/")
	if !ok || collection == "" || id == "" {
		return Ref{}, false
	}
	return Ref{Collection: collection, ID: id}, true
}

// Doc is one document as read from a collection.
type Doc struct {
	ID     string
	Fields map[string]any
}

func (d Doc) Ref(collection string) Ref {
	return Ref{Collection: collection, ID: d.ID}
}

// Where is a single equality predicate on a top-level field.
type Where struct {
	Field string
	Value any
}

// Query describes a collection scan.
type Query struct {
	Wheres  []Where
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is the capability interface into the document database. The
// database rejects nil field values, so callers omit absent fields
// rather than storing null placeholders.
type Store interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	Query(ctx context.Context, collection string, q Query) ([]Doc, error)
	Add(ctx context.Context, collection string, fields map[string]any) (Ref, error)
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	ListCollections(ctx context.Context) ([]string, error)
}

// checkFields rejects nil values so a missing field can never be
// confused with a stored null.
func checkFields(fields map[string]any) error {
	for key, value := range fields {
		if value == nil {
			return fmt.Errorf("field %q is nil", key)
		}
	}
	return nil
}
