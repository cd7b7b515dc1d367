// Package tags maintains the deduplicated global tag list, incrementally
// on asset writes and recomputable from a full scan. The cache is
// advisory: concurrent writers race last-wins and Rebuild reconciles.
package tags

import (
	"context"
	"errors"
	"fmt"
	"log"

	"arena/sync/internal/snapshot"
	"arena/sync/internal/store"
	"arena/sync/internal/transition"
)

// CacheID is the singleton document under the special collection.
const CacheID = "tags"

const fieldAllTags = "allTags"

// Cache reads and writes the special/tags document.
type Cache struct {
	store store.Store
}

func NewCache(s store.Store) *Cache {
	return &Cache{store: s}
}

// AddTags merges newTags into the cache, preserving first-seen order.
// When the cache document does not exist at all it falls back to a full
// rebuild rather than seeding a partial cache, so tags indexed before
// the cache was initialized are not lost.
func (c *Cache) AddTags(ctx context.Context, newTags []string) error {
	if len(newTags) == 0 {
		return nil
	}

	doc, err := c.store.Get(ctx, store.Special, CacheID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("tags: cache missing, rebuilding from scan")
		return c.Rebuild(ctx)
	}
	if err != nil {
		return fmt.Errorf("read tag cache: %w", err)
	}

	merged := dedupe(append(snapshot.Strings(doc.Fields, fieldAllTags), newTags...))
	return c.write(ctx, merged)
}

// Rebuild recomputes the cache from every public, approved, non-adult,
// non-deleted asset. Idempotent; safe to run concurrently with AddTags.
func (c *Cache) Rebuild(ctx context.Context) error {
	docs, err := c.store.Query(ctx, store.Assets, store.Query{
		Wheres: []store.Where{
			{Field: transition.FieldAdult, Value: false},
			{Field: transition.FieldApproved, Value: true},
			{Field: transition.FieldPrivate, Value: false},
			{Field: transition.FieldDeleted, Value: false},
		},
	})
	if err != nil {
		return fmt.Errorf("scan assets for tags: %w", err)
	}

	var all []string
	for _, doc := range docs {
		all = append(all, snapshot.Strings(doc.Fields, "tags")...)
	}
	return c.write(ctx, dedupe(all))
}

// All returns the current cache content.
func (c *Cache) All(ctx context.Context) ([]string, error) {
	doc, err := c.store.Get(ctx, store.Special, CacheID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tag cache: %w", err)
	}
	return snapshot.Strings(doc.Fields, fieldAllTags), nil
}

func (c *Cache) write(ctx context.Context, all []string) error {
	if all == nil {
		all = []string{}
	}
	err := c.store.Set(ctx, store.Special, CacheID, map[string]any{fieldAllTags: all})
	if err != nil {
		return fmt.Errorf("write tag cache: %w", err)
	}
	return nil
}

// dedupe keeps the first occurrence of each tag. Equality is exact
// string match; case variants stay distinct.
func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
