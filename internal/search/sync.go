package search

import (
	"context"
	"fmt"
	"log"

	"arena/sync/internal/snapshot"
	"arena/sync/internal/store"
	"arena/sync/internal/transition"
)

// DefaultAuthorName is indexed when an asset's author reference cannot
// be resolved. A failed resolution must never corrupt the index.
const DefaultAuthorName = "(no author)"

// Syncer maintains the external index in lockstep with document
// visibility. All of its operations are idempotent; redelivery of the
// same event converges to the same index state.
type Syncer struct {
	idx   Indexer
	store store.Store
}

func NewSyncer(idx Indexer, s store.Store) *Syncer {
	return &Syncer{idx: idx, store: s}
}

// AssetCreated upserts the projection iff the new asset is already
// visible. It never issues a pre-emptive delete on create.
func (s *Syncer) AssetCreated(ctx context.Context, id string, after map[string]any, facts transition.Facts) error {
	if !facts.Indexable() {
		return nil
	}
	return s.upsertAsset(ctx, id, after)
}

// AssetUpdated deletes the record on any disqualifying transition,
// otherwise refreshes the projection when the asset is visible.
func (s *Syncer) AssetUpdated(ctx context.Context, id string, after map[string]any, facts transition.Facts) error {
	if facts.BecameUnapproved || facts.BecamePrivate || facts.BecameDeleted {
		if err := s.idx.DeleteAsset(id); err != nil {
			return fmt.Errorf("deindex asset %s: %w", id, err)
		}
		return nil
	}
	if !facts.Indexable() {
		return nil
	}
	return s.upsertAsset(ctx, id, after)
}

func (s *Syncer) upsertAsset(ctx context.Context, id string, fields map[string]any) error {
	if err := s.idx.IndexAsset(s.ProjectAsset(ctx, id, fields)); err != nil {
		return fmt.Errorf("index asset %s: %w", id, err)
	}
	return nil
}

// ProjectAsset builds the index record, resolving the author display
// name through a secondary read. Resolution failure degrades to
// DefaultAuthorName.
func (s *Syncer) ProjectAsset(ctx context.Context, id string, fields map[string]any) AssetRecord {
	authorName := DefaultAuthorName
	if ref, ok := snapshot.Ref(fields, "author"); ok {
		doc, err := s.store.Get(ctx, ref.Collection, ref.ID)
		if err != nil {
			log.Printf("search: resolve author %s for asset %s: %v", ref.Path(), id, err)
		} else if name := snapshot.String(doc.Fields, "name"); name != "" {
			authorName = name
		}
	}

	return AssetRecord{
		ID:           id,
		Title:        snapshot.String(fields, "title"),
		Description:  snapshot.String(fields, "description"),
		ThumbnailURL: snapshot.String(fields, "thumbnailUrl"),
		IsAdult:      snapshot.Bool(fields, "isAdult"),
		Tags:         snapshot.Strings(fields, "tags"),
		Category:     snapshot.String(fields, "category"),
		Species:      snapshot.Strings(fields, "species"),
		AuthorName:   authorName,
	}
}

// AuthorWritten upserts or removes an author projection. Authors have no
// approval gate, only a deleted check.
func (s *Syncer) AuthorWritten(ctx context.Context, id string, after map[string]any) error {
	if snapshot.Bool(after, transition.FieldDeleted) {
		if err := s.idx.DeleteAuthor(id); err != nil {
			return fmt.Errorf("deindex author %s: %w", id, err)
		}
		return nil
	}
	record := AuthorRecord{
		ID:          id,
		Name:        snapshot.String(after, "name"),
		Description: snapshot.String(after, "description"),
	}
	if err := s.idx.IndexAuthor(record); err != nil {
		return fmt.Errorf("index author %s: %w", id, err)
	}
	return nil
}

// UserWritten upserts a user projection.
func (s *Syncer) UserWritten(ctx context.Context, id string, after map[string]any) error {
	record := UserRecord{
		ID:        id,
		Username:  snapshot.String(after, "username"),
		AvatarURL: snapshot.String(after, "avatarUrl"),
	}
	if err := s.idx.IndexUser(record); err != nil {
		return fmt.Errorf("index user %s: %w", id, err)
	}
	return nil
}

// Reindex rebuilds the asset index from a full scan of visible assets.
// The approval flag is evaluated in process because its absence counts
// as approved.
func (s *Syncer) Reindex(ctx context.Context) error {
	docs, err := s.store.Query(ctx, store.Assets, store.Query{})
	if err != nil {
		return fmt.Errorf("reindex scan: %w", err)
	}

	records := make([]AssetRecord, 0, len(docs))
	for _, doc := range docs {
		if !transition.Classify(nil, doc.Fields).Indexable() {
			continue
		}
		records = append(records, s.ProjectAsset(ctx, doc.ID, doc.Fields))
	}

	if err := s.idx.IndexAssets(records); err != nil {
		return fmt.Errorf("reindex %d assets: %w", len(records), err)
	}
	log.Printf("search: reindexed %d assets", len(records))
	return nil
}
