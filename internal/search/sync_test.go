package search

import (
	"context"
	"reflect"
	"testing"

	"arena/sync/internal/store"
	"arena/sync/internal/transition"
)

// fakeIndexer records the final state per record ID, like a real index.
type fakeIndexer struct {
	assets  map[string]AssetRecord
	authors map[string]AuthorRecord
	users   map[string]UserRecord
	batches int
	err     error
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{
		assets:  make(map[string]AssetRecord),
		authors: make(map[string]AuthorRecord),
		users:   make(map[string]UserRecord),
	}
}

func (f *fakeIndexer) IndexAsset(r AssetRecord) error {
	if f.err != nil {
		return f.err
	}
	f.assets[r.ID] = r
	return nil
}

func (f *fakeIndexer) IndexAssets(records []AssetRecord) error {
	if f.err != nil {
		return f.err
	}
	f.batches++
	for _, r := range records {
		f.assets[r.ID] = r
	}
	return nil
}

func (f *fakeIndexer) DeleteAsset(id string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.assets, id)
	return nil
}

func (f *fakeIndexer) IndexAuthor(r AuthorRecord) error {
	f.authors[r.ID] = r
	return nil
}

func (f *fakeIndexer) DeleteAuthor(id string) error {
	delete(f.authors, id)
	return nil
}

func (f *fakeIndexer) IndexUser(r UserRecord) error {
	f.users[r.ID] = r
	return nil
}

func (f *fakeIndexer) DeleteUser(id string) error {
	delete(f.users, id)
	return nil
}

func (f *fakeIndexer) Healthy() bool { return true }

func visibleAsset(title string) map[string]any {
	return map[string]any{
		"title":      title,
		"isApproved": true,
		"isPrivate":  false,
		"isDeleted":  false,
	}
}

func TestAssetCreatedIndexesOnlyVisible(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndexer()
	syncer := NewSyncer(idx, store.NewMemory())

	hidden := map[string]any{"title": "Draft", "isApproved": false}
	facts := transition.Classify(nil, hidden)
	if err := syncer.AssetCreated(ctx, "a1", hidden, facts); err != nil {
		t.Fatalf("AssetCreated: %v", err)
	}
	if len(idx.assets) != 0 {
		t.Errorf("hidden asset was indexed: %v", idx.assets)
	}

	visible := visibleAsset("Fox Model")
	facts = transition.Classify(nil, visible)
	if err := syncer.AssetCreated(ctx, "a2", visible, facts); err != nil {
		t.Fatalf("AssetCreated: %v", err)
	}
	record, ok := idx.assets["a2"]
	if !ok || record.Title != "Fox Model" {
		t.Errorf("record = %+v ok = %v", record, ok)
	}
}

func TestAssetUpdatedTransitions(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		before  map[string]any
		after   map[string]any
		seeded  bool
		indexed bool
	}{
		{
			name:    "approval indexes",
			before:  map[string]any{"isApproved": false},
			after:   visibleAsset("Fox"),
			indexed: true,
		},
		{
			name:    "deletion removes",
			before:  visibleAsset("Fox"),
			after:   map[string]any{"title": "Fox", "isApproved": true, "isDeleted": true},
			seeded:  true,
			indexed: false,
		},
		{
			name:    "going private removes",
			before:  visibleAsset("Fox"),
			after:   map[string]any{"title": "Fox", "isApproved": true, "isPrivate": true},
			seeded:  true,
			indexed: false,
		},
		{
			name:    "revoked approval removes",
			before:  visibleAsset("Fox"),
			after:   map[string]any{"title": "Fox", "isApproved": false},
			seeded:  true,
			indexed: false,
		},
		{
			name:    "plain edit refreshes",
			before:  visibleAsset("Fox"),
			after:   visibleAsset("Red Fox"),
			seeded:  true,
			indexed: true,
		},
		{
			name:    "edit while unapproved stays out",
			before:  map[string]any{"isApproved": false, "title": "Fox"},
			after:   map[string]any{"isApproved": false, "title": "Red Fox"},
			indexed: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idx := newFakeIndexer()
			if tc.seeded {
				idx.assets["a1"] = AssetRecord{ID: "a1", Title: "stale"}
			}
			syncer := NewSyncer(idx, store.NewMemory())

			facts := transition.Classify(tc.before, tc.after)
			if err := syncer.AssetUpdated(ctx, "a1", tc.after, facts); err != nil {
				t.Fatalf("AssetUpdated: %v", err)
			}

			record, ok := idx.assets["a1"]
			if ok != tc.indexed {
				t.Fatalf("indexed = %v, want %v", ok, tc.indexed)
			}
			if tc.indexed && record.Title == "stale" {
				t.Error("record was not refreshed")
			}
		})
	}
}

func TestAssetUpdatedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndexer()
	syncer := NewSyncer(idx, store.NewMemory())

	after := visibleAsset("Fox")
	facts := transition.Classify(map[string]any{"isApproved": false}, after)

	for i := 0; i < 3; i++ {
		if err := syncer.AssetUpdated(ctx, "a1", after, facts); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	if len(idx.assets) != 1 {
		t.Errorf("got %d records, want 1", len(idx.assets))
	}

	// deleting an already absent record must also converge
	gone := transition.Classify(after, map[string]any{"isDeleted": true})
	for i := 0; i < 2; i++ {
		if err := syncer.AssetUpdated(ctx, "a1", map[string]any{"isDeleted": true}, gone); err != nil {
			t.Fatalf("delete pass %d: %v", i, err)
		}
	}
	if len(idx.assets) != 0 {
		t.Errorf("got %d records, want 0", len(idx.assets))
	}
}

func TestProjectAssetResolvesAuthor(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	if err := s.Set(ctx, store.Authors, "auth1", map[string]any{"name": "Vixen Works"}); err != nil {
		t.Fatal(err)
	}
	syncer := NewSyncer(newFakeIndexer(), s)

	fields := visibleAsset("Fox")
	fields["author"] = store.NewRef(store.Authors, "auth1")
	fields["tags"] = []any{"fox", "canine"}

	record := syncer.ProjectAsset(ctx, "a1", fields)
	if record.AuthorName != "Vixen Works" {
		t.Errorf("author = %q", record.AuthorName)
	}
	if !reflect.DeepEqual(record.Tags, []string{"fox", "canine"}) {
		t.Errorf("tags = %v", record.Tags)
	}

	// unresolvable author degrades, never fails
	fields["author"] = store.NewRef(store.Authors, "missing")
	record = syncer.ProjectAsset(ctx, "a1", fields)
	if record.AuthorName != DefaultAuthorName {
		t.Errorf("author = %q, want %q", record.AuthorName, DefaultAuthorName)
	}

	delete(fields, "author")
	if record = syncer.ProjectAsset(ctx, "a1", fields); record.AuthorName != DefaultAuthorName {
		t.Errorf("author = %q, want %q", record.AuthorName, DefaultAuthorName)
	}
}

func TestAuthorWritten(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndexer()
	syncer := NewSyncer(idx, store.NewMemory())

	if err := syncer.AuthorWritten(ctx, "auth1", map[string]any{"name": "Vixen Works"}); err != nil {
		t.Fatalf("AuthorWritten: %v", err)
	}
	if idx.authors["auth1"].Name != "Vixen Works" {
		t.Errorf("authors = %v", idx.authors)
	}

	if err := syncer.AuthorWritten(ctx, "auth1", map[string]any{"name": "Vixen Works", "isDeleted": true}); err != nil {
		t.Fatalf("AuthorWritten delete: %v", err)
	}
	if len(idx.authors) != 0 {
		t.Errorf("deleted author still indexed: %v", idx.authors)
	}
}

func TestReindexSkipsHiddenAssets(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed := map[string]map[string]any{
		"visible": visibleAsset("Fox"),
		"legacy":  {"title": "Old"}, // no flags at all counts as visible
		"private": {"title": "Secret", "isApproved": true, "isPrivate": true},
		"pending": {"title": "Draft", "isApproved": false},
	}
	for id, fields := range seed {
		if err := s.Set(ctx, store.Assets, id, fields); err != nil {
			t.Fatal(err)
		}
	}

	idx := newFakeIndexer()
	syncer := NewSyncer(idx, s)
	if err := syncer.Reindex(ctx); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	if idx.batches != 1 {
		t.Errorf("batches = %d, want 1", idx.batches)
	}
	if len(idx.assets) != 2 {
		t.Errorf("indexed %v, want visible and legacy only", idx.assets)
	}
	for _, id := range []string{"visible", "legacy"} {
		if _, ok := idx.assets[id]; !ok {
			t.Errorf("%s missing from index", id)
		}
	}
}
