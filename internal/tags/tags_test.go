package tags

import (
	"context"
	"reflect"
	"testing"

	"arena/sync/internal/store"
)

func seedAsset(t *testing.T, s *store.Memory, id string, tags []string, extra map[string]any) {
	t.Helper()
	fields := map[string]any{
		"tags":       tags,
		"isAdult":    false,
		"isApproved": true,
		"isPrivate":  false,
		"isDeleted":  false,
	}
	for key, value := range extra {
		fields[key] = value
	}
	if err := s.Set(context.Background(), store.Assets, id, fields); err != nil {
		t.Fatalf("seed asset %s: %v", id, err)
	}
}

func TestAddTagsMergesAndDedupes(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	if err := s.Set(ctx, store.Special, CacheID, map[string]any{"allTags": []string{"fox", "canine"}}); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(s)
	if err := cache.AddTags(ctx, []string{"canine", "orange", "fox"}); err != nil {
		t.Fatalf("AddTags: %v", err)
	}

	all, err := cache.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if want := []string{"fox", "canine", "orange"}; !reflect.DeepEqual(all, want) {
		t.Errorf("all tags = %v, want %v", all, want)
	}
}

func TestAddTagsIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	if err := s.Set(ctx, store.Special, CacheID, map[string]any{"allTags": []string{"Fox"}}); err != nil {
		t.Fatal(err)
	}

	cache := NewCache(s)
	if err := cache.AddTags(ctx, []string{"fox"}); err != nil {
		t.Fatalf("AddTags: %v", err)
	}

	all, _ := cache.All(ctx)
	if want := []string{"Fox", "fox"}; !reflect.DeepEqual(all, want) {
		t.Errorf("all tags = %v, want %v", all, want)
	}
}

func TestAddTagsRebuildsMissingCache(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedAsset(t, s, "a1", []string{"fox", "canine"}, nil)
	seedAsset(t, s, "a2", []string{"wolf"}, nil)

	cache := NewCache(s)
	// the new tag is already covered by the scan; the rebuild must pick
	// up the pre-existing tags the incremental path would have missed
	if err := cache.AddTags(ctx, []string{"wolf"}); err != nil {
		t.Fatalf("AddTags: %v", err)
	}

	all, _ := cache.All(ctx)
	if want := []string{"fox", "canine", "wolf"}; !reflect.DeepEqual(all, want) {
		t.Errorf("all tags = %v, want %v", all, want)
	}
}

func TestRebuildSkipsHiddenAssets(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedAsset(t, s, "public", []string{"fox"}, nil)
	seedAsset(t, s, "adult", []string{"explicit"}, map[string]any{"isAdult": true})
	seedAsset(t, s, "private", []string{"secret"}, map[string]any{"isPrivate": true})
	seedAsset(t, s, "deleted", []string{"gone"}, map[string]any{"isDeleted": true})
	seedAsset(t, s, "pending", []string{"draft"}, map[string]any{"isApproved": false})

	cache := NewCache(s)
	if err := cache.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	all, _ := cache.All(ctx)
	if want := []string{"fox"}; !reflect.DeepEqual(all, want) {
		t.Errorf("all tags = %v, want %v", all, want)
	}
}

func TestRebuildConverges(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedAsset(t, s, "a1", []string{"fox", "fox", "canine"}, nil)

	cache := NewCache(s)
	if err := cache.Rebuild(ctx); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	first, _ := cache.All(ctx)

	if err := cache.Rebuild(ctx); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second, _ := cache.All(ctx)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("rebuild diverged: %v vs %v", first, second)
	}
	if want := []string{"fox", "canine"}; !reflect.DeepEqual(second, want) {
		t.Errorf("tags = %v, want %v", second, want)
	}
}

func TestAddTagsEmptyInputIsNoop(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	cache := NewCache(s)
	if err := cache.AddTags(ctx, nil); err != nil {
		t.Fatalf("AddTags(nil): %v", err)
	}
	if _, err := s.Get(ctx, store.Special, CacheID); err == nil {
		t.Error("empty add should not create the cache document")
	}
}
