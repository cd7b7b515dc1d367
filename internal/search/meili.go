package search

import (
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxAssets  = "arena_assets"
	idxAuthors = "arena_authors"
	idxUsers   = "arena_users"
)

// Meili implements Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The
// worker proceeds without search when the initial connection fails; the
// health loop reconfigures indexes once the service recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxAssets,
			primaryKey: "id",
			filterable: []string{"isAdult", "category", "species", "tags"},
			searchable: []string{"title", "description", "tags", "authorName"},
		},
		{
			uid:        idxAuthors,
			primaryKey: "id",
			searchable: []string{"name", "description"},
		},
		{
			uid:        idxUsers,
			primaryKey: "id",
			searchable: []string{"username"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		if len(idx.filterable) > 0 {
			filterableInterface := make([]interface{}, len(idx.filterable))
			for i, v := range idx.filterable {
				filterableInterface[i] = v
			}
			if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
				log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
			}
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexAsset adds or updates an asset projection in the index.
func (m *Meili) IndexAsset(record AssetRecord) error {
	_, err := m.client.Index(idxAssets).AddDocuments([]AssetRecord{record}, nil)
	return err
}

// IndexAuthor adds or updates an author projection in the index.
func (m *Meili) IndexAuthor(record AuthorRecord) error {
	_, err := m.client.Index(idxAuthors).AddDocuments([]AuthorRecord{record}, nil)
	return err
}

// IndexUser adds or updates a user projection in the index.
func (m *Meili) IndexUser(record UserRecord) error {
	_, err := m.client.Index(idxUsers).AddDocuments([]UserRecord{record}, nil)
	return err
}

// DeleteAsset removes an asset from the index.
func (m *Meili) DeleteAsset(id string) error {
	_, err := m.client.Index(idxAssets).DeleteDocument(id, nil)
	return err
}

// DeleteAuthor removes an author from the index.
func (m *Meili) DeleteAuthor(id string) error {
	_, err := m.client.Index(idxAuthors).DeleteDocument(id, nil)
	return err
}

// DeleteUser removes a user from the index.
func (m *Meili) DeleteUser(id string) error {
	_, err := m.client.Index(idxUsers).DeleteDocument(id, nil)
	return err
}

// IndexAssets bulk-indexes asset projections during a full reindex.
func (m *Meili) IndexAssets(records []AssetRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxAssets).AddDocuments(records, nil)
	return err
}
