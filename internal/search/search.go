// Package search keeps the external full-text index in lockstep with
// primary-document visibility state.
package search

// AssetRecord is the denormalized projection of an asset that the index
// stores. It exists iff the asset is approved, public and not deleted.
type AssetRecord struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ThumbnailURL string   `json:"thumbnailUrl"`
	IsAdult      bool     `json:"isAdult"`
	Tags         []string `json:"tags"`
	Category     string   `json:"category"`
	Species      []string `json:"species"`
	AuthorName   string   `json:"authorName"`
}

// AuthorRecord is the projection of an author. Authors have no approval
// gate; they are removed only when deleted.
type AuthorRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UserRecord is the projection of a user account.
type UserRecord struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Indexer can push projections into the search index and remove them
// again. Deleting an absent record is not an error.
type Indexer interface {
	IndexAsset(record AssetRecord) error
	IndexAuthor(record AuthorRecord) error
	IndexUser(record UserRecord) error
	DeleteAsset(id string) error
	DeleteAuthor(id string) error
	DeleteUser(id string) error
	IndexAssets(records []AssetRecord) error
	Healthy() bool
}
