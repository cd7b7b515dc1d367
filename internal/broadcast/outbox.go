package broadcast

import (
	"context"
	"fmt"

	"arena/sync/internal/snapshot"
	"arena/sync/internal/store"
)

// Poster is the social-post transport.
type Poster interface {
	Post(ctx context.Context, status string) (string, error)
}

// Outbox queues social posts as two-phase records: phase 1 inserts a
// pending record in the same flow as the domain event; phase 2, driven
// by the record's own creation event, performs the network post and
// stamps the returned id. A failed phase 2 leaves the pending record
// inspectable and retryable.
type Outbox struct {
	store  store.Store
	poster Poster
}

func NewOutbox(s store.Store, poster Poster) *Outbox {
	return &Outbox{store: s, poster: poster}
}

// Queue inserts the pending record. The external post has not happened
// yet when this returns.
func (o *Outbox) Queue(ctx context.Context, status string) (store.Ref, error) {
	ref, err := o.store.Add(ctx, store.Tweets, map[string]any{
		"status":    status,
		"createdAt": store.Now(),
	})
	if err != nil {
		return store.Ref{}, fmt.Errorf("queue tweet: %w", err)
	}
	return ref, nil
}

// Deliver performs phase 2 for one pending record: post the status and
// mark the record with the external post id. The record is re-read so a
// redelivered creation event skips records that were already posted.
func (o *Outbox) Deliver(ctx context.Context, id string) error {
	doc, err := o.store.Get(ctx, store.Tweets, id)
	if err != nil {
		return fmt.Errorf("read tweet %s: %w", id, err)
	}
	fields := doc.Fields
	if _, posted := fields["tweetId"]; posted {
		return nil
	}
	status := snapshot.String(fields, "status")
	if status == "" {
		return fmt.Errorf("tweet %s has no status text", id)
	}

	postID, err := o.poster.Post(ctx, status)
	if err != nil {
		return fmt.Errorf("post tweet %s: %w", id, err)
	}

	err = o.store.Update(ctx, store.Tweets, id, map[string]any{
		"tweetId":   postID,
		"tweetedAt": store.Now(),
	})
	if err != nil {
		return fmt.Errorf("mark tweet %s posted: %w", id, err)
	}
	return nil
}
