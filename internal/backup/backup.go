// Package backup dumps every collection to object storage as JSON lines,
// one object per collection under a timestamped prefix.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"arena/sync/internal/store"
)

// Connect builds an object-storage client.
func Connect(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	return client, nil
}

// Service writes collection dumps into one bucket.
type Service struct {
	store  store.Store
	client *minio.Client
	bucket string
}

func New(s store.Store, client *minio.Client, bucket string) *Service {
	return &Service{store: s, client: client, bucket: bucket}
}

// Run backs up every collection. Collections that fail are logged and
// skipped so one bad collection does not abort the rest of the dump.
func (s *Service) Run(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}

	collections, err := s.store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	prefix := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	for _, collection := range collections {
		if err := s.dump(ctx, prefix, collection); err != nil {
			log.Printf("backup: %s: %v", collection, err)
		}
	}
	return nil
}

func (s *Service) dump(ctx context.Context, prefix, collection string) error {
	docs, err := s.store.Query(ctx, collection, store.Query{})
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, doc := range docs {
		line := map[string]any{"id": doc.ID, "fields": doc.Fields}
		if err := encoder.Encode(line); err != nil {
			return fmt.Errorf("encode %s: %w", doc.ID, err)
		}
	}

	object := prefix + "/" + collection + ".jsonl"
	_, err = s.client.PutObject(ctx, s.bucket, object, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", object, err)
	}
	log.Printf("backup: wrote %s (%d documents)", object, len(docs))
	return nil
}
