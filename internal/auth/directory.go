// Package auth reads the account directory the authentication
// collaborator maintains in Redis. The sync worker never authenticates
// anyone; it only resolves the email address behind an account id when
// the notification fanout needs one.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// accountRecord is the stored shape of one account entry.
type accountRecord struct {
	Email     string    `json:"email"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Directory looks up account records by user id.
type Directory struct {
	client *redis.Client
	prefix string
}

// NewDirectory creates a directory on an existing Redis client.
func NewDirectory(client *redis.Client) *Directory {
	return &Directory{
		client: client,
		prefix: "auth:account:",
	}
}

func (d *Directory) key(userID string) string {
	return d.prefix + userID
}

// GetUserEmail returns the email address for an account. A missing or
// malformed record is an error; the caller decides whether that skips
// the recipient or fails the operation.
func (d *Directory) GetUserEmail(ctx context.Context, userID string) (string, error) {
	jsonData, err := d.client.Get(ctx, d.key(userID)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("no account record for %s", userID)
	}
	if err != nil {
		return "", fmt.Errorf("lookup account %s: %w", userID, err)
	}

	var record accountRecord
	if err := json.Unmarshal([]byte(jsonData), &record); err != nil {
		return "", fmt.Errorf("unmarshal account %s: %w", userID, err)
	}
	if record.Email == "" {
		return "", fmt.Errorf("account %s has no email", userID)
	}
	return record.Email, nil
}

// SaveAccount upserts an account entry. Entries never expire; the
// collaborator removes them when the account is deleted.
func (d *Directory) SaveAccount(ctx context.Context, userID, email string) error {
	jsonData, err := json.Marshal(accountRecord{
		Email:     email,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal account record: %w", err)
	}

	if err := d.client.Set(ctx, d.key(userID), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("save account %s: %w", userID, err)
	}
	return nil
}

// RemoveAccount deletes an account entry.
func (d *Directory) RemoveAccount(ctx context.Context, userID string) error {
	if err := d.client.Del(ctx, d.key(userID)).Err(); err != nil {
		return fmt.Errorf("remove account %s: %w", userID, err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (d *Directory) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
