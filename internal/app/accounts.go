package app

import (
	"context"
	"fmt"
	"log"

	"arena/sync/internal/store"
)

// userSignedUp materializes the user and profile documents for a fresh
// account and records the signup. Set is an upsert, so a redelivered
// signup converges instead of duplicating.
func (s *Service) userSignedUp(ctx context.Context, event store.Event) error {
	uid := event.ID

	err := s.deps.Store.Set(ctx, store.Users, uid, map[string]any{
		"isAdmin":  false,
		"isEditor": false,
		"username": "",
	})
	if err != nil {
		return fmt.Errorf("create user %s: %w", uid, err)
	}

	err = s.deps.Store.Set(ctx, store.Profiles, uid, map[string]any{
		"bio": "",
	})
	if err != nil {
		return fmt.Errorf("create profile %s: %w", uid, err)
	}

	if err := s.deps.History.Event(ctx, "User signup", store.NewRef(store.Users, uid)); err != nil {
		log.Printf("app: signup history for %s: %v", uid, err)
	}
	return nil
}

func (s *Service) userUpdated(ctx context.Context, event store.Event) error {
	s.recordEdited(ctx, "Edited user", event)
	return s.deps.Search.UserWritten(ctx, event.ID, event.After)
}

func (s *Service) profileUpdated(ctx context.Context, event store.Event) error {
	s.recordEdited(ctx, "Edited profile", event)
	return nil
}

func (s *Service) authorCreated(ctx context.Context, event store.Event) error {
	s.recordCreated(ctx, "Created author", event, "createdBy")
	return s.deps.Search.AuthorWritten(ctx, event.ID, event.After)
}

func (s *Service) authorUpdated(ctx context.Context, event store.Event) error {
	s.recordEdited(ctx, "Edited author", event)
	return s.deps.Search.AuthorWritten(ctx, event.ID, event.After)
}
