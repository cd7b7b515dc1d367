package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"arena/sync/internal/snapshot"
	"arena/sync/internal/store"
)

// commentCreated records history and fans the comment out to the tagged
// user and the owner of the commented-on document.
func (s *Service) commentCreated(ctx context.Context, event store.Event) error {
	s.recordCreated(ctx, "Created comment", event, "createdBy")

	if _, ok := snapshot.Ref(event.After, "parent"); !ok {
		// invalid precondition: a comment always points at something
		log.Printf("app: comment %s has no parent reference", event.ID)
		return nil
	}

	var errs []error
	if err := s.deps.Notify.TaggedUser(ctx, event.After); err != nil {
		errs = append(errs, err)
	}
	if err := s.deps.Notify.CommentCreated(ctx, event.ID, event.After); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// requestCreated records history and announces the request.
func (s *Service) requestCreated(ctx context.Context, event store.Event) error {
	s.recordCreated(ctx, "Created request", event, "createdBy")

	title := snapshot.String(event.After, "title")
	s.sendWebhook(ctx, s.deps.Activity, fmt.Sprintf("New request %q", title), nil)
	return nil
}

func (s *Service) requestUpdated(ctx context.Context, event store.Event) error {
	s.recordEdited(ctx, "Edited request", event)
	return nil
}

// tweetCreated is phase 2 of the social-post outbox: the pending record
// written alongside the approval event now gets posted externally.
func (s *Service) tweetCreated(ctx context.Context, event store.Event) error {
	return s.deps.Outbox.Deliver(ctx, event.ID)
}

// mailCreated drains one queued mail record through SMTP. Records are
// stamped after sending so redelivery cannot double-send.
func (s *Service) mailCreated(ctx context.Context, event store.Event) error {
	mailer := s.deps.Mailer
	if mailer == nil || !mailer.IsConfigured() {
		return nil
	}
	// re-read the record: a redelivered event still carries the
	// unstamped creation payload
	doc, err := s.deps.Store.Get(ctx, store.Mail, event.ID)
	if err != nil {
		return fmt.Errorf("read mail %s: %w", event.ID, err)
	}
	if _, sent := doc.Fields["sentAt"]; sent {
		return nil
	}
	if err := mailer.Deliver(ctx, doc.Fields); err != nil {
		return fmt.Errorf("deliver mail %s: %w", event.ID, err)
	}
	err = s.deps.Store.Update(ctx, store.Mail, event.ID, map[string]any{
		"sentAt": store.Now(),
	})
	if err != nil {
		return fmt.Errorf("mark mail %s sent: %w", event.ID, err)
	}
	return nil
}
