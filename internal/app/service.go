// Package app dispatches document-change events to the handler
// pipelines that keep the search index, audit history, notifications,
// tag cache and broadcast channels in sync with the primary documents.
package app

import (
	"context"
	"log"

	"arena/sync/internal/broadcast"
	"arena/sync/internal/diffs"
	"arena/sync/internal/history"
	"arena/sync/internal/notify"
	"arena/sync/internal/search"
	"arena/sync/internal/snapshot"
	"arena/sync/internal/store"
	"arena/sync/internal/tags"
)

// Signups is the pseudo-collection the authentication collaborator
// publishes account creations on. No documents live under it; the
// signup handler materializes the user and profile documents.
const Signups = "signups"

// Mailer drains queued mail records. Nil means mail is disabled.
type Mailer interface {
	IsConfigured() bool
	Deliver(ctx context.Context, fields map[string]any) error
}

// Deps are the collaborators injected into the dispatcher. Everything
// is constructed at process start; there are no lazily-initialized
// globals, so tests substitute fakes freely.
type Deps struct {
	Store    store.Store
	History  *history.Recorder
	Search   *search.Syncer
	Notify   *notify.Fanout
	Tags     *tags.Cache
	Activity *broadcast.Webhook
	Editors  *broadcast.Webhook
	Outbox   *broadcast.Outbox
	Mailer   Mailer
	SiteURL  string
}

// Service routes one change event to the pipeline for its collection
// and operation. Event delivery is at-least-once, so every pipeline is
// idempotent or duplication-tolerant; a returned error leaves the event
// unacknowledged for redelivery.
type Service struct {
	deps Deps
}

func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// Handle is the single entry point called by the event source.
func (s *Service) Handle(ctx context.Context, event store.Event) error {
	switch event.Collection {
	case store.Assets:
		if event.Kind == store.Create {
			return s.assetCreated(ctx, event)
		}
		return s.assetUpdated(ctx, event)
	case store.Comments:
		if event.Kind == store.Create {
			return s.commentCreated(ctx, event)
		}
	case Signups:
		if event.Kind == store.Create {
			return s.userSignedUp(ctx, event)
		}
	case store.Users:
		if event.Kind == store.Update {
			return s.userUpdated(ctx, event)
		}
	case store.Profiles:
		if event.Kind == store.Update {
			return s.profileUpdated(ctx, event)
		}
	case store.Requests:
		if event.Kind == store.Create {
			return s.requestCreated(ctx, event)
		}
		return s.requestUpdated(ctx, event)
	case store.Authors:
		if event.Kind == store.Create {
			return s.authorCreated(ctx, event)
		}
		return s.authorUpdated(ctx, event)
	case store.Tweets:
		if event.Kind == store.Create {
			return s.tweetCreated(ctx, event)
		}
	case store.Mail:
		if event.Kind == store.Create {
			return s.mailCreated(ctx, event)
		}
	}
	return nil
}

// recordCreated appends a creation audit entry. History loss is an
// audit gap, never a reason to fail the pipeline.
func (s *Service) recordCreated(ctx context.Context, message string, event store.Event, actorField string) {
	actor, _ := snapshot.Ref(event.After, actorField)
	fields := snapshot.Normalize(event.After)
	if err := s.deps.History.Created(ctx, message, event.Ref(), fields, actor); err != nil {
		log.Printf("app: %s history for %s: %v", message, event.Ref().Path(), err)
	}
}

// recordEdited appends a mutation audit entry holding the structural
// diff of the normalized snapshots.
func (s *Service) recordEdited(ctx context.Context, message string, event store.Event) {
	actor, _ := snapshot.Ref(event.After, "lastModifiedBy")
	entries := diffSnapshots(event)
	if err := s.deps.History.Edited(ctx, message, event.Ref(), entries, actor); err != nil {
		log.Printf("app: %s history for %s: %v", message, event.Ref().Path(), err)
	}
}

func diffSnapshots(event store.Event) []diffs.Entry {
	return diffs.Diff(snapshot.Normalize(event.Before), snapshot.Normalize(event.After))
}

// sendWebhook fires a chat message. Broadcast failures are logged, not
// retried; a flaky webhook must not hold the event pending.
func (s *Service) sendWebhook(ctx context.Context, hook *broadcast.Webhook, content string, embeds []broadcast.Embed) {
	if err := hook.Send(ctx, content, embeds); err != nil {
		log.Printf("app: webhook: %v", err)
	}
}
