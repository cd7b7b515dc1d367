package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"arena/sync/internal/broadcast"
	"arena/sync/internal/snapshot"
	"arena/sync/internal/store"
	"arena/sync/internal/transition"
)

// assetCreated records history, alerts editors about unapproved
// submissions, and indexes assets that are born visible.
func (s *Service) assetCreated(ctx context.Context, event store.Event) error {
	s.recordCreated(ctx, "Created asset", event, "createdBy")

	facts := transition.Classify(nil, event.After)
	title := snapshot.String(event.After, "title")

	if facts.NotApproved {
		if err := s.deps.Notify.UnapprovedAsset(ctx, event.ID, event.After); err != nil {
			return err
		}
		if !facts.Private {
			content := fmt.Sprintf("Created asset %q by %s (posted by %s)",
				title, s.assetAuthorName(ctx, event), s.creatorUsername(ctx, event.After))
			embed := broadcast.ViewAssetEmbed(s.deps.SiteURL, event.ID, title)
			s.sendWebhook(ctx, s.deps.Editors, content, []broadcast.Embed{embed})
		}
		return nil
	}

	if facts.Private {
		return nil
	}

	var errs []error
	if err := s.deps.Tags.AddTags(ctx, snapshot.Strings(event.After, "tags")); err != nil {
		errs = append(errs, err)
	}
	if err := s.deps.Search.AssetCreated(ctx, event.ID, event.After, facts); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// assetUpdated records the diff, keeps the index consistent with the
// new visibility, and on an approval edge notifies the creator and
// broadcasts the asset. Each side effect fails independently; a partial
// failure leaves the completed effects in place and the event pending.
func (s *Service) assetUpdated(ctx context.Context, event store.Event) error {
	s.recordEdited(ctx, "Edited asset", event)

	facts := transition.Classify(event.Before, event.After)
	title := snapshot.String(event.After, "title")

	var errs []error
	if err := s.deps.Search.AssetUpdated(ctx, event.ID, event.After, facts); err != nil {
		errs = append(errs, err)
	}

	if facts.BecameApproved {
		if _, ok := snapshot.Ref(event.After, "createdBy"); !ok {
			// invalid precondition: approved asset without a creator
			log.Printf("app: asset %s approved but has no creator reference", event.ID)
			return errors.Join(errs...)
		}
		if err := s.deps.Notify.AssetApproved(ctx, event.ID, event.After); err != nil {
			errs = append(errs, err)
		}
		if err := s.deps.Tags.AddTags(ctx, snapshot.Strings(event.After, "tags")); err != nil {
			errs = append(errs, err)
		}
		if !facts.Adult && !facts.Private {
			status := fmt.Sprintf("New asset %q %s/assets/%s", title, s.deps.SiteURL, event.ID)
			if _, err := s.deps.Outbox.Queue(ctx, status); err != nil {
				errs = append(errs, err)
			}
			embed := broadcast.ViewAssetEmbed(s.deps.SiteURL, event.ID, title)
			s.sendWebhook(ctx, s.deps.Activity,
				fmt.Sprintf("Asset %q by %s was approved", title, s.assetAuthorName(ctx, event)),
				[]broadcast.Embed{embed})
		}
	}

	return errors.Join(errs...)
}

// assetAuthorName resolves the author display name the same way the
// index projection does, falling back rather than failing.
func (s *Service) assetAuthorName(ctx context.Context, event store.Event) string {
	return s.deps.Search.ProjectAsset(ctx, event.ID, event.After).AuthorName
}

// creatorUsername resolves the username behind a createdBy reference,
// degrading to a placeholder on any read failure.
func (s *Service) creatorUsername(ctx context.Context, fields map[string]any) string {
	creator, ok := snapshot.Ref(fields, "createdBy")
	if !ok {
		return "(unknown)"
	}
	doc, err := s.deps.Store.Get(ctx, creator.Collection, creator.ID)
	if err != nil {
		log.Printf("app: resolve creator %s: %v", creator.Path(), err)
		return "(unknown)"
	}
	if username := snapshot.String(doc.Fields, "username"); username != "" {
		return username
	}
	return "(unknown)"
}
