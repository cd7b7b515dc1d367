// Package notify resolves document events into per-user notification
// records and batched email records. Notifications are created here and
// only ever read or marked-read by the site.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"arena/sync/internal/snapshot"
	"arena/sync/internal/store"
)

// AuthProvider resolves the email address registered with the external
// authentication service.
type AuthProvider interface {
	GetUserEmail(ctx context.Context, userID string) (string, error)
}

// NoopAuth is used when no authentication provider is wired. Editors
// without an explicit notification email are then skipped.
type NoopAuth struct{}

func (NoopAuth) GetUserEmail(ctx context.Context, userID string) (string, error) {
	return "", nil
}

// Fanout writes notification and mail records for document events.
type Fanout struct {
	store    store.Store
	auth     AuthProvider
	limit    int
	siteName string
	siteURL  string
}

func NewFanout(s store.Store, auth AuthProvider, limit int, siteName, siteURL string) *Fanout {
	if limit < 1 {
		limit = 1
	}
	return &Fanout{store: s, auth: auth, limit: limit, siteName: siteName, siteURL: siteURL}
}

// Notify inserts one notification record. data may be nil and is then
// omitted from the stored record.
func (f *Fanout) Notify(ctx context.Context, recipient store.Ref, message string, parent store.Ref, data map[string]any) error {
	record := map[string]any{
		"recipient": recipient,
		"message":   message,
		"isRead":    false,
		"createdAt": store.Now(),
	}
	if !parent.IsZero() {
		record["parent"] = parent
	}
	if data != nil {
		record["data"] = data
	}
	if _, err := f.store.Add(ctx, store.Notifications, record); err != nil {
		return fmt.Errorf("notify %s: %w", recipient.Path(), err)
	}
	return nil
}

// UnapprovedAsset emails every editor who opted in about a freshly
// created, not-yet-approved asset. Editors are resolved concurrently
// with a bounded fanout; a single editor whose profile or auth record
// cannot be read is skipped, not fatal. All recipients go into one BCC
// batch; zero recipients means no mail record at all.
func (f *Fanout) UnapprovedAsset(ctx context.Context, assetID string, asset map[string]any) error {
	editors, err := f.store.Query(ctx, store.Users, store.Query{
		Wheres: []store.Where{{Field: "isEditor", Value: true}},
	})
	if err != nil {
		return fmt.Errorf("list editors: %w", err)
	}

	var (
		mu         sync.Mutex
		recipients []string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.limit)
	for _, editor := range editors {
		group.Go(func() error {
			email := f.editorEmail(groupCtx, editor.ID)
			if email == "" {
				return nil
			}
			mu.Lock()
			recipients = append(recipients, email)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if len(recipients) == 0 {
		return nil
	}

	title := snapshot.String(asset, "title")
	text := fmt.Sprintf("Hi. The asset %s with ID %s has just been created and is waiting for approval :)", title, assetID)
	mail := map[string]any{
		"bcc": recipients,
		"message": map[string]any{
			"subject": "New unapproved asset at " + f.siteName,
			"text":    text,
			"html":    text,
		},
	}
	if _, err := f.store.Add(ctx, store.Mail, mail); err != nil {
		return fmt.Errorf("queue editor mail for asset %s: %w", assetID, err)
	}
	return nil
}

// editorEmail picks the explicit notification override when the profile
// has one, otherwise the auth-provider email for opted-in editors.
func (f *Fanout) editorEmail(ctx context.Context, editorID string) string {
	profile, err := f.store.Get(ctx, store.Profiles, editorID)
	if err != nil {
		log.Printf("notify: read profile %s: %v", editorID, err)
		return ""
	}
	if email := snapshot.String(profile.Fields, "notificationEmail"); email != "" {
		return email
	}
	if !snapshot.Bool(profile.Fields, "notifyOnUnapprovedAssets") {
		return ""
	}
	email, err := f.auth.GetUserEmail(ctx, editorID)
	if err != nil {
		log.Printf("notify: resolve auth email for %s: %v", editorID, err)
		return ""
	}
	return email
}

// AssetApproved notifies the asset's creator about the approval.
func (f *Fanout) AssetApproved(ctx context.Context, assetID string, asset map[string]any) error {
	creator, ok := snapshot.Ref(asset, "createdBy")
	if !ok {
		return fmt.Errorf("asset %s has no creator reference", assetID)
	}
	parent := store.NewRef(store.Assets, assetID)
	return f.Notify(ctx, creator, "Your asset was approved", parent, map[string]any{
		"title": snapshot.String(asset, "title"),
	})
}

// CommentCreated notifies the owner of whatever the comment was left on:
// the creator of an asset, or the account a profile belongs to. The
// comment author is not excluded when commenting on their own content.
func (f *Fanout) CommentCreated(ctx context.Context, commentID string, comment map[string]any) error {
	parent, ok := snapshot.Ref(comment, "parent")
	if !ok {
		return fmt.Errorf("comment %s has no parent reference", commentID)
	}

	owner, message, err := f.commentOwner(ctx, parent)
	if err != nil {
		return err
	}
	if owner.IsZero() {
		return nil
	}
	return f.Notify(ctx, owner, message, parent, nil)
}

func (f *Fanout) commentOwner(ctx context.Context, parent store.Ref) (store.Ref, string, error) {
	switch parent.Collection {
	case store.Assets:
		asset, err := f.store.Get(ctx, parent.Collection, parent.ID)
		if err != nil {
			return store.Ref{}, "", fmt.Errorf("resolve comment parent %s: %w", parent.Path(), err)
		}
		creator, ok := snapshot.Ref(asset.Fields, "createdBy")
		if !ok {
			return store.Ref{}, "", nil
		}
		return creator, "Someone commented on your asset", nil
	case store.Users:
		return parent, "Someone commented on your profile", nil
	default:
		return store.Ref{}, "", nil
	}
}

// TaggedUser resolves an "@username ..." comment body to at most one
// user and notifies them. Zero or multiple matches are a silent no-op,
// not an error.
func (f *Fanout) TaggedUser(ctx context.Context, comment map[string]any) error {
	body := snapshot.String(comment, "comment")
	username := parseTag(body)
	if username == "" {
		return nil
	}

	matches, err := f.store.Query(ctx, store.Users, store.Query{
		Wheres: []store.Where{{Field: "username", Value: username}},
		Limit:  2,
	})
	if err != nil {
		return fmt.Errorf("resolve tagged user %q: %w", username, err)
	}
	if len(matches) != 1 {
		return nil
	}

	parent, _ := snapshot.Ref(comment, "parent")
	recipient := matches[0].Ref(store.Users)
	return f.Notify(ctx, recipient, "You were tagged in a comment", parent, nil)
}

// parseTag returns the token between a leading "@" and the first space.
func parseTag(body string) string {
	if !strings.HasPrefix(body, "@") {
		return ""
	}
	token := body[1:]
	if i := strings.IndexByte(token, ' '); i >= 0 {
		token = token[:i]
	}
	return token
}
