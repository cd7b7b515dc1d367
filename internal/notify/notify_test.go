package notify

import (
	"context"
	"errors"
	"testing"

	"arena/sync/internal/snapshot"
	"arena/sync/internal/store"
)

type fakeAuth struct {
	emails map[string]string
}

func (f fakeAuth) GetUserEmail(ctx context.Context, userID string) (string, error) {
	email, ok := f.emails[userID]
	if !ok {
		return "", errors.New("no auth record")
	}
	return email, nil
}

func notifications(t *testing.T, s *store.Memory) []store.Doc {
	t.Helper()
	docs, err := s.Query(context.Background(), store.Notifications, store.Query{})
	if err != nil {
		t.Fatalf("query notifications: %v", err)
	}
	return docs
}

func TestNotifyOmitsEmptyParent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	f := NewFanout(s, NoopAuth{}, 4, "Arena", "https://arena.test")

	err := f.Notify(ctx, store.NewRef(store.Users, "u1"), "hello", store.Ref{}, nil)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	docs := notifications(t, s)
	if len(docs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(docs))
	}
	fields := docs[0].Fields
	if _, present := fields["parent"]; present {
		t.Error("zero parent should be omitted")
	}
	if fields["isRead"] != false {
		t.Error("notification must start unread")
	}
	if recipient, ok := snapshot.Ref(fields, "recipient"); !ok || recipient.ID != "u1" {
		t.Errorf("recipient = %v ok = %v", recipient, ok)
	}
}

func TestUnapprovedAssetMailsOptedInEditors(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	users := map[string]map[string]any{
		"ed-override": {"isEditor": true, "username": "alpha"},
		"ed-opted":    {"isEditor": true, "username": "beta"},
		"ed-silent":   {"isEditor": true, "username": "gamma"},
		"reader":      {"isEditor": false, "username": "delta"},
	}
	for id, fields := range users {
		if err := s.Set(ctx, store.Users, id, fields); err != nil {
			t.Fatal(err)
		}
	}
	profiles := map[string]map[string]any{
		"ed-override": {"notificationEmail": "override@arena.test", "notifyOnUnapprovedAssets": false},
		"ed-opted":    {"notifyOnUnapprovedAssets": true},
		"ed-silent":   {"notifyOnUnapprovedAssets": false},
		"reader":      {"notifyOnUnapprovedAssets": true},
	}
	for id, fields := range profiles {
		if err := s.Set(ctx, store.Profiles, id, fields); err != nil {
			t.Fatal(err)
		}
	}

	auth := fakeAuth{emails: map[string]string{
		"ed-opted":  "opted@arena.test",
		"ed-silent": "silent@arena.test",
	}}
	f := NewFanout(s, auth, 2, "Arena", "https://arena.test")

	err := f.UnapprovedAsset(ctx, "a1", map[string]any{"title": "Fox Model"})
	if err != nil {
		t.Fatalf("UnapprovedAsset: %v", err)
	}

	mails, err := s.Query(ctx, store.Mail, store.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mails) != 1 {
		t.Fatalf("got %d mail records, want 1", len(mails))
	}

	bcc := snapshot.Strings(mails[0].Fields, "bcc")
	got := make(map[string]bool, len(bcc))
	for _, email := range bcc {
		got[email] = true
	}
	if len(bcc) != 2 || !got["override@arena.test"] || !got["opted@arena.test"] {
		t.Errorf("bcc = %v, want override and opted only", bcc)
	}

	message, _ := mails[0].Fields["message"].(map[string]any)
	if message["subject"] != "New unapproved asset at Arena" {
		t.Errorf("subject = %v", message["subject"])
	}
}

func TestUnapprovedAssetNoRecipientsNoMail(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	if err := s.Set(ctx, store.Users, "ed1", map[string]any{"isEditor": true}); err != nil {
		t.Fatal(err)
	}
	// profile exists but the editor never opted in
	if err := s.Set(ctx, store.Profiles, "ed1", map[string]any{"bio": ""}); err != nil {
		t.Fatal(err)
	}

	f := NewFanout(s, NoopAuth{}, 2, "Arena", "https://arena.test")
	if err := f.UnapprovedAsset(ctx, "a1", map[string]any{"title": "Fox"}); err != nil {
		t.Fatalf("UnapprovedAsset: %v", err)
	}

	mails, _ := s.Query(ctx, store.Mail, store.Query{})
	if len(mails) != 0 {
		t.Errorf("got %d mail records, want none", len(mails))
	}
}

func TestUnapprovedAssetSkipsUnreadableEditor(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	// editor with no profile document at all
	if err := s.Set(ctx, store.Users, "ghost", map[string]any{"isEditor": true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, store.Users, "ed1", map[string]any{"isEditor": true}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, store.Profiles, "ed1", map[string]any{"notificationEmail": "ed1@arena.test"}); err != nil {
		t.Fatal(err)
	}

	f := NewFanout(s, NoopAuth{}, 2, "Arena", "https://arena.test")
	if err := f.UnapprovedAsset(ctx, "a1", map[string]any{"title": "Fox"}); err != nil {
		t.Fatalf("UnapprovedAsset: %v", err)
	}

	mails, _ := s.Query(ctx, store.Mail, store.Query{})
	if len(mails) != 1 {
		t.Fatalf("got %d mail records, want 1", len(mails))
	}
	bcc := snapshot.Strings(mails[0].Fields, "bcc")
	if len(bcc) != 1 || bcc[0] != "ed1@arena.test" {
		t.Errorf("bcc = %v", bcc)
	}
}

func TestAssetApprovedNotifiesCreator(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	f := NewFanout(s, NoopAuth{}, 2, "Arena", "https://arena.test")

	asset := map[string]any{
		"title":     "Fox Model",
		"createdBy": store.NewRef(store.Users, "u1"),
	}
	if err := f.AssetApproved(ctx, "a1", asset); err != nil {
		t.Fatalf("AssetApproved: %v", err)
	}

	docs := notifications(t, s)
	if len(docs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(docs))
	}
	fields := docs[0].Fields
	if fields["message"] != "Your asset was approved" {
		t.Errorf("message = %v", fields["message"])
	}
	if parent, ok := snapshot.Ref(fields, "parent"); !ok || parent.Path() != "assets/a1" {
		t.Errorf("parent = %v", fields["parent"])
	}

	// creator reference missing is a hard error: the caller decides
	// whether to retry
	if err := f.AssetApproved(ctx, "a2", map[string]any{"title": "Orphan"}); err == nil {
		t.Error("expected error for asset without creator")
	}
}

func TestCommentCreatedNotifiesOwner(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	if err := s.Set(ctx, store.Assets, "a1", map[string]any{
		"createdBy": store.NewRef(store.Users, "owner"),
	}); err != nil {
		t.Fatal(err)
	}

	f := NewFanout(s, NoopAuth{}, 2, "Arena", "https://arena.test")

	comment := map[string]any{
		"parent":    store.NewRef(store.Assets, "a1"),
		"createdBy": store.NewRef(store.Users, "owner"),
	}
	if err := f.CommentCreated(ctx, "c1", comment); err != nil {
		t.Fatalf("CommentCreated: %v", err)
	}

	docs := notifications(t, s)
	if len(docs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(docs))
	}
	// commenting on your own asset still notifies you
	if recipient, _ := snapshot.Ref(docs[0].Fields, "recipient"); recipient.ID != "owner" {
		t.Errorf("recipient = %v", recipient)
	}
	if docs[0].Fields["message"] != "Someone commented on your asset" {
		t.Errorf("message = %v", docs[0].Fields["message"])
	}
}

func TestCommentOnProfileNotifiesAccount(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	f := NewFanout(s, NoopAuth{}, 2, "Arena", "https://arena.test")

	comment := map[string]any{"parent": store.NewRef(store.Users, "u9")}
	if err := f.CommentCreated(ctx, "c1", comment); err != nil {
		t.Fatalf("CommentCreated: %v", err)
	}

	docs := notifications(t, s)
	if len(docs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(docs))
	}
	if recipient, _ := snapshot.Ref(docs[0].Fields, "recipient"); recipient.Path() != "users/u9" {
		t.Errorf("recipient = %v", recipient)
	}
}

func TestTaggedUser(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	if err := s.Set(ctx, store.Users, "u1", map[string]any{"username": "alice"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, store.Users, "u2", map[string]any{"username": "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, store.Users, "u3", map[string]any{"username": "bob"}); err != nil {
		t.Fatal(err)
	}

	f := NewFanout(s, NoopAuth{}, 2, "Arena", "https://arena.test")

	cases := []struct {
		name string
		body string
		want int
	}{
		{"one match", "@alice check this out", 1},
		{"no match", "@nobody hello", 0},
		{"ambiguous match", "@bob hello", 0},
		{"no tag", "plain comment", 0},
		{"tag not at start", "hello @alice", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(notifications(t, s))
			comment := map[string]any{
				"comment": tc.body,
				"parent":  store.NewRef(store.Assets, "a1"),
			}
			if err := f.TaggedUser(ctx, comment); err != nil {
				t.Fatalf("TaggedUser: %v", err)
			}
			if got := len(notifications(t, s)) - before; got != tc.want {
				t.Errorf("got %d new notifications, want %d", got, tc.want)
			}
		})
	}
}

func TestParseTag(t *testing.T) {
	cases := map[string]string{
		"@alice hi":  "alice",
		"@alice":     "alice",
		"hi @alice":  "",
		"":           "",
		"@ leading":  "",
		"email@x hi": "",
	}
	for body, want := range cases {
		if got := parseTag(body); got != want {
			t.Errorf("parseTag(%q) = %q, want %q", body, got, want)
		}
	}
}
