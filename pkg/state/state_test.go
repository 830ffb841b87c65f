package state

import (
	"strings"
	"testing"

	"backchannel/pkg/models"
)

func testContact(id string) models.Contact {
	return models.Contact{ID: id, Handle: id, DisplayName: id}
}

func TestAppendMessageUpdatesPreviewAndUnread(t *testing.T) {
	s := New()
	s.AddContact(testContact("user-1"))
	ok := s.AppendMessage("user-1", models.Message{
		ID: "m1", Sender: "user-1", Content: "hey there", Type: models.MessageText,
	})
	if !ok {
		t.Fatalf("append failed")
	}
	c, _ := s.Contact("user-1")
	if c.Preview != "hey there" {
		t.Fatalf("expected preview %q got %q", "hey there", c.Preview)
	}
	if c.Unread != 1 {
		t.Fatalf("expected unread 1 got %d", c.Unread)
	}
	if c.LastSeen != "now" {
		t.Fatalf("expected last seen now got %q", c.LastSeen)
	}
}

func TestAppendMessageSelfDoesNotIncrementUnread(t *testing.T) {
	s := New()
	s.AddContact(testContact("user-1"))
	s.AppendMessage("user-1", models.Message{ID: "m1", Sender: models.SelfID, Content: "hi", Type: models.MessageText})
	c, _ := s.Contact("user-1")
	if c.Unread != 0 {
		t.Fatalf("own messages must not count as unread, got %d", c.Unread)
	}
}

func TestAppendMessageFocusedSuppressesUnread(t *testing.T) {
	s := New()
	s.AddContact(testContact("user-1"))
	s.SetFocus("user-1")
	s.AppendMessage("user-1", models.Message{ID: "m1", Sender: "user-1", Content: "hi", Type: models.MessageText})
	c, _ := s.Contact("user-1")
	if c.Unread != 0 {
		t.Fatalf("focused chat must not accrue unread, got %d", c.Unread)
	}
	s.SetFocus("")
	s.AppendMessage("user-1", models.Message{ID: "m2", Sender: "user-1", Content: "hi again", Type: models.MessageText})
	c, _ = s.Contact("user-1")
	if c.Unread != 1 {
		t.Fatalf("expected unread 1 after blur, got %d", c.Unread)
	}
}

func TestAppendMessageClearsTyping(t *testing.T) {
	s := New()
	s.AddContact(testContact("user-1"))
	s.SetTyping("user-1", true)
	s.AppendMessage("user-1", models.Message{ID: "m1", Sender: "user-1", Content: "done", Type: models.MessageText})
	if s.Typing("user-1") {
		t.Fatalf("typing flag must clear when the message arrives")
	}
}

func TestAppendMessageUnknownContact(t *testing.T) {
	s := New()
	if s.AppendMessage("ghost", models.Message{ID: "m1"}) {
		t.Fatalf("append to unknown contact must fail")
	}
}

func TestPreviewKinds(t *testing.T) {
	s := New()
	s.AddContact(testContact("user-1"))
	s.AppendMessage("user-1", models.Message{ID: "m1", Sender: "user-1", Content: "data:image/png;base64,xxx", Type: models.MessageImage})
	if c, _ := s.Contact("user-1"); c.Preview != "Sent an image" {
		t.Fatalf("expected image preview got %q", c.Preview)
	}
	s.AppendMessage("user-1", models.Message{ID: "m2", Sender: "user-1", Content: "data:audio/webm;base64,xxx", Type: models.MessageAudio})
	if c, _ := s.Contact("user-1"); c.Preview != "Sent a voice message" {
		t.Fatalf("expected audio preview got %q", c.Preview)
	}
	long := strings.Repeat("x", 300)
	s.AppendMessage("user-1", models.Message{ID: "m3", Sender: "user-1", Content: long, Type: models.MessageText})
	if c, _ := s.Contact("user-1"); len(c.Preview) > 120 {
		t.Fatalf("expected truncated preview, got %d chars", len(c.Preview))
	}
}

func TestToggleReaction(t *testing.T) {
	s := New()
	s.AddContact(testContact("user-1"))
	s.AppendMessage("user-1", models.Message{ID: "m1", Sender: "user-1", Content: "hi", Type: models.MessageText})

	if !s.ToggleReaction("user-1", "m1", models.SelfID, "❤️") {
		t.Fatalf("first toggle should apply")
	}
	msgs := s.Messages("user-1")
	if msgs[0].Reactions[models.SelfID] != "❤️" {
		t.Fatalf("expected reaction stored, got %v", msgs[0].Reactions)
	}

	// different emoji replaces
	s.ToggleReaction("user-1", "m1", models.SelfID, "👍")
	msgs = s.Messages("user-1")
	if msgs[0].Reactions[models.SelfID] != "👍" {
		t.Fatalf("expected replacement, got %v", msgs[0].Reactions)
	}

	// same emoji removes
	s.ToggleReaction("user-1", "m1", models.SelfID, "👍")
	msgs = s.Messages("user-1")
	if _, ok := msgs[0].Reactions[models.SelfID]; ok {
		t.Fatalf("expected reaction removed, got %v", msgs[0].Reactions)
	}
}

func TestToggleReactionUnknownMessage(t *testing.T) {
	s := New()
	s.AddContact(testContact("user-1"))
	if s.ToggleReaction("user-1", "missing", models.SelfID, "❤️") {
		t.Fatalf("unknown message id must be a no-op")
	}
}

func TestUpsertFromProfile(t *testing.T) {
	s := New()
	id, created := s.UpsertFromProfile(models.ProfileInfoPayload{Username: "cool_alex", DisplayName: "Alex"})
	if !created || id == "" {
		t.Fatalf("expected new contact, got id=%q created=%v", id, created)
	}
	c, _ := s.Contact(id)
	if !c.Online || c.DisplayName != "Alex" {
		t.Fatalf("unexpected contact after upsert: %+v", c)
	}

	// retransmit with refreshed fields is idempotent on identity
	id2, created2 := s.UpsertFromProfile(models.ProfileInfoPayload{Username: "cool_alex", DisplayName: "Alexander", Avatar: "😎"})
	if created2 || id2 != id {
		t.Fatalf("expected same contact, got id=%q created=%v", id2, created2)
	}
	c, _ = s.Contact(id)
	if c.DisplayName != "Alexander" || c.Avatar != "😎" {
		t.Fatalf("expected refreshed fields, got %+v", c)
	}
	if len(s.Contacts()) != 1 {
		t.Fatalf("expected 1 contact got %d", len(s.Contacts()))
	}
}

func TestSetOnline(t *testing.T) {
	s := New()
	s.AddContact(testContact("user-1"))
	s.SetOnline("user-1", true)
	if c, _ := s.Contact("user-1"); !c.Online {
		t.Fatalf("expected online")
	}
	s.SetOnline("user-1", false)
	c, _ := s.Contact("user-1")
	if c.Online || c.LastSeen != "recently" {
		t.Fatalf("expected offline with last seen recently, got %+v", c)
	}
}

func TestSeedBuiltinsIdempotent(t *testing.T) {
	s := New()
	s.SeedBuiltins()
	n := len(s.Contacts())
	if n == 0 {
		t.Fatalf("expected seeded contacts")
	}
	s.SeedBuiltins()
	if len(s.Contacts()) != n {
		t.Fatalf("seeding twice changed contact count: %d -> %d", n, len(s.Contacts()))
	}
	bots := 0
	for _, c := range s.Contacts() {
		if c.IsBot {
			bots++
			if !c.Online {
				t.Fatalf("bot %s must be online", c.ID)
			}
		}
	}
	if bots != 2 {
		t.Fatalf("expected 2 bots got %d", bots)
	}
}

func TestThemeMetadataIndependentOfSession(t *testing.T) {
	s := New()
	s.SetTheme("user-1", "sunset")
	if s.Meta("user-1").Theme != "sunset" {
		t.Fatalf("expected theme stored")
	}
	if len(s.Messages("user-1")) != 0 {
		t.Fatalf("theme must not touch the session")
	}
}

func TestWatchCoalesces(t *testing.T) {
	s := New()
	ch := s.Watch()
	s.AddContact(testContact("user-1"))
	s.SetTyping("user-1", true)
	s.SetTyping("user-1", false)
	select {
	case <-ch:
	default:
		t.Fatalf("expected at least one notification")
	}
}

func TestReconcileDerived(t *testing.T) {
	s := New()
	drifted := testContact("user-1")
	drifted.Preview = "stale preview"
	drifted.Unread = 7
	s.AddContact(drifted)
	s.AppendMessage("user-1", models.Message{ID: "m1", Sender: "user-1", Content: "actual last", Type: models.MessageText})
	// simulate drift: contact fields out of step with the session
	s.mu.Lock()
	s.contacts["user-1"].Preview = "stale preview"
	s.contacts["user-1"].Unread = 7
	s.mu.Unlock()

	if fixed := s.ReconcileDerived(); fixed != 1 {
		t.Fatalf("expected 1 contact corrected got %d", fixed)
	}
	c, _ := s.Contact("user-1")
	if c.Preview != "actual last" {
		t.Fatalf("expected preview recomputed, got %q", c.Preview)
	}
	if c.Unread != 1 {
		t.Fatalf("expected unread clamped to peer messages, got %d", c.Unread)
	}
	// a consistent store is left alone
	if fixed := s.ReconcileDerived(); fixed != 0 {
		t.Fatalf("expected no corrections on second pass got %d", fixed)
	}
}

func TestReconcileDerivedFocusedZeroesUnread(t *testing.T) {
	s := New()
	s.AddContact(testContact("user-1"))
	s.AppendMessage("user-1", models.Message{ID: "m1", Sender: "user-1", Content: "hi", Type: models.MessageText})
	s.SetFocus("user-1")
	s.mu.Lock()
	s.contacts["user-1"].Unread = 3
	s.mu.Unlock()
	if fixed := s.ReconcileDerived(); fixed != 1 {
		t.Fatalf("expected 1 contact corrected got %d", fixed)
	}
	if c, _ := s.Contact("user-1"); c.Unread != 0 {
		t.Fatalf("focused chat must reconcile to zero unread, got %d", c.Unread)
	}
}
