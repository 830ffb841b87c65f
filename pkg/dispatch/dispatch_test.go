package dispatch

import (
	"encoding/json"
	"testing"

	"backchannel/pkg/identity"
	"backchannel/pkg/models"
	"backchannel/pkg/registry"
	"backchannel/pkg/state"
)

type fakeConn struct {
	peer   string
	sent   []models.Event
	closed bool
}

func (f *fakeConn) Send(ev models.Event) error { f.sent = append(f.sent, ev); return nil }
func (f *fakeConn) RemotePeer() string         { return f.peer }
func (f *fakeConn) Close() error               { f.closed = true; return nil }

func mustEvent(t *testing.T, kind string, payload any) models.Event {
	t.Helper()
	ev, err := models.NewEvent(kind, payload)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	return ev
}

// A peer connects, handshakes, then sends a message: one contact is
// created and the message lands in its session with unread 1.
func TestHandshakeThenMessage(t *testing.T) {
	st := state.New()
	reg := registry.New()
	d := New(reg, st)
	conn := &fakeConn{peer: "12D3KooWinbound"}
	reg.Register(conn.peer, conn) // provisional entry, keyed by routing token

	d.Dispatch(conn, mustEvent(t, models.EventProfileInfo, models.ProfileInfoPayload{
		Username: "cool_alex", DisplayName: "Alex",
	}))
	contacts := st.Contacts()
	if len(contacts) != 1 {
		t.Fatalf("expected 1 contact got %d", len(contacts))
	}
	contactID := contacts[0].ID
	if !contacts[0].Online {
		t.Fatalf("contact must be online after handshake")
	}
	if _, ok := reg.Get(contactID); !ok {
		t.Fatalf("registry entry must be re-keyed to contact id")
	}
	if _, ok := reg.Get(conn.peer); ok {
		t.Fatalf("provisional key must be gone")
	}

	d.Dispatch(conn, mustEvent(t, models.EventMessage, models.MessagePayload{
		Content: "hello!", MessageType: models.MessageText, Timestamp: 1700000000000,
	}))
	msgs := st.Messages(contactID)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message got %d", len(msgs))
	}
	if msgs[0].Sender != contactID || msgs[0].Content != "hello!" {
		t.Fatalf("unexpected message %+v", msgs[0])
	}
	if msgs[0].ID == "" {
		t.Fatalf("inbound messages must get a fresh local id")
	}
	c, _ := st.Contact(contactID)
	if c.Unread != 1 {
		t.Fatalf("expected unread 1 got %d", c.Unread)
	}
}

// Handshake retransmits are harmless: same contact, refreshed fields.
func TestHandshakeIdempotent(t *testing.T) {
	st := state.New()
	reg := registry.New()
	d := New(reg, st)
	conn := &fakeConn{peer: "12D3KooWinbound"}
	reg.Register(conn.peer, conn)

	p := models.ProfileInfoPayload{Username: "cool_alex", DisplayName: "Alex"}
	d.Dispatch(conn, mustEvent(t, models.EventProfileInfo, p))
	d.Dispatch(conn, mustEvent(t, models.EventProfileInfo, p))
	if len(st.Contacts()) != 1 {
		t.Fatalf("retransmitted handshake created a duplicate contact")
	}
}

// A message from a connection with no handshake and no matching contact is
// dropped without touching state.
func TestUnknownSenderMessageDropped(t *testing.T) {
	st := state.New()
	reg := registry.New()
	d := New(reg, st)
	conn := &fakeConn{peer: "12D3KooWstranger"}

	d.Dispatch(conn, mustEvent(t, models.EventMessage, models.MessagePayload{
		Content: "who dis", MessageType: models.MessageText,
	}))
	if len(st.Contacts()) != 0 {
		t.Fatalf("drop must not create contacts")
	}
}

// Sender resolution falls back to the derived peer identity when the
// connection was never re-keyed (message raced ahead of the handshake).
func TestResolveByDerivedPeerIdentity(t *testing.T) {
	st := state.New()
	st.AddContact(models.Contact{ID: "user-1", Handle: "cool_alex", DisplayName: "Alex"})
	pid, err := identity.PeerIDForAddress("cool_alex")
	if err != nil {
		t.Fatalf("peer id: %v", err)
	}
	reg := registry.New()
	d := New(reg, st)
	conn := &fakeConn{peer: pid.String()}

	d.Dispatch(conn, mustEvent(t, models.EventTyping, models.TypingPayload{IsTyping: true}))
	if !st.Typing("user-1") {
		t.Fatalf("expected typing flag for resolved contact")
	}
}

func TestReactionUnknownMessageNoOp(t *testing.T) {
	st := state.New()
	st.AddContact(models.Contact{ID: "user-1", Handle: "cool_alex"})
	reg := registry.New()
	conn := &fakeConn{peer: "p1"}
	reg.Register("user-1", conn)
	d := New(reg, st)

	d.Dispatch(conn, mustEvent(t, models.EventReaction, models.ReactionPayload{
		MessageID: "missing", Emoji: "❤️",
	}))
	if len(st.Messages("user-1")) != 0 {
		t.Fatalf("no-op reaction must not touch the session")
	}
}

func TestReactionToggleFromPeer(t *testing.T) {
	st := state.New()
	st.AddContact(models.Contact{ID: "user-1", Handle: "cool_alex"})
	st.AppendMessage("user-1", models.Message{ID: "m1", Sender: models.SelfID, Content: "hi", Type: models.MessageText})
	reg := registry.New()
	conn := &fakeConn{peer: "p1"}
	reg.Register("user-1", conn)
	d := New(reg, st)

	d.Dispatch(conn, mustEvent(t, models.EventReaction, models.ReactionPayload{MessageID: "m1", Emoji: "❤️"}))
	msgs := st.Messages("user-1")
	if msgs[0].Reactions["user-1"] != "❤️" {
		t.Fatalf("expected peer reaction, got %v", msgs[0].Reactions)
	}
	d.Dispatch(conn, mustEvent(t, models.EventReaction, models.ReactionPayload{MessageID: "m1", Emoji: "❤️"}))
	msgs = st.Messages("user-1")
	if len(msgs[0].Reactions) != 0 {
		t.Fatalf("same emoji from peer must remove, got %v", msgs[0].Reactions)
	}
}

func TestUnknownKindDropped(t *testing.T) {
	st := state.New()
	reg := registry.New()
	conn := &fakeConn{peer: "p1"}
	reg.Register("user-1", conn)
	st.AddContact(models.Contact{ID: "user-1", Handle: "cool_alex"})
	d := New(reg, st)

	d.Dispatch(conn, models.Event{Type: "NOT_A_KIND", Payload: json.RawMessage(`{}`)})
	if len(st.Messages("user-1")) != 0 {
		t.Fatalf("unknown kind must be dropped")
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	st := state.New()
	st.AddContact(models.Contact{ID: "user-1", Handle: "cool_alex"})
	reg := registry.New()
	conn := &fakeConn{peer: "p1"}
	reg.Register("user-1", conn)
	d := New(reg, st)

	d.Dispatch(conn, models.Event{Type: models.EventMessage, Payload: json.RawMessage(`{"messageType":`)})
	if len(st.Messages("user-1")) != 0 {
		t.Fatalf("malformed payload must be dropped")
	}
}
