// Package dispatch classifies inbound wire events and routes each kind to
// its state mutation. Sender resolution tries the connection registry
// reverse-lookup first, then falls back to matching known contacts by
// derived peer identity.
package dispatch

import (
	"encoding/json"

	"backchannel/pkg/identity"
	"backchannel/pkg/logger"
	"backchannel/pkg/models"
	"backchannel/pkg/registry"
	"backchannel/pkg/state"
	"backchannel/pkg/telemetry"
	"backchannel/pkg/utils"
)

type handlerFunc func(d *Dispatcher, conn registry.Conn, contactID string, payload json.RawMessage)

var handlers = map[string]handlerFunc{
	models.EventProfileInfo: (*Dispatcher).handleProfileInfo,
	models.EventMessage:     (*Dispatcher).handleMessage,
	models.EventTyping:      (*Dispatcher).handleTyping,
	models.EventReaction:    (*Dispatcher).handleReaction,
}

type Dispatcher struct {
	reg   *registry.Registry
	store *state.Store
}

func New(reg *registry.Registry, store *state.Store) *Dispatcher {
	return &Dispatcher{reg: reg, store: store}
}

// Dispatch routes one inbound event. An unresolvable sender on anything but
// PROFILE_INFO is a benign drop: a message can race ahead of its sender's
// handshake, and partial loss of untrusted peer data is acceptable.
func (d *Dispatcher) Dispatch(conn registry.Conn, ev models.Event) {
	h, ok := handlers[ev.Type]
	if !ok {
		telemetry.EventsDropped.WithLabelValues("unknown_kind").Inc()
		logger.Debug("dispatch_unknown_kind", "kind", ev.Type, "peer", conn.RemotePeer())
		return
	}
	contactID, resolved := d.resolveSender(conn)
	if !resolved && ev.Type != models.EventProfileInfo {
		telemetry.EventsDropped.WithLabelValues("unknown_sender").Inc()
		logger.Debug("dispatch_unknown_sender", "kind", ev.Type, "peer", conn.RemotePeer())
		return
	}
	h(d, conn, contactID, ev.Payload)
	telemetry.EventsDispatched.WithLabelValues(ev.Type).Inc()
}

// resolveSender maps a connection to a contact id: registry key if the
// connection is already identity-keyed, otherwise a contact scan by the
// remote's derived peer identity.
func (d *Dispatcher) resolveSender(conn registry.Conn) (string, bool) {
	if key, ok := d.reg.FindKeyForConn(conn); ok {
		if _, known := d.store.Contact(key); known {
			return key, true
		}
	}
	return identity.ResolveContactForPeer(d.store.Contacts(), conn.RemotePeer())
}

// handleProfileInfo applies the idempotent contact upsert and upgrades the
// provisional registry entry to the contact id.
func (d *Dispatcher) handleProfileInfo(conn registry.Conn, _ string, payload json.RawMessage) {
	var p models.ProfileInfoPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Username == "" {
		telemetry.EventsDropped.WithLabelValues("malformed").Inc()
		logger.Debug("dispatch_malformed_profile", "peer", conn.RemotePeer(), "err", err)
		return
	}
	contactID, created := d.store.UpsertFromProfile(p)
	if key, ok := d.reg.FindKeyForConn(conn); ok && key != contactID {
		d.reg.Rekey(key, contactID)
	} else if !ok {
		d.reg.Register(contactID, conn)
	}
	d.store.SetOnline(contactID, true)
	if created {
		logger.Info("handshake_new_contact", "contact", contactID, "handle", p.Username)
	}
}

// handleMessage appends the peer message under a freshly generated local
// id; message identifiers are locally unique, never shared across peers.
func (d *Dispatcher) handleMessage(conn registry.Conn, contactID string, payload json.RawMessage) {
	var p models.MessagePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.MessageType == "" {
		telemetry.EventsDropped.WithLabelValues("malformed").Inc()
		logger.Debug("dispatch_malformed_message", "peer", conn.RemotePeer(), "err", err)
		return
	}
	msg := models.Message{
		ID:      utils.GenMessageID(),
		Sender:  contactID,
		Content: p.Content,
		Type:    p.MessageType,
		TS:      p.Timestamp,
		Meta:    p.Meta,
	}
	d.store.AppendMessage(contactID, msg)
	telemetry.MessagesReceived.Inc()
}

func (d *Dispatcher) handleTyping(_ registry.Conn, contactID string, payload json.RawMessage) {
	var p models.TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		telemetry.EventsDropped.WithLabelValues("malformed").Inc()
		return
	}
	d.store.SetTyping(contactID, p.IsTyping)
}

// handleReaction toggles the sender's reaction on the target message. A
// message id missing from the local session is a silent no-op.
func (d *Dispatcher) handleReaction(conn registry.Conn, contactID string, payload json.RawMessage) {
	var p models.ReactionPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.MessageID == "" {
		telemetry.EventsDropped.WithLabelValues("malformed").Inc()
		logger.Debug("dispatch_malformed_reaction", "peer", conn.RemotePeer(), "err", err)
		return
	}
	d.store.ToggleReaction(contactID, p.MessageID, contactID, p.Emoji)
}
