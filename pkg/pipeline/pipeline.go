// Package pipeline composes locally-originated messages: local echo into
// the chat state first, then transmission through the connection registry
// for human contacts, or a responder turn for bots.
package pipeline

import (
	"context"
	"time"

	"backchannel/pkg/logger"
	"backchannel/pkg/models"
	"backchannel/pkg/registry"
	"backchannel/pkg/responder"
	"backchannel/pkg/state"
	"backchannel/pkg/telemetry"
	"backchannel/pkg/utils"
)

// Responder is the external AI collaborator. May be nil when bots are
// disabled.
type Responder interface {
	Respond(ctx context.Context, contact models.Contact, history []models.Message) ([]responder.Reply, error)
}

// Parts is one send call's content. Image and Audio carry base64 data
// URLs. Each non-empty part becomes its own message with its own id and
// timestamp, in image, audio, text order.
type Parts struct {
	Text      string
	Image     string
	Audio     string
	AudioMime string
}

const responderTimeout = 60 * time.Second

type Pipeline struct {
	store *state.Store
	reg   *registry.Registry
	resp  Responder
}

func New(store *state.Store, reg *registry.Registry, resp Responder) *Pipeline {
	return &Pipeline{store: store, reg: reg, resp: resp}
}

// SendMessage appends each non-empty part locally and, for human contacts
// with an open connection, transmits a MESSAGE event per part. A transmit
// failure on one part leaves it correctly appended locally and does not
// stop later parts. Bot contacts skip the network and get a responder
// turn instead.
func (p *Pipeline) SendMessage(ctx context.Context, contactID string, parts Parts) ([]models.Message, error) {
	contact, ok := p.store.Contact(contactID)
	if !ok {
		return nil, ErrUnknownContact
	}
	var msgs []models.Message
	if parts.Image != "" {
		msgs = append(msgs, models.Message{
			ID: utils.GenMessageID(), Sender: models.SelfID,
			Content: parts.Image, Type: models.MessageImage,
			TS: time.Now().UnixMilli(),
		})
	}
	if parts.Audio != "" {
		m := models.Message{
			ID: utils.GenMessageID(), Sender: models.SelfID,
			Content: parts.Audio, Type: models.MessageAudio,
			TS: time.Now().UnixMilli(),
		}
		if parts.AudioMime != "" {
			m.Meta = &models.MessageMeta{MimeType: parts.AudioMime}
		}
		msgs = append(msgs, m)
	}
	if parts.Text != "" {
		msgs = append(msgs, models.Message{
			ID: utils.GenMessageID(), Sender: models.SelfID,
			Content: parts.Text, Type: models.MessageText,
			TS: time.Now().UnixMilli(),
		})
	}
	if len(msgs) == 0 {
		return nil, ErrEmptyMessage
	}

	conn, online := p.reg.Get(contactID)
	transmitted := false
	for _, m := range msgs {
		p.store.AppendMessage(contactID, m)
		if contact.IsBot || !online {
			continue
		}
		ev, err := models.NewEvent(models.EventMessage, models.MessagePayload{
			Content: m.Content, MessageType: m.Type, Timestamp: m.TS, Meta: m.Meta,
		})
		if err != nil {
			continue
		}
		if err := conn.Send(ev); err != nil {
			logger.Warn("send_message_transmit_failed", "contact", contactID, "msg", m.ID, "err", err)
			continue
		}
		transmitted = true
		telemetry.MessagesSent.Inc()
	}
	// retransmit our profile after a successful human send so a peer that
	// missed the handshake can still resolve us
	if transmitted {
		p.sendProfile(conn)
	}
	if contact.IsBot {
		go p.respondAsBot(contact)
	}
	return msgs, nil
}

// respondAsBot runs one responder turn: typing flag on, invoke with full
// history, append whatever comes back with sender = the bot's id. Any
// failure is a silent no-op; the typing flag clears on every path.
func (p *Pipeline) respondAsBot(contact models.Contact) {
	if p.resp == nil {
		return
	}
	p.store.SetTyping(contact.ID, true)
	defer p.store.SetTyping(contact.ID, false)
	ctx, cancel := context.WithTimeout(context.Background(), responderTimeout)
	defer cancel()
	replies, err := p.resp.Respond(ctx, contact, p.store.Messages(contact.ID))
	if err != nil {
		telemetry.ResponderCalls.WithLabelValues("error").Inc()
		logger.Warn("responder_failed", "contact", contact.ID, "err", err)
		return
	}
	telemetry.ResponderCalls.WithLabelValues("ok").Inc()
	for _, rep := range replies {
		if rep.ImageData != "" {
			p.store.AppendMessage(contact.ID, models.Message{
				ID: utils.GenMessageID(), Sender: contact.ID,
				Content: rep.ImageData, Type: models.MessageImage,
				TS: time.Now().UnixMilli(),
			})
		}
		if rep.Text != "" {
			p.store.AppendMessage(contact.ID, models.Message{
				ID: utils.GenMessageID(), Sender: contact.ID,
				Content: rep.Text, Type: models.MessageText,
				TS: time.Now().UnixMilli(),
			})
		}
	}
}

// ToggleReaction applies the local toggle and mirrors it to the peer when
// a connection is open. One wire event per toggle, even when the toggle
// removes the reaction.
func (p *Pipeline) ToggleReaction(contactID, messageID, emoji string) bool {
	changed := p.store.ToggleReaction(contactID, messageID, models.SelfID, emoji)
	if !changed {
		return false
	}
	contact, ok := p.store.Contact(contactID)
	if !ok || contact.IsBot {
		return true
	}
	if conn, online := p.reg.Get(contactID); online {
		ev, err := models.NewEvent(models.EventReaction, models.ReactionPayload{
			MessageID: messageID, Emoji: emoji,
		})
		if err == nil {
			if err := conn.Send(ev); err != nil {
				logger.Debug("send_reaction_failed", "contact", contactID, "err", err)
			}
		}
	}
	return true
}

// SendTyping mirrors the local composing state to a human peer.
func (p *Pipeline) SendTyping(contactID string, isTyping bool) {
	contact, ok := p.store.Contact(contactID)
	if !ok || contact.IsBot {
		return
	}
	conn, online := p.reg.Get(contactID)
	if !online {
		return
	}
	ev, err := models.NewEvent(models.EventTyping, models.TypingPayload{IsTyping: isTyping})
	if err != nil {
		return
	}
	if err := conn.Send(ev); err != nil {
		logger.Debug("send_typing_failed", "contact", contactID, "err", err)
	}
}

func (p *Pipeline) sendProfile(conn registry.Conn) {
	prof := p.store.Profile()
	ev, err := models.NewEvent(models.EventProfileInfo, models.ProfileInfoPayload{
		Username:    prof.Username,
		DisplayName: prof.DisplayName,
		Avatar:      prof.Avatar,
	})
	if err != nil {
		return
	}
	if err := conn.Send(ev); err != nil {
		logger.Debug("send_profile_failed", "err", err)
	}
}
