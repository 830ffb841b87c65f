// Package state is the authoritative local chat state: contacts, ordered
// message histories and per-chat metadata. All mutation goes through this
// package; every mutation is applied under one lock so subscribers never
// observe a partially-updated transition. Writes go through the pebble
// store when it is open; persistence failures are logged and the store
// keeps operating in memory.
package state

import (
	"sort"
	"strings"
	"sync"

	"backchannel/pkg/logger"
	"backchannel/pkg/models"
	"backchannel/pkg/store"
	"backchannel/pkg/utils"
)

type Store struct {
	mu       sync.Mutex
	profile  models.Profile
	contacts map[string]*models.Contact
	sessions map[string][]models.Message
	meta     map[string]models.ChatMetadata
	typing   map[string]bool
	focused  string

	watchers []chan struct{}
}

func New() *Store {
	return &Store{
		contacts: make(map[string]*models.Contact),
		sessions: make(map[string][]models.Message),
		meta:     make(map[string]models.ChatMetadata),
		typing:   make(map[string]bool),
	}
}

// Load hydrates the store from pebble. Contacts come back marked offline;
// online is derived from the connection registry at runtime.
func Load() (*Store, error) {
	s := New()
	if !store.Ready() {
		return s, nil
	}
	if p, err := store.GetProfile(); err == nil {
		s.profile = p
	} else if !store.IsNotFound(err) {
		return nil, err
	}
	contacts, err := store.ListContacts()
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		c := contacts[i]
		c.Online = c.IsBot // bots are always reachable; humans start offline
		s.contacts[c.ID] = &c
		msgs, err := store.ListMessages(c.ID)
		if err != nil {
			logger.Warn("state_load_messages_failed", "contact", c.ID, "err", err)
			continue
		}
		s.sessions[c.ID] = msgs
		if meta, err := store.GetChatMeta(c.ID); err == nil {
			s.meta[c.ID] = meta
		}
	}
	logger.Info("state_loaded", "contacts", len(s.contacts))
	return s, nil
}

// Watch returns a channel that receives a tick after every mutation.
// Notifications are coalesced; a slow consumer sees at least one.
func (s *Store) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

// notify must be called with s.mu held.
func (s *Store) notify() {
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) Profile() models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// SetProfile stores the local profile. The caller is responsible for
// broadcasting the resulting PROFILE_INFO to open connections.
func (s *Store) SetProfile(p models.Profile) {
	s.mu.Lock()
	s.profile = p
	s.persistProfile(p)
	s.notify()
	s.mu.Unlock()
}

// Contact returns a copy of the contact record.
func (s *Store) Contact(id string) (models.Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return models.Contact{}, false
	}
	return *c, true
}

// Contacts returns a snapshot of all contacts, stable order by ID.
func (s *Store) Contacts() []models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddContact inserts a contact record as-is. Used for seeding bots and
// restoring state; handshake-driven creation goes through UpsertFromProfile.
func (s *Store) AddContact(c models.Contact) {
	s.mu.Lock()
	cc := c
	s.contacts[c.ID] = &cc
	s.persistContact(cc)
	s.notify()
	s.mu.Unlock()
}

// UpsertFromProfile applies a received PROFILE_INFO: creates a contact for
// an unknown handle (new local id, online=true) or refreshes display
// name/avatar, setting online=true unconditionally. Idempotent; harmless on
// retransmit. Returns the contact id and whether it was created.
func (s *Store) UpsertFromProfile(p models.ProfileInfoPayload) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.Handle == p.Username {
			if p.DisplayName != "" && c.DisplayName != p.DisplayName {
				c.DisplayName = p.DisplayName
			}
			if p.Avatar != "" && c.Avatar != p.Avatar {
				c.Avatar = p.Avatar
			}
			c.Online = true
			s.persistContact(*c)
			s.notify()
			return c.ID, false
		}
	}
	c := &models.Contact{
		ID:          utils.GenContactID(),
		Handle:      p.Username,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
		Online:      true,
		LastSeen:    "now",
	}
	if c.DisplayName == "" {
		c.DisplayName = p.Username
	}
	s.contacts[c.ID] = c
	s.persistContact(*c)
	s.notify()
	logger.Info("contact_created", "contact", c.ID, "handle", c.Handle)
	return c.ID, true
}

// SetOnline sets the derived online flag for a contact.
func (s *Store) SetOnline(id string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok || c.Online == online {
		return
	}
	c.Online = online
	if !online {
		c.LastSeen = "recently"
	}
	s.persistContact(*c)
	s.notify()
}

// AppendMessage appends to the contact's session and recomputes the
// preview/unread fields in the same atomic transition. Unread increments
// iff the sender is not self and the contact is not currently focused.
func (s *Store) AppendMessage(contactID string, msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return false
	}
	s.sessions[contactID] = append(s.sessions[contactID], msg)
	c.Preview = previewFor(msg)
	if msg.Sender != models.SelfID && s.focused != contactID {
		c.Unread++
	}
	c.LastSeen = "now"
	delete(s.typing, contactID)
	if store.Ready() {
		if err := store.SaveMessage(contactID, msg); err != nil {
			logger.Warn("persist_message_failed", "contact", contactID, "err", err)
		}
	}
	s.persistContact(*c)
	s.notify()
	return true
}

// Messages returns a snapshot of the contact's session.
func (s *Store) Messages(contactID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sessions[contactID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}

// ToggleReaction toggles identity's reaction on a message: the same emoji
// removes it, a different emoji replaces it. A message id not present in
// the session is a no-op. Reports whether anything changed.
func (s *Store) ToggleReaction(contactID, messageID, identity, emoji string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sessions[contactID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if msgs[i].Reactions == nil {
			msgs[i].Reactions = make(map[string]string)
		}
		if msgs[i].Reactions[identity] == emoji {
			delete(msgs[i].Reactions, identity)
		} else {
			msgs[i].Reactions[identity] = emoji
		}
		if store.Ready() {
			if err := store.UpdateMessage(contactID, msgs[i]); err != nil {
				logger.Warn("persist_reaction_failed", "contact", contactID, "msg", messageID, "err", err)
			}
		}
		s.notify()
		return true
	}
	return false
}

// SetTheme stores per-chat theme metadata; independent of the session.
func (s *Store) SetTheme(contactID, theme string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta[contactID]
	m.Theme = theme
	s.meta[contactID] = m
	if store.Ready() {
		if err := store.SaveChatMeta(contactID, m); err != nil {
			logger.Warn("persist_chat_meta_failed", "contact", contactID, "err", err)
		}
	}
	s.notify()
}

// Meta returns the chat metadata for a contact.
func (s *Store) Meta(contactID string) models.ChatMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta[contactID]
}

// ClearUnread zeroes the unread counter; invoked when a conversation
// becomes focused.
func (s *Store) ClearUnread(contactID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok || c.Unread == 0 {
		return
	}
	c.Unread = 0
	s.persistContact(*c)
	s.notify()
}

// SetFocus records the currently-open conversation and clears its unread
// counter. Empty id means no conversation is focused. Handlers read focus
// at mutation time, never from a captured value.
func (s *Store) SetFocus(contactID string) {
	s.mu.Lock()
	s.focused = contactID
	c, ok := s.contacts[contactID]
	if ok && c.Unread != 0 {
		c.Unread = 0
		s.persistContact(*c)
	}
	s.notify()
	s.mu.Unlock()
}

// Focused returns the currently-open conversation, empty when none.
func (s *Store) Focused() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// SetTyping sets the transient typing flag for a contact. Not persisted.
func (s *Store) SetTyping(contactID string, isTyping bool) {
	s.mu.Lock()
	if isTyping {
		s.typing[contactID] = true
	} else {
		delete(s.typing, contactID)
	}
	s.notify()
	s.mu.Unlock()
}

// Typing reports the transient typing flag for a contact.
func (s *Store) Typing(contactID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[contactID]
}

// ReconcileDerived recomputes each contact's derived fields from its
// session: preview from the last message, unread clamped to the number of
// peer-sent messages and zeroed for the focused conversation. Drift
// appears when a persist failed mid-session and the store was reloaded.
// Returns the number of contacts corrected.
func (s *Store) ReconcileDerived() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fixed := 0
	for id, c := range s.contacts {
		msgs := s.sessions[id]
		preview := ""
		if len(msgs) > 0 {
			preview = previewFor(msgs[len(msgs)-1])
		}
		unread := c.Unread
		if id == s.focused {
			unread = 0
		}
		peerSent := 0
		for i := range msgs {
			if msgs[i].Sender != models.SelfID {
				peerSent++
			}
		}
		if unread > peerSent {
			unread = peerSent
		}
		if preview == c.Preview && unread == c.Unread {
			continue
		}
		c.Preview = preview
		c.Unread = unread
		s.persistContact(*c)
		fixed++
	}
	if fixed > 0 {
		logger.Info("state_reconciled", "contacts", fixed)
		s.notify()
	}
	return fixed
}

func previewFor(m models.Message) string {
	switch m.Type {
	case models.MessageImage:
		return "Sent an image"
	case models.MessageAudio:
		return "Sent a voice message"
	}
	if len(m.Content) > 120 {
		return strings.TrimSpace(m.Content[:120])
	}
	return m.Content
}

// persist helpers run with s.mu held; failures are logged and ignored so
// the store keeps working in memory.
func (s *Store) persistContact(c models.Contact) {
	if !store.Ready() {
		return
	}
	if err := store.SaveContact(c); err != nil {
		logger.Warn("persist_contact_failed", "contact", c.ID, "err", err)
	}
}

func (s *Store) persistProfile(p models.Profile) {
	if !store.Ready() {
		return
	}
	if err := store.SaveProfile(p); err != nil {
		logger.Warn("persist_profile_failed", "err", err)
	}
}
