package state

import "backchannel/pkg/models"

// BuiltinContacts is the starter directory seeded on first run: the two
// responder bots plus a few regular contacts.
func BuiltinContacts() []models.Contact {
	return []models.Contact{
		{
			ID: "bot-vision", Handle: "vision_ai", DisplayName: "Vision Bot",
			IsBot: true, BotKind: "vision",
			Persona:  "You are a helpful AI assistant that can analyze images.",
			Preview:  "Send me a photo to analyze!",
			LastSeen: "now", Online: true,
		},
		{
			ID: "bot-editor", Handle: "magic_editor", DisplayName: "Magic Editor",
			IsBot: true, BotKind: "editor",
			Persona:  "You are a creative AI artist helping users edit photos.",
			Preview:  "Upload photo + text to edit.",
			LastSeen: "now", Online: true,
		},
		{
			ID: "user-alex", Handle: "cool_alex", DisplayName: "Alex",
			Preview: "See you tonight?", LastSeen: "5m",
		},
		{
			ID: "user-sarah", Handle: "sarah_xo", DisplayName: "Sarah",
			Preview: "LOL no way", LastSeen: "22m",
		},
		{
			ID: "user-mikey", Handle: "pro_gamer_99", DisplayName: "Mikey",
			Preview: "Hop on discord", LastSeen: "2h",
		},
	}
}

// SeedBuiltins inserts the starter directory for contacts not already
// present. Idempotent across restarts.
func (s *Store) SeedBuiltins() {
	s.mu.Lock()
	existing := make(map[string]bool, len(s.contacts))
	for _, c := range s.contacts {
		existing[c.ID] = true
	}
	s.mu.Unlock()
	for _, c := range BuiltinContacts() {
		if !existing[c.ID] {
			s.AddContact(c)
		}
	}
}
