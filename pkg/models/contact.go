package models

// Contact is a known chat partner, human or bot. ID is assigned once and
// never reused; Handle is unique per contact and drives address derivation.
type Contact struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
	// BotKind selects the responder behavior: "", "vision" or "editor"
	BotKind string `json:"bot_kind,omitempty"`
	Persona string `json:"persona,omitempty"`
	// Online is derived from the connection registry, never set independently
	Online   bool   `json:"online"`
	Unread   int    `json:"unread"`
	Preview  string `json:"preview,omitempty"`
	LastSeen string `json:"last_seen,omitempty"`
}

// Profile is the local user's identity as sent in handshakes.
type Profile struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Status      string `json:"status,omitempty"`
}

// ChatMetadata is per-contact side-state independent of the message history.
// It may exist before any messages do.
type ChatMetadata struct {
	Theme string `json:"theme,omitempty"`
}
