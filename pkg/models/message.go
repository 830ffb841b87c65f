package models

// SelfID is the sender token for locally-authored messages and reactions.
const SelfID = "me"

type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageAudio MessageType = "AUDIO"
)

type Message struct {
	ID string `json:"id"`
	// Sender is SelfID or a contact's local identifier
	Sender  string      `json:"sender"`
	Content string      `json:"content"`
	Type    MessageType `json:"type"`
	TS      int64       `json:"ts"`
	// Optional metadata: mime type for audio, edit prompt for images
	Meta *MessageMeta `json:"meta,omitempty"`
	// Reactions maps an identity (SelfID or a contact id) to a single emoji.
	// At most one active reaction per identity.
	Reactions map[string]string `json:"reactions,omitempty"`
}

type MessageMeta struct {
	MimeType string `json:"mime_type,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}
