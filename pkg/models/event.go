package models

import (
	"encoding/json"
	"fmt"
)

// Event kinds exchanged over the peer transport.
const (
	EventProfileInfo = "PROFILE_INFO"
	EventMessage     = "MESSAGE"
	EventTyping      = "TYPING"
	EventReaction    = "REACTION"
)

// Event is the tagged union carried on the wire. Payload is decoded by kind.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ProfileInfoPayload struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

type MessagePayload struct {
	Content     string       `json:"content"`
	MessageType MessageType  `json:"messageType"`
	Timestamp   int64        `json:"timestamp"`
	Meta        *MessageMeta `json:"meta,omitempty"`
}

type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// NewEvent marshals payload into a tagged Event.
func NewEvent(kind string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Event{Type: kind, Payload: b}, nil
}
