package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Local lifecycle events. They are dispatched by the socket itself.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Envelope errors
var (
	ErrMissingEvent  = errors.New("event name is required")
	ErrReservedEvent = errors.New("event name is reserved")
)

// Envelope is a single named event on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope for event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = data
	}
	return env, env.Validate()
}

// Validate reports whether the envelope may travel on the wire.
func (e Envelope) Validate() error {
	switch e.Event {
	case "":
		return ErrMissingEvent
	case EventConnect, EventDisconnect:
		return fmt.Errorf("%w: %q", ErrReservedEvent, e.Event)
	}
	return nil
}

// DecodeEnvelope parses and validates a raw frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// -----------------------------------------------------------------------------
// Event keys
// -----------------------------------------------------------------------------

// ChatMessagesKey is the event carrying new messages for a channel or conversation.
func ChatMessagesKey(chatID string) string {
	return "chat:" + chatID + ":messages"
}

// ChatUpdateKey is the event carrying edits and deletions for a channel or conversation.
func ChatUpdateKey(chatID string) string {
	return "chat:" + chatID + ":messages:update"
}

// ServerMembersKey is the event carrying member changes (role change, kick) for a server.
func ServerMembersKey(serverID string) string {
	return "server:" + serverID + ":members"
}

// -----------------------------------------------------------------------------
// Payloads
// -----------------------------------------------------------------------------

// MemberRole is a member's role within a server.
type MemberRole string

const (
	RoleAdmin     MemberRole = "ADMIN"
	RoleModerator MemberRole = "MODERATOR"
	RoleGuest     MemberRole = "GUEST"
)

// Valid reports whether r is a known role.
func (r MemberRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleGuest:
		return true
	}
	return false
}

// Member is a profile's membership of a server.
type Member struct {
	ID        string     `json:"id"`
	Role      MemberRole `json:"role"`
	ProfileID string     `json:"profileId"`
	ServerID  string     `json:"serverId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Message is a chat message in a channel (ChannelID set) or a direct
// conversation (ConversationID set).
type Message struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	FileURL        string    `json:"fileUrl,omitempty"`
	MemberID       string    `json:"memberId"`
	ChannelID      string    `json:"channelId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Deleted        bool      `json:"deleted"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Member         *Member   `json:"member,omitempty"`
}

// ChatID returns the channel or conversation the message belongs to.
func (m Message) ChatID() string {
	if m.ChannelID != "" {
		return m.ChannelID
	}
	return m.ConversationID
}
