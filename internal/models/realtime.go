package models

import (
	"encoding/json"
	"time"
)

// Inbound event types.
const (
	EventSearch  = "search"
	EventMessage = "message"
	EventTyping  = "typing"
	EventSignal  = "signal"
	EventEndChat = "endChat"
)

// Outbound event types. EventMessage, EventTyping and EventSignal are used in
// both directions.
const (
	EventWelcome             = "welcome"
	EventSearching           = "searching"
	EventSearchRejected      = "searchRejected"
	EventSearchTimeout       = "searchTimeout"
	EventMatched             = "matched"
	EventInterestsMatched    = "interestsMatched"
	EventSpyMatched          = "spyMatched"
	EventPartnerDisconnected = "partnerDisconnected"
	EventChatEnded           = "chatEnded"
)

// InboundEvent is a frame received from a client. Data is decoded lazily by
// the hub according to Type.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// SenderID is stamped by the transport, never taken from the wire.
	SenderID string `json:"-"`
}

// Event is a frame sent to a client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound payloads.

type MessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type TypingRequest struct {
	To       string `json:"to"`
	IsTyping bool   `json:"isTyping"`
}

type SignalRequest struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// Outbound payloads.

type Welcome struct {
	ID string `json:"id"`
}

type Searching struct {
	Mode Mode `json:"mode"`
}

type SearchRejected struct {
	Reason string `json:"reason"`
}

type SearchTimeout struct {
	Mode Mode `json:"mode"`
}

type Matched struct {
	PartnerID string `json:"partnerId"`
}

type InterestsMatched struct {
	PartnerID       string   `json:"partnerId"`
	CommonInterests []string `json:"commonInterests"`
}

// SpyMatched is sent to every member of a new triad. The questioner gets
// Strangers; watchers get Questioner, Partner and Question.
type SpyMatched struct {
	RoomID     string   `json:"roomId"`
	Role       string   `json:"role"`
	Questioner string   `json:"questioner,omitempty"`
	Strangers  []string `json:"strangers,omitempty"`
	Partner    string   `json:"partner,omitempty"`
	Question   string   `json:"question,omitempty"`
}

type RelayedMessage struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type RelayedTyping struct {
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}

// RelayedSignal carries the negotiation payload byte for byte.
type RelayedSignal struct {
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}
