package chathub

import "strangerchat/backend/internal/models"

// Client is the interface for any type of connection (e.g., WebSocket, Telegram).
// It abstracts the underlying communication mechanism, allowing the hub to manage
// different client types uniformly.
type Client interface {
	// GetUserID returns the connection id. The hub uses it as the relay address.
	GetUserID() string

	// GetSendChannel returns the channel the ManagerService writes outbound
	// events to. The hub never blocks on it: a full channel gets the client evicted.
	GetSendChannel() chan<- models.Event

	// Run starts the client's pumps.
	Run()
	// Close stops the outbound pump. Only the hub calls it, exactly once.
	Close()
}
