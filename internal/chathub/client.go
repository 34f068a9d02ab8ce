package chathub

import "randomchat/backend/internal/models"

// Client is the interface for any type of connection (e.g., WebSocket, Telegram).
// It abstracts the underlying communication mechanism, allowing the hub to manage
// different client types uniformly.
type Client interface {
	// GetUserID returns the unique identifier for the user associated with the client.
	GetUserID() string

	// GetSendChannel returns the channel to which the ManagerService (hub) sends
	// events intended for this specific client. It is a send-only channel.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection and its send channel. The hub
	// calls it exactly once, after the client left the registry.
	Close()
}

// Notifier receives what the matcher decides.
type Notifier interface {
	Notify(ev models.Event)
	SessionStarted(sess models.Session)
}
