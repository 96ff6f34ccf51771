package chathub

import "heartline/backend/internal/models"

// Client is the interface for one logical connection. It abstracts the
// underlying transport so the hub can manage connections uniformly.
type Client interface {
	// GetUserID returns the unique identifier for the user behind the
	// connection.
	GetUserID() string
	// GetIdentity returns the verified identity supplied by the gateway at
	// registration.
	GetIdentity() models.Identity

	// GetSendChannel returns the channel the hub pushes outbound events
	// into. It is a send-only channel.
	GetSendChannel() chan<- models.Event

	// Run starts the client's read and write pumps.
	Run()
	// Close gracefully shuts down the connection and associated channels.
	Close()
}
