package chathub_test

import (
	"sync"
	"time"

	"heartline/backend/internal/models"
)

type MockClient struct {
	identity models.Identity
	// RecvChannel collects everything the hub pushes to this client.
	RecvChannel chan models.Event

	closeOnce sync.Once
	done      chan struct{}
}

func newMockClient(userID string, roles ...string) *MockClient {
	return &MockClient{
		identity:    models.Identity{UserID: userID, Roles: roles, Pseudonym: "anon-" + userID},
		RecvChannel: make(chan models.Event, 16),
		done:        make(chan struct{}),
	}
}

func (c *MockClient) GetUserID() string {
	return c.identity.UserID
}

func (c *MockClient) GetIdentity() models.Identity {
	return c.identity
}

func (c *MockClient) GetSendChannel() chan<- models.Event {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// isClosed is safe to poll from the test goroutine while the hub owns the
// client.
func (c *MockClient) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// nextEvent pops one received event, or a zero Event when nothing arrives
// in time.
func (c *MockClient) nextEvent() models.Event {
	select {
	case ev := <-c.RecvChannel:
		return ev
	case <-time.After(200 * time.Millisecond):
		return models.Event{}
	}
}
