package chathub

import (
	"encoding/json"
	"log"

	"heartline/backend/internal/models"
	"heartline/backend/internal/storage"
)

// StartPubSubListener starts a goroutine consuming the cross-node event
// channel. Events addressed to users connected to this node are delivered
// locally; everything else is ignored.
func (h *Hub) StartPubSubListener() {
	svc, ok := h.storage.(*storage.Service)
	if !ok || svc.Redis == nil {
		// No Redis behind the storage (tests); single-node delivery only.
		return
	}

	go func() {
		pubsub := svc.SubscribeEvents()
		defer pubsub.Close()

		for msg := range pubsub.Channel() {
			var remote models.RemoteEvent
			if err := json.Unmarshal([]byte(msg.Payload), &remote); err != nil {
				log.Printf("Error unmarshalling pub/sub event: %v", err)
				continue
			}
			h.Deliver(remote.TargetID, remote.Event)
		}
	}()
}
