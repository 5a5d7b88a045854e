// Package websocket broadcasts review and refresh events to connected
// clients. The HTTP layer upgrades connections and registers them here.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event kinds pushed to clients.
const (
	EventComponentAccepted = "component_accepted"
	EventComponentRejected = "component_rejected"
	EventSceneIngested     = "scene_ingested"
	EventSnapshotRefreshed = "snapshot_refreshed"
)

// Event is one review-ledger happening worth telling the UI about.
type Event struct {
	Type        string    `json:"type"`
	SceneID     int64     `json:"scene_id,omitempty"`
	ComponentID int64     `json:"component_id,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	At          time.Time `json:"at"`
}

type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	logger     zerolog.Logger
}

func NewHubService(logger zerolog.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger.With().Str("service", "hub").Logger(),
	}
}

func (h *HubService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info().Int("total", total).Msg("client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info().Int("total", total).Msg("client disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error().Err(err).Msg("error sending message")
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *HubService) Register(client *websocket.Conn) {
	h.register <- client
}

func (h *HubService) Unregister(client *websocket.Conn) {
	h.unregister <- client
}

// Publish broadcasts an event to all connected clients. Drops the event
// when the broadcast queue is full rather than blocking a review.
func (h *HubService) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode event")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn().Str("type", event.Type).Msg("broadcast queue full, event dropped")
	}
}

// ClientCount returns the number of connected clients.
func (h *HubService) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
