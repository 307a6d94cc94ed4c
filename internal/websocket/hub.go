package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is a real-time notification pushed to one user's connections.
type Message struct {
	Type  string         `json:"type"`
	Extra map[string]any `json:"extra,omitempty"`
}

// SyncCompleted notifies that a sync pass finished for the user.
func SyncCompleted(passID string, transcriptsFound int) Message {
	return Message{
		Type: "sync_completed",
		Extra: map[string]any{
			"pass_id":           passID,
			"transcripts_found": transcriptsFound,
		},
	}
}

// SummaryReady notifies that a transcript summary reached a terminal state.
func SummaryReady(transcriptID int64, status string) Message {
	return Message{
		Type: "summary_ready",
		Extra: map[string]any{
			"transcript_id": transcriptID,
			"status":        status,
		},
	}
}

type subscriber struct {
	orgID     string
	userEmail string
}

// Hub maintains the set of active WebSocket clients, keyed by the user they
// authenticated as, and routes notifications to that user's connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]subscriber
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]subscriber),
		logger:  logger,
	}
}

// Register adds a client to the hub under the given identity.
func (h *Hub) Register(c *Client, orgID, userEmail string) {
	h.mu.Lock()
	h.clients[c] = subscriber{orgID: orgID, userEmail: userEmail}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Notify sends a message to every connection the user currently holds.
func (h *Hub) Notify(orgID, userEmail string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal notification", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c, sub := range h.clients {
		if sub.orgID != orgID || sub.userEmail != userEmail {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
