// Package ws serves the /ws push channel: clients subscribe to rooms and
// receive every update to them.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/metrics"
	"github.com/eldtechnologies/codepair/internal/models"
	"github.com/eldtechnologies/codepair/internal/pubsub"
)

// Hub tracks which connections are subscribed to which rooms.
type Hub struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "hub").Logger(),
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
	}
}

// Attach forwards every update published on ch to subscribed connections.
func (h *Hub) Attach(ch interface {
	SubscribeAll(fn pubsub.Handler) func()
}) func() {
	return ch.SubscribeAll(func(room models.Room) { h.Broadcast(room) })
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.ActiveConnections.Inc()
}

// Subscribe adds c to roomID's subscriber set.
func (h *Hub) Subscribe(c *Client, roomID string) {
	roomID = models.NormalizeRoomID(roomID)
	if roomID == "" {
		return
	}

	h.mu.Lock()
	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[*Client]struct{})
		h.rooms[roomID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug().Str("conn_id", c.id.String()).Str("room_id", roomID).Msg("subscribed")
}

// Unsubscribe removes c from roomID, or from every room when roomID is empty.
func (h *Hub) Unsubscribe(c *Client, roomID string) {
	roomID = models.NormalizeRoomID(roomID)

	h.mu.Lock()
	defer h.mu.Unlock()

	if roomID != "" {
		h.removeFromRoomLocked(c, roomID)
		return
	}
	for id := range h.rooms {
		h.removeFromRoomLocked(c, id)
	}
}

func (h *Hub) removeFromRoomLocked(c *Client, roomID string) {
	set, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.rooms, roomID)
	}
}

// remove drops c from every room and closes its send queue.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	for id := range h.rooms {
		h.removeFromRoomLocked(c, id)
	}
	h.mu.Unlock()

	c.close()
	if known {
		metrics.ActiveConnections.Dec()
	}
}

// Broadcast sends room to every connection subscribed to it and returns how
// many accepted the message. Connections that cannot take it are removed.
func (h *Hub) Broadcast(room models.Room) int {
	roomID := models.NormalizeRoomID(room.ID)
	msg, err := json.Marshal(models.NewRoomUpdate(room))
	if err != nil {
		h.logger.Error().Err(err).Str("room_id", roomID).Msg("encode update failed")
		return 0
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}
	metrics.Broadcasts.Inc()

	sent := 0
	var dead []*Client
	for _, c := range targets {
		if c.trySend(msg) {
			sent++
			continue
		}
		dead = append(dead, c)
	}

	metrics.BroadcastDeliveries.WithLabelValues("sent").Add(float64(sent))
	if len(dead) > 0 {
		metrics.BroadcastDeliveries.WithLabelValues("dropped").Add(float64(len(dead)))
		for _, c := range dead {
			h.logger.Warn().Str("conn_id", c.id.String()).Str("room_id", roomID).Msg("dropping unresponsive connection")
			h.remove(c)
		}
	}

	return sent
}

// Subscribers returns the number of connections subscribed to roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[models.NormalizeRoomID(roomID)])
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
