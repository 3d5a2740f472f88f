// Package ws streams live user state to the mini-app over websockets.
package ws

import (
	"log/slog"
	"sync"

	"tree_ton/internal/domain"
	"tree_ton/internal/logger"
)

// Hub tracks the open connections of every user. A user may have several
// (multiple devices or tabs); each receives every state change.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	log     *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     logger.With("component", "ws_hub"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	h.log.Debug("client registered", "user_id", c.UserID, "connections", len(set))
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	c.closeSend()
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	h.log.Debug("client unregistered", "user_id", c.UserID)
}

// Publish sends the snapshot to every connection of u. It never blocks: a
// connection whose buffer is full is dropped.
func (h *Hub) Publish(u domain.User) {
	msg, err := encode(MsgState, StatePayload{User: u})
	if err != nil {
		h.log.Error("encode state", "error", err, "user_id", u.ID)
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.clients[u.ID] {
		if !c.trySend(msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow client", "user_id", c.UserID)
		h.Unregister(c)
	}
}

// Connections is the number of open connections of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.closeSend()
		}
	}
}
