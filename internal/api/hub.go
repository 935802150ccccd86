package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// EventSyncNeeded tells listening devices that family data changed.
const EventSyncNeeded = "sync-needed"

// Event is a message sent over the listen channel.
type Event struct {
	Type string `json:"type"`
}

type listener struct {
	familyID string
	deviceID string
}

// Hub tracks the push channel connections of every family.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]listener
	metrics *Metrics
}

// NewHub creates an empty hub.
func NewHub(m *Metrics) *Hub {
	return &Hub{clients: make(map[*websocket.Conn]listener), metrics: m}
}

func (h *Hub) add(conn *websocket.Conn, l listener) {
	h.mu.Lock()
	h.clients[conn] = l
	h.mu.Unlock()
	h.metrics.ListenerDelta(1)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		h.metrics.ListenerDelta(-1)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// Count returns the number of connected listeners of a family.
func (h *Hub) Count(familyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, l := range h.clients {
		if l.familyID == familyID {
			n++
		}
	}
	return n
}

// Notify sends a sync-needed event to every listener of the family except
// exceptDevice. Connections that fail to take the write are dropped.
func (h *Hub) Notify(familyID, exceptDevice string) {
	data, err := json.Marshal(Event{Type: EventSyncNeeded})
	if err != nil {
		slog.Error("marshal event", "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.clients))
	for conn, l := range h.clients {
		if l.familyID == familyID && l.deviceID != exceptDevice {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("drop listener", "err", err)
			h.remove(conn)
		}
	}
}

// CloseAll disconnects every listener.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()
	for _, conn := range conns {
		h.remove(conn)
	}
}

// handleListen upgrades an authenticated device to the push channel and
// keeps reading until the device disconnects.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	device := deviceFrom(r.Context())
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logFor(r.Context()).Warn("websocket upgrade", "err", err)
		return
	}

	s.hub.add(conn, listener{familyID: device.FamilyID, deviceID: device.ID})
	logFor(r.Context()).Debug("listener connected", "family_listeners", s.hub.Count(device.FamilyID))
	defer s.hub.remove(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
		// client messages are ignored; reading keeps the connection alive
	}
}
