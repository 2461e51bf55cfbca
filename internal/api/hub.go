package api

import (
	"NetSpectraIDS/internal/stats"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// StatsHub fans statistics events out to websocket clients.
type StatsHub struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	// wmu serializes writes, gorilla connections allow one writer at a time.
	wmu sync.Mutex
}

// NewStatsHub creates an empty hub.
func NewStatsHub() *StatsHub {
	return &StatsHub{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// HandleWS upgrades the request and keeps the client registered until it
// disconnects.
func (h *StatsHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Debug().Str("remote", r.RemoteAddr).Msg("Statistics client connected")

	_ = c.SetReadDeadline(time.Time{})
	for {
		// keepalive reads to detect client close
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.Close()
}

// Clients returns the number of connected clients.
func (h *StatsHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends ev to every connected client.
func (h *StatsHub) Broadcast(ev stats.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	h.wmu.Lock()
	defer h.wmu.Unlock()
	for _, c := range clients {
		_ = c.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_ = c.WriteMessage(websocket.TextMessage, data)
	}
}

// Run broadcasts events until ctx is done or events is closed.
func (h *StatsHub) Run(ctx context.Context, events <-chan stats.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.Broadcast(ev)
		}
	}
}
