package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beamdrop/signal-relay/internal/metrics"
)

const hubWriteWait = 1 * time.Second

type hubConn struct {
	ws *websocket.Conn

	// writeMu serializes writes; gorilla connections allow only one
	// concurrent writer.
	writeMu sync.Mutex
}

// Hub tracks connected clients and the relay groups of connected
// sessions, and delivers outbound events. Delivery is fire and forget:
// a failed or missing target drops the event and counts it, nothing
// more.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	conns  map[string]*hubConn
	groups map[string]map[string]struct{}
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:     logger,
		metrics: m,
		conns:   make(map[string]*hubConn),
		groups:  make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(connID string, ws *websocket.Conn) {
	h.mu.Lock()
	h.conns[connID] = &hubConn{ws: ws}
	h.mu.Unlock()
}

// Unregister drops the connection and its group memberships. It does
// not close the socket; the read loop owns the socket lifetime.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	delete(h.conns, connID)
	for _, members := range h.groups {
		delete(members, connID)
	}
	h.mu.Unlock()
}

func (h *Hub) Send(connID, event string, data any) {
	h.mu.Lock()
	c := h.conns[connID]
	h.mu.Unlock()

	if c == nil {
		h.metrics.Inc(metrics.SendsDropped)
		h.log.Debug("send to unknown connection", "conn_id", connID, "event", event)
		return
	}
	h.write(connID, c, event, data)
}

func (h *Hub) JoinGroup(group, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[connID] = struct{}{}
}

func (h *Hub) SendToGroup(group, event string, data any) {
	h.mu.Lock()
	targets := make(map[string]*hubConn, len(h.groups[group]))
	for connID := range h.groups[group] {
		if c, ok := h.conns[connID]; ok {
			targets[connID] = c
		}
	}
	h.mu.Unlock()

	for connID, c := range targets {
		h.write(connID, c, event, data)
	}
}

func (h *Hub) RemoveGroup(group string) {
	h.mu.Lock()
	delete(h.groups, group)
	h.mu.Unlock()
}

func (h *Hub) write(connID string, c *hubConn, event string, data any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(hubWriteWait))
	err := c.ws.WriteJSON(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: event, Data: data})
	if err != nil {
		h.metrics.Inc(metrics.SendsDropped)
		h.log.Debug("send failed", "conn_id", connID, "event", event, "err", err)
	}
}
