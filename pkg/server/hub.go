package server

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/inkdrift/scriptorium/internal/protocol"
	"github.com/inkdrift/scriptorium/pkg/logger"
)

// hub tracks every live connection and implements router.Broadcaster over
// the websocket transport. It never touches document or session state
// directly — routers own that.
type hub struct {
	mu    sync.RWMutex
	conns map[string]*connection // connectionId -> connection
	log   logger.Component
}

func newHub() *hub {
	return &hub{conns: make(map[string]*connection), log: logger.With("component", "hub")}
}

func (h *hub) add(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

func (h *hub) remove(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connectionID)
}

func (h *hub) get(connectionID string) (*connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connectionID]
	return c, ok
}

// SendTo implements router.Broadcaster.
func (h *hub) SendTo(connectionID string, msg *protocol.ServerMsg) {
	c, ok := h.get(connectionID)
	if !ok {
		return
	}
	if err := c.send(msg); err != nil {
		h.log.Field("connectionId", connectionID).Error("send failed: %v", err)
	}
}

// BroadcastExcept implements router.Broadcaster.
func (h *hub) BroadcastExcept(exceptConnectionID string, msg *protocol.ServerMsg) {
	for _, c := range h.snapshot() {
		if c.id == exceptConnectionID {
			continue
		}
		if err := c.send(msg); err != nil {
			h.log.Field("connectionId", c.id).Error("broadcast failed: %v", err)
		}
	}
}

// BroadcastAll implements router.Broadcaster.
func (h *hub) BroadcastAll(msg *protocol.ServerMsg) {
	for _, c := range h.snapshot() {
		if err := c.send(msg); err != nil {
			h.log.Field("connectionId", c.id).Error("broadcast failed: %v", err)
		}
	}
}

func (h *hub) snapshot() []*connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// closeOne force-closes one live connection, used on takeover.
func (h *hub) closeOne(connectionID string) {
	c, ok := h.get(connectionID)
	if !ok {
		return
	}
	c.conn.Close(websocket.StatusPolicyViolation, "reconnected from another connection")
}

// closeAll force-closes every live connection, used on shutdown.
func (h *hub) closeAll(ctx context.Context) {
	for _, c := range h.snapshot() {
		c.conn.Close(websocket.StatusServiceRestart, "server shutting down")
	}
}

// writeWithTimeout is a small helper shared by connection.send.
func writeWithTimeout(ctx context.Context, conn *websocket.Conn, msg *protocol.ServerMsg, timeout time.Duration) error {
	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}
