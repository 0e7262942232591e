package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/google/uuid"

	"github.com/inkdrift/scriptorium/internal/protocol"
	"github.com/inkdrift/scriptorium/pkg/logger"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// connection represents a single client WebSocket connection. It owns no
// document or session state; it only reads wire messages, dispatches them to
// the server's routers, and writes whatever they hand back.
type connection struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	sendMu sync.Mutex

	dispatch dispatcher
	log      logger.Component
}

// dispatcher is the subset of Server a connection needs to hand messages to.
type dispatcher interface {
	onUserJoined(connectionID string, identity protocol.UserIdentity)
	onApplyPatch(connectionID string, payload protocol.ApplyPatchPayload)
	onUploadImage(connectionID string, payload protocol.UploadImagePayload)
	onCursorMove(connectionID string, payload protocol.CursorMovePayload)
	onRequestFullSync(connectionID string)
	onDisconnect(connectionID string)
}

func newConnection(conn *websocket.Conn, d dispatcher) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &connection{
		id:       id,
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		dispatch: d,
		log:      logger.With("component", "connection").Field("connectionId", id),
	}
}

// handle runs the connection's read loop until disconnect or cancellation.
func (c *connection) handle(ctx context.Context) error {
	defer c.cleanup()

	c.log.Debug("connection opened")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
		}

		readCtx, readCancel := context.WithTimeout(ctx, readTimeout)
		var msg protocol.ClientMsg
		err := wsjson.Read(readCtx, c.conn, &msg)
		readCancel()
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("read timeout: %w", err)
			}
			return fmt.Errorf("read message: %w", err)
		}

		c.handleMessage(&msg)
	}
}

func (c *connection) handleMessage(msg *protocol.ClientMsg) {
	switch {
	case msg.UserJoined != nil:
		c.dispatch.onUserJoined(c.id, *msg.UserJoined)
	case msg.ApplyPatch != nil:
		c.dispatch.onApplyPatch(c.id, *msg.ApplyPatch)
	case msg.UploadImage != nil:
		c.dispatch.onUploadImage(c.id, *msg.UploadImage)
	case msg.CursorMove != nil:
		c.dispatch.onCursorMove(c.id, *msg.CursorMove)
	case msg.RequestFullSync != nil:
		c.dispatch.onRequestFullSync(c.id)
	}
}

// send writes a message to the client (thread-safe, single writer).
func (c *connection) send(msg *protocol.ServerMsg) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return writeWithTimeout(c.ctx, c.conn, msg, writeTimeout)
}

func (c *connection) cleanup() {
	c.log.Debug("connection closed")
	c.dispatch.onDisconnect(c.id)
	c.cancel()
}
