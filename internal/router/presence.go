package router

import (
	"math"

	"github.com/inkdrift/scriptorium/internal/protocol"
	"github.com/inkdrift/scriptorium/internal/session"
)

// PresenceRouter receives cursor updates, annotates them with user identity
// and color, and fans them out to every other connection.
type PresenceRouter struct {
	sessions  *session.Registry
	broadcast Broadcaster
}

// NewPresenceRouter creates a PresenceRouter.
func NewPresenceRouter(sessions *session.Registry, broadcast Broadcaster) *PresenceRouter {
	return &PresenceRouter{sessions: sessions, broadcast: broadcast}
}

// HandleCursorMove processes one cursorMove message from connectionID.
func (p *PresenceRouter) HandleCursorMove(connectionID string, payload protocol.CursorMovePayload) {
	userID, ok := p.sessions.Resolve(connectionID)
	if !ok {
		return
	}
	if !finite(payload.X) || !finite(payload.Y) || !finite(payload.Height) {
		return
	}

	p.sessions.Touch(connectionID)

	session, ok := p.sessions.Get(userID)
	if !ok {
		return
	}

	p.broadcast.BroadcastExcept(connectionID, protocol.NewCursorMoveMsg(
		userID, session.Name, session.Color, payload.X, payload.Y, payload.Height, payload.IsImage,
	))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
