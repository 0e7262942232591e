package router

import (
	"github.com/inkdrift/scriptorium/internal/docstore"
	"github.com/inkdrift/scriptorium/internal/protocol"
	"github.com/inkdrift/scriptorium/internal/session"
	"github.com/inkdrift/scriptorium/pkg/logger"
)

// PatchRouter validates inbound applyPatch messages, delegates to the
// Document Store, and routes the outcome per §4.C of the collaborative
// document protocol.
type PatchRouter struct {
	store     *docstore.Store
	sessions  *session.Registry
	broadcast Broadcaster
	log       logger.Component
}

// NewPatchRouter creates a PatchRouter.
func NewPatchRouter(store *docstore.Store, sessions *session.Registry, broadcast Broadcaster) *PatchRouter {
	return &PatchRouter{
		store:     store,
		sessions:  sessions,
		broadcast: broadcast,
		log:       logger.With("component", "patchRouter"),
	}
}

// HandleApplyPatch processes one applyPatch message from connectionID.
func (p *PatchRouter) HandleApplyPatch(connectionID string, payload protocol.ApplyPatchPayload) {
	userID, ok := p.sessions.Resolve(connectionID)
	if !ok {
		return
	}
	if payload.Patch == "" {
		return
	}

	outcome, _, reason := p.store.ApplyPatch(payload.Patch)

	switch outcome {
	case docstore.Failed:
		p.broadcast.SendTo(connectionID, protocol.NewRequestFullSyncMsg(reason))
	case docstore.Rejected:
		p.broadcast.SendTo(connectionID, protocol.NewPatchRejectedMsg(reason))
	case docstore.NoChange:
		p.broadcast.SendTo(connectionID, protocol.NewContentAcknowledgedMsg())
	case docstore.Applied:
		p.broadcast.BroadcastExcept(connectionID, protocol.NewBroadcastPatchMsg(payload.Patch, userID))
		p.broadcast.SendTo(connectionID, protocol.NewContentAcknowledgedMsg())
		p.store.SaveAsync()
		p.log.Field("userId", userID).Debug("patch applied")
	}
}

// HandleRequestFullSync processes a requestFullSync message, replying with a
// fresh init snapshot and a contentAcknowledged.
func (p *PatchRouter) HandleRequestFullSync(connectionID string) {
	userID, ok := p.sessions.Resolve(connectionID)
	if !ok {
		return
	}

	others := p.sessions.ListOthers(userID)
	wireUsers := make(map[string]protocol.OtherUser, len(others))
	for id, u := range others {
		wireUsers[id] = protocol.OtherUser{Name: u.Name, Color: u.Color}
	}

	p.broadcast.SendTo(connectionID, protocol.NewInitMsg(p.store.Snapshot(), wireUsers))
	p.broadcast.SendTo(connectionID, protocol.NewContentAcknowledgedMsg())
}
