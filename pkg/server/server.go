// Package server wires the HTTP/websocket transport to the document engine:
// the Document Store, Session Registry, Patch/Presence Routers, Image
// Processor, and the Audit Log. The Persistence Scheduler is built by the
// caller on top of Store().
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/inkdrift/scriptorium/internal/config"
	"github.com/inkdrift/scriptorium/internal/docstore"
	"github.com/inkdrift/scriptorium/internal/imageproc"
	"github.com/inkdrift/scriptorium/internal/protocol"
	"github.com/inkdrift/scriptorium/internal/router"
	"github.com/inkdrift/scriptorium/internal/session"
	"github.com/inkdrift/scriptorium/pkg/audit"
	"github.com/inkdrift/scriptorium/pkg/logger"
)

// Server is the single-document collaborative editor HTTP server.
type Server struct {
	mux *http.ServeMux

	hub      *hub
	store    *docstore.Store
	sessions *session.Registry
	patches  *router.PatchRouter
	presence *router.PresenceRouter
	images   *imageproc.Processor
	auditLog *audit.Log

	httpSrv *http.Server
	log     logger.Component
}

// New builds a Server from the given config and audit log (auditLog may be
// nil, disabling the audit trail).
func New(cfg config.Config, auditLog *audit.Log) (*Server, error) {
	store := docstore.New(cfg.DocPath, cfg.MaxDocMB)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	h := newHub()
	sessions := session.NewRegistry()

	s := &Server{
		mux:      http.NewServeMux(),
		hub:      h,
		store:    store,
		sessions: sessions,
		patches:  router.NewPatchRouter(store, sessions, h),
		presence: router.NewPresenceRouter(sessions, h),
		images:   imageproc.New(cfg.MaxImageKB, cfg.ImageMaxDimension, cfg.ImageJPEGQuality),
		auditLog: auditLog,
		log:      logger.With("component", "server"),
	}

	s.mux.HandleFunc("/doc", s.handleShell)
	s.mux.HandleFunc("/doc/ws", s.handleSocket)
	s.mux.HandleFunc("/doc/healthz", s.handleHealthz)

	return s, nil
}

// Store exposes the underlying Document Store (for the Persistence
// Scheduler and the Shutdown Coordinator).
func (s *Server) Store() *docstore.Store { return s.store }

// Images exposes the underlying Image Processor so config hot-reload can
// push updated size/quality parameters into it.
func (s *Server) Images() *imageproc.Processor { return s.images }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleShell serves a placeholder for the (out-of-scope) client shell.
func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("client shell is out of scope for this service\n"))
}

// handleSocket upgrades to a websocket and runs the connection loop.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.log.Error("websocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(protocol.MaxMessageBytes)

	c := newConnection(conn, s)
	s.hub.add(c)

	if err := c.handle(r.Context()); err != nil {
		s.log.Field("connectionId", c.id).Debug("connection ended: %v", err)
	}

	s.hub.remove(c.id)
	conn.Close(websocket.StatusNormalClosure, "")
}

type healthzResponse struct {
	DocumentBytes int `json:"documentBytes"`
	Sessions      int `json:"sessions"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		DocumentBytes: s.store.ByteSize(),
		Sessions:      s.sessions.Count(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- dispatcher implementation ---

func (s *Server) onUserJoined(connectionID string, identity protocol.UserIdentity) {
	result, err := s.sessions.Identify(connectionID, identity.UserID, identity.Name, identity.Color)
	if err != nil {
		s.log.Field("connectionId", connectionID).Debug("rejected identify: %v", err)
		return
	}

	if result.PreemptedConnectionID != "" {
		s.hub.closeOne(result.PreemptedConnectionID)
	}

	others := s.sessions.ListOthers(identity.UserID)
	wireUsers := make(map[string]protocol.OtherUser, len(others))
	for id, u := range others {
		wireUsers[id] = protocol.OtherUser{Name: u.Name, Color: u.Color}
	}

	s.hub.SendTo(connectionID, protocol.NewInitMsg(s.store.Snapshot(), wireUsers))
	s.hub.BroadcastExcept(connectionID, protocol.NewUserJoinedMsg(identity.UserID, identity.Name, identity.Color))

	if s.auditLog != nil {
		s.auditLog.RecordJoin(identity.UserID)
	}
}

func (s *Server) onApplyPatch(connectionID string, payload protocol.ApplyPatchPayload) {
	s.patches.HandleApplyPatch(connectionID, payload)
}

func (s *Server) onUploadImage(connectionID string, payload protocol.UploadImagePayload) {
	_, ok := s.sessions.Resolve(connectionID)
	if !ok {
		s.hub.SendTo(connectionID, protocol.NewImageProcessedMsg(payload.PlaceholderID, "", "unidentified"))
		return
	}

	go func() {
		optimized, err := s.images.Process(payload.Base64Data)
		if s.auditLog != nil {
			s.auditLog.RecordImageOutcome(payload.PlaceholderID, err)
		}
		if err != nil {
			s.hub.SendTo(connectionID, protocol.NewImageProcessedMsg(payload.PlaceholderID, "", err.Error()))
			return
		}
		s.hub.SendTo(connectionID, protocol.NewImageProcessedMsg(payload.PlaceholderID, optimized, ""))
	}()
}

func (s *Server) onCursorMove(connectionID string, payload protocol.CursorMovePayload) {
	s.presence.HandleCursorMove(connectionID, payload)
}

func (s *Server) onRequestFullSync(connectionID string) {
	s.patches.HandleRequestFullSync(connectionID)
}

func (s *Server) onDisconnect(connectionID string) {
	userID, removed := s.sessions.OnDisconnect(connectionID)
	if !removed {
		return
	}
	s.hub.BroadcastAll(protocol.NewUserLeftMsg(userID))
	if s.auditLog != nil {
		s.auditLog.RecordLeave(userID)
	}
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s}
	s.log.Field("addr", addr).Info("server listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown implements the Shutdown Coordinator (§4.G): stop timers (done by
// the caller cancelling the persistence scheduler context), save once
// synchronously, broadcast serverShutdown, then close the transport.
func (s *Server) Shutdown(ctx context.Context) error {
	s.store.CancelPendingSave()

	if err := s.store.SaveSync(); err != nil {
		s.log.Error("final save failed: %v", err)
	}

	s.hub.BroadcastAll(protocol.NewServerShutdownMsg("server is shutting down"))
	s.hub.closeAll(ctx)

	if s.httpSrv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
