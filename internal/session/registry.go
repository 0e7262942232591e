// Package session maps logical user IDs to live transport connections,
// handling identification, reconnect takeover, and departure.
package session

import (
	"fmt"
	"sync"
	"time"
)

// MinUserIDLength is the minimum accepted length of a client-chosen userId.
const MinUserIDLength = 5

// Session is a live logical user bound to exactly one connection.
type Session struct {
	UserID       string
	Name         string
	Color        string
	ConnectionID string
	LastSeen     time.Time
}

// OtherUser is what peers learn about a connected user.
type OtherUser struct {
	Name  string
	Color string
}

// Registry is the userId <-> connectionId bijection over live sessions.
type Registry struct {
	mu sync.RWMutex

	byUser map[string]*Session // userId -> session
	byConn map[string]string   // connectionId -> userId
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]*Session),
		byConn: make(map[string]string),
	}
}

// IdentifyResult reports the bookkeeping side effects of Identify so the
// caller can emit the right wire messages without the registry knowing about
// the transport.
type IdentifyResult struct {
	// PreemptedConnectionID is set if a live session on a different
	// connection held this userId and must now be force-disconnected.
	PreemptedConnectionID string
}

var errInvalidIdentity = fmt.Errorf("invalid identity")

// Identify binds connectionId to a userId, taking over any existing session
// for that userId and clearing any stale mapping this connection previously
// held. Returns an error if userId/name/color are missing or userId is too
// short.
func (r *Registry) Identify(connectionID, userID, name, color string) (*IdentifyResult, error) {
	if userID == "" || name == "" || color == "" || len(userID) < MinUserIDLength {
		return nil, errInvalidIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	result := &IdentifyResult{}

	if existing, ok := r.byUser[userID]; ok && existing.ConnectionID != connectionID {
		result.PreemptedConnectionID = existing.ConnectionID
		delete(r.byConn, existing.ConnectionID)
	}

	if staleUserID, ok := r.byConn[connectionID]; ok && staleUserID != userID {
		delete(r.byUser, staleUserID)
	}

	r.byUser[userID] = &Session{
		UserID:       userID,
		Name:         name,
		Color:        color,
		ConnectionID: connectionID,
		LastSeen:     time.Now(),
	}
	r.byConn[connectionID] = userID

	return result, nil
}

// OnDisconnect removes the session bound to connectionID, but only if that
// connection still owns the mapping (a reconnect may have already taken
// over). Returns the departed userId and whether a removal actually
// happened.
func (r *Registry) OnDisconnect(connectionID string) (userID string, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connectionID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connectionID)

	session, ok := r.byUser[userID]
	if !ok || session.ConnectionID != connectionID {
		return userID, false
	}

	delete(r.byUser, userID)
	return userID, true
}

// Resolve returns the userId bound to connectionID, if any.
func (r *Registry) Resolve(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connectionID]
	return userID, ok
}

// Touch updates lastSeen for the session bound to connectionID.
func (r *Registry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.byConn[connectionID]
	if !ok {
		return
	}
	if session, ok := r.byUser[userID]; ok {
		session.LastSeen = time.Now()
	}
}

// ListOthers returns every live user except excludingUserID.
func (r *Registry) ListOthers(excludingUserID string) map[string]OtherUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	others := make(map[string]OtherUser, len(r.byUser))
	for userID, session := range r.byUser {
		if userID == excludingUserID {
			continue
		}
		others[userID] = OtherUser{Name: session.Name, Color: session.Color}
	}
	return others
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Get returns the session for userID, if live.
func (r *Registry) Get(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.byUser[userID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}
