// Package protocol defines the WebSocket message protocol between client and server.
package protocol

import "encoding/json"

// UserIdentity is the identity a client announces on join.
type UserIdentity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

// OtherUser is what peers learn about a connected user, minus their own entry.
type OtherUser struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ApplyPatchPayload carries a textual diff/patch blob.
type ApplyPatchPayload struct {
	Patch string `json:"patch"`
}

// UploadImagePayload carries an inline base64 image to be optimized.
type UploadImagePayload struct {
	PlaceholderID string `json:"placeholderId"`
	Base64Data    string `json:"base64Data"`
}

// CursorMovePayload carries a raw cursor position update.
type CursorMovePayload struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Height  float64 `json:"height"`
	IsImage bool    `json:"isImage"`
}

// RequestFullSyncPayload optionally carries a reason for the resync request.
type RequestFullSyncPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ClientMsg represents messages sent from client to server.
// Only one field is set per message (tagged union pattern).
type ClientMsg struct {
	UserJoined      *UserIdentity           `json:"userJoined,omitempty"`
	ApplyPatch      *ApplyPatchPayload      `json:"applyPatch,omitempty"`
	UploadImage     *UploadImagePayload     `json:"uploadImage,omitempty"`
	CursorMove      *CursorMovePayload      `json:"cursorMove,omitempty"`
	RequestFullSync *RequestFullSyncPayload `json:"requestFullSync,omitempty"`
}

// UnmarshalJSON implements custom JSON unmarshaling for ClientMsg.
func (m *ClientMsg) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["userJoined"]; ok {
		var p UserIdentity
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		m.UserJoined = &p
	}
	if v, ok := raw["applyPatch"]; ok {
		var p ApplyPatchPayload
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		m.ApplyPatch = &p
	}
	if v, ok := raw["uploadImage"]; ok {
		var p UploadImagePayload
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		m.UploadImage = &p
	}
	if v, ok := raw["cursorMove"]; ok {
		var p CursorMovePayload
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		m.CursorMove = &p
	}
	if v, ok := raw["requestFullSync"]; ok {
		var p RequestFullSyncPayload
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		m.RequestFullSync = &p
	}

	return nil
}

// InitPayload is sent to a newly identified connection.
type InitPayload struct {
	Content string               `json:"content"`
	Users   map[string]OtherUser `json:"users"`
}

// BroadcastPatchPayload is the patch rebroadcast to every other connection.
type BroadcastPatchPayload struct {
	Patch    string `json:"patch"`
	SenderID string `json:"senderId"`
}

// PatchRejectedPayload explains why a patch could not be committed.
type PatchRejectedPayload struct {
	Reason string `json:"reason"`
}

// RequestFullSyncOutPayload asks the client to resync.
type RequestFullSyncOutPayload struct {
	Reason string `json:"reason"`
}

// ImageProcessedPayload carries the outcome of one image upload.
type ImageProcessedPayload struct {
	PlaceholderID   string `json:"placeholderId"`
	OptimizedBase64 string `json:"optimizedBase64,omitempty"`
	Error           string `json:"error,omitempty"`
}

// CursorMoveOutPayload is the annotated cursor update fanned out to peers.
type CursorMoveOutPayload struct {
	UserID  string  `json:"userId"`
	Name    string  `json:"name"`
	Color   string  `json:"color"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Height  float64 `json:"height"`
	IsImage bool    `json:"isImage"`
}

// UserJoinedPayload announces a newly identified peer.
type UserJoinedPayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

// UserLeftPayload announces a departed peer.
type UserLeftPayload struct {
	UserID string `json:"userId"`
}

// ServerShutdownPayload announces an impending shutdown.
type ServerShutdownPayload struct {
	Message string `json:"message"`
}

// ServerMsg represents messages sent from server to client.
// Only one field is set per message (tagged union pattern).
type ServerMsg struct {
	Init                *InitPayload              `json:"init,omitempty"`
	ApplyPatch          *BroadcastPatchPayload     `json:"applyPatch,omitempty"`
	ContentAcknowledged *struct{}                  `json:"contentAcknowledged,omitempty"`
	PatchRejected       *PatchRejectedPayload      `json:"patchRejected,omitempty"`
	RequestFullSync     *RequestFullSyncOutPayload `json:"requestFullSync,omitempty"`
	ImageProcessed      *ImageProcessedPayload     `json:"imageProcessed,omitempty"`
	CursorMove          *CursorMoveOutPayload      `json:"cursorMove,omitempty"`
	UserJoined          *UserJoinedPayload         `json:"userJoined,omitempty"`
	UserLeft            *UserLeftPayload           `json:"userLeft,omitempty"`
	ServerShutdown      *ServerShutdownPayload     `json:"serverShutdown,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for ServerMsg, ensuring only
// the one populated field is present in the JSON output.
func (m *ServerMsg) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{}, 1)

	switch {
	case m.Init != nil:
		result["init"] = m.Init
	case m.ApplyPatch != nil:
		result["applyPatch"] = m.ApplyPatch
	case m.ContentAcknowledged != nil:
		result["contentAcknowledged"] = struct{}{}
	case m.PatchRejected != nil:
		result["patchRejected"] = m.PatchRejected
	case m.RequestFullSync != nil:
		result["requestFullSync"] = m.RequestFullSync
	case m.ImageProcessed != nil:
		result["imageProcessed"] = m.ImageProcessed
	case m.CursorMove != nil:
		result["cursorMove"] = m.CursorMove
	case m.UserJoined != nil:
		result["userJoined"] = m.UserJoined
	case m.UserLeft != nil:
		result["userLeft"] = m.UserLeft
	case m.ServerShutdown != nil:
		result["serverShutdown"] = m.ServerShutdown
	}

	return json.Marshal(result)
}

// Helper constructors for server messages.

// NewInitMsg creates an init server message.
func NewInitMsg(content string, users map[string]OtherUser) *ServerMsg {
	return &ServerMsg{Init: &InitPayload{Content: content, Users: users}}
}

// NewBroadcastPatchMsg creates an applyPatch server message.
func NewBroadcastPatchMsg(patch, senderID string) *ServerMsg {
	return &ServerMsg{ApplyPatch: &BroadcastPatchPayload{Patch: patch, SenderID: senderID}}
}

// NewContentAcknowledgedMsg creates a contentAcknowledged server message.
func NewContentAcknowledgedMsg() *ServerMsg {
	return &ServerMsg{ContentAcknowledged: &struct{}{}}
}

// NewPatchRejectedMsg creates a patchRejected server message.
func NewPatchRejectedMsg(reason string) *ServerMsg {
	return &ServerMsg{PatchRejected: &PatchRejectedPayload{Reason: reason}}
}

// NewRequestFullSyncMsg creates a requestFullSync server message.
func NewRequestFullSyncMsg(reason string) *ServerMsg {
	return &ServerMsg{RequestFullSync: &RequestFullSyncOutPayload{Reason: reason}}
}

// NewImageProcessedMsg creates an imageProcessed server message.
func NewImageProcessedMsg(placeholderID, optimizedBase64, errMsg string) *ServerMsg {
	return &ServerMsg{ImageProcessed: &ImageProcessedPayload{
		PlaceholderID:   placeholderID,
		OptimizedBase64: optimizedBase64,
		Error:           errMsg,
	}}
}

// NewCursorMoveMsg creates a cursorMove server message.
func NewCursorMoveMsg(userID, name, color string, x, y, height float64, isImage bool) *ServerMsg {
	return &ServerMsg{CursorMove: &CursorMoveOutPayload{
		UserID: userID, Name: name, Color: color, X: x, Y: y, Height: height, IsImage: isImage,
	}}
}

// NewUserJoinedMsg creates a userJoined server message.
func NewUserJoinedMsg(userID, name, color string) *ServerMsg {
	return &ServerMsg{UserJoined: &UserJoinedPayload{UserID: userID, Name: name, Color: color}}
}

// NewUserLeftMsg creates a userLeft server message.
func NewUserLeftMsg(userID string) *ServerMsg {
	return &ServerMsg{UserLeft: &UserLeftPayload{UserID: userID}}
}

// NewServerShutdownMsg creates a serverShutdown server message.
func NewServerShutdownMsg(message string) *ServerMsg {
	return &ServerMsg{ServerShutdown: &ServerShutdownPayload{Message: message}}
}
