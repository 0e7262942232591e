// Package router dispatches inbound patch, full-sync and cursor messages to
// the Document Store and Session Registry, and fans outbound messages back
// out to the right recipients. Image uploads are not routed here.
package router

import (
	"github.com/inkdrift/scriptorium/internal/protocol"
)

// Broadcaster is the connection-fan-out surface routers depend on. Servers
// implement this over their live connection set; routers never know about
// the transport itself.
type Broadcaster interface {
	SendTo(connectionID string, msg *protocol.ServerMsg)
	BroadcastExcept(exceptConnectionID string, msg *protocol.ServerMsg)
	BroadcastAll(msg *protocol.ServerMsg)
}
