// Package peer implements the framed messaging transport: connections with
// independent read and write pumps, a listener that admits and tracks many
// connections, and a connector that holds a single outbound connection.
//
// Received messages from every connection of a peer land in one shared
// inbound queue. Application code drains that queue on its own schedule and
// never touches sockets directly.
package peer

import "github.com/omochice/toy-screen-stream/pkg/protocol"

// OwnedMessage is a received message tagged with the connection it came from.
// Remote is nil on the connector side, where there is only one connection.
type OwnedMessage struct {
	Remote *Connection
	Msg    *protocol.Message
}

// Handler is the capability set a listener owner supplies.
type Handler interface {
	// OnAdmit decides whether a newly accepted connection is kept.
	// The connection has no id yet.
	OnAdmit(c *Connection) bool

	// OnConnectionLost is called once when a dead connection is pruned.
	OnConnectionLost(c *Connection)

	// OnMessage is called from Listener.Update for each drained message.
	OnMessage(c *Connection, m *protocol.Message)
}

// BaseHandler denies every connection and ignores every event.
// Embed it and override what you need.
type BaseHandler struct{}

func (BaseHandler) OnAdmit(*Connection) bool { return false }

func (BaseHandler) OnConnectionLost(*Connection) {}

func (BaseHandler) OnMessage(*Connection, *protocol.Message) {}

var _ Handler = BaseHandler{}
