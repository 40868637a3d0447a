package peer

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/omochice/toy-screen-stream/internal/queue"
	"github.com/omochice/toy-screen-stream/internal/transport"
	"github.com/omochice/toy-screen-stream/internal/transport/tcp"
	"github.com/omochice/toy-screen-stream/internal/transport/ws"
	"github.com/omochice/toy-screen-stream/pkg/protocol"
)

// Connector holds at most one outbound connection.
type Connector struct {
	mu      sync.RWMutex
	conn    *Connection
	inbound *queue.Deque[OwnedMessage]
}

// NewConnector creates a disconnected Connector.
func NewConnector() *Connector {
	return &Connector{inbound: queue.New[OwnedMessage]()}
}

// Connect dials address and starts reading. address is host:port for raw
// TCP or a ws:// URL for WebSocket. An existing connection is dropped first.
func (c *Connector) Connect(ctx context.Context, address string) error {
	c.Disconnect()

	var carrier transport.Conn
	var err error
	if strings.HasPrefix(address, "ws://") {
		carrier, err = ws.Dial(ctx, address)
	} else {
		carrier, err = tcp.Dial(ctx, address)
	}
	if err != nil {
		return err
	}

	conn := NewConnection(RoleConnector, carrier, c.inbound)
	conn.OpenConnectorSide()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	log.Printf("Connected to %s", address)
	return nil
}

// Disconnect closes the connection, if any, and waits for its pumps.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	conn.Close()
	conn.Wait()
}

// IsConnected reports whether the current connection is open.
func (c *Connector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Send queues m on the current connection.
func (c *Connector) Send(m *protocol.Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(m)
}

// Incoming exposes the inbound queue. It survives reconnects.
func (c *Connector) Incoming() *queue.Deque[OwnedMessage] {
	return c.inbound
}
