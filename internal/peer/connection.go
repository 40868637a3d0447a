package peer

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/omochice/toy-screen-stream/internal/queue"
	"github.com/omochice/toy-screen-stream/internal/transport"
	"github.com/omochice/toy-screen-stream/pkg/protocol"
)

var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNotConnected is returned by a connector with no open connection.
	ErrNotConnected = errors.New("not connected")
)

// Role says which side opened a connection.
type Role int

const (
	RoleListener Role = iota
	RoleConnector
)

func (r Role) String() string {
	if r == RoleConnector {
		return "connector"
	}
	return "listener"
}

// Connection owns one socket and moves framed messages across it.
//
// A read pump runs for the connection's whole life and pushes every complete
// message onto the shared inbound queue. A write pump runs only while the
// private outbound queue is non-empty, so an idle connection costs one
// goroutine.
type Connection struct {
	role Role
	id   uint32
	conn transport.Conn

	inbound  *queue.Deque[OwnedMessage]
	outbound *queue.Deque[*protocol.Message]

	// sendMu guards writing and the closed transition so that exactly one
	// write pump is started per empty to non-empty edge.
	sendMu  sync.Mutex
	writing bool
	closed  atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewConnection wraps conn. Nothing is read until one of the Open methods is
// called.
func NewConnection(role Role, conn transport.Conn, inbound *queue.Deque[OwnedMessage]) *Connection {
	return &Connection{
		role:     role,
		conn:     conn,
		inbound:  inbound,
		outbound: queue.New[*protocol.Message](),
		done:     make(chan struct{}),
	}
}

// OpenListenerSide assigns id and starts reading. Messages are tagged with c.
func (c *Connection) OpenListenerSide(id uint32) {
	if c.role != RoleListener {
		return
	}
	c.id = id
	c.startReading()
}

// OpenConnectorSide starts reading. Messages are tagged with a nil origin.
func (c *Connection) OpenConnectorSide() {
	if c.role != RoleConnector {
		return
	}
	c.startReading()
}

func (c *Connection) startReading() {
	c.wg.Add(1)
	go c.readPump()
}

func (c *Connection) readPump() {
	defer c.wg.Done()
	defer close(c.done)

	for {
		msg, err := protocol.ReadMessage(c.conn)
		if err != nil {
			if !c.closed.Load() {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					log.Printf("[%d] Remote closed connection", c.id)
				} else {
					log.Printf("[%d] Read failed: %v", c.id, err)
				}
			}
			c.Close()
			return
		}

		owned := OwnedMessage{Msg: msg}
		if c.role == RoleListener {
			owned.Remote = c
		}
		c.inbound.PushBack(owned)
	}
}

// Send queues a copy of m for transmission. It never blocks on the socket.
func (c *Connection) Send(m *protocol.Message) error {
	msg := m.Clone()

	c.sendMu.Lock()
	if c.closed.Load() {
		c.sendMu.Unlock()
		return ErrConnectionClosed
	}
	c.outbound.PushBack(msg)
	start := !c.writing
	if start {
		c.writing = true
		c.wg.Add(1)
	}
	c.sendMu.Unlock()

	if start {
		go c.writePump()
	}
	return nil
}

// writePump writes the front message and pops it only after the write
// completes, so a concurrent Send sees a non-empty queue and does not start a
// second pump.
func (c *Connection) writePump() {
	defer c.wg.Done()

	for {
		msg, ok := c.outbound.Front()
		if !ok {
			c.sendMu.Lock()
			if c.outbound.Empty() || c.closed.Load() {
				c.writing = false
				c.sendMu.Unlock()
				return
			}
			c.sendMu.Unlock()
			continue
		}

		if err := protocol.WriteMessage(c.conn, msg); err != nil {
			if !c.closed.Load() {
				log.Printf("[%d] Write failed: %v", c.id, err)
			}
			c.Close()
			c.sendMu.Lock()
			c.writing = false
			c.sendMu.Unlock()
			return
		}
		c.outbound.PopFront()
	}
}

// Close closes the socket and discards queued outbound messages. Safe to call
// more than once and from any goroutine.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed.Store(true)
		c.sendMu.Unlock()

		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("[%d] Close failed: %v", c.id, err)
		}
		c.outbound.Clear()
	})
}

// Wait blocks until both pumps have exited.
func (c *Connection) Wait() {
	c.wg.Wait()
}

// Done is closed when the read pump exits.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// IsConnected reports whether the connection has not been closed.
func (c *Connection) IsConnected() bool {
	return !c.closed.Load()
}

// ID returns the listener-assigned id, or 0 on the connector side.
func (c *Connection) ID() uint32 {
	return c.id
}

func (c *Connection) Role() Role {
	return c.role
}

// Pending returns the number of messages waiting to be written.
func (c *Connection) Pending() int {
	return c.outbound.Len()
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
