package peer

import (
	"errors"
	"fmt"
	"log"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/omochice/toy-screen-stream/internal/queue"
	"github.com/omochice/toy-screen-stream/internal/transport"
	"github.com/omochice/toy-screen-stream/internal/transport/tcp"
	"github.com/omochice/toy-screen-stream/internal/transport/ws"
	"github.com/omochice/toy-screen-stream/pkg/protocol"
)

// DefaultFirstID is the id given to the first admitted connection.
const DefaultFirstID uint32 = 10000

// sniffTimeout bounds how long a silent client may delay protocol detection.
// A client that sends nothing in time is treated as raw TCP.
const sniffTimeout = 2 * time.Second

// Listener accepts connections and hands their messages to a Handler.
type Listener struct {
	address   string
	handler   Handler
	websocket bool
	nextID    uint32

	listener net.Listener
	inbound  *queue.Deque[OwnedMessage]

	mu    sync.RWMutex
	conns []*Connection

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Listener.
type Option func(*Listener)

// WithWebSocket lets the listener accept WebSocket upgrades on the same port
// as raw framed TCP.
func WithWebSocket(enabled bool) Option {
	return func(l *Listener) {
		l.websocket = enabled
	}
}

// WithFirstID overrides DefaultFirstID.
func WithFirstID(id uint32) Option {
	return func(l *Listener) {
		l.nextID = id
	}
}

// NewListener creates a Listener for address. A nil handler behaves like
// BaseHandler and denies every connection.
func NewListener(address string, handler Handler, opts ...Option) *Listener {
	if handler == nil {
		handler = BaseHandler{}
	}
	l := &Listener{
		address: address,
		handler: handler,
		nextID:  DefaultFirstID,
		inbound: queue.New[OwnedMessage](),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start binds the address and accepts connections in the background.
func (l *Listener) Start() error {
	listener, err := net.Listen("tcp", l.address)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	l.listener = listener

	if l.websocket {
		log.Printf("Listener started on %s (TCP and WebSocket)", listener.Addr().String())
	} else {
		log.Printf("Listener started on %s", listener.Addr().String())
	}

	l.wg.Add(1)
	go l.acceptConnections()
	return nil
}

// Stop closes the listening socket and every connection, then waits for all
// background goroutines.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
		if l.listener != nil {
			l.listener.Close()
		}

		l.mu.Lock()
		conns := l.conns
		l.conns = nil
		l.mu.Unlock()

		for _, c := range conns {
			c.Close()
		}
		for _, c := range conns {
			c.Wait()
		}

		l.inbound.Close()
		l.wg.Wait()
		log.Printf("Listener stopped")
	})
}

// Addr returns the listening address.
func (l *Listener) Addr() string {
	if l.listener != nil {
		return l.listener.Addr().String()
	}
	return ""
}

func (l *Listener) acceptConnections() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Failed to accept connection: %v", err)
			continue
		}

		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

// handleConnection wraps a raw socket in the right transport and offers it
// to the handler for admission.
func (l *Listener) handleConnection(netConn net.Conn) {
	defer l.wg.Done()

	if tc, ok := netConn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	carrier, err := l.wrap(netConn)
	if err != nil {
		log.Printf("[-----] %v", err)
		netConn.Close()
		return
	}

	c := NewConnection(RoleListener, carrier, l.inbound)
	if !l.handler.OnAdmit(c) {
		log.Printf("[-----] Connection denied: %s", carrier.RemoteAddr())
		carrier.Close()
		return
	}

	l.mu.Lock()
	select {
	case <-l.quit:
		l.mu.Unlock()
		carrier.Close()
		return
	default:
	}
	id := l.nextID
	l.nextID++
	l.conns = append(l.conns, c)
	c.OpenListenerSide(id)
	l.mu.Unlock()

	log.Printf("[%d] Connection approved: %s", id, carrier.RemoteAddr())
}

func (l *Listener) wrap(netConn net.Conn) (transport.Conn, error) {
	if !l.websocket {
		return tcp.NewConn(netConn), nil
	}

	_ = netConn.SetReadDeadline(time.Now().Add(sniffTimeout))
	proto, reader, err := transport.Detect(netConn)
	_ = netConn.SetReadDeadline(time.Time{})
	if err != nil {
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			return nil, fmt.Errorf("failed to detect protocol: %w", err)
		}
	}

	if proto == transport.ProtocolHTTP {
		wc, err := ws.Upgrade(netConn, reader)
		if err != nil {
			return nil, err
		}
		return wc, nil
	}
	return tcp.NewConnWithReader(netConn, reader), nil
}

// SendTo queues m on c. If c has died it is pruned and the handler told.
func (l *Listener) SendTo(c *Connection, m *protocol.Message) error {
	if c == nil {
		return ErrConnectionClosed
	}
	if c.IsConnected() {
		if err := c.Send(m); err == nil {
			return nil
		}
	}
	l.prune(c)
	return ErrConnectionClosed
}

// Broadcast queues m on every live connection except except, which may be
// nil. Dead connections found on the way are pruned after the pass. It
// returns the number of connections the message was queued on.
func (l *Listener) Broadcast(m *protocol.Message, except *Connection) int {
	l.mu.RLock()
	conns := slices.Clone(l.conns)
	l.mu.RUnlock()

	var sent int
	var dead []*Connection
	for _, c := range conns {
		if !c.IsConnected() {
			dead = append(dead, c)
			continue
		}
		if c == except {
			continue
		}
		if err := c.Send(m); err != nil {
			dead = append(dead, c)
			continue
		}
		sent++
	}

	for _, c := range dead {
		l.prune(c)
	}
	return sent
}

// Prune drops every tracked connection that has died and returns how many
// were removed.
func (l *Listener) Prune() int {
	var dead []*Connection
	l.mu.RLock()
	for _, c := range l.conns {
		if !c.IsConnected() {
			dead = append(dead, c)
		}
	}
	l.mu.RUnlock()

	for _, c := range dead {
		l.prune(c)
	}
	return len(dead)
}

// prune removes c from the connection set and notifies the handler once.
func (l *Listener) prune(c *Connection) {
	l.mu.Lock()
	idx := slices.Index(l.conns, c)
	if idx >= 0 {
		l.conns = slices.Delete(l.conns, idx, idx+1)
	}
	l.mu.Unlock()

	if idx < 0 {
		return
	}
	l.handler.OnConnectionLost(c)
	c.Close()
	log.Printf("[%d] Connection removed", c.ID())
}

// Update dispatches up to max queued messages to the handler and returns how
// many were handled. A negative max means no limit. With wait set, Update
// first blocks until a message arrives or the listener stops.
func (l *Listener) Update(max int, wait bool) int {
	if wait {
		l.inbound.Wait()
	}

	var n int
	for max < 0 || n < max {
		om, ok := l.inbound.PopFront()
		if !ok {
			break
		}
		l.handler.OnMessage(om.Remote, om.Msg)
		n++
	}
	return n
}

// ConnectionCount returns the number of tracked connections, live or not yet
// pruned.
func (l *Listener) ConnectionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conns)
}

// Connections returns a snapshot of the tracked connections.
func (l *Listener) Connections() []*Connection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.conns)
}

// Incoming exposes the shared inbound queue.
func (l *Listener) Incoming() *queue.Deque[OwnedMessage] {
	return l.inbound
}
