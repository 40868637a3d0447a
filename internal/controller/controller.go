// Package controller is the receiving side of a screen stream. It accepts an
// agent connection, decodes the frames it sends, and tells it which JPEG
// quality to use.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/toy-screen-stream/internal/codec"
	"github.com/omochice/toy-screen-stream/internal/display"
	"github.com/omochice/toy-screen-stream/internal/peer"
	"github.com/omochice/toy-screen-stream/pkg/protocol"
)

var (
	// ErrInvalidQuality is returned by ChangeQuality for a value outside 1..100.
	ErrInvalidQuality = protocol.ErrInvalidQuality
	// ErrNoActivePeer is returned when no agent is connected.
	ErrNoActivePeer = errors.New("no active agent connection")
)

// DefaultMaxMessagesPerTick bounds the messages dispatched by one Tick.
const DefaultMaxMessagesPerTick = 16

// Stats counts what happened to received frames.
type Stats struct {
	Metadata    uint64 // metadata updates applied
	Decoded     uint64 // frames decoded and stored
	Stale       uint64 // frames dropped because the geometry changed
	// OutOfOrder counts decodes that finished after a later arrival was
	// already stored. Those frames are dropped on purpose instead of letting
	// the last decode to finish win.
	OutOfOrder  uint64
	CodecErrors uint64 // undecodable payloads; the connection stays open
	Malformed   uint64 // bodies that did not match their layout; the connection is closed
	Presented   uint64
}

type counters struct {
	metadata    atomic.Uint64
	decoded     atomic.Uint64
	stale       atomic.Uint64
	outOfOrder  atomic.Uint64
	codecErrors atomic.Uint64
	malformed   atomic.Uint64
	presented   atomic.Uint64
}

// Controller implements peer.Handler on top of a peer.Listener.
type Controller struct {
	listener *peer.Listener
	state    *display.State
	decoder  codec.Decoder
	perTick  int

	mu      sync.Mutex
	active  *peer.Connection
	current uint32 // quality the agent is believed to use

	// arrival numbers pixel messages as they are dispatched. A decode only
	// stores its frame if no later arrival has been stored already.
	arrival atomic.Uint64
	applyMu sync.Mutex
	applied uint64

	decodes sync.WaitGroup
	stats   counters
}

var _ peer.Handler = (*Controller)(nil)

// Option configures a Controller.
type Option func(*Controller, *[]peer.Option)

// WithDecoder replaces the JPEG decoder.
func WithDecoder(d codec.Decoder) Option {
	return func(c *Controller, _ *[]peer.Option) {
		c.decoder = d
	}
}

// WithWebSocket accepts WebSocket agents on the control port.
func WithWebSocket(enabled bool) Option {
	return func(_ *Controller, opts *[]peer.Option) {
		*opts = append(*opts, peer.WithWebSocket(enabled))
	}
}

// WithMaxMessagesPerTick overrides DefaultMaxMessagesPerTick. A negative
// value drains the whole queue each tick.
func WithMaxMessagesPerTick(n int) Option {
	return func(c *Controller, _ *[]peer.Option) {
		c.perTick = n
	}
}

// New creates a Controller that will listen on address. quality is the
// initial desired quality.
func New(address string, quality uint32, opts ...Option) *Controller {
	c := &Controller{
		state:   display.NewState(quality),
		decoder: codec.JPEG{},
		perTick: DefaultMaxMessagesPerTick,
	}

	var listenerOpts []peer.Option
	for _, opt := range opts {
		opt(c, &listenerOpts)
	}
	c.listener = peer.NewListener(address, c, listenerOpts...)
	return c
}

// Start begins accepting agents.
func (c *Controller) Start() error {
	return c.listener.Start()
}

// Stop closes every connection and waits for in-flight decodes.
func (c *Controller) Stop() {
	c.listener.Stop()
	c.decodes.Wait()
}

// Addr returns the listening address.
func (c *Controller) Addr() string {
	return c.listener.Addr()
}

// State exposes the shared display state.
func (c *Controller) State() *display.State {
	return c.state
}

// Active returns the current agent connection, or nil.
func (c *Controller) Active() *peer.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// OnAdmit accepts every agent; the newest one becomes active.
func (c *Controller) OnAdmit(conn *peer.Connection) bool {
	c.mu.Lock()
	prev := c.active
	c.active = conn
	c.current = 0
	c.mu.Unlock()

	if prev != nil {
		log.Printf("Agent %s replaces connection %d", conn.RemoteAddr(), prev.ID())
	}
	c.state.ClearMetadata()
	return true
}

// OnConnectionLost forgets the active agent if conn was it.
func (c *Controller) OnConnectionLost(conn *peer.Connection) {
	c.mu.Lock()
	wasActive := c.active == conn
	if wasActive {
		c.active = nil
		c.current = 0
	}
	c.mu.Unlock()

	if wasActive {
		c.state.ClearMetadata()
		log.Printf("[%d] Agent disconnected", conn.ID())
	}
}

// OnMessage dispatches one received message. Messages from a connection that
// is no longer the active one are dropped.
func (c *Controller) OnMessage(conn *peer.Connection, m *protocol.Message) {
	if conn != c.Active() {
		return
	}

	switch m.Type() {
	case protocol.MessageTypeFrameMetadataUpdate:
		c.handleMetadata(conn, m)
	case protocol.MessageTypeFramePixelsUpdate:
		c.handlePixels(conn, m)
	case protocol.MessageTypeInputUpdate:
		// Reserved.
	default:
		log.Printf("[%d] Unexpected message %s", conn.ID(), m.Type())
	}
}

func (c *Controller) handleMetadata(conn *peer.Connection, m *protocol.Message) {
	meta, err := protocol.ParseFrameMetadataUpdate(m)
	if err != nil {
		c.reject(conn, "metadata", err)
		return
	}
	if !meta.Valid() {
		log.Printf("[%d] Ignoring invalid metadata %s", conn.ID(), meta)
		return
	}

	c.state.SetMetadata(meta)
	c.mu.Lock()
	c.current = meta.Quality
	c.mu.Unlock()
	c.stats.metadata.Add(1)
}

func (c *Controller) handlePixels(conn *peer.Connection, m *protocol.Message) {
	payload, err := protocol.ParseFramePixelsUpdate(m)
	if err != nil {
		c.reject(conn, "pixels message", err)
		return
	}

	seq := c.arrival.Add(1)
	c.decodes.Add(1)
	go c.decode(conn, seq, payload)
}

// reject drops a message whose body does not match its layout. The stream can
// no longer be trusted, so the connection is closed; the next Tick prunes it.
func (c *Controller) reject(conn *peer.Connection, what string, err error) {
	log.Printf("[%d] Bad %s, closing: %v", conn.ID(), what, err)
	c.stats.malformed.Add(1)
	conn.Close()
}

// decode runs off the dispatch goroutine. The geometry check happens after
// decoding, against whatever metadata is current by then.
func (c *Controller) decode(conn *peer.Connection, seq uint64, payload []byte) {
	defer c.decodes.Done()

	img, err := c.decoder.Decode(payload)
	if err != nil {
		c.stats.codecErrors.Add(1)
		log.Printf("[%d] %v", conn.ID(), err)
		return
	}

	meta, ok := c.state.Metadata()
	b := img.Bounds()
	if !ok || !meta.SameGeometry(b.Dx(), b.Dy()) {
		c.stats.stale.Add(1)
		return
	}

	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	if seq <= c.applied {
		c.stats.outOfOrder.Add(1)
		return
	}
	c.applied = seq
	c.state.StoreFrame(img)
	c.stats.decoded.Add(1)
}

// ChangeQuality asks the active agent to encode at q.
func (c *Controller) ChangeQuality(q uint32) error {
	if !protocol.ValidQuality(q) {
		return fmt.Errorf("%w: %d", ErrInvalidQuality, q)
	}

	conn := c.Active()
	if conn == nil {
		return ErrNoActivePeer
	}
	if err := c.listener.SendTo(conn, protocol.NewQualityChange(q)); err != nil {
		return fmt.Errorf("failed to send quality change: %w", err)
	}

	c.mu.Lock()
	c.current = q
	c.mu.Unlock()
	log.Printf("[%d] Quality change to %d", conn.ID(), q)
	return nil
}

// SetDesiredQuality records the quality the next Tick should push to the
// agent.
func (c *Controller) SetDesiredQuality(q uint32) error {
	if !protocol.ValidQuality(q) {
		return fmt.Errorf("%w: %d", ErrInvalidQuality, q)
	}
	c.state.SetDesiredQuality(q)
	return nil
}

// Tick runs one render iteration. It prunes dead agents, dispatches queued
// messages, pushes a pending quality change and presents a new frame to sink
// if one arrived. A nil sink leaves the new-frame flag untouched. It returns
// the number of messages dispatched.
func (c *Controller) Tick(sink display.Sink) int {
	c.listener.Prune()
	n := c.listener.Update(c.perTick, false)

	c.mu.Lock()
	active, current := c.active, c.current
	c.mu.Unlock()

	if desired := c.state.DesiredQuality(); active != nil && desired != current {
		if err := c.ChangeQuality(desired); err != nil {
			log.Printf("Failed to sync quality: %v", err)
		}
	}

	if sink != nil && c.state.TakeNewFrame() {
		if img := c.state.Frame(); img != nil {
			sink.Present(img)
			c.stats.presented.Add(1)
		}
	}
	return n
}

// Run calls Tick every interval until ctx ends.
func (c *Controller) Run(ctx context.Context, sink display.Sink, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick(sink)
		}
	}
}

// Flush waits for every decode started so far. It must not race with Tick.
func (c *Controller) Flush() {
	c.decodes.Wait()
}

// Stats returns a snapshot of the frame counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Metadata:    c.stats.metadata.Load(),
		Decoded:     c.stats.decoded.Load(),
		Stale:       c.stats.stale.Load(),
		OutOfOrder:  c.stats.outOfOrder.Load(),
		CodecErrors: c.stats.codecErrors.Load(),
		Malformed:   c.stats.malformed.Load(),
		Presented:   c.stats.presented.Load(),
	}
}
