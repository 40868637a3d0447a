// Package agent is the sending side of a screen stream. It captures frames,
// encodes them as JPEG and sends them to a controller, applying the quality
// changes the controller asks for.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omochice/toy-screen-stream/internal/capture"
	"github.com/omochice/toy-screen-stream/internal/codec"
	"github.com/omochice/toy-screen-stream/internal/peer"
	"github.com/omochice/toy-screen-stream/pkg/protocol"
)

const (
	// DefaultReconnectDelay is the pause between connection attempts.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultCaptureInterval paces Step in Run.
	DefaultCaptureInterval = 100 * time.Millisecond
)

// Target yields the controller address to connect to. ok is false while no
// controller is known.
type Target func() (address string, ok bool)

// Static returns a Target that always yields address.
func Static(address string) Target {
	return func() (string, bool) {
		return address, address != ""
	}
}

// Stats counts what the agent has sent and received.
type Stats struct {
	Frames   uint64
	Bytes    uint64
	Metadata uint64
	Commands uint64
}

// Agent streams one capture source over a peer.Connector.
type Agent struct {
	connector *peer.Connector
	source    capture.Source
	encoder   codec.Encoder

	reconnectDelay  time.Duration
	captureInterval time.Duration

	mu       sync.Mutex
	quality  uint32
	lastMeta protocol.FrameMetadata
	sentMeta bool

	frames   atomic.Uint64
	bytes    atomic.Uint64
	metadata atomic.Uint64
	commands atomic.Uint64
}

// Option configures an Agent.
type Option func(*Agent)

// WithEncoder replaces the JPEG encoder.
func WithEncoder(e codec.Encoder) Option {
	return func(a *Agent) {
		a.encoder = e
	}
}

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(a *Agent) {
		a.reconnectDelay = d
	}
}

// WithCaptureInterval overrides DefaultCaptureInterval.
func WithCaptureInterval(d time.Duration) Option {
	return func(a *Agent) {
		a.captureInterval = d
	}
}

// New creates an agent that encodes frames from source at quality.
func New(source capture.Source, quality uint32, opts ...Option) *Agent {
	a := &Agent{
		connector:       peer.NewConnector(),
		source:          source,
		encoder:         codec.JPEG{},
		reconnectDelay:  DefaultReconnectDelay,
		captureInterval: DefaultCaptureInterval,
		quality:         quality,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect dials the controller. The next frame is preceded by metadata.
func (a *Agent) Connect(ctx context.Context, address string) error {
	if err := a.connector.Connect(ctx, address); err != nil {
		return err
	}
	a.mu.Lock()
	a.sentMeta = false
	a.mu.Unlock()
	return nil
}

// Disconnect drops the controller connection.
func (a *Agent) Disconnect() {
	a.connector.Disconnect()
}

// IsConnected reports whether the controller connection is open.
func (a *Agent) IsConnected() bool {
	return a.connector.IsConnected()
}

// Quality returns the current encoder quality.
func (a *Agent) Quality() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quality
}

// SendFrameMetadata announces the geometry and quality of following frames.
func (a *Agent) SendFrameMetadata(meta protocol.FrameMetadata) error {
	if err := a.connector.Send(protocol.NewFrameMetadataUpdate(meta)); err != nil {
		return fmt.Errorf("failed to send metadata: %w", err)
	}
	a.metadata.Add(1)
	return nil
}

// SendFramePixels sends one encoded frame.
func (a *Agent) SendFramePixels(payload []byte) error {
	if err := a.connector.Send(protocol.NewFramePixelsUpdate(payload)); err != nil {
		return fmt.Errorf("failed to send pixels: %w", err)
	}
	a.frames.Add(1)
	a.bytes.Add(uint64(len(payload)))
	return nil
}

// Step captures, encodes and sends one frame, then handles at most one
// pending command from the controller.
func (a *Agent) Step() error {
	frame, ok, err := a.source.Capture()
	if err != nil {
		return fmt.Errorf("failed to capture frame: %w", err)
	}
	if ok {
		if err := a.sendFrame(frame); err != nil {
			return err
		}
	}

	if om, ok := a.connector.Incoming().PopFront(); ok {
		err := a.HandleCommand(om.Msg)
		switch {
		case protocol.IsMalformed(err):
			a.connector.Disconnect()
			return fmt.Errorf("%w: bad command: %w", peer.ErrConnectionClosed, err)
		case err != nil:
			log.Printf("Ignoring command: %v", err)
		}
	}
	return nil
}

func (a *Agent) sendFrame(frame capture.Frame) error {
	a.mu.Lock()
	quality := a.quality
	a.mu.Unlock()

	data, err := a.encoder.Encode(frame.Image, int(quality))
	if err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", frame.Seq, err)
	}

	meta := protocol.FrameMetadata{
		Width:       uint32(frame.Width()),
		Height:      uint32(frame.Height()),
		Quality:     quality,
		PayloadSize: uint64(len(data)),
	}

	a.mu.Lock()
	changed := !a.sentMeta ||
		!a.lastMeta.SameGeometry(frame.Width(), frame.Height()) ||
		a.lastMeta.Quality != quality
	a.mu.Unlock()

	if changed {
		if err := a.SendFrameMetadata(meta); err != nil {
			return err
		}
		a.mu.Lock()
		a.lastMeta = meta
		a.sentMeta = true
		a.mu.Unlock()
		log.Printf("Streaming %s", meta)
	}

	return a.SendFramePixels(data)
}

// HandleCommand applies one message from the controller.
func (a *Agent) HandleCommand(m *protocol.Message) error {
	switch m.Type() {
	case protocol.MessageTypeQualityChangeCommand:
		q, err := protocol.ParseQualityChange(m)
		if err != nil {
			return err
		}
		if !protocol.ValidQuality(q) {
			return fmt.Errorf("%w: %d", protocol.ErrInvalidQuality, q)
		}

		a.mu.Lock()
		a.quality = q
		a.mu.Unlock()
		a.commands.Add(1)
		log.Printf("Quality set to %d", q)
		return nil
	case protocol.MessageTypeInputUpdate:
		return nil
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnexpectedType, m.Type())
	}
}

// Run keeps the agent connected to target and streams every capture
// interval until ctx ends. Failed or lost connections are retried after the
// reconnect delay.
func (a *Agent) Run(ctx context.Context, target Target) error {
	defer a.Disconnect()

	for {
		address, err := a.connectOnce(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("%v, retrying in %s", err, a.reconnectDelay)
			if !sleep(ctx, a.reconnectDelay) {
				return ctx.Err()
			}
			continue
		}

		err = a.stream(ctx, target, address)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("Stream ended: %v", err)
		a.Disconnect()
	}
}

func (a *Agent) connectOnce(ctx context.Context, target Target) (string, error) {
	address, ok := target()
	if !ok {
		return "", errNoTarget
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.reconnectDelay)
	defer cancel()
	return address, a.Connect(dialCtx, address)
}

var (
	errNoTarget   = errors.New("no controller known")
	errTargetGone = errors.New("controller forgotten or replaced")
)

// stream runs Step on the capture ticker until the connection drops or
// target stops naming address.
func (a *Agent) stream(ctx context.Context, target Target, address string) error {
	ticker := time.NewTicker(a.captureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if current, ok := target(); !ok || current != address {
				return errTargetGone
			}
			if !a.IsConnected() {
				return peer.ErrConnectionClosed
			}
			if err := a.Step(); err != nil {
				if errors.Is(err, peer.ErrConnectionClosed) || errors.Is(err, peer.ErrNotConnected) {
					return err
				}
				log.Printf("Step failed: %v", err)
			}
		}
	}
}

// Stats returns a snapshot of the counters.
func (a *Agent) Stats() Stats {
	return Stats{
		Frames:   a.frames.Load(),
		Bytes:    a.bytes.Load(),
		Metadata: a.metadata.Load(),
		Commands: a.commands.Load(),
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
