package peer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/omochice/toy-screen-stream/internal/peer"
	"github.com/omochice/toy-screen-stream/pkg/protocol"
)

type received struct {
	from *peer.Connection
	msg  *protocol.Message
}

// recorder is a Handler that records every callback.
type recorder struct {
	peer.BaseHandler
	admit bool

	mu       sync.Mutex
	admitted []*peer.Connection
	lost     []*peer.Connection
	msgs     []received
}

var _ peer.Handler = (*recorder)(nil)

func (r *recorder) OnAdmit(c *peer.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.admit {
		r.admitted = append(r.admitted, c)
	}
	return r.admit
}

func (r *recorder) OnConnectionLost(c *peer.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, c)
}

func (r *recorder) OnMessage(c *peer.Connection, m *protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, received{from: c, msg: m})
}

func (r *recorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) lostCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lost)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startListener(t *testing.T, h peer.Handler, opts ...peer.Option) *peer.Listener {
	t.Helper()
	l := peer.NewListener("127.0.0.1:0", h, opts...)
	if err := l.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(l.Stop)
	return l
}

func connect(t *testing.T, address string) *peer.Connector {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c := peer.NewConnector()
	if err := c.Connect(ctx, address); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

func seqMessage(seq uint32) *protocol.Message {
	m := protocol.NewMessage(protocol.MessageTypeInputUpdate)
	m.PushUint32(seq)
	return m
}
