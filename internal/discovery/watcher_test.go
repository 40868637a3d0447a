package discovery_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/toy-screen-stream/internal/discovery"
)

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

func startWatcher(t *testing.T, keepalive time.Duration, onChange func(discovery.Controller, bool)) *discovery.Watcher {
	t.Helper()
	w := discovery.NewWatcher("127.0.0.1:0", keepalive, onChange)
	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func send(t *testing.T, to string, b discovery.Beacon) {
	t.Helper()
	conn, err := net.Dial("udp4", to)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", to, err)
	}
	defer conn.Close()
	if _, err := conn.Write(b.Marshal()); err != nil {
		t.Fatalf("failed to send beacon: %v", err)
	}
}

func beacon(port uint16) discovery.Beacon {
	return discovery.Beacon{
		Kind:        discovery.KindAccessRequest,
		Instance:    uuid.New(),
		ControlPort: port,
		BulkPort:    5000,
	}
}

func TestWatcher_AdoptsFirstController(t *testing.T) {
	w := startWatcher(t, time.Minute, nil)

	if _, ok := w.Target(); ok {
		t.Fatal("Target() known before any beacon")
	}

	first := beacon(12120)
	send(t, w.Addr(), first)
	waitFor(t, "adoption", func() bool { _, ok := w.Current(); return ok })

	second := beacon(13130)
	send(t, w.Addr(), second)
	time.Sleep(50 * time.Millisecond)

	c, _ := w.Current()
	if c.Instance != first.Instance {
		t.Errorf("Current() = %s, want the first controller %s", c.Instance, first.Instance)
	}
	if c.Addr != "127.0.0.1:12120" {
		t.Errorf("Addr = %q, want 127.0.0.1:12120", c.Addr)
	}
	if c.BulkAddr != "127.0.0.1:5000" {
		t.Errorf("BulkAddr = %q, want 127.0.0.1:5000", c.BulkAddr)
	}
	if addr, ok := w.Target(); !ok || addr != c.Addr {
		t.Errorf("Target() = %q, %v", addr, ok)
	}
}

func TestWatcher_KeepaliveAndExpiry(t *testing.T) {
	var mu sync.Mutex
	var events []bool
	onChange := func(_ discovery.Controller, present bool) {
		mu.Lock()
		events = append(events, present)
		mu.Unlock()
	}

	const keepalive = 150 * time.Millisecond
	w := startWatcher(t, keepalive, onChange)

	b := beacon(12120)
	send(t, w.Addr(), b)
	waitFor(t, "adoption", func() bool { _, ok := w.Current(); return ok })

	// Keepalives inside the window hold the controller past the first deadline.
	for i := 0; i < 4; i++ {
		time.Sleep(keepalive / 2)
		send(t, w.Addr(), b)
	}
	if _, ok := w.Current(); !ok {
		t.Fatal("controller forgotten despite keepalives")
	}

	waitFor(t, "expiry", func() bool { _, ok := w.Current(); return !ok })

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || !events[0] || events[1] {
		t.Errorf("events = %v, want [true false]", events)
	}
}

func TestWatcher_AdoptsNewControllerAfterExpiry(t *testing.T) {
	w := startWatcher(t, 50*time.Millisecond, nil)

	send(t, w.Addr(), beacon(1111))
	waitFor(t, "adoption", func() bool { _, ok := w.Current(); return ok })
	waitFor(t, "expiry", func() bool { _, ok := w.Current(); return !ok })

	next := beacon(2222)
	send(t, w.Addr(), next)
	waitFor(t, "second adoption", func() bool {
		c, ok := w.Current()
		return ok && c.Instance == next.Instance
	})
}

func TestWatcher_IgnoresGarbage(t *testing.T) {
	w := startWatcher(t, time.Minute, nil)

	conn, err := net.Dial("udp4", w.Addr())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte("hello"))

	time.Sleep(50 * time.Millisecond)
	if _, ok := w.Current(); ok {
		t.Error("garbage datagram adopted as controller")
	}
}

func TestAnnouncer_ReachesWatcher(t *testing.T) {
	w := startWatcher(t, time.Minute, nil)

	b := beacon(12120)
	a := discovery.NewAnnouncer(w.Addr(), b, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, "announced controller", func() bool {
		c, ok := w.Current()
		return ok && c.Instance == b.Instance
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestBroadcastTarget(t *testing.T) {
	if got := discovery.BroadcastTarget(4000); got != "255.255.255.255:4000" {
		t.Errorf("BroadcastTarget() = %q", got)
	}
}
