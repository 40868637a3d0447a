package discovery

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultKeepalive is how long a controller is kept without hearing from it.
const DefaultKeepalive = 15 * time.Second

// Controller is the controller an agent has adopted.
type Controller struct {
	Instance uuid.UUID
	Name     string
	Addr     string // host:control_port
	BulkAddr string // host:bulk_port, empty if not advertised
}

// Watcher listens for beacons and tracks one controller at a time.
type Watcher struct {
	address   string
	keepalive time.Duration
	onChange  func(c Controller, present bool)

	conn *net.UDPConn

	mu      sync.Mutex
	current *Controller
	timer   *time.Timer
	gen     uint64

	wg sync.WaitGroup
}

// NewWatcher listens on address (e.g. ":4000"). onChange, if not nil, is
// called when a controller is adopted or forgotten; it must not call back
// into the Watcher.
func NewWatcher(address string, keepalive time.Duration, onChange func(Controller, bool)) *Watcher {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &Watcher{address: address, keepalive: keepalive, onChange: onChange}
}

// Start binds the UDP socket and starts receiving.
func (w *Watcher) Start() error {
	addr, err := net.ResolveUDPAddr("udp4", w.address)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", w.address, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP %s: %w", w.address, err)
	}
	w.conn = conn
	log.Printf("Waiting for controller beacons on %s", conn.LocalAddr())

	w.wg.Add(1)
	go w.readLoop()
	return nil
}

// Stop closes the socket and cancels the keepalive timer.
func (w *Watcher) Stop() {
	if w.conn != nil {
		w.conn.Close()
	}
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

// Addr returns the bound UDP address.
func (w *Watcher) Addr() string {
	if w.conn != nil {
		return w.conn.LocalAddr().String()
	}
	return ""
}

// Current returns the adopted controller, if any.
func (w *Watcher) Current() (Controller, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return Controller{}, false
	}
	return *w.current, true
}

// Target returns the adopted controller's control address.
func (w *Watcher) Target() (string, bool) {
	c, ok := w.Current()
	return c.Addr, ok
}

func (w *Watcher) readLoop() {
	defer w.wg.Done()

	buf := make([]byte, MaxBeaconSize)
	for {
		n, from, err := w.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Discovery read failed: %v", err)
			continue
		}

		b, err := ParseBeacon(buf[:n])
		if err != nil {
			log.Printf("Ignoring datagram from %s: %v", from, err)
			continue
		}
		w.handle(b, from)
	}
}

func (w *Watcher) handle(b Beacon, from *net.UDPAddr) {
	host := from.IP.String()
	c := Controller{
		Instance: b.Instance,
		Name:     b.Name,
		Addr:     net.JoinHostPort(host, strconv.Itoa(int(b.ControlPort))),
	}
	if b.BulkPort != 0 {
		c.BulkAddr = net.JoinHostPort(host, strconv.Itoa(int(b.BulkPort)))
	}

	w.mu.Lock()
	switch {
	case w.current == nil:
		w.current = &c
		w.arm()
		w.mu.Unlock()
		log.Printf("The controller now is %s (%s)", c.Addr, c.Instance)
		w.notify(c, true)
	case w.current.Instance == b.Instance:
		// Keepalive; the controller may have moved.
		w.current = &c
		w.arm()
		w.mu.Unlock()
	default:
		w.mu.Unlock()
	}
}

// arm restarts the keepalive timer. Must be called with mu held.
func (w *Watcher) arm() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.keepalive, func() { w.expire(gen) })
}

func (w *Watcher) expire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || w.current == nil {
		w.mu.Unlock()
		return
	}
	c := *w.current
	w.current = nil
	w.timer = nil
	w.mu.Unlock()

	log.Printf("The controller %s timed out", c.Addr)
	w.notify(c, false)
}

func (w *Watcher) notify(c Controller, present bool) {
	if w.onChange != nil {
		w.onChange(c, present)
	}
}
