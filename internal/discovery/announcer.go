package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"
)

const (
	// DefaultPort is the UDP port beacons are sent to.
	DefaultPort = 4000
	// DefaultAnnounceInterval is the time between beacons.
	DefaultAnnounceInterval = 5 * time.Second
)

// Announcer broadcasts a controller's beacon.
type Announcer struct {
	beacon   Beacon
	target   string
	interval time.Duration
}

// NewAnnouncer sends beacon to target (usually 255.255.255.255:port) every
// interval.
func NewAnnouncer(target string, beacon Beacon, interval time.Duration) *Announcer {
	if interval <= 0 {
		interval = DefaultAnnounceInterval
	}
	return &Announcer{beacon: beacon, target: target, interval: interval}
}

// BroadcastTarget returns the limited broadcast address for port.
func BroadcastTarget(port int) string {
	return (&net.UDPAddr{IP: net.IPv4bcast, Port: port}).String()
}

// Run announces immediately and then every interval until ctx ends.
func (a *Announcer) Run(ctx context.Context) error {
	dst, err := net.ResolveUDPAddr("udp4", a.target)
	if err != nil {
		return fmt.Errorf("failed to resolve discovery target %s: %w", a.target, err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer conn.Close()

	data := a.beacon.Marshal()
	log.Printf("Announcing controller %s on %s every %s", a.beacon.Instance, a.target, a.interval)

	send := func() {
		if _, err := conn.WriteToUDP(data, dst); err != nil && ctx.Err() == nil {
			log.Printf("Discovery broadcast failed: %v", err)
		}
	}
	send()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			send()
		}
	}
}
