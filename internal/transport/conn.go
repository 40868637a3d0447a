// Package transport defines the byte-stream carrier under a peer connection.
//
// A Conn is either a raw TCP socket (package tcp) or a WebSocket session that
// carries the same framed byte stream in binary frames (package ws).
package transport

import (
	"io"
	"net"
)

// Conn is an ordered, reliable byte stream to one remote endpoint.
//
// Read and Write may be called from different goroutines. Close must unblock
// a pending Read.
type Conn interface {
	io.Reader
	io.Writer

	// Close closes the underlying socket.
	Close() error

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr
}
