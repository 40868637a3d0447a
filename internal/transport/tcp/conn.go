// Package tcp adapts a TCP socket to transport.Conn.
package tcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
)

// Conn wraps a net.Conn. Reads may go through a buffered reader that already
// holds bytes peeked during protocol detection.
type Conn struct {
	conn   net.Conn
	reader io.Reader
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: conn}
}

// NewConnWithReader wraps a net.Conn whose first bytes were peeked into reader.
func NewConnWithReader(conn net.Conn, reader *bufio.Reader) *Conn {
	return &Conn{conn: conn, reader: reader}
}

// Dial opens a TCP connection to address.
func Dial(ctx context.Context, address string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// Frames are written as header then body; don't let Nagle hold the body.
		_ = tc.SetNoDelay(true)
	}
	return NewConn(conn), nil
}

func (c *Conn) Read(buf []byte) (int, error) {
	return c.reader.Read(buf)
}

func (c *Conn) Write(data []byte) (int, error) {
	return c.conn.Write(data)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
