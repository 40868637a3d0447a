// Package ws carries the framed byte stream over WebSocket binary frames
// using gobwas/ws.
//
// Each Write becomes one binary frame. Read concatenates frame payloads back
// into a stream, so message boundaries on the WebSocket layer carry no meaning.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// maxFrameSize bounds a received message, summed over its fragments.
const maxFrameSize = 64<<20 + 64

var (
	// ErrTextFrame is returned when the remote sends a text frame.
	ErrTextFrame = errors.New("websocket: unexpected text frame")
	// ErrFrameTooLarge is returned when a message exceeds maxFrameSize.
	ErrFrameTooLarge = errors.New("websocket: frame too large")
)

// Conn is a WebSocket session exposed as a byte stream.
type Conn struct {
	conn  net.Conn
	state ws.State
	rd    *wsutil.Reader
	// onControl answers pings and close frames through writeMu.
	onControl wsutil.FrameHandlerFunc

	readMu        sync.Mutex
	readBuffer    []byte
	readBufferPos int

	writeMu sync.Mutex
}

func newConn(conn net.Conn, r io.Reader, state ws.State) *Conn {
	if r == nil {
		r = conn
	}
	c := &Conn{conn: conn, state: state}
	c.rd = &wsutil.Reader{
		Source:       r,
		State:        state,
		MaxFrameSize: maxFrameSize,
	}
	c.onControl = wsutil.ControlFrameHandler(lockedWriter{c}, state)
	c.rd.OnIntermediate = c.onControl
	return c
}

// lockedWriter serializes control replies with data frames. wsutil emits each
// control frame in a single Write.
type lockedWriter struct{ c *Conn }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

// Upgrade performs the server side of the WebSocket handshake on conn.
// reader may hold bytes already peeked from conn; pass nil if none were.
func Upgrade(conn net.Conn, reader *bufio.Reader) (*Conn, error) {
	var r io.Reader = conn
	if reader != nil {
		r = reader
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, conn}

	if _, err := ws.Upgrade(rw); err != nil {
		return nil, fmt.Errorf("failed to upgrade websocket: %w", err)
	}
	return newConn(conn, r, ws.StateServerSide), nil
}

// Dial connects to a ws:// URL and performs the client handshake.
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	var r io.Reader
	if br != nil {
		r = br
	}
	return newConn(conn, r, ws.StateClientSide), nil
}

func (c *Conn) Read(buf []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	// Return buffered data if available
	if c.readBufferPos < len(c.readBuffer) {
		n := copy(buf, c.readBuffer[c.readBufferPos:])
		c.readBufferPos += n
		if c.readBufferPos >= len(c.readBuffer) {
			c.readBuffer = nil
			c.readBufferPos = 0
		}
		return n, nil
	}

	data, err := c.readMessage()
	if err != nil {
		return 0, err
	}

	n := copy(buf, data)
	if n < len(data) {
		c.readBuffer = data
		c.readBufferPos = n
	}
	return n, nil
}

// readMessage returns the next non-empty binary message payload. Control
// frames are answered on the way and fragments are joined by wsutil.
func (c *Conn) readMessage() ([]byte, error) {
	for {
		hdr, err := c.rd.NextFrame()
		if err != nil {
			return nil, mapReadErr(err)
		}

		if hdr.OpCode.IsControl() {
			if err := c.onControl(hdr, c.rd); err != nil {
				return nil, mapReadErr(err)
			}
			continue
		}
		if hdr.OpCode == ws.OpText {
			return nil, ErrTextFrame
		}

		data, err := io.ReadAll(io.LimitReader(c.rd, maxFrameSize+1))
		if err != nil {
			return nil, mapReadErr(err)
		}
		if len(data) > maxFrameSize {
			return nil, ErrFrameTooLarge
		}
		if len(data) > 0 {
			return data, nil
		}
	}
}

func mapReadErr(err error) error {
	var closed wsutil.ClosedError
	switch {
	case errors.As(err, &closed):
		return io.EOF
	case errors.Is(err, wsutil.ErrFrameTooLarge):
		return ErrFrameTooLarge
	}
	return err
}

func (c *Conn) Write(data []byte) (int, error) {
	if err := c.writeFrame(ws.NewBinaryFrame(data)); err != nil {
		return 0, err
	}
	return len(data), nil
}

// writeFrame compiles f into a single buffer so that control replies from the
// read side never split a data frame.
func (c *Conn) writeFrame(f ws.Frame) error {
	if c.state.ClientSide() {
		f = ws.MaskFrameInPlace(f)
	}
	bts, err := ws.CompileFrame(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(bts)
	return err
}

// closeTimeout bounds the close frame write on a peer that stopped reading.
const closeTimeout = time.Second

// Close sends a close frame and closes the socket.
func (c *Conn) Close() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
	_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
	return c.conn.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
