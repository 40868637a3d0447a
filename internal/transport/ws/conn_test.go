package ws_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/omochice/toy-screen-stream/internal/transport"
	"github.com/omochice/toy-screen-stream/internal/transport/ws"
)

func TestConn_ImplementsInterface(t *testing.T) {
	var _ transport.Conn = (*ws.Conn)(nil)
}

// pair upgrades one side of a real TCP connection and dials the other.
func pair(t *testing.T) (server, client *ws.Conn) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	upgraded := make(chan *ws.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		proto, reader, err := transport.Detect(conn)
		if err != nil || proto != transport.ProtocolHTTP {
			conn.Close()
			return
		}
		c, err := ws.Upgrade(conn, reader)
		if err != nil {
			conn.Close()
			return
		}
		upgraded <- c
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err = ws.Dial(ctx, "ws://"+listener.Addr().String()+"/ws")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	select {
	case server = <-upgraded:
	case <-time.After(2 * time.Second):
		t.Fatal("server side was not upgraded")
	}

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server, client
}

func TestConn_ServerToClient(t *testing.T) {
	server, client := pair(t)

	if _, err := server.Write([]byte("test message")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf[:n]) != "test message" {
		t.Errorf("Read() = %q, want %q", buf[:n], "test message")
	}
}

func TestConn_ClientToServer(t *testing.T) {
	server, client := pair(t)

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	buf := make([]byte, 64)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("Read() = %q, want %q", buf[:n], "hello")
	}
}

func TestConn_StreamAcrossFrames(t *testing.T) {
	server, client := pair(t)

	// Two writes, read back through a buffer smaller than either frame.
	header := []byte{0, 0, 0, 1, 0, 0, 0, 16}
	body := bytes.Repeat([]byte{0xAB}, 16)

	go func() {
		client.Write(header)
		client.Write(body)
	}()

	got := make([]byte, len(header)+len(body))
	small := make([]byte, 3)
	read := 0
	for read < len(got) {
		n, err := server.Read(small)
		if err != nil {
			t.Fatalf("Read() error = %v after %d bytes", err, read)
		}
		copy(got[read:], small[:n])
		read += n
	}

	if !bytes.Equal(got[:8], header) || !bytes.Equal(got[8:], body) {
		t.Errorf("stream = %x", got)
	}
}

func TestConn_CloseEndsRemoteRead(t *testing.T) {
	server, client := pair(t)

	done := make(chan error, 1)
	go func() {
		_, err := server.Read(make([]byte, 8))
		done <- err
	}()

	client.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Read() after remote close returned nil error")
		}
		if err != io.EOF {
			t.Logf("Read() after remote close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read() did not return after remote close")
	}
}

func TestDial_NotWebSocket(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"))
		conn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := ws.Dial(ctx, "ws://"+listener.Addr().String()+"/ws"); err == nil {
		t.Error("expected handshake error, got nil")
	}
}
