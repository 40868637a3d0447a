package ws

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
)

func TestConn_AnswersPing(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	server := newConn(a, nil, ws.StateServerSide)
	client := newConn(b, nil, ws.StateClientSide)

	// Ping then data from the client; the server must pong and then deliver the data.
	go func() {
		client.writeFrame(ws.NewPingFrame([]byte("hi")))
		client.Write([]byte("data"))
	}()

	serverRead := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := server.Read(buf)
		if err != nil {
			serverRead <- "error: " + err.Error()
			return
		}
		serverRead <- string(buf[:n])
	}()

	// Drain the pong on the client side; Read skips it and blocks for data.
	clientRead := make(chan error, 1)
	go func() {
		_, err := client.Read(make([]byte, 16))
		clientRead <- err
	}()

	select {
	case got := <-serverRead:
		if got != "data" {
			t.Errorf("server Read() = %q, want %q", got, "data")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not deliver data after ping")
	}
}

func TestConn_RejectsTextFrame(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	server := newConn(a, nil, ws.StateServerSide)
	client := newConn(b, nil, ws.StateClientSide)

	go client.writeFrame(ws.NewTextFrame([]byte("nope")))

	_, err := server.Read(make([]byte, 16))
	if err != ErrTextFrame {
		t.Errorf("Read() error = %v, want ErrTextFrame", err)
	}
}

func TestConn_JoinsFragmentsAroundPing(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	server := newConn(a, nil, ws.StateServerSide)
	client := newConn(b, nil, ws.StateClientSide)

	go func() {
		client.writeFrame(ws.NewFrame(ws.OpBinary, false, []byte("fra")))
		client.writeFrame(ws.NewPingFrame([]byte("mid")))
		client.writeFrame(ws.NewFrame(ws.OpContinuation, true, []byte("gment")))
	}()
	// The pong goes back over the pipe and must be drained.
	go client.Read(make([]byte, 16))

	buf := make([]byte, 16)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := string(buf[:n]); got != "fragment" {
		t.Errorf("Read() = %q, want %q", got, "fragment")
	}
}

func TestConn_CloseFrameEndsStream(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	server := newConn(a, nil, ws.StateServerSide)
	client := newConn(b, nil, ws.StateClientSide)

	go client.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
	go client.Read(make([]byte, 16))

	_, err := server.Read(make([]byte, 16))
	if err != io.EOF {
		t.Errorf("Read() error = %v, want io.EOF", err)
	}
}
