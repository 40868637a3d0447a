package transport

import (
	"bufio"
	"bytes"
	"net"
)

// Protocol identifies the carrier spoken by a freshly accepted socket.
type Protocol int

const (
	// ProtocolRaw is the framed byte stream written directly to TCP.
	ProtocolRaw Protocol = iota
	// ProtocolHTTP is an HTTP request, expected to be a WebSocket upgrade.
	ProtocolHTTP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolRaw:
		return "raw"
	case ProtocolHTTP:
		return "http"
	default:
		return "unknown"
	}
}

var httpPrefixes = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"), // OPTIONS
	[]byte("PATC"), // PATCH
	[]byte("DELE"), // DELETE
	[]byte("CONN"), // CONNECT
}

// Detect peeks at the first bytes of conn to tell an HTTP request from a raw
// framed stream. The returned reader holds the peeked bytes and must be used
// for all further reads.
//
// A frame header whose type field starts with ASCII method bytes would be
// misread as HTTP. Message types are small integers, so the first header byte
// is always zero on a raw stream.
func Detect(conn net.Conn) (Protocol, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)

	peek, err := reader.Peek(4)
	if err != nil {
		return ProtocolRaw, reader, err
	}
	return Sniff(peek), reader, nil
}

// Sniff classifies a 4-byte prefix.
func Sniff(prefix []byte) Protocol {
	for _, p := range httpPrefixes {
		if bytes.HasPrefix(prefix, p) {
			return ProtocolHTTP
		}
	}
	return ProtocolRaw
}
