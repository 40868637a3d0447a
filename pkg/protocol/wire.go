package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the encoded size of a Header: 4 bytes type + 4 bytes body size.
const HeaderSize = 8

// MaxBodySize bounds the body a reader will allocate for a single message.
const MaxBodySize = 64 << 20

// ErrBodyTooLarge is returned when a header declares a body above MaxBodySize.
var ErrBodyTooLarge = errors.New("message body exceeds maximum size")

// AppendHeader appends the big-endian encoding of h to b.
func AppendHeader(b []byte, h Header) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(h.Type))
	return binary.BigEndian.AppendUint32(b, h.Size)
}

// ParseHeader decodes a header from the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrUnderflow, HeaderSize, len(b))
	}
	h := Header{
		Type: MessageType(binary.BigEndian.Uint32(b[0:4])),
		Size: binary.BigEndian.Uint32(b[4:8]),
	}
	if h.Size > MaxBodySize {
		return h, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, h.Size)
	}
	return h, nil
}

// FromWire builds a message from a received header and body.
// The header size is recomputed from body.
func FromWire(h Header, body []byte) *Message {
	m := &Message{Header: h, body: body}
	m.sync()
	return m
}

// ReadHeader reads exactly HeaderSize bytes from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return ParseHeader(buf[:])
}

// ReadMessage reads one complete message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, h.Size)
	if h.Size > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("failed to read message body: %w", err)
		}
	}
	return FromWire(h, body), nil
}

// WriteMessage writes the header of m followed by its body, if any.
func WriteMessage(w io.Writer, m *Message) error {
	hdr := AppendHeader(make([]byte, 0, HeaderSize), m.Header)
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("failed to write message header: %w", err)
	}
	if len(m.body) > 0 {
		if _, err := w.Write(m.body); err != nil {
			return fmt.Errorf("failed to write message body: %w", err)
		}
	}
	return nil
}
