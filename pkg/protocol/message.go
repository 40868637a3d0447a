// Package protocol implements the framed message envelope shared by the
// agent and the controller.
//
// A message is a fixed-size header followed by a body. Fields are pushed onto
// the tail of the body and popped back off the tail, so a receiver reads the
// fields of a message in the reverse of the order the sender wrote them.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnderflow is returned when a pop requests more bytes than the body holds.
var ErrUnderflow = errors.New("message body underflow")

// MessageType represents the type of message
type MessageType uint32

const (
	MessageTypeFrameMetadataUpdate MessageType = iota
	MessageTypeFramePixelsUpdate
	MessageTypeInputUpdate
	MessageTypeQualityChangeCommand
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeFrameMetadataUpdate:
		return "FRAME_METADATA_UPDATE"
	case MessageTypeFramePixelsUpdate:
		return "FRAME_PIXELS_UPDATE"
	case MessageTypeInputUpdate:
		return "INPUT_UPDATE"
	case MessageTypeQualityChangeCommand:
		return "QUALITY_CHANGE_COMMAND"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(mt))
	}
}

// Header precedes every body on the wire.
// Size always equals the current body length.
type Header struct {
	Type MessageType
	Size uint32
}

// Message is a typed header plus a body used as a byte stack.
type Message struct {
	Header Header
	body   []byte
}

// NewMessage creates an empty message of the given type.
func NewMessage(t MessageType) *Message {
	return &Message{Header: Header{Type: t}}
}

// Type returns the message type from the header.
func (m *Message) Type() MessageType {
	return m.Header.Type
}

// Body returns the serialized body. The slice aliases the message.
func (m *Message) Body() []byte {
	return m.body
}

// Len returns the body length in bytes.
func (m *Message) Len() int {
	return len(m.body)
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := &Message{Header: m.Header}
	if len(m.body) > 0 {
		c.body = make([]byte, len(m.body))
		copy(c.body, m.body)
	}
	return c
}

// Reset empties the body and keeps the type.
func (m *Message) Reset() {
	m.body = m.body[:0]
	m.sync()
}

func (m *Message) sync() {
	m.Header.Size = uint32(len(m.body))
}

// grow extends the body by n bytes and returns the offset of the new region.
func (m *Message) grow(n int) int {
	off := len(m.body)
	m.body = append(m.body, make([]byte, n)...)
	m.sync()
	return off
}

// shrink removes n bytes from the tail and returns them.
func (m *Message) shrink(n int) ([]byte, error) {
	if n < 0 || n > len(m.body) {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrUnderflow, n, len(m.body))
	}
	i := len(m.body) - n
	tail := m.body[i:]
	m.body = m.body[:i]
	m.sync()
	return tail, nil
}

// PushBytes appends p to the tail of the body without a length prefix.
// The caller transmits the length separately, usually as a following scalar.
func (m *Message) PushBytes(p []byte) {
	off := m.grow(len(p))
	copy(m.body[off:], p)
}

// PullBytes removes the last n bytes of the body and returns a copy of them.
func (m *Message) PullBytes(n uint64) ([]byte, error) {
	if n > uint64(len(m.body)) {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrUnderflow, n, len(m.body))
	}
	tail, err := m.shrink(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(tail))
	copy(out, tail)
	return out, nil
}

// PushUint8 appends a single byte.
func (m *Message) PushUint8(v uint8) {
	off := m.grow(1)
	m.body[off] = v
}

// PushUint16 appends a 16-bit unsigned integer in big-endian order.
func (m *Message) PushUint16(v uint16) {
	off := m.grow(2)
	binary.BigEndian.PutUint16(m.body[off:], v)
}

// PushUint32 appends a 32-bit unsigned integer in big-endian order.
func (m *Message) PushUint32(v uint32) {
	off := m.grow(4)
	binary.BigEndian.PutUint32(m.body[off:], v)
}

// PushUint64 appends a 64-bit unsigned integer in big-endian order.
func (m *Message) PushUint64(v uint64) {
	off := m.grow(8)
	binary.BigEndian.PutUint64(m.body[off:], v)
}

// PushInt32 appends a 32-bit signed integer in big-endian order.
func (m *Message) PushInt32(v int32) {
	m.PushUint32(uint32(v))
}

// PushInt64 appends a 64-bit signed integer in big-endian order.
func (m *Message) PushInt64(v int64) {
	m.PushUint64(uint64(v))
}

// PushBool appends a boolean as one byte.
func (m *Message) PushBool(v bool) {
	if v {
		m.PushUint8(1)
		return
	}
	m.PushUint8(0)
}

// PopUint8 removes a single byte from the tail.
func (m *Message) PopUint8() (uint8, error) {
	b, err := m.shrink(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// PopUint16 removes a 16-bit unsigned integer from the tail.
func (m *Message) PopUint16() (uint16, error) {
	b, err := m.shrink(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// PopUint32 removes a 32-bit unsigned integer from the tail.
func (m *Message) PopUint32() (uint32, error) {
	b, err := m.shrink(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// PopUint64 removes a 64-bit unsigned integer from the tail.
func (m *Message) PopUint64() (uint64, error) {
	b, err := m.shrink(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// PopInt32 removes a 32-bit signed integer from the tail.
func (m *Message) PopInt32() (int32, error) {
	v, err := m.PopUint32()
	return int32(v), err
}

// PopInt64 removes a 64-bit signed integer from the tail.
func (m *Message) PopInt64() (int64, error) {
	v, err := m.PopUint64()
	return int64(v), err
}

// PopBool removes a boolean from the tail.
func (m *Message) PopBool() (bool, error) {
	v, err := m.PopUint8()
	return v != 0, err
}
