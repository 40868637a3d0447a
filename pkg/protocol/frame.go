package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedType is returned when a parser is handed the wrong message type.
	ErrUnexpectedType = errors.New("unexpected message type")
	// ErrInvalidQuality is returned for a quality outside MinQuality..MaxQuality.
	ErrInvalidQuality = errors.New("quality out of range")
	// ErrTrailingBytes is returned when a body holds more than its layout
	// accounts for. Like ErrUnderflow it means the stream is out of sync.
	ErrTrailingBytes = errors.New("unexpected trailing bytes in message body")
)

// IsMalformed reports whether err means a body did not match its layout.
// Peers close the connection on such errors.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrUnderflow) || errors.Is(err, ErrTrailingBytes)
}

// expectEmpty checks that a parser consumed the whole body.
func expectEmpty(m *Message) error {
	if n := m.Len(); n != 0 {
		return fmt.Errorf("%w: %s has %d left", ErrTrailingBytes, m.Type(), n)
	}
	return nil
}

// MinQuality and MaxQuality bound the JPEG quality carried by the protocol.
const (
	MinQuality = 1
	MaxQuality = 100
)

// FrameMetadata describes the geometry and quality of the frames that follow it.
type FrameMetadata struct {
	Width       uint32
	Height      uint32
	Quality     uint32
	PayloadSize uint64
}

// Valid reports whether the geometry is positive and the quality in range.
func (fm FrameMetadata) Valid() bool {
	return fm.Width > 0 && fm.Height > 0 && ValidQuality(fm.Quality)
}

// SameGeometry reports whether fm announces a w x h frame.
func (fm FrameMetadata) SameGeometry(w, h int) bool {
	return int(fm.Width) == w && int(fm.Height) == h
}

func (fm FrameMetadata) String() string {
	return fmt.Sprintf("%dx%d q=%d", fm.Width, fm.Height, fm.Quality)
}

// ValidQuality reports whether q is within MinQuality..MaxQuality.
func ValidQuality(q uint32) bool {
	return q >= MinQuality && q <= MaxQuality
}

func expectType(m *Message, t MessageType) error {
	if m.Type() != t {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, m.Type(), t)
	}
	return nil
}

// NewFrameMetadataUpdate builds a metadata message.
// Layout: width, height, quality (pushed in that order).
func NewFrameMetadataUpdate(fm FrameMetadata) *Message {
	m := NewMessage(MessageTypeFrameMetadataUpdate)
	m.PushUint32(fm.Width)
	m.PushUint32(fm.Height)
	m.PushUint32(fm.Quality)
	return m
}

// ParseFrameMetadataUpdate pops quality, height, width from m.
func ParseFrameMetadataUpdate(m *Message) (FrameMetadata, error) {
	var fm FrameMetadata
	if err := expectType(m, MessageTypeFrameMetadataUpdate); err != nil {
		return fm, err
	}
	var err error
	if fm.Quality, err = m.PopUint32(); err != nil {
		return fm, err
	}
	if fm.Height, err = m.PopUint32(); err != nil {
		return fm, err
	}
	if fm.Width, err = m.PopUint32(); err != nil {
		return fm, err
	}
	return fm, expectEmpty(m)
}

// NewFramePixelsUpdate builds a pixel payload message.
// Layout: payload bytes, then the payload size as a uint64.
func NewFramePixelsUpdate(payload []byte) *Message {
	m := NewMessage(MessageTypeFramePixelsUpdate)
	m.PushBytes(payload)
	m.PushUint64(uint64(len(payload)))
	return m
}

// ParseFramePixelsUpdate pops the payload size and then the payload.
func ParseFramePixelsUpdate(m *Message) ([]byte, error) {
	if err := expectType(m, MessageTypeFramePixelsUpdate); err != nil {
		return nil, err
	}
	size, err := m.PopUint64()
	if err != nil {
		return nil, err
	}
	payload, err := m.PullBytes(size)
	if err != nil {
		return nil, err
	}
	if err := expectEmpty(m); err != nil {
		return nil, err
	}
	return payload, nil
}

// NewQualityChange builds a quality change command.
func NewQualityChange(quality uint32) *Message {
	m := NewMessage(MessageTypeQualityChangeCommand)
	m.PushUint32(quality)
	return m
}

// ParseQualityChange pops the requested quality.
func ParseQualityChange(m *Message) (uint32, error) {
	if err := expectType(m, MessageTypeQualityChangeCommand); err != nil {
		return 0, err
	}
	q, err := m.PopUint32()
	if err != nil {
		return 0, err
	}
	return q, expectEmpty(m)
}
