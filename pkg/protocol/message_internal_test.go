package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestAppendHeader_BigEndian(t *testing.T) {
	tests := []struct {
		name string
		h    Header
		want []byte
	}{
		{
			name: "metadata header",
			h:    Header{Type: MessageTypeFrameMetadataUpdate, Size: 12},
			want: []byte{0, 0, 0, 0, 0, 0, 0, 12},
		},
		{
			name: "quality header",
			h:    Header{Type: MessageTypeQualityChangeCommand, Size: 4},
			want: []byte{0, 0, 0, 3, 0, 0, 0, 4},
		},
		{
			name: "large body header",
			h:    Header{Type: MessageTypeFramePixelsUpdate, Size: 0x01020304},
			want: []byte{0, 0, 0, 1, 1, 2, 3, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppendHeader(nil, tt.h)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("AppendHeader() = %v, want %v", got, tt.want)
			}
			back, err := ParseHeader(got)
			if err != nil {
				t.Fatalf("ParseHeader() error = %v", err)
			}
			if back != tt.h {
				t.Errorf("ParseHeader() = %+v, want %+v", back, tt.h)
			}
		})
	}
}

func TestParseHeader_Short(t *testing.T) {
	_, err := ParseHeader([]byte{0, 0, 0})
	if !errors.Is(err, ErrUnderflow) {
		t.Errorf("ParseHeader() error = %v, want ErrUnderflow", err)
	}
}

func TestFromWire_RecomputesSize(t *testing.T) {
	m := FromWire(Header{Type: MessageTypeInputUpdate, Size: 999}, []byte{1, 2, 3})
	if m.Header.Size != 3 {
		t.Errorf("Header.Size = %d, want 3", m.Header.Size)
	}
}

func TestMessage_ShrinkRejectsNegative(t *testing.T) {
	m := NewMessage(MessageTypeInputUpdate)
	m.PushUint8(1)
	if _, err := m.shrink(-1); !errors.Is(err, ErrUnderflow) {
		t.Errorf("shrink(-1) error = %v, want ErrUnderflow", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestMessage_BodyLayoutIsTailStack(t *testing.T) {
	m := NewMessage(MessageTypeFrameMetadataUpdate)
	m.PushUint32(800)
	m.PushUint32(600)
	m.PushUint32(50)

	want := []byte{
		0, 0, 0x03, 0x20, // 800
		0, 0, 0x02, 0x58, // 600
		0, 0, 0, 0x32, // 50
	}
	if !bytes.Equal(m.body, want) {
		t.Errorf("body = %v, want %v", m.body, want)
	}
}
