// Package discovery lets an agent find a controller on the local network.
//
// A controller periodically broadcasts an access-request beacon on a UDP
// port. An agent adopts the first controller it hears, treats later beacons
// from it as keepalives, and forgets it when they stop.
package discovery

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNotBeacon is returned for a datagram that is not a valid beacon.
var ErrNotBeacon = errors.New("not a discovery beacon")

// Kind says what a beacon asks for.
type Kind uint64

const (
	KindAccessRequest Kind = 1
)

// Field numbers of the beacon encoding. Unknown fields are skipped so newer
// controllers can add fields.
const (
	fieldKind        protowire.Number = 1
	fieldInstance    protowire.Number = 2
	fieldControlPort protowire.Number = 3
	fieldBulkPort    protowire.Number = 4
	fieldName        protowire.Number = 5
)

// MaxBeaconSize bounds a beacon datagram.
const MaxBeaconSize = 512

// Beacon is one controller announcement.
type Beacon struct {
	Kind        Kind
	Instance    uuid.UUID
	ControlPort uint16
	BulkPort    uint16
	Name        string
}

// Marshal encodes b as protobuf wire format.
func (b Beacon) Marshal() []byte {
	buf := make([]byte, 0, 64)
	buf = protowire.AppendTag(buf, fieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(b.Kind))
	buf = protowire.AppendTag(buf, fieldInstance, protowire.BytesType)
	buf = protowire.AppendBytes(buf, b.Instance[:])
	buf = protowire.AppendTag(buf, fieldControlPort, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(b.ControlPort))
	if b.BulkPort != 0 {
		buf = protowire.AppendTag(buf, fieldBulkPort, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(b.BulkPort))
	}
	if b.Name != "" {
		buf = protowire.AppendTag(buf, fieldName, protowire.BytesType)
		buf = protowire.AppendString(buf, b.Name)
	}
	return buf
}

// ParseBeacon decodes a datagram. It fails with ErrNotBeacon unless the kind,
// instance and control port are all present.
func ParseBeacon(data []byte) (Beacon, error) {
	var b Beacon
	var haveInstance bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Beacon{}, fmt.Errorf("%w: %v", ErrNotBeacon, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			b.Kind = Kind(v)
		case num == fieldInstance && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				id, err := uuid.FromBytes(raw)
				if err != nil {
					return Beacon{}, fmt.Errorf("%w: %v", ErrNotBeacon, err)
				}
				b.Instance = id
				haveInstance = true
			}
		case num == fieldControlPort && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			if v > 0xFFFF {
				return Beacon{}, fmt.Errorf("%w: control port %d", ErrNotBeacon, v)
			}
			b.ControlPort = uint16(v)
		case num == fieldBulkPort && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			if v > 0xFFFF {
				return Beacon{}, fmt.Errorf("%w: bulk port %d", ErrNotBeacon, v)
			}
			b.BulkPort = uint16(v)
		case num == fieldName && typ == protowire.BytesType:
			b.Name, n = protowire.ConsumeString(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return Beacon{}, fmt.Errorf("%w: %v", ErrNotBeacon, protowire.ParseError(n))
		}
		data = data[n:]
	}

	if b.Kind != KindAccessRequest || !haveInstance || b.ControlPort == 0 {
		return Beacon{}, ErrNotBeacon
	}
	return b, nil
}
