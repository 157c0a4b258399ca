package base

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const (
	// MagicNumber identifies a meta file ("pgdb" in hex).
	MagicNumber uint32 = 0x70676462

	FormatVersion uint16 = 1

	// MetaSize is the encoded length of Meta, checksum included.
	// Layout: [Magic: 4][Version: 2][PageSize: 2][Degree: 4][Root: 4]
	// [NextID: 4][NextLocation: 4][DBID: 16][Checksum: 8]
	MetaSize = 48
)

// Meta is the tree header persisted next to the node pages so a directory can
// be reopened.
type Meta struct {
	Magic        uint32
	Version      uint16
	PageSize     uint16
	Degree       int32
	Root         NodeID
	NextID       NodeID
	NextLocation Location
	DBID         uuid.UUID
	Checksum     uint64
}

// NewMeta returns the header of an empty tree with degree t.
func NewMeta(t int) Meta {
	return Meta{
		Magic:    MagicNumber,
		Version:  FormatVersion,
		PageSize: PageSize,
		Degree:   int32(t),
		Root:     NoNode,
		DBID:     uuid.New(),
	}
}

// Encode serializes m, filling in the checksum.
func (m *Meta) Encode() []byte {
	buf := make([]byte, MetaSize)
	binary.BigEndian.PutUint32(buf[0:], m.Magic)
	binary.BigEndian.PutUint16(buf[4:], m.Version)
	binary.BigEndian.PutUint16(buf[6:], m.PageSize)
	binary.BigEndian.PutUint32(buf[8:], uint32(m.Degree))
	binary.BigEndian.PutUint32(buf[12:], uint32(m.Root))
	binary.BigEndian.PutUint32(buf[16:], uint32(m.NextID))
	binary.BigEndian.PutUint32(buf[20:], uint32(m.NextLocation))
	copy(buf[24:40], m.DBID[:])

	m.Checksum = xxhash.Sum64(buf[:40])
	binary.BigEndian.PutUint64(buf[40:], m.Checksum)
	return buf
}

// DecodeMeta parses and validates a meta file.
func DecodeMeta(buf []byte) (Meta, error) {
	if len(buf) < MetaSize {
		return Meta{}, ErrCorruptPage
	}
	var m Meta
	m.Magic = binary.BigEndian.Uint32(buf[0:])
	m.Version = binary.BigEndian.Uint16(buf[4:])
	m.PageSize = binary.BigEndian.Uint16(buf[6:])
	m.Degree = int32(binary.BigEndian.Uint32(buf[8:]))
	m.Root = NodeID(binary.BigEndian.Uint32(buf[12:]))
	m.NextID = NodeID(binary.BigEndian.Uint32(buf[16:]))
	m.NextLocation = Location(binary.BigEndian.Uint32(buf[20:]))
	copy(m.DBID[:], buf[24:40])
	m.Checksum = binary.BigEndian.Uint64(buf[40:])

	if err := m.Validate(buf[:40]); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Validate checks the fixed fields and the checksum over the encoded body.
func (m *Meta) Validate(body []byte) error {
	if m.Magic != MagicNumber {
		return ErrInvalidMagicNumber
	}
	if m.Version != FormatVersion {
		return ErrInvalidVersion
	}
	if m.PageSize != PageSize {
		return ErrInvalidPageSize
	}
	if m.Checksum != xxhash.Sum64(body) {
		return ErrInvalidChecksum
	}
	return nil
}
