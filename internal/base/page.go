package base

import "encoding/binary"

const (
	// PageSize is the capacity of every block, for node pages and record
	// blocks alike.
	PageSize = 4096

	// IntSize is the width of every integer stored on disk.
	IntSize = 4

	// NodeHeaderSize covers node_id, parent_id, keys_count, children_count.
	NodeHeaderSize = 4 * IntSize

	// MinDegree is the smallest usable minimum degree t.
	MinDegree = 2

	// MaxDegree is the largest t whose transiently overflowing node (2t keys,
	// 2t+1 children) still fits in one page.
	MaxDegree = (PageSize - NodeHeaderSize - IntSize) / (6 * IntSize)
)

type (
	Key      int32
	Location int32
	NodeID   int32
)

const (
	// NotFound is the location returned by lookups that miss.
	NotFound Location = -1

	// NoNode is the parent of a root and the root of an empty tree.
	NoNode NodeID = -1
)

// Block is a fixed-capacity buffer plus the number of bytes in use. It is the
// unit of I/O for both node pages and record blocks.
type Block struct {
	Data [PageSize]byte
	Size int
}

// NewBlock wraps raw file contents in a Block. Anything past PageSize is
// ignored.
func NewBlock(raw []byte) *Block {
	b := &Block{}
	b.Size = copy(b.Data[:], raw)
	return b
}

// Bytes returns the used prefix of the block.
func (b *Block) Bytes() []byte {
	return b.Data[:b.Size]
}

// Int reads the big-endian int32 at off. The read must lie inside the used
// prefix of the block.
func (b *Block) Int(off int) (int32, error) {
	if off < 0 || off+IntSize > b.Size {
		return 0, ErrInvalidOffset
	}
	return int32(binary.BigEndian.Uint32(b.Data[off:])), nil
}

// PutInt writes v big-endian at off, growing Size when writing past it.
func (b *Block) PutInt(off int, v int32) error {
	if off < 0 || off+IntSize > PageSize {
		return ErrInvalidOffset
	}
	binary.BigEndian.PutUint32(b.Data[off:], uint32(v))
	b.Size = max(b.Size, off+IntSize)
	return nil
}

// appendInt writes v at Size and advances it.
func (b *Block) appendInt(v int32) error {
	return b.PutInt(b.Size, v)
}
