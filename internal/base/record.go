package base

import (
	"errors"
	"fmt"
)

const (
	// RecordSize is the serialized length of a Record: four 4-byte integers.
	RecordSize = 4 * IntSize

	// RecordsPerBlock is how many records fit in one record block.
	RecordsPerBlock = PageSize / RecordSize
)

var ErrInvalidRecord = errors.New("invalid record")

// Record is the fixed-arity tuple stored in record blocks. Key is the index
// key and is unique across the store.
type Record struct {
	First  int32
	Second int32
	Third  int32
	Key    Key
}

// Tombstone marks a deleted record slot. A live record may never equal it.
var Tombstone = Record{First: -1, Second: -1, Third: -1, Key: -1}

// IsTombstone reports whether r is the deleted-slot pattern.
func (r Record) IsTombstone() bool {
	return r == Tombstone
}

func (r Record) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", r.First, r.Second, r.Third, r.Key)
}

// Record decodes the tuple at byte offset off.
func (b *Block) Record(off int) (Record, error) {
	if off < 0 || off+RecordSize > b.Size {
		return Record{}, ErrInvalidOffset
	}
	var fields [4]int32
	for i := range fields {
		v, err := b.Int(off + i*IntSize)
		if err != nil {
			return Record{}, err
		}
		fields[i] = v
	}
	return Record{First: fields[0], Second: fields[1], Third: fields[2], Key: Key(fields[3])}, nil
}

// PutRecord encodes r at byte offset off. Size grows to cover the slot but
// never shrinks, so overwriting a slot in the middle of a block keeps the
// block's logical size.
func (b *Block) PutRecord(off int, r Record) error {
	if off < 0 || off+RecordSize > PageSize || off%RecordSize != 0 {
		return ErrInvalidOffset
	}
	for i, v := range [4]int32{r.First, r.Second, r.Third, int32(r.Key)} {
		if err := b.PutInt(off+i*IntSize, v); err != nil {
			return err
		}
	}
	return nil
}
