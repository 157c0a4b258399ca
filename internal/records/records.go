// Package records stores fixed-size records in numbered blocks and addresses
// them by a logical location.
package records

import (
	"errors"
	"fmt"

	"pagedb/internal/base"
	"pagedb/internal/storage"
)

var ErrRecordNotFound = errors.New("record not found")

// Store appends, reads and overwrites records. Locations are handed out in
// increasing order and never reused; deleting a record only overwrites its
// slot with base.Tombstone.
type Store struct {
	blocks *storage.Store
	next   base.Location
}

// New returns a record store whose next append lands at next.
func New(blocks *storage.Store, next base.Location) *Store {
	return &Store{blocks: blocks, next: next}
}

// Next returns the location the next append will use.
func (s *Store) Next() base.Location {
	return s.next
}

// Locate maps a location to its block number and byte offset in the block.
func Locate(loc base.Location) (int32, int) {
	return int32(loc) / base.RecordsPerBlock, int(loc%base.RecordsPerBlock) * base.RecordSize
}

func (s *Store) slot(loc base.Location) (*base.Block, int32, int, error) {
	if loc < 0 || loc >= s.next {
		return nil, 0, 0, fmt.Errorf("location %d: %w", loc, ErrRecordNotFound)
	}
	n, off := Locate(loc)
	b, err := s.blocks.ReadBlock(n)
	if err != nil {
		return nil, 0, 0, err
	}
	if off+base.RecordSize > b.Size {
		return nil, 0, 0, fmt.Errorf("%w: block %d holds %d bytes, location %d needs %d",
			base.ErrCorruptPage, n, b.Size, loc, off+base.RecordSize)
	}
	return b, n, off, nil
}

// Append writes r to the next free slot, starting a new block file when the
// current one is full, and returns its location.
func (s *Store) Append(r base.Record) (base.Location, error) {
	if r.IsTombstone() {
		return base.NotFound, base.ErrInvalidRecord
	}

	loc := s.next
	n, off := Locate(loc)

	b := &base.Block{}
	if off > 0 {
		var err error
		if b, err = s.blocks.ReadBlock(n); err != nil {
			return base.NotFound, err
		}
	}
	// Any bytes past the slot belong to an earlier, abandoned append.
	b.Size = min(b.Size, off)
	if b.Size != off {
		return base.NotFound, fmt.Errorf("%w: block %d holds %d bytes, expected %d", base.ErrCorruptPage, n, b.Size, off)
	}
	if err := b.PutRecord(off, r); err != nil {
		return base.NotFound, err
	}
	if err := s.blocks.WriteBlock(n, b); err != nil {
		return base.NotFound, err
	}

	s.next++
	return loc, nil
}

// Read returns the record at loc. Deleted slots report ErrRecordNotFound.
func (s *Store) Read(loc base.Location) (base.Record, error) {
	b, _, off, err := s.slot(loc)
	if err != nil {
		return base.Record{}, err
	}
	r, err := b.Record(off)
	if err != nil {
		return base.Record{}, err
	}
	if r.IsTombstone() {
		return base.Record{}, fmt.Errorf("location %d: %w", loc, ErrRecordNotFound)
	}
	return r, nil
}

// Update overwrites the record at loc in place.
func (s *Store) Update(loc base.Location, r base.Record) error {
	if r.IsTombstone() {
		return base.ErrInvalidRecord
	}
	return s.overwrite(loc, r)
}

// Delete overwrites the record at loc with the tombstone pattern. Later
// records keep their slots and the block keeps its size.
func (s *Store) Delete(loc base.Location) error {
	return s.overwrite(loc, base.Tombstone)
}

func (s *Store) overwrite(loc base.Location, r base.Record) error {
	b, n, off, err := s.slot(loc)
	if err != nil {
		return err
	}
	if err := b.PutRecord(off, r); err != nil {
		return err
	}
	return s.blocks.WriteBlock(n, b)
}

// Block returns every slot of record block n in location order, deleted
// slots included as base.Tombstone. Slot i is at location
// n*base.RecordsPerBlock + i. A block that was never written reports
// ErrRecordNotFound.
func (s *Store) Block(n int32) ([]base.Record, error) {
	if n < 0 {
		return nil, fmt.Errorf("block %d: %w", n, ErrRecordNotFound)
	}
	b, err := s.blocks.ReadBlock(n)
	if errors.Is(err, base.ErrPageNotFound) {
		return nil, fmt.Errorf("block %d: %w", n, ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}

	out := make([]base.Record, 0, b.Size/base.RecordSize)
	for off := 0; off+base.RecordSize <= b.Size; off += base.RecordSize {
		r, err := b.Record(off)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Scan calls fn for every live record in location order, reading each block
// once. It stops at the first missing block.
func (s *Store) Scan(fn func(base.Location, base.Record) error) error {
	for n := int32(0); ; n++ {
		b, err := s.blocks.ReadBlock(n)
		if errors.Is(err, base.ErrPageNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for off := 0; off+base.RecordSize <= b.Size; off += base.RecordSize {
			r, err := b.Record(off)
			if err != nil {
				return err
			}
			if r.IsTombstone() {
				continue
			}
			loc := base.Location(n*base.RecordsPerBlock + int32(off/base.RecordSize))
			if err := fn(loc, r); err != nil {
				return err
			}
		}
	}
}

// Recount moves the append position past the last slot found on disk.
func (s *Store) Recount() error {
	var end base.Location
	for n := int32(0); ; n++ {
		b, err := s.blocks.ReadBlock(n)
		if errors.Is(err, base.ErrPageNotFound) {
			break
		}
		if err != nil {
			return err
		}
		end = base.Location(n*base.RecordsPerBlock + int32(b.Size/base.RecordSize))
	}
	s.next = max(s.next, end)
	return nil
}
