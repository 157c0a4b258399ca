package base

import "errors"

var (
	ErrInvalidOffset      = errors.New("invalid offset: out of bounds")
	ErrInvalidMagicNumber = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("invalid format version")
	ErrInvalidPageSize    = errors.New("invalid page size")
	ErrInvalidChecksum    = errors.New("invalid checksum")
	ErrPageOverflow       = errors.New("page overflow")

	// ErrPageNotFound is returned when a node page or record block has no
	// backing file, or the file holds no readable bytes.
	ErrPageNotFound = errors.New("page not found")

	// ErrCorruptPage is returned when a decoded header disagrees with the
	// number of bytes actually present in the block.
	ErrCorruptPage = errors.New("corrupt page")
)
