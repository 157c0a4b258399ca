package pagedb

import (
	"errors"

	"pagedb/internal/base"
	"pagedb/internal/records"
	"pagedb/internal/storage"
)

var (
	ErrKeyNotFound    = errors.New("key not found")
	ErrDuplicateKey   = errors.New("key already exists")
	ErrKeyMismatch    = errors.New("record key does not match")
	ErrDatabaseClosed = errors.New("database is closed")

	ErrTxNotWritable = errors.New("transaction is read-only")
	ErrTxDone        = errors.New("transaction has been committed or rolled back")
	ErrTxFailed      = errors.New("transaction failed and must be rolled back")

	ErrInvalidDegree  = errors.New("invalid minimum degree")
	ErrDegreeMismatch = errors.New("degree does not match existing database")

	ErrPageNotFound       = base.ErrPageNotFound
	ErrCorruptPage        = base.ErrCorruptPage
	ErrPageOverflow       = base.ErrPageOverflow
	ErrInvalidOffset      = base.ErrInvalidOffset
	ErrInvalidMagicNumber = base.ErrInvalidMagicNumber
	ErrInvalidVersion     = base.ErrInvalidVersion
	ErrInvalidPageSize    = base.ErrInvalidPageSize
	ErrInvalidChecksum    = base.ErrInvalidChecksum
	ErrInvalidRecord      = base.ErrInvalidRecord
	ErrRecordNotFound     = records.ErrRecordNotFound
	ErrLocked             = storage.ErrLocked
)
