package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockIntBigEndian(t *testing.T) {
	t.Parallel()

	var b Block
	require.NoError(t, b.PutInt(0, 0x01020304))
	require.NoError(t, b.PutInt(4, -1))

	assert.Equal(t, 8, b.Size)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF, 0xFF, 0xFF}, b.Bytes())

	v, err := b.Int(0)
	require.NoError(t, err)
	assert.Equal(t, int32(0x01020304), v)

	v, err = b.Int(4)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)
}

func TestBlockBounds(t *testing.T) {
	t.Parallel()

	var b Block
	require.NoError(t, b.PutInt(0, 7))

	// Reads are limited to the used prefix, writes to the capacity.
	_, err := b.Int(4)
	assert.ErrorIs(t, err, ErrInvalidOffset)
	_, err = b.Int(-4)
	assert.ErrorIs(t, err, ErrInvalidOffset)

	assert.ErrorIs(t, b.PutInt(PageSize-2, 1), ErrInvalidOffset)
	assert.NoError(t, b.PutInt(PageSize-IntSize, 1))
	assert.Equal(t, PageSize, b.Size)
}

func TestNewBlockTruncatesToCapacity(t *testing.T) {
	t.Parallel()

	raw := make([]byte, PageSize+100)
	raw[PageSize-1] = 9

	b := NewBlock(raw)
	assert.Equal(t, PageSize, b.Size)
	assert.Equal(t, byte(9), b.Data[PageSize-1])
}

func TestRecordSlots(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 16, RecordSize)
	assert.Equal(t, PageSize/16, RecordsPerBlock)

	var b Block
	first := Record{First: 3, Second: 4, Third: 5, Key: 100}
	second := Record{First: -7, Second: 0, Third: 1 << 30, Key: 101}

	require.NoError(t, b.PutRecord(0, first))
	require.NoError(t, b.PutRecord(RecordSize, second))
	assert.Equal(t, 2*RecordSize, b.Size)

	got, err := b.Record(0)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = b.Record(RecordSize)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	// Overwriting an earlier slot keeps the logical size.
	require.NoError(t, b.PutRecord(0, Tombstone))
	assert.Equal(t, 2*RecordSize, b.Size)
	got, err = b.Record(0)
	require.NoError(t, err)
	assert.True(t, got.IsTombstone())

	_, err = b.Record(2 * RecordSize)
	assert.ErrorIs(t, err, ErrInvalidOffset)
	assert.ErrorIs(t, b.PutRecord(3, first), ErrInvalidOffset)
	assert.ErrorIs(t, b.PutRecord(PageSize, first), ErrInvalidOffset)
}

func TestMetaRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewMeta(3)
	m.Root = 12
	m.NextID = 40
	m.NextLocation = 77

	buf := m.Encode()
	require.Len(t, buf, MetaSize)

	got, err := DecodeMeta(buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestMetaValidation(t *testing.T) {
	t.Parallel()

	m := NewMeta(2)
	good := m.Encode()

	tests := []struct {
		name   string
		mutate func([]byte)
		want   error
	}{
		{"bad_magic", func(b []byte) { b[0] ^= 0xFF }, ErrInvalidMagicNumber},
		{"bad_version", func(b []byte) { b[5] = 9 }, ErrInvalidVersion},
		{"bad_page_size", func(b []byte) { b[6] = 0 }, ErrInvalidPageSize},
		{"flipped_body_bit", func(b []byte) { b[13] ^= 0x01 }, ErrInvalidChecksum},
		{"flipped_checksum_bit", func(b []byte) { b[MetaSize-1] ^= 0x01 }, ErrInvalidChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append([]byte(nil), good...)
			tt.mutate(buf)
			_, err := DecodeMeta(buf)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := DecodeMeta(good[:MetaSize-1])
	assert.ErrorIs(t, err, ErrCorruptPage)
}
