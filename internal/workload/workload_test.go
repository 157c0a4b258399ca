package workload

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagedb/internal/base"
)

func drain(src KeySource) []base.Key {
	var out []base.Key
	for {
		k, ok := src.Next()
		if !ok {
			return out
		}
		out = append(out, k)
	}
}

func TestRandomKeysExhaustRangeWithoutRepeats(t *testing.T) {
	t.Parallel()

	keys := drain(NewRandomKeys(7, 50))
	require.Len(t, keys, 50)

	seen := make(map[base.Key]bool)
	for _, k := range keys {
		assert.False(t, seen[k], "key %d repeated", k)
		assert.True(t, k >= 0 && k < 50, "key %d out of range", k)
		seen[k] = true
	}
}

func TestRandomKeysDeterministicPerSeed(t *testing.T) {
	t.Parallel()

	a := NewRandomKeys(42, 1_000_000)
	b := NewRandomKeys(42, 1_000_000)
	c := NewRandomKeys(43, 1_000_000)

	var sameAsC int
	for range 100 {
		ka, _ := a.Next()
		kb, _ := b.Next()
		kc, _ := c.Next()
		assert.Equal(t, ka, kb)
		if ka == kc {
			sameAsC++
		}
	}
	assert.Less(t, sameAsC, 100)
}

func TestRandomKeysSourcesAreIndependent(t *testing.T) {
	t.Parallel()

	// A second source does not see keys drawn by the first.
	first := drain(NewRandomKeys(1, 10))
	second := drain(NewRandomKeys(2, 10))
	assert.Len(t, first, 10)
	assert.Len(t, second, 10)
	assert.ElementsMatch(t, first, second)
}

func TestRandomKeysEmptyRange(t *testing.T) {
	t.Parallel()

	_, ok := NewRandomKeys(1, 0).Next()
	assert.False(t, ok)
}

func TestSequentialKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		from, to base.Key
		want     []base.Key
	}{
		{"range", 3, 6, []base.Key{3, 4, 5, 6}},
		{"single", 5, 5, []base.Key{5}},
		{"empty", 6, 5, nil},
		{"negative", -2, 0, []base.Key{-2, -1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, drain(NewSequentialKeys(tt.from, tt.to)))
		})
	}
}

func TestRecords(t *testing.T) {
	t.Parallel()

	gen := Records(NewSequentialKeys(1, 20), rand.New(rand.NewPCG(1, 2)))
	var n int
	for {
		r, ok := gen.Next()
		if !ok {
			break
		}
		n++
		assert.Equal(t, base.Key(n), r.Key)
		for _, v := range []int32{r.First, r.Second, r.Third} {
			assert.True(t, v >= 1 && v <= 100, "field %d out of range", v)
		}
		assert.False(t, r.IsTombstone())
	}
	assert.Equal(t, 20, n)
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want Command
	}{
		{"insert 1 2 3 40", Command{Op: OpInsert, Key: 40, Record: base.Record{First: 1, Second: 2, Third: 3, Key: 40}}},
		{"  INSERT\t1 2 3 -4 ", Command{Op: OpInsert, Key: -4, Record: base.Record{First: 1, Second: 2, Third: 3, Key: -4}}},
		{"update 40 7 8 9", Command{Op: OpUpdate, Key: 40, Record: base.Record{First: 7, Second: 8, Third: 9, Key: 40}}},
		{"search 12", Command{Op: OpSearch, Key: 12}},
		{"delete 12", Command{Op: OpDelete, Key: 12}},
		{"dump", Command{Op: OpDump}},
		{"stats", Command{Op: OpStats}},
		{"print 2", Command{Op: OpPrint, Block: 2}},
	}
	for _, tt := range tests {
		got, ok, err := ParseCommand(tt.line)
		require.NoError(t, err, tt.line)
		assert.True(t, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestParseCommandSkipsBlankAndComments(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"", "   ", "# header", "#insert 1 2 3 4"} {
		_, ok, err := ParseCommand(line)
		assert.NoError(t, err, line)
		assert.False(t, ok, line)
	}
}

func TestParseCommandErrors(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"insert 1 2 3",
		"insert 1 2 3 4 5",
		"search",
		"search x",
		"delete 99999999999",
		"dump 1",
		"print",
		"printBTree",
	} {
		_, _, err := ParseCommand(line)
		assert.ErrorIs(t, err, ErrInvalidCommand, line)
	}
}

func TestCommandStringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"insert 1 2 3 4", "update 4 1 2 3", "search 9", "delete 9", "print 3", "dump", "stats"} {
		cmd, ok, err := ParseCommand(line)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, line, cmd.String())
	}
}
