package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagedb"
)

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPointCommands(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	out, err := run(t, dir, "--degree", "2", "insert", "3", "4", "5", "100")
	require.NoError(t, err)
	assert.Equal(t, "inserted (3, 4, 5, 100) at location 0\n", out)

	out, err = run(t, dir, "search", "100")
	require.NoError(t, err)
	assert.Equal(t, "found (3, 4, 5, 100)\n", out)

	out, err = run(t, dir, "update", "100", "9", "9", "9")
	require.NoError(t, err)
	assert.Equal(t, "updated key 100 to (9, 9, 9, 100)\n", out)

	out, err = run(t, dir, "search", "100")
	require.NoError(t, err)
	assert.Equal(t, "found (9, 9, 9, 100)\n", out)

	_, err = run(t, dir, "insert", "1", "1", "1", "100")
	assert.ErrorIs(t, err, pagedb.ErrDuplicateKey)

	out, err = run(t, dir, "delete", "100")
	require.NoError(t, err)
	assert.Equal(t, "deleted key 100 from location 0\n", out)

	_, err = run(t, dir, "search", "100")
	assert.ErrorIs(t, err, pagedb.ErrKeyNotFound)

	out, err = run(t, dir, "dump")
	require.NoError(t, err)
	assert.Equal(t, "empty tree\n", out)
}

func TestGlobalFlagErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := run(t, dir, "--log", "syslog", "dump")
	assert.ErrorContains(t, err, "unknown logger")

	_, err = run(t, dir, "--degree", "1", "dump")
	assert.ErrorIs(t, err, pagedb.ErrInvalidDegree)

	_, err = run(t, dir, "--degree", "4", "dump")
	require.NoError(t, err)
	_, err = run(t, dir, "--degree", "5", "dump")
	assert.ErrorIs(t, err, pagedb.ErrDegreeMismatch)

	_, err = run(t, dir, "search", "x")
	assert.Error(t, err)

	_, err = run(t, dir, "search")
	assert.Error(t, err)
}

func TestGenerateLoadAndDump(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	out, err := run(t, dir, "--degree", "2", "generate", "--count", "40", "--seed", "9", "--max", "1000")
	require.NoError(t, err)
	assert.Equal(t, "inserted 40 records, skipped 0 existing keys\n", out)

	// The same seed draws the same keys again.
	out, err = run(t, dir, "generate", "--count", "10", "--seed", "9", "--max", "1000")
	require.NoError(t, err)
	assert.Equal(t, "inserted 0 records, skipped 10 existing keys\n", out)

	out, err = run(t, dir, "generate", "--count", "5", "--keys", "sequential", "--from", "5000")
	require.NoError(t, err)
	assert.Equal(t, "inserted 5 records, skipped 0 existing keys\n", out)

	out, err = run(t, dir, "load")
	require.NoError(t, err)
	assert.Equal(t, "indexed 45 records\n", out)

	out, err = run(t, dir, "search", "5004")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "found ("), out)

	out, err = run(t, dir, "dump")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "node "), lines[0])
	assert.Contains(t, lines[0], "(parent -1)")
	assert.Contains(t, lines[0], "children")
	assert.True(t, strings.HasPrefix(lines[1], "  node "), lines[1])

	_, err = run(t, dir, "generate", "--keys", "zipf")
	assert.ErrorContains(t, err, "unknown key source")
}

func TestReplay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	script := strings.Join([]string{
		"# scenario",
		"insert 3 4 5 100",
		"insert 1 1 1 100",
		"search 100",
		"",
		"update 100 9 9 9",
		"search 100",
		"delete 100",
		"search 100",
		"fly 1",
		"stats",
	}, "\n")
	file := filepath.Join(t.TempDir(), "commands.txt")
	require.NoError(t, os.WriteFile(file, []byte(script), 0o644))

	out, err := run(t, dir, "replay", file)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 8)
	assert.Equal(t, []string{
		"inserted (3, 4, 5, 100) at location 0",
		"line 3: key 100: key already exists",
		"found (3, 4, 5, 100)",
		"updated key 100 to (9, 9, 9, 100)",
		"found (9, 9, 9, 100)",
		"deleted key 100 from location 0",
		"line 9: key 100: key not found",
		`line 10: invalid command: unknown operation "fly"`,
	}, lines[:8])
	assert.True(t, strings.HasPrefix(lines[8], "record reads: "), lines[8])

	_, err = run(t, dir, "replay", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestStatsFlag(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	out, err := run(t, dir, "--stats", "insert", "1", "2", "3", "4")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"inserted (1, 2, 3, 4) at location 0",
		"record reads: 0",
		"record writes: 1",
		"node reads: 0",
		"node writes: 1",
		"",
	}, "\n"), out)

	out, err = run(t, dir, "stats", "--reset")
	require.NoError(t, err)
	assert.Contains(t, out, "node reads: 0")
}

func TestPrintBlock(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	for _, args := range [][]string{
		{"insert", "1", "2", "3", "10"},
		{"insert", "4", "5", "6", "20"},
		{"insert", "7", "8", "9", "30"},
		{"delete", "20"},
	} {
		_, err := run(t, dir, args...)
		require.NoError(t, err)
	}

	out, err := run(t, dir, "print", "0")
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"block 0: 3 slots",
		"  location 0: (1, 2, 3, 10)",
		"  location 1: deleted",
		"  location 2: (7, 8, 9, 30)",
		"",
	}, "\n"), out)

	_, err = run(t, dir, "print", "1")
	assert.ErrorIs(t, err, pagedb.ErrRecordNotFound)

	file := filepath.Join(t.TempDir(), "commands.txt")
	require.NoError(t, os.WriteFile(file, []byte("print 0\nprint 7\n"), 0o644))
	out, err = run(t, dir, "replay", file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "block 0: 3 slots", lines[0])
	assert.Equal(t, "line 2: block 7: record not found", lines[4])
}
