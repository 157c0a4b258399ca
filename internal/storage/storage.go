package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"pagedb/internal/base"
	"pagedb/internal/cache"
)

const (
	nodeDir   = "nodes"
	recordDir = "records"
	metaFile  = "meta"
	lockFile  = "LOCK"
)

var ErrLocked = errors.New("storage directory already in use")

// Options configures a Store.
type Options struct {
	// PageCacheSize is the number of node pages kept in memory across
	// transactions. 0 disables the cache and every node load hits the disk.
	PageCacheSize int
}

// Counters holds I/O statistics per subsystem.
type Counters struct {
	RecordReads  uint64
	RecordWrites uint64
	NodeReads    uint64
	NodeWrites   uint64
}

// Store reads and writes fixed-size blocks to files under one directory: one
// file per node page and one file per record block.
type Store struct {
	dir   string
	lock  *dirLock
	pages *cache.PageCache // nil when disabled

	// Stats counters
	recordReads  atomic.Uint64
	recordWrites atomic.Uint64
	nodeReads    atomic.Uint64
	nodeWrites   atomic.Uint64
}

// Open prepares dir for use, creating it if needed, and takes the directory
// lock.
func Open(dir string, opts Options) (*Store, error) {
	for _, sub := range []string{nodeDir, recordDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, err
		}
	}

	lock, err := lockDir(filepath.Join(dir, lockFile))
	if err != nil {
		return nil, err
	}

	s := &Store{dir: dir, lock: lock}
	if opts.PageCacheSize > 0 {
		s.pages, err = cache.NewPageCache(opts.PageCacheSize)
		if err != nil {
			_ = lock.release()
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) nodePath(id base.NodeID) string {
	return filepath.Join(s.dir, nodeDir, fmt.Sprintf("page_%d.node", id))
}

func (s *Store) blockPath(n int32) string {
	return filepath.Join(s.dir, recordDir, fmt.Sprintf("block_%d.rec", n))
}

// ReadNode loads the page of node id. A missing or empty file yields
// base.ErrPageNotFound.
func (s *Store) ReadNode(id base.NodeID) (*base.Block, error) {
	if s.pages != nil {
		if raw, ok := s.pages.Get(id); ok {
			return base.NewBlock(raw), nil
		}
	}

	raw, err := readFile(s.nodePath(id))
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	s.nodeReads.Add(1)

	if s.pages != nil {
		s.pages.Put(id, raw)
	}
	return base.NewBlock(raw), nil
}

// WriteNode replaces the page of node id with b.
func (s *Store) WriteNode(id base.NodeID, b *base.Block) error {
	raw := append([]byte(nil), b.Bytes()...)
	if err := os.WriteFile(s.nodePath(id), raw, 0o644); err != nil {
		return err
	}
	s.nodeWrites.Add(1)

	if s.pages != nil {
		s.pages.Put(id, raw)
	}
	return nil
}

// RemoveNode deletes the page of node id. Removing a page that was never
// written is not an error.
func (s *Store) RemoveNode(id base.NodeID) error {
	if s.pages != nil {
		s.pages.Invalidate(id)
	}
	err := os.Remove(s.nodePath(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// NodeIDs lists the ids of every node page on disk in ascending order.
// Files that are not node pages are ignored.
func (s *Store) NodeIDs() ([]base.NodeID, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, nodeDir))
	if err != nil {
		return nil, err
	}
	var ids []base.NodeID
	for _, e := range entries {
		name, ok := strings.CutPrefix(e.Name(), "page_")
		if !ok {
			continue
		}
		if name, ok = strings.CutSuffix(name, ".node"); !ok {
			continue
		}
		id, err := strconv.ParseInt(name, 10, 32)
		if err != nil || id < 0 {
			continue
		}
		ids = append(ids, base.NodeID(id))
	}
	slices.Sort(ids)
	return ids, nil
}

// ReadBlock loads record block n.
func (s *Store) ReadBlock(n int32) (*base.Block, error) {
	raw, err := readFile(s.blockPath(n))
	if err != nil {
		return nil, fmt.Errorf("record block %d: %w", n, err)
	}
	s.recordReads.Add(1)
	return base.NewBlock(raw), nil
}

// WriteBlock replaces record block n with b.
func (s *Store) WriteBlock(n int32, b *base.Block) error {
	if err := os.WriteFile(s.blockPath(n), b.Bytes(), 0o644); err != nil {
		return err
	}
	s.recordWrites.Add(1)
	return nil
}

func readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, base.ErrPageNotFound
		}
		return nil, fmt.Errorf("%w: %w", base.ErrPageNotFound, err)
	}
	if len(raw) == 0 {
		return nil, base.ErrPageNotFound
	}
	if len(raw) > base.PageSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds page size", base.ErrCorruptPage, len(raw))
	}
	return raw, nil
}

// LoadMeta reads the tree header. The boolean is false when no header has
// been stored yet.
func (s *Store) LoadMeta() (base.Meta, bool, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, metaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return base.Meta{}, false, nil
	}
	if err != nil {
		return base.Meta{}, false, err
	}
	m, err := base.DecodeMeta(raw)
	if err != nil {
		return base.Meta{}, false, err
	}
	return m, true, nil
}

// StoreMeta persists the tree header. The file is written aside, synced and
// renamed over the previous one.
func (s *Store) StoreMeta(m base.Meta) error {
	path := filepath.Join(s.dir, metaFile)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(m.Encode()); err != nil {
		_ = f.Close()
		return err
	}
	if err := syncFile(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Counters returns I/O statistics.
func (s *Store) Counters() Counters {
	return Counters{
		RecordReads:  s.recordReads.Load(),
		RecordWrites: s.recordWrites.Load(),
		NodeReads:    s.nodeReads.Load(),
		NodeWrites:   s.nodeWrites.Load(),
	}
}

// ResetCounters zeroes the I/O statistics.
func (s *Store) ResetCounters() {
	s.recordReads.Store(0)
	s.recordWrites.Store(0)
	s.nodeReads.Store(0)
	s.nodeWrites.Store(0)
	if s.pages != nil {
		s.pages.ClearStats()
	}
}

// CacheHits returns the number of node loads served by the page cache.
func (s *Store) CacheHits() uint64 {
	if s.pages == nil {
		return 0
	}
	hits, _ := s.pages.Stats()
	return hits
}

// Close releases the directory lock.
func (s *Store) Close() error {
	if s.pages != nil {
		s.pages.Purge()
	}
	if s.lock == nil {
		return nil
	}
	err := s.lock.release()
	s.lock = nil
	return err
}
