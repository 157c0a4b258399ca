package pagedb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"pagedb/internal/algo"
	"pagedb/internal/base"
	"pagedb/internal/records"
	"pagedb/internal/storage"
)

type (
	Key      = base.Key
	Location = base.Location
	NodeID   = base.NodeID
	Record   = base.Record
)

const (
	// NotFound is the location reported for keys that are not indexed.
	NotFound = base.NotFound

	// RecordsPerBlock is the number of record slots in one record block.
	RecordsPerBlock = base.RecordsPerBlock
)

// Stats holds I/O statistics. Record and node counters count real file reads
// and writes only.
type Stats struct {
	RecordReads  uint64
	RecordWrites uint64
	NodeReads    uint64
	NodeWrites   uint64

	PageCacheHits   uint64 // node loads served by the shared page cache
	NodeCacheHits   uint64 // node lookups served by a transaction's working set
	NodeCacheMisses uint64
}

// NodeInfo describes one node of the index as listed by Dump.
type NodeInfo struct {
	ID        NodeID
	Parent    NodeID
	Depth     int
	Keys      []Key
	Locations []Location
	Children  []NodeID // nil for leaves
}

// DB is a record store indexed by a paged b-tree. Only one transaction runs
// at a time: Begin blocks until the previous transaction has finished.
type DB struct {
	mu sync.Mutex // held by the running transaction

	state   sync.RWMutex // guards the fields below for Stats and Info
	store   *storage.Store
	records *records.Store
	tree    algo.Tree // last committed header
	nextLoc Location  // next record location at the last commit
	id      uuid.UUID
	log     Logger
	closed  bool

	// Node cache statistics accumulated from finished transactions
	cacheHits   uint64
	cacheMisses uint64
}

// Open opens the database stored under dir, creating it when dir holds no
// database yet.
func Open(dir string, options ...Option) (*DB, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	if opts.degree < base.MinDegree || opts.degree > base.MaxDegree {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidDegree, opts.degree, base.MinDegree, base.MaxDegree)
	}

	store, err := storage.Open(dir, storage.Options{PageCacheSize: opts.pageCacheSize})
	if err != nil {
		return nil, err
	}

	meta, found, err := store.LoadMeta()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if !found {
		meta = base.NewMeta(opts.degree)
		if err := store.StoreMeta(meta); err != nil {
			_ = store.Close()
			return nil, err
		}
	} else if opts.degreeSet && int(meta.Degree) != opts.degree {
		_ = store.Close()
		return nil, fmt.Errorf("%w: database has degree %d, requested %d", ErrDegreeMismatch, meta.Degree, opts.degree)
	}

	d := &DB{
		store:   store,
		records: records.New(store, meta.NextLocation),
		tree:    algo.Tree{Root: meta.Root, NextID: meta.NextID, Degree: int(meta.Degree)},
		nextLoc: meta.NextLocation,
		id:      meta.DBID,
		log:     opts.logger,
	}

	// Appends that never reached a committed header still own their slots.
	if err := d.records.Recount(); err != nil {
		_ = store.Close()
		return nil, err
	}
	d.nextLoc = d.records.Next()
	store.ResetCounters()

	d.log.Info("database opened",
		"dir", dir,
		"id", d.id.String(),
		"degree", d.tree.Degree,
		"root", d.tree.Root,
		"created", !found,
	)
	return d, nil
}

// Begin starts a transaction, waiting for the running one to finish.
// The caller must call Commit or Rollback.
func (d *DB) Begin(writable bool) (*Tx, error) {
	d.mu.Lock()

	d.state.RLock()
	closed := d.closed
	tree := d.tree
	d.state.RUnlock()

	if closed {
		d.mu.Unlock()
		return nil, ErrDatabaseClosed
	}
	return newTx(d, tree, writable), nil
}

// View executes a function within a read-only transaction.
func (d *DB) View(fn func(*Tx) error) error {
	tx, err := d.Begin(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	return fn(tx)
}

// Update executes a function within a read-write transaction.
// If the function returns an error, the transaction is rolled back.
// If the function returns nil, the transaction is committed.
func (d *DB) Update(fn func(*Tx) error) error {
	tx, err := d.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if isStorageError(err) {
			d.log.Error("transaction aborted", "error", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		d.log.Error("commit failed", "error", err)
		return err
	}
	return nil
}

// Insert adds r under r.Key and returns its location.
func (d *DB) Insert(r Record) (Location, error) {
	loc := NotFound
	err := d.Update(func(tx *Tx) error {
		var err error
		loc, err = tx.Insert(r)
		return err
	})
	return loc, err
}

// Search returns the record stored under key.
func (d *DB) Search(key Key) (Record, error) {
	var r Record
	err := d.View(func(tx *Tx) error {
		var err error
		r, err = tx.Search(key)
		return err
	})
	return r, err
}

// Replace overwrites the record stored under key in place.
func (d *DB) Replace(key Key, r Record) error {
	return d.Update(func(tx *Tx) error {
		return tx.Update(key, r)
	})
}

// Delete removes key and tombstones its record. It returns the freed
// location.
func (d *DB) Delete(key Key) (Location, error) {
	loc := NotFound
	err := d.Update(func(tx *Tx) error {
		var err error
		loc, err = tx.Delete(key)
		return err
	})
	return loc, err
}

// Dump lists every node of the index in pre-order.
func (d *DB) Dump() ([]NodeInfo, error) {
	var nodes []NodeInfo
	err := d.View(func(tx *Tx) error {
		var err error
		nodes, err = tx.Dump()
		return err
	})
	return nodes, err
}

// Block returns every slot of record block n; see Tx.Block.
func (d *DB) Block(n int32) ([]Record, error) {
	var slots []Record
	err := d.View(func(tx *Tx) error {
		var err error
		slots, err = tx.Block(n)
		return err
	})
	return slots, err
}

// Height returns the number of levels of the index.
func (d *DB) Height() (int, error) {
	var h int
	err := d.View(func(tx *Tx) error {
		var err error
		h, err = tx.Height()
		return err
	})
	return h, err
}

// Rebuild drops every node page and indexes every live record again, in
// location order. It returns the number of records indexed. Counters are
// reset afterwards so the load does not show up in Stats.
func (d *DB) Rebuild() (int, error) {
	var n int
	err := d.Update(func(tx *Tx) error {
		var err error
		n, err = tx.rebuild()
		return err
	})
	if err != nil {
		d.log.Error("rebuild failed", "error", err)
		return 0, err
	}

	d.ResetStats()
	d.log.Info("index rebuilt", "records", n)
	return n, nil
}

// Stats returns I/O statistics since the last reset.
func (d *DB) Stats() Stats {
	c := d.store.Counters()

	d.state.RLock()
	defer d.state.RUnlock()

	return Stats{
		RecordReads:     c.RecordReads,
		RecordWrites:    c.RecordWrites,
		NodeReads:       c.NodeReads,
		NodeWrites:      c.NodeWrites,
		PageCacheHits:   d.store.CacheHits(),
		NodeCacheHits:   d.cacheHits,
		NodeCacheMisses: d.cacheMisses,
	}
}

// ResetStats zeroes every counter reported by Stats.
func (d *DB) ResetStats() {
	d.store.ResetCounters()

	d.state.Lock()
	d.cacheHits = 0
	d.cacheMisses = 0
	d.state.Unlock()
}

// Info describes the committed state of the database.
type Info struct {
	ID           uuid.UUID
	Degree       int
	Root         NodeID
	NextID       NodeID
	NextLocation Location
}

// Info returns the committed tree header without touching the disk.
func (d *DB) Info() Info {
	d.state.RLock()
	defer d.state.RUnlock()

	return Info{
		ID:           d.id,
		Degree:       d.tree.Degree,
		Root:         d.tree.Root,
		NextID:       d.tree.NextID,
		NextLocation: d.nextLoc,
	}
}

// Close waits for the running transaction and releases the directory.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Lock()
	defer d.state.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	err := d.store.Close()
	if err != nil {
		d.log.Error("close failed", "error", err)
	} else {
		d.log.Info("database closed", "id", d.id.String())
	}
	return err
}

// publish installs the header of a committed transaction.
func (d *DB) publish(tree algo.Tree) {
	d.state.Lock()
	d.tree = tree
	d.nextLoc = d.records.Next()
	d.state.Unlock()
}

func (d *DB) meta(tree algo.Tree) base.Meta {
	m := base.NewMeta(tree.Degree)
	m.Root = tree.Root
	m.NextID = tree.NextID
	m.NextLocation = d.records.Next()
	m.DBID = d.id
	return m
}

func isStorageError(err error) bool {
	return errors.Is(err, ErrPageNotFound) || errors.Is(err, ErrCorruptPage)
}
