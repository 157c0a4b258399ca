package pagedb

import (
	"errors"
	"fmt"

	"pagedb/internal/algo"
	"pagedb/internal/base"
	"pagedb/internal/cache"
	"pagedb/internal/records"
)

// Tx represents a transaction on the database.
//
// Transactions are NOT thread-safe and must only be used by a single
// goroutine. The tree header is copied at Begin; node edits stay in the
// transaction's working set until Commit writes them back. Record writes go
// to disk immediately and are undone by Rollback.
type Tx struct {
	db       *DB
	writable bool
	done     bool

	begin algo.Tree    // header captured at Begin
	tree  algo.Tree    // working copy of begin
	pages *cache.Cache // nodes loaded or edited by this transaction
	undo  []undo       // record slots overwritten so far, oldest first
	err   error        // first mutation that stopped halfway
}

// undo restores one record slot to its value before the transaction.
type undo struct {
	loc  Location
	prev Record // base.Tombstone for slots this transaction appended
}

func newTx(d *DB, tree algo.Tree, writable bool) *Tx {
	tx := &Tx{db: d, writable: writable, begin: tree, tree: tree}
	tx.pages = cache.New(tx.loadNode)
	return tx
}

func (tx *Tx) loadNode(id NodeID) (base.Node, error) {
	b, err := tx.db.store.ReadNode(id)
	if err != nil {
		return nil, err
	}
	return base.DecodeNode(b)
}

// check verifies the transaction is still active.
func (tx *Tx) check() error {
	if tx.done {
		return ErrTxDone
	}
	if tx.err != nil {
		return fmt.Errorf("%w: %w", ErrTxFailed, tx.err)
	}
	return nil
}

// fail drops the node edits of a mutation that stopped halfway and restores
// the header captured at Begin. From then on the transaction can only be
// rolled back.
func (tx *Tx) fail(err error) error {
	if tx.err == nil {
		tx.err = err
	}
	tx.pages.Reset()
	tx.tree = tx.begin
	return err
}

func (tx *Tx) checkWritable() error {
	if err := tx.check(); err != nil {
		return err
	}
	if !tx.writable {
		return ErrTxNotWritable
	}
	return nil
}

// Writable reports whether tx may modify the database.
func (tx *Tx) Writable() bool {
	return tx.writable
}

// Insert appends r to the record store and indexes it under r.Key. A key
// that is already present fails with ErrDuplicateKey before anything is
// written.
func (tx *Tx) Insert(r Record) (Location, error) {
	if err := tx.checkWritable(); err != nil {
		return NotFound, err
	}
	if r.IsTombstone() {
		return NotFound, ErrInvalidRecord
	}

	existing, err := tx.tree.Search(tx.pages, r.Key)
	if err != nil {
		return NotFound, err
	}
	if existing != NotFound {
		return NotFound, fmt.Errorf("key %d: %w", r.Key, ErrDuplicateKey)
	}

	loc, err := tx.db.records.Append(r)
	if err != nil {
		return NotFound, err
	}
	tx.undo = append(tx.undo, undo{loc: loc, prev: base.Tombstone})

	inserted, err := tx.tree.Insert(tx.pages, r.Key, loc)
	if err != nil {
		return NotFound, tx.fail(err)
	}
	if !inserted {
		panic(fmt.Sprintf("BUG: key %d appeared between search and insert", r.Key))
	}
	return loc, nil
}

// Search returns the record indexed under key.
func (tx *Tx) Search(key Key) (Record, error) {
	if err := tx.check(); err != nil {
		return Record{}, err
	}

	loc, err := tx.tree.Search(tx.pages, key)
	if err != nil {
		return Record{}, err
	}
	if loc == NotFound {
		return Record{}, fmt.Errorf("key %d: %w", key, ErrKeyNotFound)
	}
	return tx.read(key, loc)
}

func (tx *Tx) read(key Key, loc Location) (Record, error) {
	r, err := tx.db.records.Read(loc)
	if errors.Is(err, records.ErrRecordNotFound) {
		return Record{}, fmt.Errorf("%w: key %d points at empty location %d", ErrCorruptPage, key, loc)
	}
	return r, err
}

// Update overwrites the record indexed under key. The record keeps its
// location; r.Key must equal key.
func (tx *Tx) Update(key Key, r Record) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if r.Key != key {
		return fmt.Errorf("%w: record key %d, want %d", ErrKeyMismatch, r.Key, key)
	}
	if r.IsTombstone() {
		return ErrInvalidRecord
	}

	loc, err := tx.tree.Search(tx.pages, key)
	if err != nil {
		return err
	}
	if loc == NotFound {
		return fmt.Errorf("key %d: %w", key, ErrKeyNotFound)
	}

	prev, err := tx.read(key, loc)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, undo{loc: loc, prev: prev})
	if err := tx.db.records.Update(loc, r); err != nil {
		return tx.fail(err)
	}
	return nil
}

// Delete removes key from the index and tombstones its record in place. It
// returns the location the record occupied.
func (tx *Tx) Delete(key Key) (Location, error) {
	if err := tx.checkWritable(); err != nil {
		return NotFound, err
	}

	loc, err := tx.tree.Delete(tx.pages, key)
	if err != nil {
		return NotFound, tx.fail(err)
	}
	if loc == NotFound {
		return NotFound, fmt.Errorf("key %d: %w", key, ErrKeyNotFound)
	}

	prev, err := tx.read(key, loc)
	if err != nil {
		return NotFound, tx.fail(err)
	}
	tx.undo = append(tx.undo, undo{loc: loc, prev: prev})
	if err := tx.db.records.Delete(loc); err != nil {
		return NotFound, tx.fail(err)
	}
	return loc, nil
}

// Height returns the number of levels of the index; 0 when it is empty.
func (tx *Tx) Height() (int, error) {
	if err := tx.check(); err != nil {
		return 0, err
	}
	return tx.tree.Height(tx.pages)
}

// Dump lists every node of the index in pre-order.
func (tx *Tx) Dump() ([]NodeInfo, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}

	var nodes []NodeInfo
	err := tx.tree.Walk(tx.pages, func(n base.Node, depth int) error {
		d := n.Data()
		info := NodeInfo{
			ID:        d.ID,
			Parent:    d.Parent,
			Depth:     depth,
			Keys:      append([]Key(nil), d.Keys...),
			Locations: append([]Location(nil), d.Locations...),
		}
		if br, ok := n.(*base.Branch); ok {
			info.Children = append([]NodeID(nil), br.Children...)
		}
		nodes = append(nodes, info)
		return nil
	})
	return nodes, err
}

// ForEach calls fn for every indexed record in key order.
func (tx *Tx) ForEach(fn func(loc Location, r Record) error) error {
	if err := tx.check(); err != nil {
		return err
	}
	return tx.tree.Ascend(tx.pages, func(e algo.Entry) error {
		r, err := tx.read(e.Key, e.Location)
		if err != nil {
			return err
		}
		return fn(e.Location, r)
	})
}

// Block returns every slot of record block n, deleted slots included as
// tombstones. Slot i holds location n*RecordsPerBlock + i.
func (tx *Tx) Block(n int32) ([]Record, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.db.records.Block(n)
}

// Check verifies the structure of the index: key order, occupancy, balance
// and parent links.
func (tx *Tx) Check() error {
	if err := tx.check(); err != nil {
		return err
	}
	return tx.tree.Check(tx.pages)
}

// rebuild replaces the index with one built from a scan of the record store.
// Pages of the old index are only scheduled for removal, so they stay on
// disk until Commit has written the new one.
func (tx *Tx) rebuild() (int, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}
	stale, err := tx.db.store.NodeIDs()
	if err != nil {
		return 0, err
	}

	// Node ids keep counting past every page on disk so the new tree never
	// overwrites a page it is about to remove.
	next := tx.tree.NextID
	for _, id := range stale {
		next = max(next, id+1)
	}
	tx.pages.Reset()
	tx.tree = algo.Tree{Root: base.NoNode, NextID: next, Degree: tx.tree.Degree}

	var n int
	err = tx.db.records.Scan(func(loc Location, r Record) error {
		inserted, err := tx.tree.Insert(tx.pages, r.Key, loc)
		if err != nil {
			return err
		}
		if !inserted {
			tx.db.log.Warn("duplicate key skipped during rebuild", "key", r.Key, "location", loc)
			return nil
		}
		n++
		return nil
	})
	if err != nil {
		return 0, tx.fail(err)
	}

	for _, id := range stale {
		tx.pages.MarkDeleted(id)
	}
	return n, nil
}

// Commit writes every modified node, stores the new tree header and then
// removes every deleted node. Returns ErrTxDone if the transaction has
// already been committed or rolled back, and ErrTxFailed if a mutation
// stopped halfway.
func (tx *Tx) Commit() error {
	if err := tx.checkWritable(); err != nil {
		return err
	}

	changes := tx.pages.Drain()
	for _, n := range changes.Modified {
		var b base.Block
		if err := base.EncodeNode(n, &b); err != nil {
			return tx.fail(fmt.Errorf("node %d: %w", n.Data().ID, err))
		}
		if err := tx.db.store.WriteNode(n.Data().ID, &b); err != nil {
			return tx.fail(err)
		}
	}

	info := tx.db.Info()
	if tx.tree != (algo.Tree{Root: info.Root, NextID: info.NextID, Degree: info.Degree}) ||
		tx.db.records.Next() != info.NextLocation {
		if err := tx.db.store.StoreMeta(tx.db.meta(tx.tree)); err != nil {
			return tx.fail(err)
		}
	}
	tx.db.publish(tx.tree)

	// Deleted pages are unreachable from the stored header; one left behind
	// is removed by the next rebuild.
	for _, id := range changes.Deleted {
		if err := tx.db.store.RemoveNode(id); err != nil {
			tx.db.log.Warn("stale node page left behind", "node", id, "error", err)
		}
	}

	tx.close()
	return nil
}

// Rollback discards the transaction's node edits and restores every record
// slot it wrote. Safe to call after Commit (becomes a no-op) and multiple
// times.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.pages.Reset()

	var err error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		u := tx.undo[i]
		if u.prev.IsTombstone() {
			err = errors.Join(err, tx.db.records.Delete(u.loc))
		} else {
			err = errors.Join(err, tx.db.records.Update(u.loc, u.prev))
		}
	}
	if len(tx.undo) > 0 {
		tx.db.log.Warn("transaction rolled back", "records", len(tx.undo))
	}
	if err != nil {
		tx.db.log.Error("rollback could not restore records", "error", err)
	}

	tx.close()
	return err
}

func (tx *Tx) close() {
	s := tx.pages.Stats()

	tx.db.state.Lock()
	tx.db.cacheHits += s.Hits
	tx.db.cacheMisses += s.Misses
	tx.db.state.Unlock()

	tx.done = true
	tx.undo = nil
	tx.db.mu.Unlock()
}
