// Package cache holds the working set of tree nodes for a single
// transaction, together with the bookkeeping that drives write-back.
package cache

import (
	"cmp"
	"fmt"

	"github.com/google/btree"

	"pagedb/internal/base"
)

// setDegree is the fan-out of the in-memory id sets.
const setDegree = 8

// Loader fetches a node that is not resident yet.
type Loader func(id base.NodeID) (base.Node, error)

// Cache is an identity-keyed working set of nodes. A node is loaded at most
// once per transaction; after that every Get returns the same value, so
// in-memory edits are never shadowed by a reload.
type Cache struct {
	loader Loader
	nodes  map[base.NodeID]base.Node

	// Ordered by id so write-back is deterministic.
	modified *btree.BTreeG[base.NodeID]
	deleted  *btree.BTreeG[base.NodeID]

	// Stats
	hits   uint64
	misses uint64
}

// Changes is the write-back set handed over by Drain.
type Changes struct {
	Modified []base.Node
	Deleted  []base.NodeID
}

// Empty reports whether nothing needs to be written back.
func (c Changes) Empty() bool {
	return len(c.Modified) == 0 && len(c.Deleted) == 0
}

func New(loader Loader) *Cache {
	c := &Cache{loader: loader}
	c.clear()
	return c
}

func newSet() *btree.BTreeG[base.NodeID] {
	return btree.NewG(setDegree, cmp.Less[base.NodeID])
}

// Get returns the node with the given id, loading it on first use. Loader
// errors are returned as is and leave the cache untouched.
func (c *Cache) Get(id base.NodeID) (base.Node, error) {
	if c.deleted.Has(id) {
		panic(fmt.Sprintf("BUG: node %d requested after it was deleted", id))
	}
	if n, ok := c.nodes[id]; ok {
		c.hits++
		return n, nil
	}

	c.misses++
	n, err := c.loader(id)
	if err != nil {
		return nil, err
	}
	if got := n.Data().ID; got != id {
		return nil, fmt.Errorf("%w: page for node %d holds node %d", base.ErrCorruptPage, id, got)
	}
	c.nodes[id] = n
	return n, nil
}

// Put makes a freshly created node resident.
func (c *Cache) Put(n base.Node) {
	c.nodes[n.Data().ID] = n
}

// MarkModified schedules n for write-back.
func (c *Cache) MarkModified(n base.Node) {
	id := n.Data().ID
	if c.deleted.Has(id) {
		panic(fmt.Sprintf("BUG: node %d modified after it was deleted", id))
	}
	c.nodes[id] = n
	c.modified.ReplaceOrInsert(id)
}

// MarkDeleted schedules the page of id for removal. The node leaves the
// working set and the modified set.
func (c *Cache) MarkDeleted(id base.NodeID) {
	delete(c.nodes, id)
	c.modified.Delete(id)
	c.deleted.ReplaceOrInsert(id)
}

// IsModified reports whether id is in the modified set.
func (c *Cache) IsModified(id base.NodeID) bool {
	return c.modified.Has(id)
}

// IsDeleted reports whether id is in the deleted set.
func (c *Cache) IsDeleted(id base.NodeID) bool {
	return c.deleted.Has(id)
}

// Drain hands over the modified and deleted sets and empties the cache. It
// is the only way pending changes leave the cache.
func (c *Cache) Drain() Changes {
	var changes Changes
	c.modified.Ascend(func(id base.NodeID) bool {
		changes.Modified = append(changes.Modified, c.nodes[id])
		return true
	})
	c.deleted.Ascend(func(id base.NodeID) bool {
		changes.Deleted = append(changes.Deleted, id)
		return true
	})
	c.clear()
	return changes
}

// Reset drops the working set and all pending changes.
func (c *Cache) Reset() {
	c.clear()
}

func (c *Cache) clear() {
	c.nodes = make(map[base.NodeID]base.Node)
	c.modified = newSet()
	c.deleted = newSet()
}

// Size returns the number of resident nodes.
func (c *Cache) Size() int {
	return len(c.nodes)
}

type Stats struct {
	Hits   uint64
	Misses uint64
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits, Misses: c.misses}
}

// ClearStats resets the cache's positive incrementing statistics
func (c *Cache) ClearStats() {
	c.hits = 0
	c.misses = 0
}
