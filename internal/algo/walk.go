package algo

import (
	"errors"
	"fmt"

	"pagedb/internal/base"
)

var ErrInvariant = errors.New("tree invariant violated")

// Height returns the number of levels, 0 for an empty tree.
func (t *Tree) Height(p Pages) (int, error) {
	height := 0
	id := t.Root
	for id != base.NoNode {
		n, err := p.Get(id)
		if err != nil {
			return 0, err
		}
		height++
		br, ok := n.(*base.Branch)
		if !ok {
			break
		}
		id = br.Children[0]
	}
	return height, nil
}

// Walk calls fn for every node in pre-order with its depth, root at 0.
func (t *Tree) Walk(p Pages, fn func(n base.Node, depth int) error) error {
	if t.Root == base.NoNode {
		return nil
	}
	return t.walk(p, t.Root, 0, fn)
}

func (t *Tree) walk(p Pages, id base.NodeID, depth int, fn func(base.Node, int) error) error {
	n, err := p.Get(id)
	if err != nil {
		return err
	}
	if err := fn(n, depth); err != nil {
		return err
	}
	if br, ok := n.(*base.Branch); ok {
		for _, c := range br.Children {
			if err := t.walk(p, c, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Entry is a key and its location.
type Entry struct {
	Key      base.Key
	Location base.Location
}

// Ascend calls fn for every entry in key order.
func (t *Tree) Ascend(p Pages, fn func(Entry) error) error {
	if t.Root == base.NoNode {
		return nil
	}
	return t.ascend(p, t.Root, fn)
}

func (t *Tree) ascend(p Pages, id base.NodeID, fn func(Entry) error) error {
	n, err := p.Get(id)
	if err != nil {
		return err
	}
	d := n.Data()
	br, isBranch := n.(*base.Branch)
	for i := range d.Keys {
		if isBranch {
			if err := t.ascend(p, br.Children[i], fn); err != nil {
				return err
			}
		}
		if err := fn(Entry{Key: d.Keys[i], Location: d.Locations[i]}); err != nil {
			return err
		}
	}
	if isBranch {
		return t.ascend(p, br.Children[len(br.Children)-1], fn)
	}
	return nil
}

// Check verifies the structural invariants: strictly increasing keys, child
// key ranges bounded by the separators, parent links, occupancy bounds and
// equal leaf depth. It is stricter than the occupancy rule alone: a root
// without keys is rejected, since an emptied root is always discarded and
// an empty tree has no root at all.
func (t *Tree) Check(p Pages) error {
	if t.Root == base.NoNode {
		return nil
	}
	leafDepth := -1
	return t.check(p, t.Root, base.NoNode, nil, nil, 0, &leafDepth)
}

func (t *Tree) check(p Pages, id, parent base.NodeID, lo, hi *base.Key, depth int, leafDepth *int) error {
	n, err := p.Get(id)
	if err != nil {
		return err
	}
	d := n.Data()

	if d.Parent != parent {
		return fmt.Errorf("%w: node %d has parent %d, expected %d", ErrInvariant, id, d.Parent, parent)
	}
	if len(d.Locations) != len(d.Keys) {
		return fmt.Errorf("%w: node %d has %d keys and %d locations", ErrInvariant, id, len(d.Keys), len(d.Locations))
	}
	if len(d.Keys) > t.maxKeys() {
		return fmt.Errorf("%w: node %d holds %d keys, max %d", ErrInvariant, id, len(d.Keys), t.maxKeys())
	}
	if parent != base.NoNode && len(d.Keys) < t.minKeys() {
		return fmt.Errorf("%w: node %d holds %d keys, min %d", ErrInvariant, id, len(d.Keys), t.minKeys())
	}
	if parent == base.NoNode && len(d.Keys) == 0 {
		return fmt.Errorf("%w: root %d is empty", ErrInvariant, id)
	}
	for i, k := range d.Keys {
		if i > 0 && d.Keys[i-1] >= k {
			return fmt.Errorf("%w: node %d keys not increasing at %d", ErrInvariant, id, i)
		}
		if (lo != nil && k <= *lo) || (hi != nil && k >= *hi) {
			return fmt.Errorf("%w: node %d key %d outside separator range", ErrInvariant, id, k)
		}
	}

	br, ok := n.(*base.Branch)
	if !ok {
		if *leafDepth == -1 {
			*leafDepth = depth
		} else if *leafDepth != depth {
			return fmt.Errorf("%w: leaf %d at depth %d, expected %d", ErrInvariant, id, depth, *leafDepth)
		}
		return nil
	}

	if len(br.Children) != len(d.Keys)+1 {
		return fmt.Errorf("%w: branch %d has %d keys and %d children", ErrInvariant, id, len(d.Keys), len(br.Children))
	}
	for i, c := range br.Children {
		clo, chi := lo, hi
		if i > 0 {
			clo = &d.Keys[i-1]
		}
		if i < len(d.Keys) {
			chi = &d.Keys[i]
		}
		if err := t.check(p, c, id, clo, chi, depth+1, leafDepth); err != nil {
			return err
		}
	}
	return nil
}
