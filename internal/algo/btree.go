// Package algo contains algorithms used for traversing and editing a b-tree
// whose nodes live in pages.
package algo

import (
	"fmt"
	"slices"

	"pagedb/internal/base"
)

// Pages is the node working set a tree operation runs against. Nodes are
// addressed only by id; the tree never holds references across calls.
type Pages interface {
	Get(id base.NodeID) (base.Node, error)
	Put(n base.Node)
	MarkModified(n base.Node)
	MarkDeleted(id base.NodeID)
}

// Tree is the persistent header of a b-tree of minimum degree Degree: every
// non-root node holds between Degree-1 and 2*Degree-1 keys.
type Tree struct {
	Root   base.NodeID
	NextID base.NodeID // never reused, even after deletes
	Degree int
}

// New returns an empty tree.
func New(degree int) *Tree {
	return &Tree{Root: base.NoNode, Degree: degree}
}

// Empty reports whether the tree holds no keys.
func (t *Tree) Empty() bool {
	return t.Root == base.NoNode
}

func (t *Tree) maxKeys() int { return 2*t.Degree - 1 }

func (t *Tree) minKeys() int { return t.Degree - 1 }

func (t *Tree) allocate() base.NodeID {
	id := t.NextID
	t.NextID++
	return id
}

func (t *Tree) branch(p Pages, id base.NodeID) (*base.Branch, error) {
	n, err := p.Get(id)
	if err != nil {
		return nil, err
	}
	br, ok := n.(*base.Branch)
	if !ok {
		return nil, fmt.Errorf("%w: parent %d is a leaf", base.ErrCorruptPage, id)
	}
	return br, nil
}

// position returns the parent of n and the index of n among its children.
func (t *Tree) position(p Pages, n base.Node) (*base.Branch, int, error) {
	d := n.Data()
	parent, err := t.branch(p, d.Parent)
	if err != nil {
		return nil, 0, err
	}
	idx := parent.ChildIndex(d.ID)
	if idx < 0 {
		return nil, 0, fmt.Errorf("%w: node %d missing from parent %d", base.ErrCorruptPage, d.ID, d.Parent)
	}
	return parent, idx, nil
}

// Search returns the location stored under key, or base.NotFound.
func (t *Tree) Search(p Pages, key base.Key) (base.Location, error) {
	id := t.Root
	for id != base.NoNode {
		n, err := p.Get(id)
		if err != nil {
			return base.NotFound, err
		}
		d := n.Data()
		i, found := d.Search(key)
		if found {
			return d.Locations[i], nil
		}
		br, ok := n.(*base.Branch)
		if !ok {
			break
		}
		id = br.Children[i]
	}
	return base.NotFound, nil
}

// Insert adds key with location loc. It returns false, and changes nothing,
// when key is already present.
func (t *Tree) Insert(p Pages, key base.Key, loc base.Location) (bool, error) {
	existing, err := t.Search(p, key)
	if err != nil {
		return false, err
	}
	if existing != base.NotFound {
		return false, nil
	}

	if t.Root == base.NoNode {
		root := base.NewLeaf(t.allocate(), base.NoNode)
		root.InsertAt(0, key, loc)
		p.Put(root)
		p.MarkModified(root)
		t.Root = root.ID
		return true, nil
	}

	n, err := p.Get(t.Root)
	if err != nil {
		return false, err
	}
	for {
		br, ok := n.(*base.Branch)
		if !ok {
			break
		}
		i, _ := br.Search(key)
		if n, err = p.Get(br.Children[i]); err != nil {
			return false, err
		}
	}

	d := n.Data()
	i, _ := d.Search(key)
	d.InsertAt(i, key, loc)
	p.MarkModified(n)

	return true, t.fixOverflow(p, n)
}

// fixOverflow restores the upper bound on n and, through splits, on its
// ancestors. At each level a sibling with room is preferred over a split.
func (t *Tree) fixOverflow(p Pages, n base.Node) error {
	for n.Data().NumKeys() > t.maxKeys() {
		ok, err := t.compensate(p, n, func(sibling base.Node) bool {
			return sibling.Data().NumKeys() < t.maxKeys()
		})
		if err != nil || ok {
			return err
		}
		if n, err = t.split(p, n); err != nil {
			return err
		}
	}
	return nil
}

// split moves the entries above the middle of an overflowing node into a new
// sibling and promotes the middle entry. It returns the parent, which may
// now overflow itself.
func (t *Tree) split(p Pages, n base.Node) (base.Node, error) {
	d := n.Data()
	mid := t.Degree

	var sibling base.Node
	switch v := n.(type) {
	case *base.Leaf:
		sibling = base.NewLeaf(t.allocate(), d.Parent)
	case *base.Branch:
		s := base.NewBranch(t.allocate(), d.Parent)
		s.Children = slices.Clone(v.Children[mid+1:])
		v.Children = slices.Clone(v.Children[:mid+1])
		sibling = s
	}
	sd := sibling.Data()
	sd.Keys = slices.Clone(d.Keys[mid+1:])
	sd.Locations = slices.Clone(d.Locations[mid+1:])

	upKey, upLoc := d.Keys[mid], d.Locations[mid]
	d.Keys = slices.Clone(d.Keys[:mid])
	d.Locations = slices.Clone(d.Locations[:mid])

	p.Put(sibling)
	if s, ok := sibling.(*base.Branch); ok {
		if err := t.adopt(p, s.ID, s.Children); err != nil {
			return nil, err
		}
	}

	if d.Parent == base.NoNode {
		root := base.NewBranch(t.allocate(), base.NoNode)
		root.Keys = []base.Key{upKey}
		root.Locations = []base.Location{upLoc}
		root.Children = []base.NodeID{d.ID, sd.ID}
		d.Parent = root.ID
		sd.Parent = root.ID

		p.Put(root)
		p.MarkModified(root)
		p.MarkModified(n)
		p.MarkModified(sibling)
		t.Root = root.ID
		return root, nil
	}

	parent, idx, err := t.position(p, n)
	if err != nil {
		return nil, err
	}
	parent.InsertAt(idx, upKey, upLoc)
	parent.Children = slices.Insert(parent.Children, idx+1, sd.ID)

	p.MarkModified(parent)
	p.MarkModified(n)
	p.MarkModified(sibling)
	return parent, nil
}

// Delete removes key and returns the location it pointed to, or
// base.NotFound when key is absent.
func (t *Tree) Delete(p Pages, key base.Key) (base.Location, error) {
	if t.Root == base.NoNode {
		return base.NotFound, nil
	}

	n, err := p.Get(t.Root)
	if err != nil {
		return base.NotFound, err
	}
	var i int
	for {
		var found bool
		i, found = n.Data().Search(key)
		if found {
			break
		}
		br, ok := n.(*base.Branch)
		if !ok {
			return base.NotFound, nil
		}
		if n, err = p.Get(br.Children[i]); err != nil {
			return base.NotFound, err
		}
	}

	d := n.Data()
	loc := d.Locations[i]

	br, ok := n.(*base.Branch)
	if !ok {
		d.RemoveAt(i)
		p.MarkModified(n)
		return loc, t.fixUnderflow(p, n)
	}

	// Replace the entry with its in-order predecessor, taken from the
	// rightmost leaf of the left subtree.
	leaf, err := p.Get(br.Children[i])
	if err != nil {
		return base.NotFound, err
	}
	for {
		b, ok := leaf.(*base.Branch)
		if !ok {
			break
		}
		if leaf, err = p.Get(b.Children[len(b.Children)-1]); err != nil {
			return base.NotFound, err
		}
	}
	ld := leaf.Data()
	d.Keys[i], d.Locations[i] = ld.RemoveAt(ld.NumKeys() - 1)
	p.MarkModified(n)
	p.MarkModified(leaf)

	return loc, t.fixUnderflow(p, leaf)
}

// fixUnderflow restores the lower bound on n and, through merges, on its
// ancestors. At each level a sibling with spare keys is preferred over a
// merge. An emptied root is discarded.
func (t *Tree) fixUnderflow(p Pages, n base.Node) error {
	for {
		d := n.Data()
		if d.Parent == base.NoNode {
			return t.shrinkRoot(p, n)
		}
		if d.NumKeys() >= t.minKeys() {
			return nil
		}

		ok, err := t.compensate(p, n, func(sibling base.Node) bool {
			return sibling.Data().NumKeys() > t.minKeys()
		})
		if err != nil || ok {
			return err
		}
		if n, err = t.merge(p, n); err != nil {
			return err
		}
	}
}

// shrinkRoot drops a root left without keys: its only child becomes the new
// root, or the tree becomes empty.
func (t *Tree) shrinkRoot(p Pages, root base.Node) error {
	d := root.Data()
	if d.NumKeys() > 0 {
		return nil
	}

	br, ok := root.(*base.Branch)
	if !ok {
		p.MarkDeleted(d.ID)
		t.Root = base.NoNode
		return nil
	}

	child, err := p.Get(br.Children[0])
	if err != nil {
		return err
	}
	child.Data().Parent = base.NoNode
	p.MarkModified(child)
	p.MarkDeleted(d.ID)
	t.Root = child.Data().ID
	return nil
}

// merge folds an adjacent sibling of n, together with the separator between
// them, into n and deletes the sibling. The left sibling is preferred. It
// returns the parent, which lost one entry.
func (t *Tree) merge(p Pages, n base.Node) (base.Node, error) {
	parent, idx, err := t.position(p, n)
	if err != nil {
		return nil, err
	}

	var sep, siblingIdx int
	switch {
	case idx > 0:
		sep, siblingIdx = idx-1, idx-1
	case idx < len(parent.Children)-1:
		sep, siblingIdx = idx, idx+1
	default:
		panic(fmt.Sprintf("BUG: merge of node %d without siblings", n.Data().ID))
	}

	sibling, err := p.Get(parent.Children[siblingIdx])
	if err != nil {
		return nil, err
	}
	if sibling.IsLeaf() != n.IsLeaf() {
		return nil, fmt.Errorf("%w: siblings %d and %d differ in kind", base.ErrCorruptPage, n.Data().ID, sibling.Data().ID)
	}

	left, right := sibling, n
	if siblingIdx > idx {
		left, right = n, sibling
	}
	ld, rd, d := left.Data(), right.Data(), n.Data()

	keys := slices.Concat(ld.Keys, []base.Key{parent.Keys[sep]}, rd.Keys)
	locs := slices.Concat(ld.Locations, []base.Location{parent.Locations[sep]}, rd.Locations)
	d.Keys, d.Locations = keys, locs

	if b, ok := n.(*base.Branch); ok {
		lb, rb := left.(*base.Branch), right.(*base.Branch)
		b.Children = slices.Concat(lb.Children, rb.Children)
		moved := sibling.(*base.Branch).Children
		if err := t.adopt(p, d.ID, moved); err != nil {
			return nil, err
		}
	}

	parent.RemoveAt(sep)
	parent.Children = slices.Delete(parent.Children, siblingIdx, siblingIdx+1)

	p.MarkDeleted(sibling.Data().ID)
	p.MarkModified(n)
	p.MarkModified(parent)
	return parent, nil
}

// compensate tries the left and then the right sibling of n. The first one
// accepted by eligible has its entries pooled with those of n and the
// separator between them, and the pool is split evenly again. It reports
// whether a sibling was used.
func (t *Tree) compensate(p Pages, n base.Node, eligible func(base.Node) bool) (bool, error) {
	if n.Data().Parent == base.NoNode {
		return false, nil
	}
	parent, idx, err := t.position(p, n)
	if err != nil {
		return false, err
	}

	if idx > 0 {
		left, err := p.Get(parent.Children[idx-1])
		if err != nil {
			return false, err
		}
		if eligible(left) {
			return true, t.redistribute(p, parent, idx-1, left, n)
		}
	}
	if idx < len(parent.Children)-1 {
		right, err := p.Get(parent.Children[idx+1])
		if err != nil {
			return false, err
		}
		if eligible(right) {
			return true, t.redistribute(p, parent, idx, n, right)
		}
	}
	return false, nil
}

// redistribute evens out left and right, the children of parent on both
// sides of separator sep.
func (t *Tree) redistribute(p Pages, parent *base.Branch, sep int, left, right base.Node) error {
	if left.IsLeaf() != right.IsLeaf() {
		return fmt.Errorf("%w: siblings %d and %d differ in kind", base.ErrCorruptPage, left.Data().ID, right.Data().ID)
	}
	ld, rd := left.Data(), right.Data()

	keys := slices.Concat(ld.Keys, []base.Key{parent.Keys[sep]}, rd.Keys)
	locs := slices.Concat(ld.Locations, []base.Location{parent.Locations[sep]}, rd.Locations)
	mid := len(keys) / 2

	ld.Keys, ld.Locations = slices.Clone(keys[:mid]), slices.Clone(locs[:mid])
	rd.Keys, rd.Locations = slices.Clone(keys[mid+1:]), slices.Clone(locs[mid+1:])
	parent.Keys[sep], parent.Locations[sep] = keys[mid], locs[mid]

	if lb, ok := left.(*base.Branch); ok {
		rb := right.(*base.Branch)
		before := lb.Children
		children := slices.Concat(lb.Children, rb.Children)
		lb.Children = slices.Clone(children[:mid+1])
		rb.Children = slices.Clone(children[mid+1:])

		// Only children that crossed the boundary change parent.
		var toLeft, toRight []base.NodeID
		for _, c := range lb.Children {
			if !slices.Contains(before, c) {
				toLeft = append(toLeft, c)
			}
		}
		for _, c := range rb.Children {
			if slices.Contains(before, c) {
				toRight = append(toRight, c)
			}
		}
		if err := t.adopt(p, lb.ID, toLeft); err != nil {
			return err
		}
		if err := t.adopt(p, rb.ID, toRight); err != nil {
			return err
		}
	}

	p.MarkModified(left)
	p.MarkModified(right)
	p.MarkModified(parent)
	return nil
}

// adopt points each of children at parent.
func (t *Tree) adopt(p Pages, parent base.NodeID, children []base.NodeID) error {
	for _, id := range children {
		child, err := p.Get(id)
		if err != nil {
			return err
		}
		child.Data().Parent = parent
		p.MarkModified(child)
	}
	return nil
}
