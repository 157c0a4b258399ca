package base

import "fmt"

// NodeData is the part of a tree node shared by leaves and branches.
// Keys is strictly increasing and Locations runs parallel to it.
type NodeData struct {
	ID        NodeID
	Parent    NodeID
	Keys      []Key
	Locations []Location
}

// Node is a tree node: either a *Leaf or a *Branch. The role is fixed when
// the node is created and recorded by its concrete type, so a leaf cannot
// carry children.
type Node interface {
	Data() *NodeData
	IsLeaf() bool
}

// Leaf is a node without children.
type Leaf struct {
	NodeData
}

// Branch is an internal node. Children always holds len(Keys)+1 ids once the
// node is at rest.
type Branch struct {
	NodeData
	Children []NodeID
}

func NewLeaf(id, parent NodeID) *Leaf {
	return &Leaf{NodeData: NodeData{ID: id, Parent: parent}}
}

func NewBranch(id, parent NodeID) *Branch {
	return &Branch{NodeData: NodeData{ID: id, Parent: parent}}
}

func (d *NodeData) Data() *NodeData { return d }

func (l *Leaf) IsLeaf() bool { return true }

func (b *Branch) IsLeaf() bool { return false }

// NumKeys returns the number of keys held.
func (d *NodeData) NumKeys() int {
	return len(d.Keys)
}

// Search returns the position of the first key >= key and whether it is an
// exact match. Nodes hold O(t) keys so a linear scan is enough.
func (d *NodeData) Search(key Key) (int, bool) {
	i := 0
	for i < len(d.Keys) && d.Keys[i] < key {
		i++
	}
	return i, i < len(d.Keys) && d.Keys[i] == key
}

// InsertAt places key and loc at position i.
func (d *NodeData) InsertAt(i int, key Key, loc Location) {
	d.Keys = append(d.Keys, 0)
	copy(d.Keys[i+1:], d.Keys[i:])
	d.Keys[i] = key

	d.Locations = append(d.Locations, 0)
	copy(d.Locations[i+1:], d.Locations[i:])
	d.Locations[i] = loc
}

// RemoveAt removes and returns the entry at position i.
func (d *NodeData) RemoveAt(i int) (Key, Location) {
	key, loc := d.Keys[i], d.Locations[i]
	d.Keys = append(d.Keys[:i], d.Keys[i+1:]...)
	d.Locations = append(d.Locations[:i], d.Locations[i+1:]...)
	return key, loc
}

// ChildIndex returns the position of id in b.Children, or -1.
func (b *Branch) ChildIndex(id NodeID) int {
	for i, c := range b.Children {
		if c == id {
			return i
		}
	}
	return -1
}

// EncodedSize returns the number of bytes n occupies on a page.
func EncodedSize(n Node) int {
	d := n.Data()
	size := NodeHeaderSize + 2*IntSize*len(d.Keys)
	if br, ok := n.(*Branch); ok {
		size += IntSize * len(br.Children)
	}
	return size
}

// EncodeNode writes n into b, replacing its previous contents.
//
// Layout: [node_id][parent_id][keys_count][children_count]
// followed by keys_count keys, keys_count locations and children_count
// child ids, all big-endian int32.
func EncodeNode(n Node, b *Block) error {
	d := n.Data()
	if len(d.Locations) != len(d.Keys) {
		return fmt.Errorf("%w: node %d has %d keys and %d locations",
			ErrCorruptPage, d.ID, len(d.Keys), len(d.Locations))
	}
	if EncodedSize(n) > PageSize {
		return ErrPageOverflow
	}

	var children []NodeID
	if br, ok := n.(*Branch); ok {
		if len(br.Children) != len(d.Keys)+1 {
			return fmt.Errorf("%w: branch %d has %d keys and %d children",
				ErrCorruptPage, d.ID, len(d.Keys), len(br.Children))
		}
		children = br.Children
	}

	b.Size = 0
	header := [4]int32{int32(d.ID), int32(d.Parent), int32(len(d.Keys)), int32(len(children))}
	for _, v := range header {
		if err := b.appendInt(v); err != nil {
			return err
		}
	}
	for _, k := range d.Keys {
		if err := b.appendInt(int32(k)); err != nil {
			return err
		}
	}
	for _, l := range d.Locations {
		if err := b.appendInt(int32(l)); err != nil {
			return err
		}
	}
	for _, c := range children {
		if err := b.appendInt(int32(c)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeNode parses a node page. It never reads past b.Size: any header that
// declares more entries than the block holds is rejected with ErrCorruptPage.
func DecodeNode(b *Block) (Node, error) {
	if b.Size < NodeHeaderSize {
		return nil, fmt.Errorf("%w: %d byte header", ErrCorruptPage, b.Size)
	}

	var header [4]int32
	for i := range header {
		header[i], _ = b.Int(i * IntSize)
	}
	id, parent, numKeys, numChildren := header[0], header[1], int(header[2]), int(header[3])

	if id < 0 || parent < int32(NoNode) {
		return nil, fmt.Errorf("%w: invalid ids %d/%d", ErrCorruptPage, id, parent)
	}
	if numKeys < 0 || numChildren < 0 {
		return nil, fmt.Errorf("%w: negative counts", ErrCorruptPage)
	}
	if numChildren != 0 && numChildren != numKeys+1 {
		return nil, fmt.Errorf("%w: %d keys with %d children", ErrCorruptPage, numKeys, numChildren)
	}
	want := NodeHeaderSize + IntSize*(2*numKeys+numChildren)
	if want > b.Size {
		return nil, fmt.Errorf("%w: header declares %d bytes, block has %d", ErrCorruptPage, want, b.Size)
	}

	d := NodeData{
		ID:        NodeID(id),
		Parent:    NodeID(parent),
		Keys:      make([]Key, numKeys),
		Locations: make([]Location, numKeys),
	}
	off := NodeHeaderSize
	for i := range d.Keys {
		v, _ := b.Int(off)
		d.Keys[i] = Key(v)
		off += IntSize
	}
	for i := range d.Locations {
		v, _ := b.Int(off)
		d.Locations[i] = Location(v)
		off += IntSize
	}
	if numChildren == 0 {
		return &Leaf{NodeData: d}, nil
	}

	children := make([]NodeID, numChildren)
	for i := range children {
		v, _ := b.Int(off)
		children[i] = NodeID(v)
		off += IntSize
	}
	return &Branch{NodeData: d, Children: children}, nil
}
