package bktree

import (
	"fmt"

	"github.com/viant/bintly"
)

const maxPrealloc = 1 << 20

// EncodeBinary writes nodes in insertion order as (name, sequence, parent, bucket).
// Parents always precede their children, so the layout can be decoded in one pass
// without recomputing distances.
func (t *Tree) EncodeBinary(stream *bintly.Writer) error {
	stream.Int(len(t.nodes))
	for i := range t.nodes {
		n := &t.nodes[i]
		stream.String(n.entry.Name)
		stream.String(n.entry.Sequence)
		stream.Int(n.parent)
		stream.Int(n.distance)
	}
	return nil
}

// DecodeBinary restores a tree written by EncodeBinary.
func (t *Tree) DecodeBinary(stream *bintly.Reader) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()
	if t.distance == nil {
		t.distance = Distance
	}
	var size int
	stream.Int(&size)
	if size < 0 {
		return fmt.Errorf("%w: negative node count %d", ErrCorrupt, size)
	}
	capacity := size
	if capacity > maxPrealloc {
		capacity = maxPrealloc
	}
	nodes := make([]node, 0, capacity)
	for i := 0; i < size; i++ {
		var n node
		stream.String(&n.entry.Name)
		stream.String(&n.entry.Sequence)
		stream.Int(&n.parent)
		stream.Int(&n.distance)
		switch {
		case i == 0 && n.parent != -1:
			return fmt.Errorf("%w: root has parent %d", ErrCorrupt, n.parent)
		case i > 0 && (n.parent < 0 || n.parent >= i):
			return fmt.Errorf("%w: node %d has parent %d", ErrCorrupt, i, n.parent)
		}
		if i > 0 {
			parent := &nodes[n.parent]
			if parent.children == nil {
				parent.children = make(map[int]int, 4)
			}
			if _, dup := parent.children[n.distance]; dup {
				return fmt.Errorf("%w: node %d reuses bucket %d", ErrCorrupt, i, n.distance)
			}
			parent.children[n.distance] = i
		}
		nodes = append(nodes, n)
	}
	t.nodes = nodes
	return nil
}
