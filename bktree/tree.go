package bktree

import (
	"sort"
)

// Entry is the projection of a sequence record kept inside tree nodes.
type Entry struct {
	Name     string
	Sequence string
}

// Match pairs an indexed entry with its edit distance to a query.
type Match struct {
	Entry    Entry
	Distance int
	ordinal  int
}

type node struct {
	entry    Entry
	parent   int
	distance int
	children map[int]int
}

// Tree is a BK-tree over Entry.Sequence keyed by edit distance.
//
// Every non-root node hangs off its parent under the bucket
// Distance(parent.Sequence, child.Sequence). Nodes are kept in insertion
// order, the slice position doubles as the entry ordinal.
//
// Add is not safe for concurrent use. Trees are built privately and
// published once complete; Find never mutates the tree.
type Tree struct {
	nodes    []node
	distance DistanceFunc
}

// Len returns the number of indexed entries.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Add inserts entry by descending through distance buckets.
func (t *Tree) Add(entry Entry) {
	if t.distance == nil {
		t.distance = Distance
	}
	if len(t.nodes) == 0 {
		t.nodes = append(t.nodes, node{entry: entry, parent: -1})
		return
	}
	current := 0
	for {
		d := t.distance(t.nodes[current].entry.Sequence, entry.Sequence)
		child, ok := t.nodes[current].children[d]
		if !ok {
			if t.nodes[current].children == nil {
				t.nodes[current].children = make(map[int]int, 4)
			}
			t.nodes[current].children[d] = len(t.nodes)
			t.nodes = append(t.nodes, node{entry: entry, parent: current, distance: d})
			return
		}
		current = child
	}
}

// Find returns every entry within maxDistance of query, ordered by
// ascending distance and then by insertion order.
func (t *Tree) Find(query string, maxDistance int) []Match {
	if t.Len() == 0 || maxDistance < 0 {
		return nil
	}
	var matches []Match
	stack := []int{0}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[current]
		d := t.distance(n.entry.Sequence, query)
		if d <= maxDistance {
			matches = append(matches, Match{Entry: n.entry, Distance: d, ordinal: current})
		}
		// triangle inequality: only buckets in [d-max, d+max] can hold matches;
		// written as differences so a huge maxDistance cannot overflow
		for bucket, child := range n.children {
			if bucket >= d-maxDistance && bucket-d <= maxDistance {
				stack = append(stack, child)
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ordinal < matches[j].ordinal
	})
	return matches
}

// Each calls fn for every entry in insertion order until fn returns false.
func (t *Tree) Each(fn func(entry Entry) bool) {
	if t == nil {
		return
	}
	for i := range t.nodes {
		if !fn(t.nodes[i].entry) {
			return
		}
	}
}

// New creates an empty tree using Levenshtein distance.
func New() *Tree {
	return &Tree{distance: Distance}
}

// NewWithDistance creates an empty tree with a custom metric. The function
// must satisfy the triangle inequality for Find to be exact.
func NewWithDistance(fn DistanceFunc) *Tree {
	if fn == nil {
		fn = Distance
	}
	return &Tree{distance: fn}
}
