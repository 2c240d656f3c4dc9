package store

import (
	"errors"
	"time"
)

// NodeType is derived, never stored: a node with no children is a
// LEAF, one with any children is INTERNAL (spec.md §3 invariant #2).
type NodeType int

const (
	Leaf NodeType = iota
	Internal
)

// ErrNotFound is returned by read-only path resolution; it is never
// allowed to escape a transactional boundary (spec.md §9 "Exception-
// for-control-flow") — callers turn it into an empty subtree or a
// precondition "not found" instead of propagating it.
var ErrNotFound = errors.New("store: path not found")

// Node is one vertex of the Agency tree. parent is a non-owning
// back-reference; children is the owning map. Go's tracing GC collects
// the parent/child cycle without help, so there is no need for the
// arena-of-indices trick the source's design notes mention as an
// alternative to manual reference counting.
type Node struct {
	name     string
	parent   *Node
	children map[string]*Node
	value    Value
	ttl      *time.Time
	observers map[string]struct{}

	store *Store // back-reference to the owning Store, set at creation
}

func newRoot(s *Store) *Node {
	return &Node{name: "", store: s}
}

func newChild(name string, parent *Node) *Node {
	return &Node{name: name, parent: parent, store: parent.store}
}

func (n *Node) Name() string { return n.name }

func (n *Node) Type() NodeType {
	if len(n.children) == 0 {
		return Leaf
	}
	return Internal
}

func (n *Node) IsRoot() bool { return n.parent == nil }

// URI walks parent links to reconstruct this node's absolute path.
func (n *Node) URI() string {
	var segs []string
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		segs = append([]string{cur.name}, segs...)
	}
	return JoinPath(segs)
}

// childOrCreate returns the named child, creating an empty INTERNAL->
// LEAF placeholder if absent. Used on mutating access paths only.
func (n *Node) childOrCreate(name string) *Node {
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	child, ok := n.children[name]
	if !ok {
		child = newChild(name, n)
		n.children[name] = child
	}
	return child
}

// resolveMutating walks segs from n, creating intermediate nodes as it
// goes (spec.md §4.1 "Segment lookup creates intermediate INTERNAL
// nodes on mutating access").
func (n *Node) resolveMutating(segs []string) *Node {
	cur := n
	for _, s := range segs {
		cur = cur.childOrCreate(s)
	}
	return cur
}

// resolveReadOnly walks segs without mutating the tree, returning
// ErrNotFound the moment a segment is missing (spec.md §4.1 "raises
// NotFound on read-only access").
func (n *Node) resolveReadOnly(segs []string) (*Node, error) {
	cur := n
	for _, s := range segs {
		child, ok := cur.children[s]
		if !ok {
			return nil, ErrNotFound
		}
		cur = child
	}
	return cur, nil
}

// removeChild detaches the named child (and, transitively, its TTL and
// its descendants' TTLs) from n. Returns false if absent.
func (n *Node) removeChild(name string) bool {
	child, ok := n.children[name]
	if !ok {
		return false
	}
	child.clearSubtreeTTLs()
	delete(n.children, name)
	return true
}

// remove detaches n from its parent. No-op (returns false) for the
// root or for a node that has already been detached.
func (n *Node) remove() bool {
	if n.parent == nil {
		return false
	}
	return n.parent.removeChild(n.name)
}

// clearSubtreeTTLs removes the TTL of n and, recursively, of every
// descendant, purging each from the root's time table. Spec.md §4.1
// requires delete to "cascade children and TTLs".
func (n *Node) clearSubtreeTTLs() {
	n.removeTimeToLive()
	for _, c := range n.children {
		c.clearSubtreeTTLs()
	}
}

func (n *Node) removeTimeToLive() {
	if n.ttl == nil {
		return
	}
	n.store.timeTable.removeExact(*n.ttl, n)
	n.ttl = nil
}

func (n *Node) addTimeToLive(at time.Time) {
	n.removeTimeToLive()
	t := at
	n.ttl = &t
	n.store.timeTable.insert(t, n)
}

func (n *Node) addObserver(uri string) bool {
	if n.observers == nil {
		n.observers = make(map[string]struct{})
	}
	if _, exists := n.observers[uri]; exists {
		return false
	}
	n.observers[uri] = struct{}{}
	return true
}

func (n *Node) removeObserver(uri string) bool {
	if _, exists := n.observers[uri]; !exists {
		return false
	}
	delete(n.observers, uri)
	return true
}

// replaceSubtree overwrites n's value and clears any children + TTLs
// it had (spec.md §3: "overwriting a leaf with a non-TTL set clears
// the TTL").
func (n *Node) replaceSubtree(v Value) {
	n.clearSubtreeTTLs()
	n.children = nil
	n.value = v
}
