package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Tree errors.
var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("invalid path")
	ErrNotFound    = errors.New("node not found")
)

// Node is one element of a structured-data tree.
type Node struct {
	Name     string  `cbor:"1,keyasint"`
	Value    any     `cbor:"2,keyasint,omitempty"`
	Children []*Node `cbor:"3,keyasint,omitempty"`
}

// New creates an interior node with the given children.
func New(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children}
}

// Leaf creates a leaf node holding value.
func Leaf(name string, value any) *Node {
	return &Node{Name: name, Value: value}
}

// Add appends children and returns n for chaining.
func (n *Node) Add(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Child returns the first direct child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every direct child with the given name.
func (n *Node) ChildrenNamed(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Find resolves a path relative to n. An empty path or "/" returns n.
// When several siblings share a name the first one is followed.
func (n *Node) Find(path string) *Node {
	cur := n
	for _, seg := range SplitPath(path) {
		cur = cur.Child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Ensure returns the node at path, creating missing interior nodes.
func (n *Node) Ensure(path string) (*Node, error) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return n, nil
	}
	cur := n
	for _, seg := range segs {
		next := cur.Child(seg)
		if next == nil {
			next = New(seg)
			cur.Children = append(cur.Children, next)
		}
		cur = next
	}
	return cur, nil
}

// Remove deletes the node at path. It returns ErrNotFound if nothing was removed.
func (n *Node) Remove(path string) error {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return ErrEmptyPath
	}
	parent := n.Find(JoinPath(segs[:len(segs)-1]))
	if parent == nil {
		return ErrNotFound
	}
	last := segs[len(segs)-1]
	for i, c := range parent.Children {
		if c.Name == last {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Clone returns a deep copy of n. Values are copied by assignment.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Name: n.Name, Value: n.Value}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// Walk visits n and its descendants depth-first. The path passed to fn is
// relative to n and empty for n itself. Returning false skips the subtree.
func (n *Node) Walk(fn func(path string, node *Node) bool) {
	n.walk("", fn)
}

func (n *Node) walk(path string, fn func(string, *Node) bool) {
	if !fn(path, n) {
		return
	}
	for _, c := range n.Children {
		c.walk(JoinPath([]string{path, c.Name}), fn)
	}
}

// Merge copies src's children into dst, combining interior nodes that share
// a name and replacing leaves. Both nodes must have the same name.
func Merge(dst, src *Node) {
	if dst == nil || src == nil {
		return
	}
	if src.IsLeaf() && src.Value != nil {
		dst.Value = src.Value
	}
	for _, sc := range src.Children {
		dc := dst.Child(sc.Name)
		switch {
		case dc == nil:
			dst.Children = append(dst.Children, sc.Clone())
		case dc.IsLeaf() && sc.IsLeaf():
			dc.Value = sc.Value
		default:
			Merge(dc, sc)
		}
	}
}

// Wrap returns a chain of interior nodes following path with leaf at its end.
// The returned node is the first path segment. Wrap with an empty path
// returns leaf unchanged.
func Wrap(path string, leaf *Node) *Node {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return leaf
	}
	root := New(segs[0])
	cur := root
	for _, seg := range segs[1:] {
		next := New(seg)
		cur.Children = []*Node{next}
		cur = next
	}
	if leaf != nil {
		cur.Children = append(cur.Children, leaf)
	}
	return root
}

// Equal compares two trees by name, value text and children order.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || ValueString(a.Value) != ValueString(b.Value) {
		return false
	}
	if len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// ValueString renders a leaf value for comparison and display.
func ValueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// SplitPath splits a slash-separated path, ignoring leading, trailing and
// repeated separators.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPath joins segments into a path without a leading slash.
func JoinPath(segs []string) string {
	var b strings.Builder
	for _, s := range segs {
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s)
	}
	return b.String()
}

// ValidatePath checks that path is non-empty and uses plain node names.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}
	for _, seg := range SplitPath(path) {
		if strings.ContainsAny(seg, "[]*=' ") || seg == "." || seg == ".." {
			return fmt.Errorf("%w: segment %q", ErrInvalidPath, seg)
		}
	}
	return nil
}

// String renders the tree as an indented listing with sorted leaves first.
func (n *Node) String() string {
	var b strings.Builder
	n.format(&b, 0)
	return b.String()
}

func (n *Node) format(b *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	if n.IsLeaf() {
		fmt.Fprintf(b, "%s%s = %s\n", indent, n.Name, ValueString(n.Value))
		return
	}
	fmt.Fprintf(b, "%s%s\n", indent, n.Name)
	children := make([]*Node, len(n.Children))
	copy(children, n.Children)
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].IsLeaf() && !children[j].IsLeaf()
	})
	for _, c := range children {
		c.format(b, depth+1)
	}
}
