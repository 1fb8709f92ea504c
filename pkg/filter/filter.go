package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

// Filter errors.
var (
	ErrInvalidFilter  = errors.New("invalid filter")
	ErrFilterNotFound = errors.New("filter not found")
	ErrFilterExists   = errors.New("filter already exists")
)

// Kind identifies the shape of a filter.
type Kind uint8

const (
	KindSubtree Kind = 1
	KindPath    Kind = 2
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSubtree:
		return "subtree"
	case KindPath:
		return "xpath"
	default:
		return "unknown"
	}
}

// Filter is a parsed, immutable filter expression.
type Filter struct {
	Kind    Kind
	Subtree *tree.Node
	Path    string

	expr *pathExpr
}

// NewSubtree creates a subtree filter. The tree is cloned.
func NewSubtree(root *tree.Node) (*Filter, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: empty subtree", ErrInvalidFilter)
	}
	var bad string
	root.Walk(func(path string, n *tree.Node) bool {
		if strings.TrimSpace(n.Name) == "" {
			bad = path
			return false
		}
		return true
	})
	if bad != "" || strings.TrimSpace(root.Name) == "" {
		return nil, fmt.Errorf("%w: unnamed node in subtree at %q", ErrInvalidFilter, bad)
	}
	return &Filter{Kind: KindSubtree, Subtree: root.Clone()}, nil
}

// NewPath parses a path-expression filter.
func NewPath(expr string) (*Filter, error) {
	e, err := parsePath(expr)
	if err != nil {
		return nil, err
	}
	return &Filter{Kind: KindPath, Path: strings.TrimSpace(expr), expr: e}, nil
}

// String renders the filter for operational state and logs.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	if f.Kind == KindPath {
		return f.Path
	}
	var b strings.Builder
	writeCompact(&b, f.Subtree)
	return b.String()
}

func writeCompact(b *strings.Builder, n *tree.Node) {
	b.WriteString(n.Name)
	if n.IsLeaf() {
		if n.Value != nil {
			fmt.Fprintf(b, "=%q", tree.ValueString(n.Value))
		}
		return
	}
	b.WriteByte('{')
	for i, c := range n.Children {
		if i > 0 {
			b.WriteByte(' ')
		}
		writeCompact(b, c)
	}
	b.WriteByte('}')
}

// Match reports whether payload passes f. A nil filter matches everything;
// a nil payload matches nothing.
func Match(f *Filter, payload *tree.Node) bool {
	if f == nil {
		return true
	}
	if payload == nil {
		return false
	}
	switch f.Kind {
	case KindSubtree:
		_, ok := applySubtree(f.Subtree, payload)
		return ok
	case KindPath:
		return len(f.expr.eval(payload)) > 0
	default:
		return false
	}
}

// Apply returns the part of data selected by f. The result shares no nodes
// with data. A nil filter selects a full copy. ok is false when nothing
// was selected.
func Apply(f *Filter, data *tree.Node) (*tree.Node, bool) {
	if data == nil {
		return nil, false
	}
	if f == nil {
		return data.Clone(), true
	}
	switch f.Kind {
	case KindSubtree:
		return applySubtree(f.Subtree, data)
	case KindPath:
		return pruneSelected(data, f.expr.eval(data))
	default:
		return nil, false
	}
}

// Ref names a filter the way a subscription request does: by name in the
// Store, or inline as a subtree or a path expression. At most one field may
// be set; the zero Ref means no filter.
type Ref struct {
	Name    string
	Subtree *tree.Node
	Path    string
}

// IsZero reports whether the ref selects no filter.
func (r Ref) IsZero() bool {
	return r.Name == "" && r.Subtree == nil && r.Path == ""
}

// Identity renders the ref for operational state: the filter name, or the
// inline expression.
func (r Ref) Identity() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Path != "":
		return r.Path
	case r.Subtree != nil:
		f := Filter{Kind: KindSubtree, Subtree: r.Subtree}
		return f.String()
	default:
		return ""
	}
}

func (r Ref) validate() error {
	n := 0
	if r.Name != "" {
		n++
	}
	if r.Subtree != nil {
		n++
	}
	if r.Path != "" {
		n++
	}
	if n > 1 {
		return fmt.Errorf("%w: filter name, subtree and path are mutually exclusive", ErrInvalidFilter)
	}
	return nil
}

// Parse builds a filter from an inline ref. Named refs need a Store.
func Parse(r Ref) (*Filter, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	switch {
	case r.Name != "":
		return nil, fmt.Errorf("%w: named filter %q needs a store", ErrInvalidFilter, r.Name)
	case r.Subtree != nil:
		return NewSubtree(r.Subtree)
	case r.Path != "":
		return NewPath(r.Path)
	default:
		return nil, nil
	}
}
