package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

// pathExpr is a union of location paths.
type pathExpr struct {
	paths [][]step
}

type step struct {
	descendant bool // reached through "//"
	name       string
	preds      []predicate
}

// predicate is either positional (pos > 0) or a disjunction of
// conjunctions of comparisons.
type predicate struct {
	pos int
	or  [][]comparison
}

type comparison struct {
	rel   []string // empty means the context node itself
	op    string   // "", "=", "!="
	value string
}

// parsePath parses the expression grammar:
//
//	expr  := path ('|' path)*
//	path  := ('/' | '//') step (('/' | '//') step)*
//	step  := (name | '*') ('[' pred ']')*
//	pred  := number | cmp (('and' | 'or') cmp)*
//	cmp   := ('.' | name ('/' name)*) (('=' | '!=') literal)?
func parsePath(input string) (*pathExpr, error) {
	p := &pathParser{in: strings.TrimSpace(input)}
	if p.in == "" {
		return nil, fmt.Errorf("%w: empty path expression", ErrInvalidFilter)
	}
	expr := &pathExpr{}
	for {
		path, err := p.path()
		if err != nil {
			return nil, err
		}
		expr.paths = append(expr.paths, path)
		p.skipSpace()
		if p.eof() {
			return expr, nil
		}
		if !p.consume("|") {
			return nil, p.errorf("unexpected %q", p.rest())
		}
	}
}

type pathParser struct {
	in  string
	pos int
}

func (p *pathParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrInvalidFilter, fmt.Sprintf(format, args...), p.pos, p.in)
}

func (p *pathParser) eof() bool    { return p.pos >= len(p.in) }
func (p *pathParser) rest() string { return p.in[p.pos:] }
func (p *pathParser) peek(s string) bool {
	return strings.HasPrefix(p.in[p.pos:], s)
}

func (p *pathParser) consume(s string) bool {
	if p.peek(s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *pathParser) skipSpace() {
	for !p.eof() && (p.in[p.pos] == ' ' || p.in[p.pos] == '\t') {
		p.pos++
	}
}

func isNameByte(c byte) bool {
	return c == '-' || c == '_' || c == '.' || c == ':' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *pathParser) name() string {
	start := p.pos
	for !p.eof() && isNameByte(p.in[p.pos]) {
		p.pos++
	}
	return p.in[start:p.pos]
}

func (p *pathParser) path() ([]step, error) {
	p.skipSpace()
	if !p.peek("/") {
		return nil, p.errorf("path must be absolute")
	}
	var steps []step
	for {
		var st step
		switch {
		case p.consume("//"):
			st.descendant = true
		case p.consume("/"):
		default:
			return steps, nil
		}

		if p.consume(wildcard) {
			st.name = wildcard
		} else {
			st.name = p.name()
			switch st.name {
			case "":
				return nil, p.errorf("missing node name")
			case ".", "..":
				return nil, p.errorf("step %q is not supported", st.name)
			}
		}

		for p.consume("[") {
			pred, err := p.predicate()
			if err != nil {
				return nil, err
			}
			if !p.consume("]") {
				return nil, p.errorf("missing ']'")
			}
			st.preds = append(st.preds, pred)
		}
		steps = append(steps, st)
	}
}

func (p *pathParser) predicate() (predicate, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() && p.in[p.pos] >= '0' && p.in[p.pos] <= '9' {
		p.pos++
	}
	if p.pos > start {
		p.skipSpace()
		if p.peek("]") {
			n, err := strconv.Atoi(p.in[start:p.pos])
			if err != nil || n < 1 {
				return predicate{}, p.errorf("position must be at least 1")
			}
			return predicate{pos: n}, nil
		}
		p.pos = start
	}

	var pred predicate
	var conj []comparison
	for {
		c, err := p.comparison()
		if err != nil {
			return predicate{}, err
		}
		conj = append(conj, c)

		p.skipSpace()
		switch {
		case p.consume("and "):
		case p.consume("or "):
			pred.or = append(pred.or, conj)
			conj = nil
		default:
			pred.or = append(pred.or, conj)
			return pred, nil
		}
	}
}

func (p *pathParser) comparison() (comparison, error) {
	p.skipSpace()
	var c comparison
	if p.consume(".") {
		if p.peek(".") {
			return c, p.errorf("'..' is not supported")
		}
	} else {
		for {
			seg := p.name()
			if seg == "" {
				return c, p.errorf("missing node name in predicate")
			}
			c.rel = append(c.rel, seg)
			if !p.consume("/") {
				break
			}
		}
	}

	p.skipSpace()
	switch {
	case p.consume("!="):
		c.op = "!="
	case p.consume("="):
		c.op = "="
	default:
		return c, nil
	}

	p.skipSpace()
	lit, err := p.literal()
	if err != nil {
		return c, err
	}
	c.value = lit
	return c, nil
}

func (p *pathParser) literal() (string, error) {
	if p.eof() {
		return "", p.errorf("missing literal")
	}
	if q := p.in[p.pos]; q == '\'' || q == '"' {
		end := strings.IndexByte(p.in[p.pos+1:], q)
		if end < 0 {
			return "", p.errorf("unterminated string")
		}
		lit := p.in[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return lit, nil
	}
	start := p.pos
	for !p.eof() && (p.in[p.pos] == '-' || p.in[p.pos] == '.' || (p.in[p.pos] >= '0' && p.in[p.pos] <= '9')) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("literal must be quoted or numeric")
	}
	return p.in[start:p.pos], nil
}

// chain is the ancestry of a selected node, from the payload root to the
// node itself.
type chain []*tree.Node

func (c chain) last() *tree.Node {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// eval returns every node selected by the expression, each with its
// ancestry, without duplicates and in evaluation order.
func (e *pathExpr) eval(root *tree.Node) []chain {
	var out []chain
	seen := make(map[*tree.Node]bool)
	for _, path := range e.paths {
		ctx := []chain{nil}
		for _, st := range path {
			var next []chain
			for _, c := range ctx {
				next = append(next, st.apply(root, c)...)
			}
			ctx = next
			if len(ctx) == 0 {
				break
			}
		}
		for _, c := range ctx {
			if n := c.last(); n != nil && !seen[n] {
				seen[n] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// apply evaluates one step from context c. A nil context is the document,
// whose only child is the payload root.
func (st step) apply(root *tree.Node, c chain) []chain {
	var candidates []chain
	children := func(c chain) []*tree.Node {
		if n := c.last(); n != nil {
			return n.Children
		}
		return []*tree.Node{root}
	}

	if st.descendant {
		var walk func(c chain)
		walk = func(c chain) {
			for _, ch := range children(c) {
				cc := extend(c, ch)
				if nameMatches(st.name, ch.Name) {
					candidates = append(candidates, cc)
				}
				walk(cc)
			}
		}
		walk(c)
	} else {
		for _, ch := range children(c) {
			if nameMatches(st.name, ch.Name) {
				candidates = append(candidates, extend(c, ch))
			}
		}
	}

	for _, pred := range st.preds {
		if pred.pos > 0 {
			if pred.pos > len(candidates) {
				return nil
			}
			candidates = candidates[pred.pos-1 : pred.pos]
			continue
		}
		kept := candidates[:0:0]
		for _, cc := range candidates {
			if pred.holds(cc.last()) {
				kept = append(kept, cc)
			}
		}
		candidates = kept
	}
	return candidates
}

func extend(c chain, n *tree.Node) chain {
	out := make(chain, len(c)+1)
	copy(out, c)
	out[len(c)] = n
	return out
}

func (p predicate) holds(n *tree.Node) bool {
	for _, conj := range p.or {
		all := true
		for _, c := range conj {
			if !c.holds(n) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func (c comparison) holds(n *tree.Node) bool {
	nodes := []*tree.Node{n}
	for _, seg := range c.rel {
		var next []*tree.Node
		for _, x := range nodes {
			for _, ch := range x.Children {
				if nameMatches(seg, ch.Name) {
					next = append(next, ch)
				}
			}
		}
		nodes = next
	}
	if c.op == "" {
		return len(nodes) > 0
	}
	for _, x := range nodes {
		if !x.IsLeaf() {
			continue
		}
		equal := tree.ValueString(x.Value) == c.value
		if equal == (c.op == "=") {
			return true
		}
	}
	return false
}

// pruneSelected copies the selected nodes of data together with their
// ancestors. Nodes are kept by identity, so list entries sharing a name
// stay distinct.
func pruneSelected(data *tree.Node, selected []chain) (*tree.Node, bool) {
	if len(selected) == 0 {
		return nil, false
	}
	whole := make(map[*tree.Node]bool, len(selected))
	ancestor := make(map[*tree.Node]bool)
	for _, c := range selected {
		whole[c.last()] = true
		for _, a := range c[:len(c)-1] {
			ancestor[a] = true
		}
	}

	var prune func(n *tree.Node) *tree.Node
	prune = func(n *tree.Node) *tree.Node {
		switch {
		case whole[n]:
			return n.Clone()
		case ancestor[n]:
			out := &tree.Node{Name: n.Name}
			for _, ch := range n.Children {
				if p := prune(ch); p != nil {
					out.Children = append(out.Children, p)
				}
			}
			return out
		default:
			return nil
		}
	}
	return prune(data), true
}
