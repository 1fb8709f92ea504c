package filter

import "github.com/AdianComits/netopeer2/pkg/tree"

const wildcard = "*"

func nameMatches(pattern, name string) bool {
	return pattern == wildcard || pattern == name
}

// isContentMatch reports whether a filter node compares a leaf value.
func isContentMatch(f *tree.Node) bool {
	return f.IsLeaf() && f.Value != nil
}

// applySubtree evaluates subtree filter node f against data node d and
// returns the selected part of d.
//
// Content-match children must all be satisfied by a leaf child of d. If f
// has only content-match children, d is selected whole. Otherwise each
// selection or containment child is applied to every child of d with a
// matching name, and at least one of them must select something.
func applySubtree(f, d *tree.Node) (*tree.Node, bool) {
	if !nameMatches(f.Name, d.Name) {
		return nil, false
	}
	if f.IsLeaf() {
		if f.Value != nil && (!d.IsLeaf() || tree.ValueString(f.Value) != tree.ValueString(d.Value)) {
			return nil, false
		}
		return d.Clone(), true
	}

	var content, rest []*tree.Node
	for _, fc := range f.Children {
		if isContentMatch(fc) {
			content = append(content, fc)
		} else {
			rest = append(rest, fc)
		}
	}

	for _, fc := range content {
		if !hasMatchingLeaf(d, fc) {
			return nil, false
		}
	}
	if len(rest) == 0 {
		return d.Clone(), true
	}

	out := &tree.Node{Name: d.Name}
	selected := false
	for _, dc := range d.Children {
		if contentSelects(content, dc) {
			out.Children = append(out.Children, dc.Clone())
			continue
		}
		for _, fc := range rest {
			if sub, ok := applySubtree(fc, dc); ok {
				out.Children = append(out.Children, sub)
				selected = true
				break
			}
		}
	}
	if !selected {
		return nil, false
	}
	return out, true
}

func hasMatchingLeaf(d, f *tree.Node) bool {
	want := tree.ValueString(f.Value)
	for _, dc := range d.Children {
		if dc.IsLeaf() && nameMatches(f.Name, dc.Name) && tree.ValueString(dc.Value) == want {
			return true
		}
	}
	return false
}

func contentSelects(content []*tree.Node, dc *tree.Node) bool {
	if !dc.IsLeaf() {
		return false
	}
	for _, fc := range content {
		if nameMatches(fc.Name, dc.Name) && tree.ValueString(fc.Value) == tree.ValueString(dc.Value) {
			return true
		}
	}
	return false
}
