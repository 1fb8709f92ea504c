// Package access decides whether a client identity may receive a payload.
//
// The agent consults a Checker for every event and update on the delivery
// path, after filtering. A denial is never reported to the subscriber; it
// only increments the subscription's excluded count.
package access

import (
	"slices"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

// Identity is the authenticated client of a control session.
type Identity struct {
	User   string
	Groups []string

	// Privileged identities bypass access rules and may modify or kill
	// subscriptions they do not own.
	Privileged bool
}

// InGroup reports whether the identity belongs to group.
func (id Identity) InGroup(group string) bool {
	return slices.Contains(id.Groups, group)
}

// String returns the user name.
func (id Identity) String() string {
	return id.User
}

// Checker is the access decision function. Implementations must be safe
// for concurrent use and must not block.
type Checker interface {
	Permit(id Identity, payload *tree.Node) bool
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(id Identity, payload *tree.Node) bool

// Permit calls f.
func (f CheckerFunc) Permit(id Identity, payload *tree.Node) bool {
	return f(id, payload)
}

// PermitAll allows every payload.
type PermitAll struct{}

// Permit always returns true.
func (PermitAll) Permit(Identity, *tree.Node) bool { return true }

var (
	_ Checker = PermitAll{}
	_ Checker = CheckerFunc(nil)
)
