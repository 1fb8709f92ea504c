// Package filter holds named event filters and evaluates them against
// structured payloads.
//
// Two filter shapes are supported. A subtree filter is a tree whose shape
// must be contained in the payload: interior nodes select by name ("*"
// matches any name), leaves with a value must match the payload's leaf
// value, and leaves without a value select the whole payload subtree. A
// path filter is an expression in a small XPath subset:
//
//	/interfaces/interface[name='eth0']/mtu
//	//alarm[severity='major' or severity='critical']
//	/system/*[2] | /state
//
// A payload matches a path filter when the expression selects at least one
// node. Both kinds are evaluated by pure functions; a resolved *Filter is
// immutable and safe to share between goroutines.
//
// The Store keeps filters by name and fans configuration changes out to
// watchers. Subscriptions resolve a name once and keep the result: changing
// or deleting a named filter does not alter subscriptions already using it.
package filter
