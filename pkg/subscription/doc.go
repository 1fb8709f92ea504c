// Package subscription implements the subscription lifecycle core: the
// Record describing one subscription, the Registry indexing records by id
// and by datastore handle, and the Manager driving establish, modify and
// terminate.
//
// # Disciplines
//
// What a subscription delivers is decided by its Discipline, selected by Tag
// at establish time. A discipline creates the datastore handles that feed a
// record, turns datastore events into notifications, and reports its own
// part of the operational state. The Manager calls discipline hooks with
// the registry lock held, except Deliver and Destroy.
//
// # Locking
//
// One mutex guards the registry and every record's mutable lifecycle
// fields (stop time, handles, discipline data). Delivery looks a record up
// under the lock, takes a reference, and evaluates filters and access
// checks without it. Terminate first detaches a record's handles, then
// waits (bounded by Config.DrainTimeout) for references to drain before
// calling the discipline's Destroy hook.
//
// # State machine
//
//	PENDING -> ACTIVE -> (modified)* -> TERMINATED
//
// A record is PENDING only while its establish hook runs. Establish either
// ends with an ACTIVE record or leaves nothing behind.
//
// # Lifecycle notifications
//
// A successful modify sends subscription-modified. Termination sends
// subscription-completed when the stop time elapsed, nothing when the
// subscriber deleted it or its session closed, and subscription-terminated
// otherwise.
package subscription
