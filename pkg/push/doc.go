// Package push is the structured-data push delivery discipline.
//
// A push subscription watches one subtree of a datastore in one of two
// modes:
//
//   - Periodic: every period, aligned to an anchor time, the subtree is
//     read, filtered and sent as a push-update whether or not it changed.
//   - On-change: datastore edits under the subtree are filtered,
//     access-checked and collected in a dampening window. The window opens
//     with the first change and closes once, after the dampening period,
//     with one push-change-update carrying the coalesced edits. Later edits
//     to the same path replace earlier ones in place.
//
// Edits and snapshots rejected by the filter or the access check count as
// excluded.
package push
