// Package stream is the generic event-stream delivery discipline.
//
// A stream subscription receives the records published on one named
// stream of the datastore, optionally starting with a replay of retained
// records from a given time. Every record passes the subscription filter
// and then the access check; records rejected by either are counted as
// excluded and dropped.
//
// Replay and live delivery come from one datastore handle, so records
// arrive in time order with no gap or duplicate at the switch. A
// replay-completed notification marks the switch.
package stream
