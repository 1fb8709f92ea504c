// Package wire defines the CBOR wire format of the agent's control sessions.
//
// Every message is a CBOR map with integer keys and travels in a
// length-prefixed frame (see package transport).
//
// # Message Types
//
// There are three message types:
//   - Request: client to agent (Hello, Establish, Modify, Delete, Kill,
//     GetState, ConfigureFilter)
//   - Response: agent to client (success or error status)
//   - Notification: agent to client (event records, push updates and
//     subscription lifecycle notifications)
//
// A notification is recognized by messageId 0, which requests never use.
//
// # Payloads
//
// Request and response payloads are carried as raw CBOR and decoded into the
// operation-specific payload type with DecodePayload. Durations are encoded
// as milliseconds; times as RFC 3339 strings with nanosecond precision so the
// event order survives the round trip.
package wire
