// Package transport carries control sessions between clients and the agent.
//
// Every message travels in a frame: a 4-byte big-endian length followed by
// the CBOR-encoded message (see package wire).
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// Server accepts connections on a listener and hands each one, tagged with
// a UUID session id, to the configured callbacks. Securing the stream is
// left to the deployment (for example an SSH or TLS tunnel in front of the
// listener).
package transport
