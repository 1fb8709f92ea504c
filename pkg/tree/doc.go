// Package tree provides the structured-data tree used for event payloads,
// datastore snapshots, lifecycle notification bodies and operational state.
//
// A tree is made of named nodes. Interior nodes carry children; leaves carry
// a value. Paths are slash-separated node names relative to a root, for
// example "interfaces/interface/name".
//
// # Encoding
//
// Nodes encode to CBOR with integer keys like every other message of the
// agent:
//
//	{
//	  1: name,      // text
//	  2: value,     // any (leaves only)
//	  3: children   // array of nodes
//	}
//
// Values are compared by their textual form (see ValueString) because CBOR
// decoding widens integers and a filter written in configuration is text.
package tree
