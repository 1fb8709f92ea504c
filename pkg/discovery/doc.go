// Package discovery advertises subscription agents over mDNS/DNS-SD and
// browses for them.
//
// An agent registers one instance of _subnotif._tcp on its control port.
// TXT records describe what it serves:
//
//	v   protocol version
//	id  agent id
//	st  event streams, comma separated
//	rp  streams keeping replay history, comma separated
//	ds  datastores, comma separated
//
// Browsing aggregates entries by instance name: addresses seen on several
// interfaces are merged into one AgentService.
package discovery
