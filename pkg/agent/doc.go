// Package agent connects control sessions to the subscription core.
//
// Each accepted connection is a Session. A session must identify itself
// with a hello request before any other operation; the identity it
// presents owns every subscription it establishes. Requests are handled one
// at a time per session and answered in order.
//
// Notifications of a subscription are written to the session that
// established it, never before the establish reply. When a session closes,
// its subscriptions are terminated without a notification.
package agent
