// Package log captures agent events for offline analysis.
//
// It is separate from operational logging (slog): the capture log is a
// machine-readable trace of control-session traffic, subscription
// lifecycle transitions and event-stream records.
//
// # Basic Usage
//
//	// Development: capture to the console via slog
//	cfg.CaptureLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: append to a binary file
//	cfg.CaptureLogger, _ = log.NewFileLogger("/var/log/subnotif/agent.mlog")
//
//	// Both
//	cfg.CaptureLogger = log.NewMultiLogger(slogAdapter, fileLogger)
//
// # Event Types
//
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded requests, responses and notifications (MessageEvent)
//   - Subscription: session, subscription and filter state (StateChangeEvent)
//   - Datastore: records appended to event streams (StreamRecord)
//
// # File Format
//
// Files are a concatenation of CBOR-encoded events with the .mlog
// extension. The subnotif-log tool views and filters them, and the
// in-memory datastore can reload stream records from them to seed replay
// history.
package log
