// Package deadletter implements the operator-facing dead-letter queue:
// listing events whose correlation or application failed, replaying them,
// and purging resolved entries.
//
// Replay re-runs correlation and application only. The event passed
// signature verification when it was first received and the verification
// inputs (raw bytes, headers) are deliberately not retained, so
// re-verification is neither possible nor needed. Replay safety comes from
// the ingest pipeline's applied-claim and the terminal-state guard.
package deadletter
