package ingest

import "errors"

// Sentinel errors for the ingestion pipeline. Verification and payload
// errors come from the provider package; these cover the storage boundary.
var (
	// ErrStorageUnavailable: the event could not be durably recorded. The
	// endpoint answers 5xx and the provider retries; the retry is safe
	// because recording is idempotent.
	ErrStorageUnavailable = errors.New("event storage unavailable")
)
