// Package ingest implements the webhook ingestion pipeline: verify the
// signature, normalize the payload, durably record each event exactly once,
// correlate it to an enrollment, and apply it to that enrollment's counters
// and status.
//
// The pipeline splits at the durable-recording step. Before it, failures
// surface to the provider (401/400/503) so unrecorded events get retried.
// After it, failures are absorbed into the dead-letter queue and the
// provider always sees success, because provider retry policies cannot be
// relied on for correctness.
package ingest
