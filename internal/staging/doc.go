// Package staging is the append-only store for raw source payloads.
//
// Every fetch from a source API lands here as a staged record in status
// "pending". The transformation engine marks records completed or failed, and
// operators re-arm them through Replay. Payloads are stored verbatim: staging
// never rejects a shape, it only annotates the detected schema version.
//
// Work units (cases) are created on first reference and never deleted.
package staging
