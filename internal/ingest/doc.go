// Package ingest runs one source fetch for a case and stages the result.
//
// An Asset never parses or validates what it fetched. Optional sources that
// fail report Skipped and keep the rest of the graph running; a required
// source failure or any staging failure reports Failed. DocumentAsset does
// the same for transcript PDFs, routing them through the blob store.
package ingest
