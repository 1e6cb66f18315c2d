// Package sources implements the external APIs a case is ingested from.
//
// Every source satisfies Client: Fetch returns the raw JSON payload for one
// case and HealthCheck checks reachability. TiParser serves the account,
// wage & income and tax return transcript analyses behind an API key.
// CaseHelper serves the client interview and the case's document store
// behind a cookie session that is re-established once on 401.
//
// Transient failures (network errors, 5xx, 429) are retried with capped
// exponential backoff before surfacing as services.ErrTransientSource.
package sources
