// Package preflight provides readiness checks for the filesystem paths,
// database and source APIs that caseflow depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure; a failed
//     required check is reported but does not stop the daemon, since source
//     outages are expected and surface as skipped or failed ingestion.
//   - The CLI "caseflow preflight" command prints the same results.
//
// Source API checks run concurrently; an unconfigured source passes when
// none of the sources it serves is required.
package preflight
