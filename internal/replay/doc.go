// Package replay is the operator-facing control for re-arming staged
// records. It resets a selection back to pending so the transformation
// engine processes them again; nothing in the pipeline calls it on its own.
package replay
