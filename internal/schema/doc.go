// Package schema declares the payload shapes each source has produced over
// time and extracts fields from them without guessing.
//
// Every source has one or more versions, each backed by an embedded JSON
// Schema. Detect validates a payload against a source's versions newest first
// and binds it to the first that matches; a payload matching none is rejected
// rather than scraped. Fields are then read through prioritized path lists.
// A field whose paths all miss is Unresolved, which is distinct from zero:
// asking an unresolved Value for a number returns ErrUnresolvedField.
package schema
