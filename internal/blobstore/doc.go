// Package blobstore keeps binary case attachments content addressed: a
// SHA-256 hash of the bytes decides whether an upload is new, and at most one
// physical object and one metadata row ever exist per hash.
//
// Objects live in a Bucket (a directory tree by default) at
// {case}/{CATEGORY}/{subcategory?}/{file}. Metadata rows live in the shared
// storage database. Retrieval is by id, either directly or through an
// HMAC-signed URL served by the daemon API.
package blobstore
