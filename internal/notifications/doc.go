// Package notifications pushes operator alerts to ntfy.
//
// Health reports carrying alerts and ingestion runs that finished with
// failures are published to the topic configured under [notifications].
// When no topic is configured NewService returns a no-op implementation, so
// callers never check whether notifications are enabled.
package notifications
