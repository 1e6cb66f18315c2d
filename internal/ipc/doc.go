// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Wire types alias the api DTOs wherever possible so the CLI, the HTTP routes
// and the socket protocol render the same shapes.
package ipc
