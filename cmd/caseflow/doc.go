// Command caseflow is the operator CLI for the caseflow daemon.
//
// Commands talk to the daemon over its Unix socket. Read-only commands such
// as status and staging fall back to the database when the daemon is down.
package main
