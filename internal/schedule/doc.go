// Package schedule runs jobs on standard cron expressions.
//
// Expressions are parsed by robfig/cron in the classic five-field
// "minute hour day-of-month month day-of-week" layout. The Runner drives the
// daily health check from the daemon and computes each activation from the
// wall clock so a slow job never shifts later runs.
package schedule
