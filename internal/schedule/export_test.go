package schedule

import "time"

// SetRunnerClock replaces the wait primitive so tests can fire immediately.
func SetRunnerClock(r *Runner, after func(time.Duration) <-chan time.Time) {
	r.after = after
}
