package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Expression is a parsed standard cron specification.
type Expression struct {
	source string
	sched  cron.Schedule
}

// Parse compiles a five-field cron expression. Descriptors such as @daily
// are accepted as well.
func Parse(spec string) (Expression, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Expression{}, fmt.Errorf("cron expression is empty")
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Expression{}, fmt.Errorf("cron expression %q: %w", spec, err)
	}
	return Expression{source: spec, sched: sched}, nil
}

// MustParse is Parse for expressions known to be valid.
func MustParse(spec string) Expression {
	expr, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return expr
}

func (e Expression) String() string { return e.source }

// Next returns the first activation strictly after t, or the zero time when
// the expression cannot fire (for example February 30th).
func (e Expression) Next(t time.Time) time.Time {
	if e.sched == nil {
		return time.Time{}
	}
	return e.sched.Next(t)
}
