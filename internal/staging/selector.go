package staging

import (
	"strings"

	"caseflow/internal/services"
)

// Selector picks the staged records a replay resets. Exactly one field is set.
type Selector struct {
	RecordID   string
	WorkUnit   string
	FailedOnly bool
}

// ByID selects a single staged record.
func ByID(id string) Selector { return Selector{RecordID: strings.TrimSpace(id)} }

// ForWorkUnit selects every terminal record of a case.
func ForWorkUnit(caseNumber string) Selector {
	return Selector{WorkUnit: strings.TrimSpace(caseNumber)}
}

// AllFailed selects every record currently in status failed.
func AllFailed() Selector { return Selector{FailedOnly: true} }

// Validate rejects empty or ambiguous selectors.
func (s Selector) Validate() error {
	set := 0
	if s.RecordID != "" {
		set++
	}
	if s.WorkUnit != "" {
		set++
	}
	if s.FailedOnly {
		set++
	}
	if set != 1 {
		return services.Wrap(services.ErrValidation, "staging", "replay", "selector must name exactly one of record id, case, or failed", nil)
	}
	return nil
}

func (s Selector) String() string {
	switch {
	case s.RecordID != "":
		return "id:" + s.RecordID
	case s.WorkUnit != "":
		return "case:" + s.WorkUnit
	case s.FailedOnly:
		return "failed"
	default:
		return "none"
	}
}
