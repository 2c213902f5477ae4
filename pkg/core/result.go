package core

import (
	"time"
)

// Measurement holds every geometry value observed for one element.
// Fields are nil when the corresponding query was not run.
type Measurement struct {
	Location *PagePoint     `json:"location,omitempty"`
	InView   *ViewportPoint `json:"inView,omitempty"`
	Size     *Size          `json:"size,omitempty"`
	Window   *Size          `json:"window,omitempty"`
}

// CheckResult captures the outcome of executing a single geometry check
type CheckResult struct {
	// Identity
	Index int      `json:"index"` // 0-based position in suite
	Name  string   `json:"name"`
	Page  string   `json:"page"`
	Tags  []string `json:"tags,omitempty"`

	// Status
	Status   CheckStatus   `json:"status"`
	Category ErrorCategory `json:"-"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Measurement Measurement `json:"measurement"`
	Failures    []string    `json:"failures,omitempty"` // One line per unmet expectation
	Error       string      `json:"error,omitempty"`    // Technical error message

	// Worker that ran the check (parallel runs)
	Worker int `json:"worker"`
}

// SuiteResult captures the outcome of a suite run
type SuiteResult struct {
	Name     string        `json:"name"`
	Status   CheckStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Checks   []CheckResult `json:"checks"`

	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// Tally recomputes the counters and overall status from Checks.
func (r *SuiteResult) Tally() {
	r.Total = len(r.Checks)
	r.Passed, r.Failed, r.Errored, r.Skipped = 0, 0, 0, 0
	for _, c := range r.Checks {
		switch c.Status {
		case StatusPassed:
			r.Passed++
		case StatusFailed:
			r.Failed++
		case StatusErrored:
			r.Errored++
		case StatusSkipped:
			r.Skipped++
		}
	}

	switch {
	case r.Errored > 0:
		r.Status = StatusErrored
	case r.Failed > 0:
		r.Status = StatusFailed
	default:
		r.Status = StatusPassed
	}
}

// IsSuccess returns true if no check failed or errored
func (r *SuiteResult) IsSuccess() bool {
	return r.Failed == 0 && r.Errored == 0
}
