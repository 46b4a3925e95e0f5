package types

// Preflight check statuses
const (
	StatusPass = "PASS"
	StatusWarn = "WARN"
	StatusFail = "FAIL"
)

// PreflightCheck is the outcome of a single environment check. A FAIL on a
// required check blocks the gate; WARN and non-required FAIL are informational.
type PreflightCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
}

// PreflightSummary aggregates one preflight run. It is recomputed on every
// invocation and never persisted.
type PreflightSummary struct {
	RootDir             string           `json:"root_dir"`
	RequireSudo         bool             `json:"require_sudo"`
	RequireRules        bool             `json:"require_rules"`
	Checks              []PreflightCheck `json:"checks"`
	Passed              bool             `json:"passed"`
	FailedRequiredCount int              `json:"failed_required_count"`
	WarningCount        int              `json:"warning_count"`
}

// Finalize recomputes the derived fields from Checks. Passed is true iff no
// required check failed.
func (s *PreflightSummary) Finalize() {
	s.FailedRequiredCount = 0
	s.WarningCount = 0
	for _, c := range s.Checks {
		if c.Status == StatusFail && c.Required {
			s.FailedRequiredCount++
		}
		if c.Status == StatusWarn {
			s.WarningCount++
		}
	}
	s.Passed = s.FailedRequiredCount == 0
}
