package diagnostic

// Summary holds the counts reported with a ScanResult.
type Summary struct {
	Entries     int            `json:"entries" console:"header:Entry documents"`
	Documents   int            `json:"documents" console:"header:Documents"`
	Edges       int            `json:"edges" console:"header:Call edges"`
	CacheHits   int            `json:"cacheHits" console:"header:Cache hits"`
	CacheMisses int            `json:"cacheMisses" console:"header:Resolutions"`
	Errors      int            `json:"errors" console:"header:Errors"`
	Warnings    int            `json:"warnings" console:"header:Warnings"`
	Infos       int            `json:"infos" console:"header:Info"`
	ByRule      map[string]int `json:"byRule,omitempty" console:"-"`
}

// ScanResult is the outcome of one scan.
type ScanResult struct {
	Diagnostics []Diagnostic `json:"diagnostics" jsonschema:"findings sorted by file, line and rule id"`
	Summary     Summary      `json:"summary"`
	Passed      bool         `json:"passed" jsonschema:"false when any finding is at least as severe as failOn"`
	Incomplete  bool         `json:"incomplete" jsonschema:"true when the scan was interrupted before it finished"`
	FailOn      Severity     `json:"failOn" jsonschema:"the severity threshold that fails the scan"`
}

// Exit codes returned by ScanResult.ExitCode.
const (
	ExitPass       = 0
	ExitFail       = 1
	ExitIncomplete = 2
)

// NewResult sorts diags, fills in the severity counts of summary and decides
// pass/fail: the scan fails when any diagnostic is at least failOn. An empty
// failOn means error.
func NewResult(diags []Diagnostic, summary Summary, failOn Severity, incomplete bool) *ScanResult {
	if failOn == "" {
		failOn = SeverityError
	}
	if diags == nil {
		diags = []Diagnostic{}
	}
	Sort(diags)

	summary.Errors, summary.Warnings, summary.Infos = 0, 0, 0
	summary.ByRule = nil
	passed := true
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			summary.Errors++
		case SeverityWarning:
			summary.Warnings++
		case SeverityInfo:
			summary.Infos++
		}
		if summary.ByRule == nil {
			summary.ByRule = make(map[string]int)
		}
		summary.ByRule[d.RuleID]++
		if d.Severity.AtLeast(failOn) {
			passed = false
		}
	}

	return &ScanResult{
		Diagnostics: diags,
		Summary:     summary,
		Passed:      passed,
		Incomplete:  incomplete,
		FailOn:      failOn,
	}
}

// ExitCode maps the result to a process exit status. An incomplete scan
// reports ExitIncomplete even when the partial result passed.
func (r *ScanResult) ExitCode() int {
	switch {
	case r.Incomplete:
		return ExitIncomplete
	case !r.Passed:
		return ExitFail
	default:
		return ExitPass
	}
}

// Reporter is a sink for scan results.
type Reporter interface {
	Emit(result *ScanResult) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(result *ScanResult) error

// Emit calls f(result).
func (f ReporterFunc) Emit(result *ScanResult) error {
	return f(result)
}
