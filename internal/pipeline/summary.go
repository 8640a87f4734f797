package pipeline

import (
	"regexp"
	"strconv"
)

// TestSummary holds pass/fail/skip counts parsed from test runner output.
// A nil field means the count could not be determined.
type TestSummary struct {
	Passed  *int
	Failed  *int
	Skipped *int
}

// Summarizer extracts a TestSummary from raw test runner output. The
// parsing is inherently output-format dependent, so it sits behind an
// interface: alternate runners get their own summarizer without touching
// the orchestrator.
type Summarizer interface {
	Summarize(output string) TestSummary
}

var (
	passedRe  = regexp.MustCompile(`(?i)(\d+)\s+passed`)
	failedRe  = regexp.MustCompile(`(?i)(\d+)\s+failed`)
	skippedRe = regexp.MustCompile(`(?i)(\d+)\s+skipped`)
)

// RegexSummarizer matches the common "N passed, N failed, N skipped"
// phrasing used by most test runners. Each count is matched independently,
// so partial summaries still yield the counts that are present.
type RegexSummarizer struct{}

// Summarize implements Summarizer.
func (RegexSummarizer) Summarize(output string) TestSummary {
	return TestSummary{
		Passed:  matchCount(passedRe, output),
		Failed:  matchCount(failedRe, output),
		Skipped: matchCount(skippedRe, output),
	}
}

func matchCount(re *regexp.Regexp, output string) *int {
	m := re.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}
