// Package unittest implements the Unit-Test Memory (C8): the full raw
// output of the test-execution worker, parsed into failures, errors, and
// classified error patterns for consumption by the refactor worker (spec
// §4.8).
package unittest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"goa.design/conductor/runtime/agentset"
)

type (
	// Failure is one parsed failure or error block from raw test output.
	Failure struct {
		Header string
		Body   []string
	}

	// Summary is the parsed "Ran N tests" line, when present.
	Summary struct {
		Ran    int
		Passed int
		Found  bool
	}

	// Analysis classifies the parsed failures by error pattern and
	// attaches a canned fix suggestion per pattern (spec §4.8 "Analysis
	// classifies error patterns by substring").
	Analysis struct {
		Patterns        []string
		Recommendations []string
	}

	// Record is the full structured record stored per test execution
	// (spec §4.8: "stores the full structured record").
	Record struct {
		Agent       agentset.Ident
		Task        string
		RawOutput   string
		Success     bool
		Duration    time.Duration
		TestFiles   []string
		TestReports []string
		Failures    []Failure
		Summary     Summary
		Analysis    Analysis
		Timestamp   time.Time
	}
)

var (
	headerPattern = regexp.MustCompile(`^(FAIL|ERROR):\s*(.*)$`)
	ranPattern    = regexp.MustCompile(`Ran (\d+) tests?`)
	okPattern     = regexp.MustCompile(`^ok\b|\.\.\. ok$`)
)

// continuationPrefixes are the line prefixes (after leading indentation)
// that extend the current failure block rather than starting a new one or
// ending it (spec §4.8 "Traceback/File /AssertionError continuations"),
// plus the exception lines Analyze classifies.
var continuationPrefixes = []string{"Traceback", "File ", "AssertionError", "ModuleNotFoundError", "ImportError", "AttributeError"}

// Parse performs the line-oriented scan spec §4.8 describes: FAIL:/ERROR:
// headers start a failure block, Traceback/File /exception lines (indented
// or not) continue the current block, and "ok" lines (a bare "ok" or a
// verbose "... ok" result) and "Ran N tests" lines are recognized as
// summary markers rather than failure content.
func Parse(rawOutput string) ([]Failure, Summary) {
	var failures []Failure
	var current *Failure
	var summary Summary

	for _, line := range strings.Split(rawOutput, "\n") {
		trimmed := strings.TrimRight(line, "\r")

		if m := headerPattern.FindStringSubmatch(trimmed); m != nil {
			failures = append(failures, Failure{Header: trimmed})
			current = &failures[len(failures)-1]
			continue
		}
		if isContinuation(trimmed) && current != nil {
			current.Body = append(current.Body, trimmed)
			continue
		}
		if okPattern.MatchString(trimmed) {
			summary.Passed++
			current = nil
			continue
		}
		if m := ranPattern.FindStringSubmatch(trimmed); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				summary.Ran = n
				summary.Found = true
			}
			current = nil
			continue
		}
		current = nil
	}
	return failures, summary
}

func isContinuation(line string) bool {
	line = strings.TrimLeft(line, " \t")
	for _, p := range continuationPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// errorPatternRules maps a case-sensitive substring to its classification
// and canned fix (spec §4.8).
var errorPatternRules = []struct {
	substring      string
	pattern        string
	recommendation string
}{
	{"AssertionError", "assertion_error", "review the failing assertion's expected vs actual values and correct the implementation"},
	{"ModuleNotFoundError", "import_error", "verify the module name and that the dependency is installed"},
	{"ImportError", "import_error", "verify the module name and that the dependency is installed"},
	{"AttributeError", "attribute_error", "check the referenced attribute exists on the object and is spelled correctly"},
}

// Analyze classifies failures by the substring rules above, producing one
// pattern and recommendation per matching rule (deduplicated).
func Analyze(failures []Failure) Analysis {
	seen := make(map[string]struct{})
	var analysis Analysis
	for _, f := range failures {
		text := f.Header + "\n" + strings.Join(f.Body, "\n")
		for _, rule := range errorPatternRules {
			if !strings.Contains(text, rule.substring) {
				continue
			}
			if _, dup := seen[rule.pattern]; dup {
				continue
			}
			seen[rule.pattern] = struct{}{}
			analysis.Patterns = append(analysis.Patterns, rule.pattern)
			analysis.Recommendations = append(analysis.Recommendations, rule.recommendation)
		}
	}
	return analysis
}
