package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/sdsverify/internal/sds"
	"github.com/roach88/sdsverify/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the store call log to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Calls    []store.Call // Call log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "\nStore calls:\n")
		for _, c := range e.Calls {
			if c.Err != "" {
				fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", c.Seq, c.Op, c.Target, c.Err)
			} else {
				fmt.Fprintf(&buf, "  [%d] %s %s\n", c.Seq, c.Op, c.Target)
			}
		}
	}
	return buf.String()
}

// assertCallOrder checks that the first call of each listed operation
// appears in the listed order. Other calls may come in between.
func assertCallOrder(calls []store.Call, assertion Assertion) error {
	positions := make(map[sds.Op]int)
	for i, c := range calls {
		if _, seen := positions[c.Op]; !seen {
			positions[c.Op] = i + 1
		}
	}

	for _, op := range assertion.Ops {
		if positions[sds.Op(op)] == 0 {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("all operations called: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing operation: %s", op),
				Calls:    calls,
			}
		}
	}

	for i := 1; i < len(assertion.Ops); i++ {
		prev, curr := sds.Op(assertion.Ops[i-1]), sds.Op(assertion.Ops[i])
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("operations in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Calls: calls,
			}
		}
	}
	return nil
}

// assertCallCount checks the operation was called exactly Count times.
func assertCallCount(calls []store.Call, assertion Assertion) error {
	count := 0
	for _, c := range calls {
		if c.Op == sds.Op(assertion.Op) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d call(s) of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d call(s)", count),
			Calls:    calls,
		}
	}
	return nil
}

func assertRemainingResources(r *ScenarioResult, assertion Assertion) error {
	if r.RemainingTypes != assertion.Types || r.RemainingStreams != assertion.Streams {
		return &AssertionError{
			Type:     AssertRemainingResources,
			Expected: fmt.Sprintf("%d type(s), %d stream(s)", assertion.Types, assertion.Streams),
			Actual:   fmt.Sprintf("%d type(s), %d stream(s)", r.RemainingTypes, r.RemainingStreams),
			Calls:    r.Calls,
		}
	}
	return nil
}

func assertVerdict(r *ScenarioResult, assertion Assertion) error {
	verdict := r.Run.Verdict()
	stage := string(r.Run.FailedStage())
	if verdict != assertion.Verdict || stage != assertion.Stage {
		actual := verdict
		if r.Run.Failure != nil {
			actual = fmt.Sprintf("%s at %s (%v)", verdict, stage, r.Run.Failure)
		}
		expected := assertion.Verdict
		if assertion.Stage != "" {
			expected = fmt.Sprintf("%s at %s", assertion.Verdict, assertion.Stage)
		}
		return &AssertionError{
			Type:     AssertVerdict,
			Expected: expected,
			Actual:   actual,
			Calls:    r.Calls,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against a scenario result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(r *ScenarioResult, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCallOrder:
			err = assertCallOrder(r.Calls, assertion)
		case AssertCallCount:
			err = assertCallCount(r.Calls, assertion)
		case AssertRemainingResources:
			err = assertRemainingResources(r, assertion)
		case AssertVerdict:
			err = assertVerdict(r, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
