package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// AssertionError is returned when an assertion fails.
// It includes the notification trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			switch ev.Type {
			case TraceStep:
				fmt.Fprintf(&buf, "  [%d] step %d %s %v%s\n", i+1, ev.Step, ev.Action, ev.IDs, ev.ID)
			case TraceCall:
				fmt.Fprintf(&buf, "  [%d]   call %s %s %d\n", i+1, ev.Action, ev.ID, ev.Rank)
			case TraceNotification:
				fmt.Fprintf(&buf, "  [%d]   seq=%d %s %v\n", i+1, ev.Seq, ev.Kind, ev.IDs)
			}
		}
	}
	return buf.String()
}

func findRecord(result *Result, id string) (appinfo.Record, bool) {
	for _, rec := range result.Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return appinfo.Record{}, false
}

func assertRecordCount(result *Result, a Assertion) error {
	if len(result.Records) != a.Count {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%d records", a.Count),
			Actual:   fmt.Sprintf("%d records", len(result.Records)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFavorites checks the exact favorites order.
func assertFavorites(result *Result, a Assertion) error {
	if !slices.Equal(result.Favorites, a.IDs) {
		return &AssertionError{
			Type:     AssertFavorites,
			Expected: fmt.Sprintf("%v", a.IDs),
			Actual:   fmt.Sprintf("%v", result.Favorites),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertRecord checks the expected fields of one record (subset semantics).
func assertRecord(result *Result, a Assertion) error {
	rec, ok := findRecord(result, a.ID)
	if !ok {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %s", a.ID),
			Actual:   "record not cached",
			Trace:    result.Trace,
		}
	}

	actual := appinfo.RecordMap(rec)
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		got, exists := actual[key]
		if !exists {
			return fmt.Errorf("record assertion: unknown field %q", key)
		}
		if !valuesEqual(a.Expect[key], got) {
			return &AssertionError{
				Type:     AssertRecord,
				Expected: fmt.Sprintf("%s.%s = %v", a.ID, key, a.Expect[key]),
				Actual:   fmt.Sprintf("%s.%s = %v", a.ID, key, got),
			}
		}
	}
	return nil
}

func assertAbsent(result *Result, a Assertion) error {
	if _, ok := findRecord(result, a.ID); ok {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("record %s not cached", a.ID),
			Actual:   "record cached",
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertNotificationCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Notifications() {
		if ev.Kind == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertNotificationCount,
			Expected: fmt.Sprintf("%d %s notifications", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d notifications", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertCallCount(result *Result, a Assertion) error {
	count := 0
	for _, c := range result.Calls {
		if c.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d %s calls", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// valuesEqual compares a YAML-decoded expectation with a record field.
// Both sides go through appinfo.FromAny, so true matches 1.
func valuesEqual(expected, actual any) bool {
	ev, err := appinfo.FromAny(expected)
	if err != nil {
		return false
	}
	av, err := appinfo.FromAny(actual)
	if err != nil {
		return false
	}
	return ev == av
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRecordCount:
			err = assertRecordCount(result, assertion)
		case AssertFavorites:
			err = assertFavorites(result, assertion)
		case AssertRecord:
			err = assertRecord(result, assertion)
		case AssertAbsent:
			err = assertAbsent(result, assertion)
		case AssertNotificationCount:
			err = assertNotificationCount(result, assertion)
		case AssertCallCount:
			err = assertCallCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
