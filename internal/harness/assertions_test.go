package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
	"github.com/LingmoOS/lingmo-menu/internal/testutil"
)

func sampleResult() *Result {
	r := NewResult()
	r.Records = []appinfo.Record{
		{ID: "/a.desktop", Name: "Alpha", Favorite: 1, Locked: true},
		{ID: "/b.desktop", Name: "Beta"},
	}
	r.Favorites = []string{"/a.desktop"}
	r.Calls = []testutil.Call{{Op: "favorite", ID: "/b.desktop", Rank: 2}}
	r.AddStepTrace(TraceEvent{Action: "init"})
	r.Trace = append(r.Trace, TraceEvent{Type: TraceNotification, Kind: "favorites_changed", Seq: 1})
	return r
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertRecordCount, Count: 2},
		{Type: AssertFavorites, IDs: []string{"/a.desktop"}},
		{Type: AssertRecord, ID: "/a.desktop", Expect: map[string]any{"name": "Alpha", "favorite": 1, "locked": true}},
		{Type: AssertAbsent, ID: "/c.desktop"},
		{Type: AssertNotificationCount, Kind: "favorites_changed", Count: 1},
		{Type: AssertCallCount, Op: "favorite", Count: 1},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"count", Assertion{Type: AssertRecordCount, Count: 3}, "3 records"},
		{"favorites", Assertion{Type: AssertFavorites, IDs: []string{"/b.desktop"}}, "[/b.desktop]"},
		{"record field", Assertion{Type: AssertRecord, ID: "/b.desktop", Expect: map[string]any{"name": "Gamma"}}, "/b.desktop.name = Beta"},
		{"record missing", Assertion{Type: AssertRecord, ID: "/c.desktop", Expect: map[string]any{"name": "C"}}, "record not cached"},
		{"unknown field", Assertion{Type: AssertRecord, ID: "/a.desktop", Expect: map[string]any{"colour": "red"}}, `unknown field "colour"`},
		{"absent", Assertion{Type: AssertAbsent, ID: "/a.desktop"}, "record cached"},
		{"notifications", Assertion{Type: AssertNotificationCount, Kind: "records_added", Count: 1}, "0 notifications"},
		{"calls", Assertion{Type: AssertCallCount, Op: "top", Count: 2}, "0 calls"},
		{"unknown type", Assertion{Type: "final_state"}, `unknown assertion type "final_state"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			if assert.Len(t, errs, 1) {
				assert.Contains(t, errs[0], tt.want)
			}
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertFavorites,
		Expected: "[/a.desktop]",
		Actual:   "[]",
		Trace:    sampleResult().Trace,
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: favorites")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "seq=1 favorites_changed")
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(1, 1))
	assert.True(t, valuesEqual(true, true))
	assert.True(t, valuesEqual(1, true))
	assert.True(t, valuesEqual("Games", "Games"))
	assert.False(t, valuesEqual("1", 1))
	assert.False(t, valuesEqual(nil, 0))
}
