package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// TraceSnapshot captures the trace and final cache of a scenario run.
// It serializes through appinfo.MarshalCanonical, so identical runs produce
// identical bytes.
type TraceSnapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because appinfo.MarshalCanonical only handles maps, slices and scalars.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Result.Trace))
	for i, event := range s.Result.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"step": event.Step,
		}
		switch event.Type {
		case TraceStep:
			eventMap["action"] = event.Action
			if len(event.IDs) > 0 {
				eventMap["ids"] = event.IDs
			}
			if event.ID != "" {
				eventMap["id"] = event.ID
			}
			if event.Rank != 0 {
				eventMap["rank"] = event.Rank
			}
		case TraceCall:
			eventMap["op"] = event.Action
			eventMap["id"] = event.ID
			eventMap["rank"] = event.Rank
		case TraceNotification:
			eventMap["kind"] = event.Kind
			eventMap["seq"] = event.Seq
			if len(event.IDs) > 0 {
				eventMap["ids"] = event.IDs
			}
			if event.Changed != nil {
				changed := make(map[string]any, len(event.Changed))
				for id, fields := range event.Changed {
					changed[id] = fields
				}
				eventMap["changed"] = changed
				eventMap["grouping_relevant"] = event.GroupingRelevant
			}
		}
		traceList[i] = eventMap
	}

	records := make([]any, len(s.Result.Records))
	for i, rec := range s.Result.Records {
		records[i] = appinfo.RecordMap(rec)
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"final": map[string]any{
			"available": s.Result.Available,
			"favorites": s.Result.Favorites,
			"records":   records,
		},
	}
	if s.Result.InitError != "" {
		result["init_error"] = s.Result.InitError
	}
	return result
}

// Marshal renders the snapshot as indented canonical JSON without a
// trailing newline.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	raw, err := appinfo.MarshalCanonical(s.toCanonicalMap())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Result: result}
	traceJSON, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
