package harness

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
	"github.com/LingmoOS/lingmo-menu/internal/testutil"
)

// Scenario defines a scripted sync run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Apps are present in the backing database before the worker starts.
	Apps []App `yaml:"apps,omitempty"`

	// FirstRun starts the worker with fresh user state, so
	// DefaultFavorites are pushed before the initial load.
	FirstRun         bool     `yaml:"first_run,omitempty"`
	DefaultFavorites []string `yaml:"default_favorites,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`

	// RequestToken is stamped on every request. Defaults to "test-request".
	RequestToken string `yaml:"request_token,omitempty"`
}

// App is one application fixture.
type App struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Favorite int            `yaml:"favorite,omitempty"`
	Props    map[string]any `yaml:"props,omitempty"`
}

// Properties returns the backing properties for the fixture.
func (a App) Properties() (appinfo.PropertyMap, error) {
	props := testutil.App(a.Name, a.Favorite)
	extra, err := appinfo.PropertyMapFromAny(a.Props)
	if err != nil {
		return nil, fmt.Errorf("app %s: %w", a.ID, err)
	}
	maps.Copy(props, extra)
	return props, nil
}

// Step is one backing database event or one manager request.
type Step struct {
	Event   string `yaml:"event,omitempty"`
	Request string `yaml:"request,omitempty"`

	Apps  []App                     `yaml:"apps,omitempty"`
	Delta map[string]map[string]any `yaml:"delta,omitempty"`
	IDs   []string                  `yaml:"ids,omitempty"`

	ID   string `yaml:"id,omitempty"`
	Rank int    `yaml:"rank,omitempty"`

	Echo *bool `yaml:"echo,omitempty"`
}

// Action returns the trace label of the step.
func (s Step) Action() string {
	if s.Request != "" {
		return "request " + s.Request
	}
	return s.Event
}

func (s Step) delta() (appinfo.InfoMap, error) {
	out := make(appinfo.InfoMap, len(s.Delta))
	for id, raw := range s.Delta {
		props, err := appinfo.PropertyMapFromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("delta %s: %w", id, err)
		}
		out[id] = props
	}
	return out, nil
}

// Step kinds.
const (
	EventAdded      = "added"
	EventUpdated    = "updated"
	EventUpdatedAll = "updated_all"
	EventDeleted    = "deleted"
	EventOpenFailed = "open_failed"

	RequestPin     = "pin"
	RequestUnpin   = "unpin"
	RequestReorder = "reorder"
	RequestTop     = "top"
	RequestLaunch  = "launch"
)

// Assertion validates the final cache, the trace or the database calls.
type Assertion struct {
	Type   string         `yaml:"type"`
	ID     string         `yaml:"id,omitempty"`
	IDs    []string       `yaml:"ids,omitempty"`
	Count  int            `yaml:"count,omitempty"`
	Kind   string         `yaml:"kind,omitempty"`
	Op     string         `yaml:"op,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertRecordCount       = "record_count"
	AssertFavorites         = "favorites"
	AssertRecord            = "record"
	AssertAbsent            = "absent"
	AssertNotificationCount = "notification_count"
	AssertCallCount         = "call_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarioDir loads every .yaml and .yml file in dir, ordered by file
// name.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Apps))
	for i, app := range s.Apps {
		if err := validateApp(fmt.Sprintf("apps[%d]", i), app); err != nil {
			return err
		}
		if seen[app.ID] {
			return fmt.Errorf("apps[%d]: duplicate id %s", i, app.ID)
		}
		seen[app.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateApp(where string, app App) error {
	if app.ID == "" {
		return fmt.Errorf("%s: id is required", where)
	}
	if app.Name == "" {
		return fmt.Errorf("%s: name is required", where)
	}
	if _, err := app.Properties(); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	return nil
}

func validateStep(i int, step Step) error {
	if (step.Event == "") == (step.Request == "") {
		return fmt.Errorf("steps[%d]: exactly one of event or request is required", i)
	}

	switch step.Event {
	case "":
	case EventAdded:
		if len(step.Apps) == 0 {
			return fmt.Errorf("steps[%d]: apps is required for added", i)
		}
		for j, app := range step.Apps {
			if err := validateApp(fmt.Sprintf("steps[%d].apps[%d]", i, j), app); err != nil {
				return err
			}
		}
	case EventUpdated:
		if len(step.Delta) == 0 {
			return fmt.Errorf("steps[%d]: delta is required for updated", i)
		}
	case EventUpdatedAll:
		if len(step.IDs) == 0 && len(step.Delta) == 0 {
			return fmt.Errorf("steps[%d]: ids or delta is required for updated_all", i)
		}
	case EventDeleted:
		if len(step.IDs) == 0 {
			return fmt.Errorf("steps[%d]: ids is required for deleted", i)
		}
	case EventOpenFailed:
	default:
		return fmt.Errorf("steps[%d]: unknown event %q", i, step.Event)
	}
	if _, err := step.delta(); err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}

	switch step.Request {
	case "":
	case RequestPin, RequestUnpin, RequestReorder, RequestTop, RequestLaunch:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for request %s", i, step.Request)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown request %q", i, step.Request)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRecordCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFavorites:
	case AssertRecord:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for record", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for record", index)
		}
	case AssertAbsent:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for absent", index)
		}
	case AssertNotificationCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for notification_count", index)
		}
	case AssertCallCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for call_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
