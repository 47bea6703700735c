package harness

import (
	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
	"github.com/LingmoOS/lingmo-menu/internal/engine"
	"github.com/LingmoOS/lingmo-menu/internal/testutil"
)

// Trace event types.
const (
	TraceStep         = "step"
	TraceCall         = "call"
	TraceNotification = "notification"
)

// TraceEvent is one entry of a scenario trace.
//
// Only the fields relevant to Type are set:
//   - step: Step, Action, and IDs or ID and Rank
//   - call: Step, Action (the database op), ID, Rank
//   - notification: Step, Kind, Seq, IDs, and for records_updated
//     GroupingRelevant and Changed
type TraceEvent struct {
	Type             string            `json:"type"`
	Step             int               `json:"step"`
	Action           string            `json:"action,omitempty"`
	IDs              []string          `json:"ids,omitempty"`
	ID               string            `json:"id,omitempty"`
	Rank             int               `json:"rank,omitempty"`
	Kind             string            `json:"kind,omitempty"`
	Seq              int64             `json:"seq,omitempty"`
	GroupingRelevant bool              `json:"grouping_relevant,omitempty"`
	Changed          map[string]string `json:"changed,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass indicates overall success: true if every assertion held.
	Pass bool `json:"pass"`

	// Trace contains steps, database writes and notifications in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// InitError is set when the initial load failed.
	InitError string `json:"init_error,omitempty"`

	// Final cache and database state.
	Records      []appinfo.Record `json:"records"`
	Favorites    []string         `json:"favorites"`
	Calls        []testutil.Call  `json:"-"`
	Available    bool             `json:"available"`
	PreInstalled []string         `json:"pre_installed,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace adds a step marker to the trace.
func (r *Result) AddStepTrace(ev TraceEvent) {
	ev.Type = TraceStep
	r.Trace = append(r.Trace, ev)
}

// AddCallTrace adds a database write to the trace.
func (r *Result) AddCallTrace(step int, c testutil.Call) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   TraceCall,
		Step:   step,
		Action: c.Op,
		ID:     c.ID,
		Rank:   c.Rank,
	})
}

// AddNotificationTrace adds a published notification to the trace.
func (r *Result) AddNotificationTrace(step int, n engine.Notification) {
	ev := TraceEvent{
		Type: TraceNotification,
		Step: step,
		Kind: n.Kind.String(),
		Seq:  n.Seq,
	}
	switch n.Kind {
	case engine.RecordsAdded, engine.RecordsUpdated:
		for _, rec := range n.Records {
			ev.IDs = append(ev.IDs, rec.ID)
		}
	case engine.RecordsDeleted:
		ev.IDs = append(ev.IDs, n.IDs...)
	}
	if n.Kind == engine.RecordsUpdated {
		ev.GroupingRelevant = n.GroupingRelevant
		ev.Changed = make(map[string]string, len(n.Changed))
		for id, fields := range n.Changed {
			ev.Changed[id] = fields.String()
		}
	}
	r.Trace = append(r.Trace, ev)
}

// Notifications returns the notification entries of the trace.
func (r *Result) Notifications() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == TraceNotification {
			out = append(out, ev)
		}
	}
	return out
}
