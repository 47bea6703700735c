package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
	"github.com/LingmoOS/lingmo-menu/internal/cache"
	"github.com/LingmoOS/lingmo-menu/internal/engine"
	"github.com/LingmoOS/lingmo-menu/internal/testutil"
)

// Harness drives one scenario.
// It plays the backing database through a FakeDB and processes every step
// synchronously with Worker.Drain.
type Harness struct {
	db     *testutil.FakeDB
	store  *cache.Store
	worker *engine.Worker
	state  *memoryState
	result *Result

	step    int
	calls   int
	pending []engine.Notification
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database and cache. A deterministic
// clock stamps notifications and every request carries the same token, so
// repeated runs produce identical traces.
//
// An error is returned when the scenario cannot be played at all; failed
// assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	db := testutil.NewFakeDB()
	for _, app := range scenario.Apps {
		props, err := app.Properties()
		if err != nil {
			return nil, err
		}
		db.Put(app.ID, props)
	}

	h := &Harness{
		db:     db,
		store:  cache.New(),
		result: NewResult(),
	}

	opts := []engine.Option{
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithTokenGenerator(testutil.NewFixedTokenGenerator(scenario.RequestToken)),
	}
	if scenario.FirstRun {
		h.state = &memoryState{firstRun: true}
		opts = append(opts, engine.WithUserState(h.state, scenario.DefaultFavorites))
	}
	h.worker = engine.New(db, h.store, opts...)
	h.worker.Bus().Subscribe(func(n engine.Notification) {
		h.pending = append(h.pending, n)
	})
	cancel := db.Subscribe(h.worker)
	defer cancel()

	h.result.AddStepTrace(TraceEvent{Action: "init"})
	if err := h.worker.Init(ctx); err != nil {
		h.result.InitError = err.Error()
	}
	h.settle(ctx)

	for i, step := range scenario.Steps {
		h.step = i + 1
		if err := h.play(step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", h.step, step.Action(), err)
		}
		h.settle(ctx)
	}

	snap := h.store.Snapshot()
	h.result.Records = snap.Records
	for _, rec := range snap.Favorites {
		h.result.Favorites = append(h.result.Favorites, rec.ID)
	}
	h.result.Calls = db.Calls()
	h.result.Available = h.worker.Available()
	if h.state != nil {
		h.result.PreInstalled = slices.Clone(h.state.preInstalled)
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// play records the step and delivers it to the worker's queue.
func (h *Harness) play(step Step) error {
	if step.Echo != nil {
		h.db.SetEcho(*step.Echo)
	}

	ev := TraceEvent{Step: h.step, Action: step.Action()}

	switch step.Event {
	case EventAdded:
		apps := make(appinfo.InfoMap, len(step.Apps))
		for _, app := range step.Apps {
			props, err := app.Properties()
			if err != nil {
				return err
			}
			apps[app.ID] = props
		}
		ev.IDs = apps.SortedIDs()
		h.result.AddStepTrace(ev)
		h.db.AddBatch(apps)
		return nil

	case EventUpdated:
		delta, err := step.delta()
		if err != nil {
			return err
		}
		ev.IDs = delta.SortedIDs()
		h.result.AddStepTrace(ev)
		h.db.UpdateBatch(delta)
		return nil

	case EventUpdatedAll:
		delta, err := step.delta()
		if err != nil {
			return err
		}
		ids := step.IDs
		if len(ids) == 0 {
			ids = delta.SortedIDs()
		}
		ev.IDs = slices.Clone(ids)
		h.result.AddStepTrace(ev)
		h.db.Merge(delta)
		h.db.RefreshAll(ids...)
		return nil

	case EventDeleted:
		ev.IDs = slices.Clone(step.IDs)
		h.result.AddStepTrace(ev)
		h.db.Remove(step.IDs...)
		return nil

	case EventOpenFailed:
		h.result.AddStepTrace(ev)
		h.db.Fail()
		return nil
	}

	req := engine.Request{ID: step.ID}
	switch step.Request {
	case RequestPin:
		req.Kind, req.Pin = engine.RequestPinFavorite, true
	case RequestUnpin:
		req.Kind = engine.RequestPinFavorite
	case RequestReorder:
		req.Kind, req.Rank = engine.RequestReorderFavorite, step.Rank
	case RequestTop:
		req.Kind, req.Rank = engine.RequestPinTop, step.Rank
	case RequestLaunch:
		req.Kind = engine.RequestMarkLaunched
	default:
		return fmt.Errorf("unknown step %q", step.Action())
	}
	ev.ID, ev.Rank = step.ID, step.Rank
	h.result.AddStepTrace(ev)
	return h.worker.Submit(req)
}

// settle drains the worker, then appends the database writes and the
// notifications produced since the previous step.
func (h *Harness) settle(ctx context.Context) {
	h.worker.Drain(ctx)

	calls := h.db.Calls()
	for _, c := range calls[h.calls:] {
		h.result.AddCallTrace(h.step, c)
	}
	h.calls = len(calls)

	for _, n := range h.pending {
		h.result.AddNotificationTrace(h.step, n)
	}
	h.pending = nil
}

// memoryState is an in-memory engine.UserState.
type memoryState struct {
	firstRun     bool
	preInstalled []string
}

func (s *memoryState) IsFirstStartup() bool { return s.firstRun }

func (s *memoryState) CompleteFirstStartup(ids []string) error {
	s.firstRun = false
	s.preInstalled = slices.Clone(ids)
	return nil
}

func (s *memoryState) RemovePreInstalledApps(ids []string) error {
	s.preInstalled = slices.DeleteFunc(s.preInstalled, func(id string) bool {
		return slices.Contains(ids, id)
	})
	return nil
}
