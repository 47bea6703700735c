package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
	"github.com/LingmoOS/lingmo-menu/internal/cache"
)

// UserState is the per-user state the worker maintains alongside the cache.
type UserState interface {
	// IsFirstStartup reports whether default favorites still need pushing.
	IsFirstStartup() bool

	// CompleteFirstStartup clears the first-run flag and records ids as the
	// pre-installed applications. It persists the state.
	CompleteFirstStartup(ids []string) error

	// RemovePreInstalledApps forgets ids and persists the state.
	RemovePreInstalledApps(ids []string) error
}

// Worker is the single-writer sync worker.
//
// Thread-safety model:
//   - Listener methods and Submit: safe from any goroutine
//   - Init, Run, Drain and Process: must be called from exactly one goroutine
//     and never concurrently with each other
//
// Worker implements appinfo.Listener by enqueueing, so it can be subscribed
// to a backing database directly.
type Worker struct {
	db       appinfo.Database
	cache    *cache.Store
	queue    *eventQueue
	bus      *Bus
	clock    SeqSource
	tokens   TokenGenerator
	metrics  *Metrics
	state    UserState
	defaults []string

	unavailable atomic.Bool
}

var _ appinfo.Listener = (*Worker)(nil)

// Option configures a Worker.
type Option func(*Worker)

// WithClock sets the clock used to stamp notifications.
func WithClock(c SeqSource) Option {
	return func(w *Worker) { w.clock = c }
}

// WithTokenGenerator sets the request token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(w *Worker) { w.tokens = g }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithUserState enables first-run default favorites and pre-installed app
// bookkeeping.
func WithUserState(state UserState, defaultFavorites []string) Option {
	return func(w *Worker) {
		w.state = state
		w.defaults = slices.Clone(defaultFavorites)
	}
}

// WithBus sets the notification bus.
func WithBus(b *Bus) Option {
	return func(w *Worker) { w.bus = b }
}

// New creates a worker that reads from db and writes to store.
func New(db appinfo.Database, store *cache.Store, opts ...Option) *Worker {
	w := &Worker{
		db:     db,
		cache:  store,
		queue:  newEventQueue(),
		bus:    NewBus(),
		clock:  NewClock(),
		tokens: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}
	w.metrics.DatabaseHealthy.Set(1)
	return w
}

// Bus returns the notification bus.
func (w *Worker) Bus() *Bus {
	return w.bus
}

// Available reports whether the backing database is still considered
// reachable.
func (w *Worker) Available() bool {
	return !w.unavailable.Load()
}

// Pending returns the number of queued events.
func (w *Worker) Pending() int {
	return w.queue.Len()
}

// Added implements appinfo.Listener.
func (w *Worker) Added(ids []string) {
	w.enqueue(Event{Type: EventAdded, IDs: slices.Clone(ids)})
}

// Updated implements appinfo.Listener.
func (w *Worker) Updated(delta appinfo.InfoMap) {
	cp := make(appinfo.InfoMap, len(delta))
	for id, props := range delta {
		cp[id] = props.Clone()
	}
	w.enqueue(Event{Type: EventUpdated, Delta: cp})
}

// UpdatedAll implements appinfo.Listener.
func (w *Worker) UpdatedAll(ids []string) {
	w.enqueue(Event{Type: EventUpdatedAll, IDs: slices.Clone(ids)})
}

// Deleted implements appinfo.Listener.
func (w *Worker) Deleted(ids []string) {
	w.enqueue(Event{Type: EventDeleted, IDs: slices.Clone(ids)})
}

// OpenFailed implements appinfo.Listener.
func (w *Worker) OpenFailed() {
	w.enqueue(Event{Type: EventOpenFailed})
}

func (w *Worker) enqueue(ev Event) {
	if !w.queue.Enqueue(ev) {
		slog.Debug("event dropped: worker stopped", "type", ev.Type)
	}
}

// Init performs startup: it pushes default favorites on first run, then
// bulk-loads every visible application and seeds the cache directly.
//
// A load failure marks the database unavailable, publishes
// DatabaseUnavailable and returns a DATABASE_UNAVAILABLE RuntimeError. The
// worker stays usable and serves an empty cache.
func (w *Worker) Init(ctx context.Context) error {
	firstRun := w.state != nil && w.state.IsFirstStartup()
	if firstRun {
		w.pushDefaultFavorites(ctx)
	}

	infos, err := w.db.FetchAll(ctx, appinfo.RecordProperties, appinfo.VisibleFilter())
	if err != nil {
		rerr := NewUnavailableError(fmt.Errorf("initial load: %w", err))
		w.markUnavailable(rerr)
		return rerr
	}

	ids := infos.SortedIDs()
	_ = w.cache.Update(func(tx *cache.Tx) error {
		for _, id := range ids {
			tx.Upsert(RecordFromProperties(id, infos[id]))
		}
		return nil
	})
	w.updateGauges()

	slog.Info("initial load complete",
		"records", w.cache.Len(),
		"favorites", w.cache.FavoriteCount(),
	)

	if len(ids) > 0 {
		w.publish(Notification{Kind: FavoritesChanged})
	}

	if firstRun {
		if err := w.state.CompleteFirstStartup(ids); err != nil {
			slog.Warn("save user state failed", "error", err)
		}
	}
	return nil
}

// pushDefaultFavorites asks the backing database to favorite each default
// application in configured order, after any existing favorites, and mark it
// launched. Fire-and-forget: failures are logged.
func (w *Worker) pushDefaultFavorites(ctx context.Context) {
	base := w.existingFavorites(ctx)
	for i, id := range w.defaults {
		if err := w.db.SetFavoriteRank(ctx, id, base+i+1); err != nil {
			slog.Warn("push default favorite failed", "id", id, "error", err)
			continue
		}
		if err := w.db.SetLaunchedState(ctx, id); err != nil {
			slog.Warn("mark default favorite launched failed", "id", id, "error", err)
		}
	}
	slog.Info("default favorites pushed", "count", len(w.defaults), "after", base)
}

// existingFavorites counts visible favorites already in the database.
// The cache is not loaded yet when defaults are pushed.
func (w *Worker) existingFavorites(ctx context.Context) int {
	infos, err := w.db.FetchAll(ctx, []appinfo.Property{appinfo.PropFavorites}, appinfo.VisibleFilter())
	if err != nil {
		slog.Warn("count existing favorites failed", "error", err)
		return 0
	}
	n := 0
	for _, p := range infos {
		if p.Int(appinfo.PropFavorites) > 0 {
			n++
		}
	}
	return n
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop is called.
//
// On processing failure the error is logged and processing continues with
// the next event.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker starting")

	for {
		event, ok := w.queue.TryDequeue()
		if ok {
			if err := w.Process(ctx, event); err != nil {
				logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("worker stopping: context cancelled")
			w.queue.Close()
			return ctx.Err()

		case <-w.queue.Wait():
			// The signal channel is closed by Close, which makes this case
			// fire immediately.
			if w.queue.Closed() && w.queue.Len() == 0 {
				slog.Info("worker stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the remaining events are processed.
func (w *Worker) Stop() {
	w.queue.Close()
}

// Drain processes queued events on the calling goroutine until the queue is
// empty, including events enqueued while draining. It returns the number of
// events processed. Drain is for synchronous drivers and must not be used
// while Run is active.
func (w *Worker) Drain(ctx context.Context) int {
	n := 0
	for {
		event, ok := w.queue.TryDequeue()
		if !ok {
			return n
		}
		if err := w.Process(ctx, event); err != nil {
			logEventError(event, err)
		}
		n++
	}
}

// Submit enqueues a mutation request. It returns a QUEUE_CLOSED
// RuntimeError once the worker has been stopped.
func (w *Worker) Submit(req Request) error {
	if req.Token == "" {
		req.Token = w.tokens.Generate()
	}
	if !w.queue.Enqueue(Event{Type: EventRequest, Request: &req}) {
		return &RuntimeError{
			Code:    ErrCodeQueueClosed,
			Message: "worker stopped",
			AppID:   req.ID,
			Token:   req.Token,
		}
	}
	return nil
}

// Process handles one event to completion.
func (w *Worker) Process(ctx context.Context, event Event) error {
	if w.unavailable.Load() && event.Type != EventOpenFailed {
		slog.Debug("event dropped: database unavailable", "type", event.Type)
		w.metrics.EventsDropped.WithLabelValues(dropOffline).Inc()
		return nil
	}

	switch event.Type {
	case EventAdded:
		return w.processAdded(ctx, event.IDs)
	case EventUpdated:
		return w.processUpdated(event.Delta)
	case EventUpdatedAll:
		return w.processUpdatedAll(ctx, event.IDs)
	case EventDeleted:
		return w.processDeleted(event.IDs)
	case EventOpenFailed:
		w.markUnavailable(NewUnavailableError(nil))
		return nil
	case EventRequest:
		if event.Request == nil {
			return &RuntimeError{Code: ErrCodeUnknownEvent, Message: "request event missing request data"}
		}
		return w.processRequest(ctx, *event.Request)
	default:
		return &RuntimeError{
			Code:    ErrCodeUnknownEvent,
			Message: fmt.Sprintf("unknown event type: %d", event.Type),
		}
	}
}

// processAdded inserts applications not yet cached. Identifiers already
// cached are redeliveries and are skipped.
func (w *Worker) processAdded(ctx context.Context, ids []string) error {
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}

	fetched := make([]appinfo.Record, 0, len(ids))
	for _, id := range ids {
		if w.cache.Has(id) {
			slog.Debug("duplicate add skipped", "id", id)
			w.metrics.EventsDropped.WithLabelValues(dropDuplicate).Inc()
			continue
		}
		if rec, ok := w.fetchRecord(ctx, id, true); ok {
			fetched = append(fetched, rec)
		}
	}
	if len(fetched) == 0 {
		return nil
	}

	added := make([]appinfo.Record, 0, len(fetched))
	_ = w.cache.Update(func(tx *cache.Tx) error {
		for _, rec := range fetched {
			if tx.Has(rec.ID) {
				continue
			}
			tx.Upsert(rec)
			added = append(added, rec)
		}
		return nil
	})
	if len(added) == 0 {
		return nil
	}

	w.applied(EventAdded)
	w.publish(Notification{Kind: RecordsAdded, Records: added})
	w.publish(Notification{Kind: FavoritesChanged})
	return nil
}

// processUpdated applies a partial delta to cached records. Unknown
// identifiers are stale and dropped; entries touching no record field
// produce nothing.
func (w *Worker) processUpdated(delta appinfo.InfoMap) error {
	if len(delta) == 0 {
		return nil
	}

	var (
		updated  []appinfo.Record
		changed  = make(map[string]appinfo.FieldSet)
		grouping bool
	)
	_ = w.cache.Update(func(tx *cache.Tx) error {
		for _, id := range delta.SortedIDs() {
			rec, ok := tx.Get(id)
			if !ok {
				slog.Debug("stale update dropped", "id", id)
				w.metrics.EventsDropped.WithLabelValues(dropStale).Inc()
				continue
			}
			fields := ApplyProperties(&rec, delta[id])
			if fields == 0 {
				w.metrics.EventsDropped.WithLabelValues(dropNoChange).Inc()
				continue
			}
			tx.Upsert(rec)
			updated = append(updated, rec)
			changed[id] = fields
			grouping = grouping || fields.GroupingRelevant()
		}
		return nil
	})
	if len(updated) == 0 {
		return nil
	}

	w.applied(EventUpdated)
	w.publish(Notification{
		Kind:             RecordsUpdated,
		Records:          updated,
		GroupingRelevant: grouping,
		Changed:          changed,
	})
	w.publish(Notification{Kind: FavoritesChanged})
	return nil
}

// processUpdatedAll overwrites cached records from a fresh fetch. The
// ingestion filter is not reapplied: it only gates first sight.
func (w *Worker) processUpdatedAll(ctx context.Context, ids []string) error {
	ids = unique(ids)

	fetched := make([]appinfo.Record, 0, len(ids))
	for _, id := range ids {
		if !w.cache.Has(id) {
			slog.Debug("stale refresh dropped", "id", id)
			w.metrics.EventsDropped.WithLabelValues(dropStale).Inc()
			continue
		}
		if rec, ok := w.fetchRecord(ctx, id, false); ok {
			fetched = append(fetched, rec)
		}
	}
	if len(fetched) == 0 {
		return nil
	}

	var updated []appinfo.Record
	changed := make(map[string]appinfo.FieldSet, len(fetched))
	_ = w.cache.Update(func(tx *cache.Tx) error {
		for _, rec := range fetched {
			if !tx.Has(rec.ID) {
				continue
			}
			tx.Upsert(rec)
			updated = append(updated, rec)
			changed[rec.ID] = appinfo.AllFields
		}
		return nil
	})
	if len(updated) == 0 {
		return nil
	}

	w.applied(EventUpdatedAll)
	w.publish(Notification{
		Kind:             RecordsUpdated,
		Records:          updated,
		GroupingRelevant: true,
		Changed:          changed,
	})
	w.publish(Notification{Kind: FavoritesChanged})
	return nil
}

// processDeleted removes cached records. The notification carries only the
// identifiers that were actually present.
func (w *Worker) processDeleted(ids []string) error {
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}

	var removed []string
	_ = w.cache.Update(func(tx *cache.Tx) error {
		for _, id := range ids {
			if tx.Remove(id) {
				removed = append(removed, id)
			} else {
				slog.Debug("stale delete dropped", "id", id)
				w.metrics.EventsDropped.WithLabelValues(dropStale).Inc()
			}
		}
		return nil
	})
	if len(removed) == 0 {
		return nil
	}

	w.applied(EventDeleted)
	w.publish(Notification{Kind: RecordsDeleted, IDs: removed})
	w.publish(Notification{Kind: FavoritesChanged})

	if w.state != nil {
		if err := w.state.RemovePreInstalledApps(removed); err != nil {
			slog.Warn("save user state failed", "error", err)
		}
	}
	return nil
}

// markUnavailable publishes DatabaseUnavailable the first time it is called.
func (w *Worker) markUnavailable(err error) {
	if !w.unavailable.CompareAndSwap(false, true) {
		return
	}
	slog.Error("backing database unavailable; serving cached data", "error", err)
	w.metrics.DatabaseHealthy.Set(0)
	w.publish(Notification{Kind: DatabaseUnavailable})
}

func (w *Worker) applied(t EventType) {
	w.metrics.EventsApplied.WithLabelValues(t.String()).Inc()
	w.updateGauges()
}

func (w *Worker) updateGauges() {
	w.metrics.Records.Set(float64(w.cache.Len()))
	w.metrics.Favorites.Set(float64(w.cache.FavoriteCount()))
}

func (w *Worker) publish(n Notification) {
	n.Seq = w.clock.Next()
	w.metrics.Notifications.WithLabelValues(n.Kind.String()).Inc()
	w.bus.Publish(n)
}

// logEventError logs a processing failure with enough event context to
// investigate it.
func logEventError(event Event, err error) {
	attrs := []any{"type", event.Type, "error", err}
	switch event.Type {
	case EventAdded, EventUpdatedAll, EventDeleted:
		attrs = append(attrs, "ids", event.IDs)
	case EventUpdated:
		attrs = append(attrs, "ids", event.Delta.SortedIDs())
	case EventRequest:
		if event.Request != nil {
			attrs = append(attrs,
				"kind", event.Request.Kind,
				"id", event.Request.ID,
				"token", event.Request.Token,
			)
		}
	}
	slog.Error("event processing failed", attrs...)
}
