// Package manager is the thread-safe boundary between the presentation
// layer and the application cache.
//
// Reads return copies taken under the cache lock. Writes are fire-and-forget
// requests to the sync worker; their effect shows up later through
// notifications once the backing database echoes the change.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
	"github.com/LingmoOS/lingmo-menu/internal/cache"
	"github.com/LingmoOS/lingmo-menu/internal/engine"
)

// Options configures a Manager. The zero value is usable.
type Options struct {
	// State enables first-run default favorites and pre-installed app
	// bookkeeping.
	State engine.UserState

	// DefaultFavorites are pushed to the database on first run, in order.
	DefaultFavorites []string

	// Notify, if set, is subscribed before the initial load so it also sees
	// the startup notifications.
	Notify func(engine.Notification)

	// Registerer receives the worker metrics. nil leaves them unregistered.
	Registerer prometheus.Registerer

	// Clock and Tokens override the worker defaults; tests use them for
	// deterministic output.
	Clock  engine.SeqSource
	Tokens engine.TokenGenerator
}

// Manager owns the cache and its sync worker.
type Manager struct {
	store       *cache.Store
	worker      *engine.Worker
	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
}

// New loads the cache from db and starts the sync worker.
//
// An unreachable database does not fail construction: the manager starts
// with an empty cache, publishes DatabaseUnavailable and reports
// Available() == false. Only context cancellation during the initial load is
// returned as an error.
func New(ctx context.Context, db appinfo.Database, opts Options) (*Manager, error) {
	wopts := []engine.Option{engine.WithMetrics(engine.NewMetrics(opts.Registerer))}
	if opts.State != nil {
		wopts = append(wopts, engine.WithUserState(opts.State, opts.DefaultFavorites))
	}
	if opts.Clock != nil {
		wopts = append(wopts, engine.WithClock(opts.Clock))
	}
	if opts.Tokens != nil {
		wopts = append(wopts, engine.WithTokenGenerator(opts.Tokens))
	}

	store := cache.New()
	w := engine.New(db, store, wopts...)
	if opts.Notify != nil {
		w.Bus().Subscribe(opts.Notify)
	}

	m := &Manager{
		store:  store,
		worker: w,
		done:   make(chan struct{}),
	}
	m.unsubscribe = db.Subscribe(w)

	if err := w.Init(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			m.unsubscribe()
			return nil, errors.Join(err, ctxErr)
		}
		slog.Warn("starting without application data", "error", err)
	}

	go func() {
		defer close(m.done)
		// Run only returns an error for cancellation, which Close never uses.
		_ = w.Run(context.WithoutCancel(ctx))
	}()

	return m, nil
}

// Close stops receiving database events, processes what is already queued
// and stops the worker. Safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.unsubscribe()
		m.worker.Stop()
		<-m.done
	})
	return nil
}

// Get returns a copy of the record for id.
func (m *Manager) Get(id string) (appinfo.Record, bool) {
	return m.store.Get(id)
}

// AllRecords returns copies of every cached record in arrival order.
func (m *Manager) AllRecords() []appinfo.Record {
	return m.store.All()
}

// Favorites returns copies of the favorited records ordered by rank.
func (m *Manager) Favorites() []appinfo.Record {
	return m.store.Favorites()
}

// Snapshot returns records and favorites captured together.
func (m *Manager) Snapshot() cache.Snapshot {
	return m.store.Snapshot()
}

// Available reports whether the backing database is reachable.
func (m *Manager) Available() bool {
	return m.worker.Available()
}

// Subscribe registers fn for change notifications. fn runs on the worker
// goroutine and must not block.
func (m *Manager) Subscribe(fn func(engine.Notification)) (cancel func()) {
	return m.worker.Bus().Subscribe(fn)
}

// PinToFavorite adds id to the end of the favorites, or removes it when pin
// is false.
func (m *Manager) PinToFavorite(id string, pin bool) error {
	return m.worker.Submit(engine.Request{Kind: engine.RequestPinFavorite, ID: id, Pin: pin})
}

// ReorderFavorite moves id to rank. Negative ranks are treated as 0.
func (m *Manager) ReorderFavorite(id string, rank int) error {
	return m.worker.Submit(engine.Request{Kind: engine.RequestReorderFavorite, ID: id, Rank: rank})
}

// PinToTop sets the top-pin priority of id; 0 unpins.
func (m *Manager) PinToTop(id string, rank int) error {
	return m.worker.Submit(engine.Request{Kind: engine.RequestPinTop, ID: id, Rank: rank})
}

// MarkLaunched records that id has been launched at least once.
func (m *Manager) MarkLaunched(id string) error {
	return m.worker.Submit(engine.Request{Kind: engine.RequestMarkLaunched, ID: id})
}
