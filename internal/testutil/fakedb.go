package testutil

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// Call records one mutation call made against a FakeDB.
type Call struct {
	Op   string // "favorite", "top" or "launched"
	ID   string
	Rank int
}

// FakeDB is an in-memory appinfo.Database for tests.
//
// By default it behaves like a well-mannered backing database: every
// accepted mutation is echoed to listeners as an Updated event carrying
// only the changed property. Listeners are called synchronously from the
// goroutine that triggered the change, in subscription order.
type FakeDB struct {
	mu        sync.Mutex
	apps      map[string]appinfo.PropertyMap
	listeners []fakeListener
	nextID    int
	calls     []Call
	fetchErr  error
	dropWrite bool
	echo      bool
}

type fakeListener struct {
	id int
	l  appinfo.Listener
}

var _ appinfo.Database = (*FakeDB)(nil)

// NewFakeDB creates an empty database with echo enabled.
func NewFakeDB() *FakeDB {
	return &FakeDB{
		apps: make(map[string]appinfo.PropertyMap),
		echo: true,
	}
}

// App builds a property map for a visible application.
func App(name string, favorite int) appinfo.PropertyMap {
	return appinfo.PropertyMap{
		appinfo.PropLocalName:      appinfo.String(name),
		appinfo.PropIcon:           appinfo.String(name),
		appinfo.PropCategory:       appinfo.String("Utility"),
		appinfo.PropFirstLetterAll: appinfo.String(name[:1]),
		appinfo.PropFavorites:      appinfo.Int(favorite),
		appinfo.PropTop:            appinfo.Int(0),
		appinfo.PropLock:           appinfo.Int(0),
		appinfo.PropLaunchTimes:    appinfo.Int(0),
		appinfo.PropLaunched:       appinfo.Int(0),
		appinfo.PropDontDisplay:    appinfo.Int(0),
		appinfo.PropAutoStart:      appinfo.Int(0),
		appinfo.PropInsertTime:     appinfo.String("2024-01-01 00:00:00"),
	}
}

// SetEcho controls whether mutations are echoed as Updated events.
func (f *FakeDB) SetEcho(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.echo = on
}

// SetFetchError makes FetchAll and FetchOne fail with err. nil restores
// normal behavior.
func (f *FakeDB) SetFetchError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// DropWrites makes mutation calls succeed without changing anything or
// echoing, like a database that silently rejects a change.
func (f *FakeDB) DropWrites(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropWrite = on
}

// Put stores an application without emitting an event.
func (f *FakeDB) Put(id string, props appinfo.PropertyMap) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putLocked(id, props)
}

func (f *FakeDB) putLocked(id string, props appinfo.PropertyMap) {
	p := props.Clone()
	p[appinfo.PropDesktopFilePath] = appinfo.String(id)
	f.apps[id] = p
}

// Add stores an application and emits Added.
func (f *FakeDB) Add(id string, props appinfo.PropertyMap) {
	f.AddBatch(appinfo.InfoMap{id: props})
}

// AddBatch stores several applications and emits a single Added carrying
// their identifiers in byte order.
func (f *FakeDB) AddBatch(apps appinfo.InfoMap) {
	ids := apps.SortedIDs()
	f.mu.Lock()
	for _, id := range ids {
		f.putLocked(id, apps[id])
	}
	f.mu.Unlock()
	f.emit(func(l appinfo.Listener) { l.Added(slices.Clone(ids)) })
}

// Update merges props into a stored application and emits Updated with
// exactly props. Unknown identifiers are still emitted, which lets tests
// deliver stale updates.
func (f *FakeDB) Update(id string, props appinfo.PropertyMap) {
	f.UpdateBatch(appinfo.InfoMap{id: props})
}

// UpdateBatch merges a multi-application delta and emits it as one
// Updated event.
func (f *FakeDB) UpdateBatch(delta appinfo.InfoMap) {
	f.Merge(delta)
	cp := make(appinfo.InfoMap, len(delta))
	for id, props := range delta {
		cp[id] = props.Clone()
	}
	f.emit(func(l appinfo.Listener) { l.Updated(cp) })
}

// Merge applies delta to stored applications without emitting an event.
// Unknown identifiers are ignored.
func (f *FakeDB) Merge(delta appinfo.InfoMap) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, props := range delta {
		if cur, ok := f.apps[id]; ok {
			maps.Copy(cur, props)
		}
	}
}

// Remove deletes applications and emits Deleted with every given id.
func (f *FakeDB) Remove(ids ...string) {
	f.mu.Lock()
	for _, id := range ids {
		delete(f.apps, id)
	}
	f.mu.Unlock()
	f.emit(func(l appinfo.Listener) { l.Deleted(slices.Clone(ids)) })
}

// RefreshAll emits UpdatedAll.
func (f *FakeDB) RefreshAll(ids ...string) {
	f.emit(func(l appinfo.Listener) { l.UpdatedAll(slices.Clone(ids)) })
}

// Fail emits OpenFailed.
func (f *FakeDB) Fail() {
	f.emit(func(l appinfo.Listener) { l.OpenFailed() })
}

// Calls returns the mutation calls made so far.
func (f *FakeDB) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Props returns a copy of the stored properties for id.
func (f *FakeDB) Props(id string) (appinfo.PropertyMap, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.apps[id]
	return p.Clone(), ok
}

// FetchAll implements appinfo.Database.
func (f *FakeDB) FetchAll(_ context.Context, props []appinfo.Property, filter appinfo.PropertyMap) (appinfo.InfoMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(appinfo.InfoMap)
	for id, p := range f.apps {
		if p.Matches(filter) {
			out[id] = p.Select(props)
		}
	}
	return out, nil
}

// FetchOne implements appinfo.Database.
func (f *FakeDB) FetchOne(_ context.Context, id string, props []appinfo.Property) (appinfo.PropertyMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	p, ok := f.apps[id]
	if !ok {
		return nil, appinfo.ErrNotFound
	}
	return p.Select(props), nil
}

// SetFavoriteRank implements appinfo.Database.
func (f *FakeDB) SetFavoriteRank(_ context.Context, id string, rank int) error {
	return f.write(Call{Op: "favorite", ID: id, Rank: rank}, appinfo.PropFavorites, appinfo.Int(rank))
}

// SetTopRank implements appinfo.Database.
func (f *FakeDB) SetTopRank(_ context.Context, id string, rank int) error {
	return f.write(Call{Op: "top", ID: id, Rank: rank}, appinfo.PropTop, appinfo.Int(rank))
}

// SetLaunchedState implements appinfo.Database.
func (f *FakeDB) SetLaunchedState(_ context.Context, id string) error {
	return f.write(Call{Op: "launched", ID: id, Rank: 1}, appinfo.PropLaunched, appinfo.Int(1))
}

func (f *FakeDB) write(c Call, p appinfo.Property, v appinfo.Value) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	cur, ok := f.apps[c.ID]
	if !ok {
		f.mu.Unlock()
		return appinfo.ErrNotFound
	}
	if f.dropWrite {
		f.mu.Unlock()
		return nil
	}
	cur[p] = v
	echo := f.echo
	f.mu.Unlock()

	if echo {
		f.emit(func(l appinfo.Listener) {
			l.Updated(appinfo.InfoMap{c.ID: {p: v}})
		})
	}
	return nil
}

// Subscribe implements appinfo.Database.
func (f *FakeDB) Subscribe(l appinfo.Listener) (cancel func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.listeners = append(f.listeners, fakeListener{id: id, l: l})
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listeners = slices.DeleteFunc(f.listeners, func(fl fakeListener) bool { return fl.id == id })
	}
}

func (f *FakeDB) emit(fn func(l appinfo.Listener)) {
	f.mu.Lock()
	ls := slices.Clone(f.listeners)
	f.mu.Unlock()
	for _, fl := range ls {
		fn(fl.l)
	}
}
