package appdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// recorder collects listener calls as readable strings.
type recorder struct {
	mu     sync.Mutex
	events []string
	deltas []appinfo.InfoMap
}

func (r *recorder) listener() appinfo.Listener {
	return appinfo.ListenerFuncs{
		OnAdded:      func(ids []string) { r.add("added", ids) },
		OnUpdatedAll: func(ids []string) { r.add("updated_all", ids) },
		OnDeleted:    func(ids []string) { r.add("deleted", ids) },
		OnOpenFailed: func() { r.add("open_failed", nil) },
		OnUpdated: func(d appinfo.InfoMap) {
			r.mu.Lock()
			r.deltas = append(r.deltas, d)
			r.mu.Unlock()
			r.add("updated", d.SortedIDs())
		},
	}
}

func (r *recorder) add(kind string, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+" "+joinIDs(ids))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) lastDelta() appinfo.InfoMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deltas[len(r.deltas)-1]
}

func joinIDs(ids []string) string {
	out := "["
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out + "]"
}

func createTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apps.db")
	d, err := Open(path)
	require.NoError(t, err)
	d.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { d.Close() })
	return d
}

func visible(name string) appinfo.PropertyMap {
	return appinfo.PropertyMap{
		appinfo.PropLocalName:      appinfo.String(name),
		appinfo.PropIcon:           appinfo.String(name),
		appinfo.PropCategory:       appinfo.String("Utility"),
		appinfo.PropFirstLetterAll: appinfo.String(name[:1]),
	}
}

func TestOpen_ConfiguresDatabase(t *testing.T) {
	d := createTestDB(t)

	var mode string
	require.NoError(t, d.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, d.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps.db")
	for i := 0; i < 3; i++ {
		d, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, d.Close())
	}
}

func TestDB_UpsertInsertEmitsAdded(t *testing.T) {
	d := createTestDB(t)
	rec := &recorder{}
	d.Subscribe(rec.listener())
	ctx := context.Background()

	require.NoError(t, d.Upsert(ctx, "/a.desktop", visible("Alpha")))

	assert.Equal(t, []string{"added [/a.desktop]"}, rec.all())
	props, err := d.FetchOne(ctx, "/a.desktop", appinfo.RecordProperties)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", props.String(appinfo.PropLocalName))
	assert.Equal(t, "/a.desktop", props.String(appinfo.PropDesktopFilePath))
	assert.Equal(t, "2024-01-02 03:04:05", props.String(appinfo.PropInsertTime))
	assert.Equal(t, appinfo.Int(0), props[appinfo.PropFavorites])
}

func TestDB_UpsertUpdateEmitsOnlyChanges(t *testing.T) {
	d := createTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, "/a.desktop", visible("Alpha")))
	rec := &recorder{}
	d.Subscribe(rec.listener())

	changed := visible("Alpha")
	changed[appinfo.PropCategory] = appinfo.String("Game")
	changed[appinfo.PropLaunchTimes] = appinfo.Int(3)
	require.NoError(t, d.Upsert(ctx, "/a.desktop", changed))

	require.Equal(t, []string{"updated [/a.desktop]"}, rec.all())
	assert.Equal(t, appinfo.InfoMap{"/a.desktop": {
		appinfo.PropCategory:    appinfo.String("Game"),
		appinfo.PropLaunchTimes: appinfo.Int(3),
	}}, rec.lastDelta())

	// Same values again: nothing to announce.
	require.NoError(t, d.Upsert(ctx, "/a.desktop", changed))
	assert.Len(t, rec.all(), 1)
}

func TestDB_UpsertRejectsEmptyID(t *testing.T) {
	d := createTestDB(t)
	assert.Error(t, d.Upsert(context.Background(), "", visible("A")))
}

func TestDB_FetchAllFilterAndProjection(t *testing.T) {
	d := createTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, "/a.desktop", visible("Alpha")))
	hidden := visible("Hidden")
	hidden[appinfo.PropDontDisplay] = appinfo.Int(1)
	require.NoError(t, d.Upsert(ctx, "/h.desktop", hidden))
	autostart := visible("Daemon")
	autostart[appinfo.PropAutoStart] = appinfo.Int(1)
	require.NoError(t, d.Upsert(ctx, "/d.desktop", autostart))

	got, err := d.FetchAll(ctx, []appinfo.Property{appinfo.PropLocalName, appinfo.PropLocalName}, appinfo.VisibleFilter())
	require.NoError(t, err)
	assert.Equal(t, appinfo.InfoMap{
		"/a.desktop": {appinfo.PropLocalName: appinfo.String("Alpha")},
	}, got)

	all, err := d.FetchAll(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.desktop", "/d.desktop", "/h.desktop"}, all.SortedIDs())
}

func TestDB_FetchOneUnknown(t *testing.T) {
	d := createTestDB(t)
	_, err := d.FetchOne(context.Background(), "/nope.desktop", appinfo.RecordProperties)
	assert.ErrorIs(t, err, appinfo.ErrNotFound)
}

func TestDB_SettersEcho(t *testing.T) {
	d := createTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, "/a.desktop", visible("Alpha")))
	rec := &recorder{}
	d.Subscribe(rec.listener())

	require.NoError(t, d.SetFavoriteRank(ctx, "/a.desktop", 2))
	assert.Equal(t, appinfo.InfoMap{"/a.desktop": {appinfo.PropFavorites: appinfo.Int(2)}}, rec.lastDelta())
	require.NoError(t, d.SetTopRank(ctx, "/a.desktop", 1))
	assert.Equal(t, appinfo.InfoMap{"/a.desktop": {appinfo.PropTop: appinfo.Int(1)}}, rec.lastDelta())
	require.NoError(t, d.SetLaunchedState(ctx, "/a.desktop"))
	assert.Equal(t, appinfo.InfoMap{"/a.desktop": {appinfo.PropLaunched: appinfo.Int(1)}}, rec.lastDelta())

	// Setting the same value still echoes.
	require.NoError(t, d.SetLaunchedState(ctx, "/a.desktop"))
	assert.Len(t, rec.all(), 4)

	props, err := d.FetchOne(ctx, "/a.desktop", appinfo.RecordProperties)
	require.NoError(t, err)
	assert.Equal(t, int64(2), props.Int(appinfo.PropFavorites))
	assert.Equal(t, int64(1), props.Int(appinfo.PropTop))
	assert.Equal(t, int64(1), props.Int(appinfo.PropLaunched))

	assert.ErrorIs(t, d.SetTopRank(ctx, "/ghost.desktop", 1), appinfo.ErrNotFound)
	assert.Len(t, rec.all(), 4)
}

func TestDB_DeleteEmitsExistingOnly(t *testing.T) {
	d := createTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, "/a.desktop", visible("Alpha")))
	rec := &recorder{}
	d.Subscribe(rec.listener())

	require.NoError(t, d.Delete(ctx, "/ghost.desktop"))
	require.NoError(t, d.Delete(ctx, "/a.desktop", "/ghost.desktop"))

	assert.Equal(t, []string{"deleted [/a.desktop]"}, rec.all())
	_, err := d.FetchOne(ctx, "/a.desktop", nil)
	assert.ErrorIs(t, err, appinfo.ErrNotFound)
}

func TestDB_RefreshAndFail(t *testing.T) {
	d := createTestDB(t)
	rec := &recorder{}
	cancel := d.Subscribe(rec.listener())

	d.Refresh("/a.desktop")
	d.Fail()
	cancel()
	d.Fail()

	assert.Equal(t, []string{"updated_all [/a.desktop]", "open_failed []"}, rec.all())
}

func TestDB_RescanSeesOtherWriters(t *testing.T) {
	d := createTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, "/a.desktop", visible("Alpha")))
	require.NoError(t, d.Upsert(ctx, "/b.desktop", visible("Beta")))

	other, err := Open(d.Path())
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.Upsert(ctx, "/c.desktop", visible("Gamma")))
	require.NoError(t, other.SetFavoriteRank(ctx, "/a.desktop", 1))
	require.NoError(t, other.Delete(ctx, "/b.desktop"))

	rec := &recorder{}
	d.Subscribe(rec.listener())
	n, err := d.Rescan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{
		"added [/c.desktop]",
		"updated [/a.desktop]",
		"deleted [/b.desktop]",
	}, rec.all())
	assert.Equal(t, appinfo.InfoMap{"/a.desktop": {appinfo.PropFavorites: appinfo.Int(1)}}, rec.deltas[0])

	// Nothing changed since: a second rescan is silent.
	n, err = d.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDB_OwnWritesDoNotRescan(t *testing.T) {
	d := createTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.Upsert(ctx, "/a.desktop", visible("Alpha")))
	require.NoError(t, d.SetTopRank(ctx, "/a.desktop", 3))

	n, err := d.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// insertExternally adds a row through a separate connection, bypassing d.
func insertExternally(t *testing.T, d *DB, id, name string) {
	t.Helper()
	other, err := sql.Open("sqlite3", d.Path())
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Exec(
		"INSERT INTO applications (desktop_file_path, local_name, category) VALUES (?, ?, ?)",
		id, name, "Utility",
	)
	require.NoError(t, err)
}

func TestDB_SetOnUnannouncedRowEmitsAdded(t *testing.T) {
	d := createTestDB(t)
	ctx := context.Background()
	insertExternally(t, d, "/x.desktop", "Xray")

	rec := &recorder{}
	d.Subscribe(rec.listener())
	require.NoError(t, d.SetFavoriteRank(ctx, "/x.desktop", 1))
	assert.Equal(t, []string{"added [/x.desktop]"}, rec.all())

	// The row is now announced in full: a rescan has nothing to add.
	n, err := d.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, d.SetTopRank(ctx, "/x.desktop", 2))
	assert.Equal(t, "updated [/x.desktop]", rec.all()[1])
	assert.Equal(t, appinfo.InfoMap{"/x.desktop": {appinfo.PropTop: appinfo.Int(2)}}, rec.lastDelta())
}

func TestDB_RescanAfterSetOnUnannouncedRow(t *testing.T) {
	d := createTestDB(t)
	ctx := context.Background()
	insertExternally(t, d, "/x.desktop", "Xray")
	require.NoError(t, d.SetFavoriteRank(ctx, "/x.desktop", 1))

	insertExternally(t, d, "/y.desktop", "Yankee")
	rec := &recorder{}
	d.Subscribe(rec.listener())
	_, err := d.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"added [/y.desktop]"}, rec.all())

	props, err := d.FetchOne(ctx, "/x.desktop", appinfo.RecordProperties)
	require.NoError(t, err)
	assert.Equal(t, int64(1), props.Int(appinfo.PropFavorites))
	assert.Equal(t, "Xray", props.String(appinfo.PropLocalName))
}

func TestDB_UpsertOnUnannouncedRowUpdatesInPlace(t *testing.T) {
	d := createTestDB(t)
	ctx := context.Background()
	insertExternally(t, d, "/x.desktop", "Xray")

	rec := &recorder{}
	d.Subscribe(rec.listener())
	require.NoError(t, d.Upsert(ctx, "/x.desktop", appinfo.PropertyMap{appinfo.PropLocalName: appinfo.String("X-ray")}))
	assert.Equal(t, []string{"added [/x.desktop]"}, rec.all())

	props, err := d.FetchOne(ctx, "/x.desktop", appinfo.RecordProperties)
	require.NoError(t, err)
	assert.Equal(t, "X-ray", props.String(appinfo.PropLocalName))
	assert.Equal(t, "Utility", props.String(appinfo.PropCategory))

	n, err := d.Rescan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
