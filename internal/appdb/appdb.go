package appdb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added partial index on applications.favorites
const currentSchemaVersion = 1

const insertTimeLayout = "2006-01-02 15:04:05"

// DB is a SQLite application database.
// Uses WAL mode so other processes can read while the menu writes.
type DB struct {
	db   *sql.DB
	path string
	now  func() time.Time

	// mu serializes writes, rescans and event emission.
	mu    sync.Mutex
	known appinfo.InfoMap // last state announced to listeners

	lmu       sync.Mutex
	listeners []subscription
	nextID    int
}

type subscription struct {
	id int
	l  appinfo.Listener
}

var _ appinfo.Database = (*DB)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	d := &DB{db: db, path: path, now: time.Now}
	known, err := d.query(context.Background(), appinfo.RecordProperties, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load applications: %w", err)
	}
	d.known = known

	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes favorited rows; the menu reads them on every start.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_applications_favorites
		ON applications(favorites) WHERE favorites > 0
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// Subscribe implements appinfo.Database.
func (d *DB) Subscribe(l appinfo.Listener) (cancel func()) {
	d.lmu.Lock()
	defer d.lmu.Unlock()

	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, subscription{id: id, l: l})

	return func() {
		d.lmu.Lock()
		defer d.lmu.Unlock()
		d.listeners = slices.DeleteFunc(d.listeners, func(s subscription) bool { return s.id == id })
	}
}

// emit must be called with d.mu held.
func (d *DB) emit(fn func(appinfo.Listener)) {
	d.lmu.Lock()
	subs := slices.Clone(d.listeners)
	d.lmu.Unlock()

	for _, s := range subs {
		fn(s.l)
	}
}

// FetchAll implements appinfo.Database. Results are restricted to props
// and to rows whose columns equal every value in filter.
func (d *DB) FetchAll(ctx context.Context, props []appinfo.Property, filter appinfo.PropertyMap) (appinfo.InfoMap, error) {
	return d.query(ctx, props, filter)
}

// FetchOne implements appinfo.Database.
func (d *DB) FetchOne(ctx context.Context, id string, props []appinfo.Property) (appinfo.PropertyMap, error) {
	infos, err := d.query(ctx, props, appinfo.PropertyMap{appinfo.PropDesktopFilePath: appinfo.String(id)})
	if err != nil {
		return nil, err
	}
	p, ok := infos[id]
	if !ok {
		return nil, appinfo.ErrNotFound
	}
	return p, nil
}

func (d *DB) query(ctx context.Context, props []appinfo.Property, filter appinfo.PropertyMap) (appinfo.InfoMap, error) {
	props = uniqueProps(props)
	cols := make([]column, len(props))
	names := []string{"desktop_file_path"}
	for i, p := range props {
		c, err := columnFor(p)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		cols[i] = c
		names = append(names, c.name)
	}

	var (
		conds []string
		args  []any
	)
	for _, p := range filter.Keys() {
		c, err := columnFor(p)
		if err != nil {
			return nil, fmt.Errorf("fetch filter: %w", err)
		}
		conds = append(conds, c.name+" = ?")
		args = append(args, c.sqlValue(filter[p]))
	}

	q := "SELECT " + strings.Join(names, ", ") + " FROM applications"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY desktop_file_path COLLATE BINARY"

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer rows.Close()

	out := make(appinfo.InfoMap)
	for rows.Next() {
		var id string
		dest := []any{&id}
		reads := make([]func() appinfo.Value, len(cols))
		for i, c := range cols {
			target, read := c.scanTarget()
			dest = append(dest, target)
			reads[i] = read
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("fetch: scan: %w", err)
		}
		pm := make(appinfo.PropertyMap, len(props))
		for i, p := range props {
			pm[p] = reads[i]()
		}
		out[id] = pm
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return out, nil
}

func uniqueProps(props []appinfo.Property) []appinfo.Property {
	out := make([]appinfo.Property, 0, len(props))
	for _, p := range props {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// Upsert inserts an application or updates the given properties of an
// existing one. An insert emits Added; an update emits Updated with only
// the properties whose stored value changed, or nothing at all. A row
// another process inserted since the last rescan is updated in place and
// announced with Added.
func (d *DB) Upsert(ctx context.Context, id string, props appinfo.PropertyMap) error {
	if id == "" {
		return errors.New("upsert: empty desktop file path")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cur, ok := d.known[id]
	if !ok {
		_, err := d.FetchOne(ctx, id, nil)
		switch {
		case errors.Is(err, appinfo.ErrNotFound):
			return d.insertLocked(ctx, id, props)
		case err != nil:
			return fmt.Errorf("upsert %s: %w", id, err)
		}
		// Inserted by another process and not rescanned yet.
		row := props.Clone()
		delete(row, appinfo.PropDesktopFilePath)
		if len(row) > 0 {
			if err := d.updateLocked(ctx, id, row); err != nil {
				return err
			}
		}
		return d.adoptLocked(ctx, id)
	}

	diff := make(appinfo.PropertyMap)
	for _, p := range props.Keys() {
		if p == appinfo.PropDesktopFilePath {
			continue
		}
		c, err := columnFor(p)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
		if !c.equal(cur[p], props[p]) {
			diff[p] = props[p]
		}
	}
	if len(diff) == 0 {
		return nil
	}

	if err := d.updateLocked(ctx, id, diff); err != nil {
		return err
	}
	d.emit(func(l appinfo.Listener) { l.Updated(appinfo.InfoMap{id: diff.Clone()}) })
	return nil
}

func (d *DB) insertLocked(ctx context.Context, id string, props appinfo.PropertyMap) error {
	row := props.Clone()
	if row == nil {
		row = make(appinfo.PropertyMap)
	}
	delete(row, appinfo.PropDesktopFilePath)
	if !row.Has(appinfo.PropInsertTime) {
		row[appinfo.PropInsertTime] = appinfo.String(d.now().Format(insertTimeLayout))
	}

	names := []string{"desktop_file_path"}
	args := []any{id}
	for _, p := range row.Keys() {
		c, err := columnFor(p)
		if err != nil {
			return fmt.Errorf("insert %s: %w", id, err)
		}
		names = append(names, c.name)
		args = append(args, c.sqlValue(row[p]))
	}
	q := fmt.Sprintf("INSERT INTO applications (%s) VALUES (%s)",
		strings.Join(names, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "),
	)
	if _, err := d.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert %s: %w", id, err)
	}

	return d.adoptLocked(ctx, id)
}

// adoptLocked loads the full row for id, records it as announced and emits
// Added.
func (d *DB) adoptLocked(ctx context.Context, id string) error {
	full, err := d.FetchOne(ctx, id, appinfo.RecordProperties)
	if err != nil {
		return fmt.Errorf("reload %s: %w", id, err)
	}
	d.known[id] = full
	d.emit(func(l appinfo.Listener) { l.Added([]string{id}) })
	return nil
}

func (d *DB) updateLocked(ctx context.Context, id string, diff appinfo.PropertyMap) error {
	var (
		sets []string
		args []any
	)
	for _, p := range diff.Keys() {
		c, err := columnFor(p)
		if err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		sets = append(sets, c.name+" = ?")
		args = append(args, c.sqlValue(diff[p]))
	}
	args = append(args, id)

	res, err := d.db.ExecContext(ctx,
		"UPDATE applications SET "+strings.Join(sets, ", ")+" WHERE desktop_file_path = ?",
		args...,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appinfo.ErrNotFound
	}

	// Rows not announced yet are left to the caller.
	cur, ok := d.known[id]
	if !ok {
		return nil
	}
	for p, v := range diff {
		c, _ := columnFor(p)
		cur[p] = normalizeValue(c, v)
	}
	return nil
}

func normalizeValue(c column, v appinfo.Value) appinfo.Value {
	if c.integer {
		return appinfo.Int(appinfo.ToInt(v))
	}
	return appinfo.String(appinfo.ToString(v))
}

// Delete removes applications and emits Deleted with the identifiers that
// existed.
func (d *DB) Delete(ctx context.Context, ids ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete: begin: %w", err)
	}
	defer tx.Rollback()

	var removed []string
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, "DELETE FROM applications WHERE desktop_file_path = ?", id)
		if err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed = append(removed, id)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete: commit: %w", err)
	}

	if len(removed) == 0 {
		return nil
	}
	for _, id := range removed {
		delete(d.known, id)
	}
	d.emit(func(l appinfo.Listener) { l.Deleted(slices.Clone(removed)) })
	return nil
}

// SetFavoriteRank implements appinfo.Database.
func (d *DB) SetFavoriteRank(ctx context.Context, id string, rank int) error {
	return d.set(ctx, id, appinfo.PropFavorites, appinfo.Int(rank))
}

// SetTopRank implements appinfo.Database.
func (d *DB) SetTopRank(ctx context.Context, id string, rank int) error {
	return d.set(ctx, id, appinfo.PropTop, appinfo.Int(rank))
}

// SetLaunchedState implements appinfo.Database.
func (d *DB) SetLaunchedState(ctx context.Context, id string) error {
	return d.set(ctx, id, appinfo.PropLaunched, appinfo.Int(1))
}

// set writes one property and always echoes it as an Updated event, even
// when the stored value did not change. A row another process inserted
// since the last rescan is announced with Added instead, so listeners
// fetch it in full.
func (d *DB) set(ctx context.Context, id string, p appinfo.Property, v appinfo.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, known := d.known[id]
	if err := d.updateLocked(ctx, id, appinfo.PropertyMap{p: v}); err != nil {
		return err
	}
	if !known {
		return d.adoptLocked(ctx, id)
	}
	d.emit(func(l appinfo.Listener) { l.Updated(appinfo.InfoMap{id: {p: v}}) })
	return nil
}

// Refresh asks listeners to re-fetch the named applications in full.
func (d *DB) Refresh(ids ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emit(func(l appinfo.Listener) { l.UpdatedAll(slices.Clone(ids)) })
}

// Fail reports the database as unavailable to listeners.
func (d *DB) Fail() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emit(func(l appinfo.Listener) { l.OpenFailed() })
}

// Rescan reads every row and emits the difference from the last announced
// state: Added for new rows, Updated with changed properties, Deleted for
// rows that disappeared. It returns the number of events emitted.
func (d *DB) Rescan(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, err := d.query(ctx, appinfo.RecordProperties, nil)
	if err != nil {
		return 0, fmt.Errorf("rescan: %w", err)
	}

	var (
		added   []string
		deleted []string
		delta   = make(appinfo.InfoMap)
	)
	for _, id := range current.SortedIDs() {
		old, ok := d.known[id]
		if !ok {
			added = append(added, id)
			continue
		}
		if diff := diffProps(old, current[id]); len(diff) > 0 {
			delta[id] = diff
		}
	}
	for _, id := range d.known.SortedIDs() {
		if _, ok := current[id]; !ok {
			deleted = append(deleted, id)
		}
	}
	d.known = current

	n := 0
	if len(added) > 0 {
		d.emit(func(l appinfo.Listener) { l.Added(slices.Clone(added)) })
		n++
	}
	if len(delta) > 0 {
		d.emit(func(l appinfo.Listener) {
			cp := make(appinfo.InfoMap, len(delta))
			for id, p := range delta {
				cp[id] = p.Clone()
			}
			l.Updated(cp)
		})
		n++
	}
	if len(deleted) > 0 {
		d.emit(func(l appinfo.Listener) { l.Deleted(slices.Clone(deleted)) })
		n++
	}
	return n, nil
}

func diffProps(old, cur appinfo.PropertyMap) appinfo.PropertyMap {
	diff := make(appinfo.PropertyMap)
	for _, p := range cur.Keys() {
		c, err := columnFor(p)
		if err != nil {
			continue
		}
		if !c.equal(old[p], cur[p]) {
			diff[p] = cur[p]
		}
	}
	return diff
}
