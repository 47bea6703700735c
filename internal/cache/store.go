package cache

import (
	"slices"
	"sync"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// Store is the authoritative mapping from application identifier to record.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// serialized with each other and with snapshot reads.
type Store struct {
	mu         sync.RWMutex
	records    map[string]*appinfo.Record
	order      []string // insertion order, used for stable favorite tie-breaks
	favorites  Favorites
	generation uint64
}

// Snapshot is a consistent copy of the cache taken under one lock.
type Snapshot struct {
	Generation uint64
	Records    []appinfo.Record
	Favorites  []appinfo.Record
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]*appinfo.Record),
	}
}

// Update runs fn with exclusive access to the store. If fn mutated anything,
// the favorites projection is rebuilt and the generation advanced before the
// lock is released, whatever fn returns.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{s: s}
	err := fn(tx)
	tx.s = nil

	if tx.changed {
		s.favorites.Rebuild(s.orderedLocked())
		s.generation++
	}
	return err
}

// Upsert inserts or replaces a single record.
func (s *Store) Upsert(rec appinfo.Record) {
	_ = s.Update(func(tx *Tx) error {
		tx.Upsert(rec)
		return nil
	})
}

// Remove deletes a record. Removing an unknown identifier returns false.
func (s *Store) Remove(id string) bool {
	var removed bool
	_ = s.Update(func(tx *Tx) error {
		removed = tx.Remove(id)
		return nil
	})
	return removed
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (appinfo.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return appinfo.Record{}, false
	}
	return *r, true
}

// Has reports whether id is cached.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// All returns copies of every record in insertion order.
func (s *Store) All() []appinfo.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allLocked()
}

// Favorites returns copies of the favorited records in projection order.
func (s *Store) Favorites() []appinfo.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.favoritesLocked()
}

// FavoriteCount returns the size of the favorites projection.
func (s *Store) FavoriteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.favorites.Len()
}

// Snapshot returns records and favorites from the same generation.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Generation: s.generation,
		Records:    s.allLocked(),
		Favorites:  s.favoritesLocked(),
	}
}

// Len returns the number of cached records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Generation returns a counter that advances on every mutating Update.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Store) allLocked() []appinfo.Record {
	out := make([]appinfo.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

func (s *Store) favoritesLocked() []appinfo.Record {
	out := make([]appinfo.Record, 0, s.favorites.Len())
	for _, id := range s.favorites.ids {
		if r, ok := s.records[id]; ok {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Store) orderedLocked() []*appinfo.Record {
	out := make([]*appinfo.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Tx is the write handle passed to Update callbacks.
// It is only valid for the duration of the callback.
type Tx struct {
	s       *Store
	changed bool
}

// Upsert inserts rec, or replaces the record with the same identifier while
// keeping its position in iteration order.
func (tx *Tx) Upsert(rec appinfo.Record) {
	if existing, ok := tx.s.records[rec.ID]; ok {
		*existing = rec
	} else {
		r := rec
		tx.s.records[rec.ID] = &r
		tx.s.order = append(tx.s.order, rec.ID)
	}
	tx.changed = true
}

// Remove deletes id and reports whether it was present.
func (tx *Tx) Remove(id string) bool {
	if _, ok := tx.s.records[id]; !ok {
		return false
	}
	delete(tx.s.records, id)
	if i := slices.Index(tx.s.order, id); i >= 0 {
		tx.s.order = slices.Delete(tx.s.order, i, i+1)
	}
	tx.changed = true
	return true
}

// Get returns a copy of the record for id.
func (tx *Tx) Get(id string) (appinfo.Record, bool) {
	r, ok := tx.s.records[id]
	if !ok {
		return appinfo.Record{}, false
	}
	return *r, true
}

// Has reports whether id is cached.
func (tx *Tx) Has(id string) bool {
	_, ok := tx.s.records[id]
	return ok
}

// Len returns the number of cached records.
func (tx *Tx) Len() int {
	return len(tx.s.records)
}
