package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

func rec(id string, fav int) appinfo.Record {
	return appinfo.Record{ID: id, Name: id, Favorite: fav}
}

func ids(records []appinfo.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestStore_UpsertAndGet(t *testing.T) {
	s := New()
	s.Upsert(rec("a", 0))

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Name)

	_, ok = s.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestStore_UpsertReplacesInPlace(t *testing.T) {
	s := New()
	s.Upsert(rec("a", 0))
	s.Upsert(rec("b", 0))

	updated := rec("a", 0)
	updated.Name = "Alpha"
	s.Upsert(updated)

	assert.Equal(t, []string{"a", "b"}, ids(s.All()))
	got, _ := s.Get("a")
	assert.Equal(t, "Alpha", got.Name)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	s := New()
	s.Upsert(rec("a", 1))

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.False(t, s.Remove("never"))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Favorites())
}

func TestStore_FavoritesFollowMutations(t *testing.T) {
	s := New()
	err := s.Update(func(tx *Tx) error {
		tx.Upsert(rec("a", 2))
		tx.Upsert(rec("b", 0))
		tx.Upsert(rec("c", 1))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(s.Favorites()))

	_ = s.Update(func(tx *Tx) error {
		b, ok := tx.Get("b")
		require.True(t, ok)
		b.Favorite = 3
		tx.Upsert(b)
		return nil
	})
	assert.Equal(t, []string{"c", "a", "b"}, ids(s.Favorites()))
	assert.Equal(t, 3, s.FavoriteCount())
}

func TestStore_FavoriteTiesUseInsertionOrder(t *testing.T) {
	s := New()
	s.Upsert(rec("z", 1))
	s.Upsert(rec("a", 1))
	assert.Equal(t, []string{"z", "a"}, ids(s.Favorites()))
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	s.Upsert(rec("a", 1))

	all := s.All()
	all[0].Name = "changed"
	favs := s.Favorites()
	favs[0].Favorite = 99

	got, _ := s.Get("a")
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, 1, got.Favorite)
}

func TestStore_UpdateErrorStillRebuilds(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	err := s.Update(func(tx *Tx) error {
		tx.Upsert(rec("a", 1))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, ids(s.Favorites()))
}

func TestStore_GenerationAdvancesOnlyOnChange(t *testing.T) {
	s := New()
	g0 := s.Generation()

	_ = s.Update(func(tx *Tx) error { return nil })
	assert.Equal(t, g0, s.Generation())

	_ = s.Update(func(tx *Tx) error {
		tx.Remove("unknown")
		return nil
	})
	assert.Equal(t, g0, s.Generation())

	s.Upsert(rec("a", 0))
	assert.Equal(t, g0+1, s.Generation())
}

func TestTx_ReadsSeeOwnWrites(t *testing.T) {
	s := New()
	_ = s.Update(func(tx *Tx) error {
		_, ok := tx.Get("x")
		assert.False(t, ok)
		tx.Upsert(rec("x", 0))
		assert.True(t, tx.Has("x"))
		assert.Equal(t, 1, tx.Len())
		return nil
	})
}

// Readers racing a writer must never see a favorites list that disagrees
// with the records of the same snapshot.
func TestStore_SnapshotConsistentUnderConcurrency(t *testing.T) {
	s := New()
	const rounds = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = s.Update(func(tx *Tx) error {
				id := fmt.Sprintf("app-%d", i%10)
				if tx.Has(id) {
					tx.Remove(id)
				} else {
					tx.Upsert(rec(id, i%3))
				}
				return nil
			})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				snap := s.Snapshot()
				byID := make(map[string]appinfo.Record, len(snap.Records))
				for _, r := range snap.Records {
					byID[r.ID] = r
				}
				want := 0
				for _, r := range snap.Records {
					if r.IsFavorite() {
						want++
					}
				}
				if !assert.Len(t, snap.Favorites, want) {
					return
				}
				prev := 0
				for _, f := range snap.Favorites {
					stored, ok := byID[f.ID]
					if !assert.True(t, ok) || !assert.Equal(t, stored, f) {
						return
					}
					if !assert.GreaterOrEqual(t, f.Favorite, prev) {
						return
					}
					prev = f.Favorite
				}
			}
		}()
	}
	wg.Wait()
}
