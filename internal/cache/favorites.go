package cache

import (
	"cmp"
	"slices"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// Favorites is the favorites projection: identifiers of favorited records
// ordered by ascending favorite rank.
//
// It holds identifiers, not records. Resolve them against the Store while
// holding the store lock.
type Favorites struct {
	ids []string
}

// Rebuild recomputes the projection from records, which must be in Record
// Store iteration order. The sort is stable: records with equal rank keep
// their store order.
//
// The previous projection is replaced wholesale.
func (f *Favorites) Rebuild(records []*appinfo.Record) {
	picked := make([]*appinfo.Record, 0, len(f.ids))
	for _, r := range records {
		if r.IsFavorite() {
			picked = append(picked, r)
		}
	}

	slices.SortStableFunc(picked, func(a, b *appinfo.Record) int {
		return cmp.Compare(a.Favorite, b.Favorite)
	})

	ids := make([]string, len(picked))
	for i, r := range picked {
		ids[i] = r.ID
	}
	f.ids = ids
}

// IDs returns a copy of the ordered identifiers.
func (f *Favorites) IDs() []string {
	return slices.Clone(f.ids)
}

// Len returns the number of favorites.
func (f *Favorites) Len() int {
	return len(f.ids)
}
