package engine

import (
	"maps"
	"slices"
	"sync"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// NotificationKind identifies an outward change notification.
type NotificationKind int

const (
	RecordsAdded NotificationKind = iota + 1
	RecordsUpdated
	RecordsDeleted
	FavoritesChanged
	DatabaseUnavailable
)

var notificationKindNames = map[NotificationKind]string{
	RecordsAdded:        "records_added",
	RecordsUpdated:      "records_updated",
	RecordsDeleted:      "records_deleted",
	FavoritesChanged:    "favorites_changed",
	DatabaseUnavailable: "database_unavailable",
}

func (k NotificationKind) String() string {
	if name, ok := notificationKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Notification is one outward change notification.
//
// Only the fields relevant to Kind are set:
//   - RecordsAdded: Records
//   - RecordsUpdated: Records, GroupingRelevant, Changed
//   - RecordsDeleted: IDs
//   - FavoritesChanged, DatabaseUnavailable: nothing
//
// FavoritesChanged is a "please re-read" signal and carries no diff.
type Notification struct {
	Seq              int64
	Kind             NotificationKind
	Records          []appinfo.Record
	IDs              []string
	GroupingRelevant bool
	Changed          map[string]appinfo.FieldSet
}

func (n Notification) clone() Notification {
	n.Records = slices.Clone(n.Records)
	n.IDs = slices.Clone(n.IDs)
	n.Changed = maps.Clone(n.Changed)
	return n
}

// Bus fans notifications out to subscribers.
//
// Delivery is synchronous on the publishing goroutine, in subscription
// order, exactly once per subscriber per notification. Subscribers must not
// block and must not call back into the worker synchronously.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id int
	fn func(Notification)
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (b *Bus) Subscribe(fn func(Notification)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscriber) bool { return s.id == id })
	}
}

// Publish delivers n to every current subscriber. Each subscriber receives
// its own copy of the payload slices.
func (b *Bus) Publish(n Notification) {
	b.mu.Lock()
	subs := slices.Clone(b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(n.clone())
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
