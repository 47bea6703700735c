package appinfo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Database.FetchOne for an unknown identifier.
var ErrNotFound = errors.New("application not found")

// Listener receives change events from a backing application database.
//
// Implementations must not block: a database delivers events from its own
// goroutine, in order, and the next event waits until the call returns.
type Listener interface {
	// Added reports newly indexed applications by identifier only.
	Added(ids []string)

	// Updated reports changed properties; each map holds only the
	// properties that changed.
	Updated(delta InfoMap)

	// UpdatedAll asks for a full re-fetch of the named applications.
	UpdatedAll(ids []string)

	// Deleted reports removed applications.
	Deleted(ids []string)

	// OpenFailed reports that the database could not be opened or has
	// become unreachable.
	OpenFailed()
}

// Database is the backing application database: the source of truth for
// installed-application metadata and user favorite/top/launch state.
type Database interface {
	// FetchAll returns every application matching filter, restricted to props.
	FetchAll(ctx context.Context, props []Property, filter PropertyMap) (InfoMap, error)

	// FetchOne returns props for a single application, or ErrNotFound.
	FetchOne(ctx context.Context, id string, props []Property) (PropertyMap, error)

	// SetFavoriteRank sets the favorite position; 0 removes the favorite.
	SetFavoriteRank(ctx context.Context, id string, rank int) error

	// SetTopRank sets the top-pin priority; 0 unpins.
	SetTopRank(ctx context.Context, id string, rank int) error

	// SetLaunchedState marks the application as having been launched.
	SetLaunchedState(ctx context.Context, id string) error

	// Subscribe registers l for change events. The returned function
	// removes the registration.
	Subscribe(l Listener) (cancel func())
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are no-ops.
type ListenerFuncs struct {
	OnAdded      func(ids []string)
	OnUpdated    func(delta InfoMap)
	OnUpdatedAll func(ids []string)
	OnDeleted    func(ids []string)
	OnOpenFailed func()
}

// Added calls OnAdded if set.
func (f ListenerFuncs) Added(ids []string) {
	if f.OnAdded != nil {
		f.OnAdded(ids)
	}
}

// Updated calls OnUpdated if set.
func (f ListenerFuncs) Updated(delta InfoMap) {
	if f.OnUpdated != nil {
		f.OnUpdated(delta)
	}
}

// UpdatedAll calls OnUpdatedAll if set.
func (f ListenerFuncs) UpdatedAll(ids []string) {
	if f.OnUpdatedAll != nil {
		f.OnUpdatedAll(ids)
	}
}

// Deleted calls OnDeleted if set.
func (f ListenerFuncs) Deleted(ids []string) {
	if f.OnDeleted != nil {
		f.OnDeleted(ids)
	}
}

// OpenFailed calls OnOpenFailed if set.
func (f ListenerFuncs) OpenFailed() {
	if f.OnOpenFailed != nil {
		f.OnOpenFailed()
	}
}
