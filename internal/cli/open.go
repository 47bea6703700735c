package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LingmoOS/lingmo-menu/internal/appdb"
	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
	"github.com/LingmoOS/lingmo-menu/internal/config"
	"github.com/LingmoOS/lingmo-menu/internal/engine"
	"github.com/LingmoOS/lingmo-menu/internal/manager"
)

// session is an open database with a running manager over it.
type session struct {
	db  *appdb.DB
	mgr *manager.Manager
}

// sessionOptions select the optional parts of a session.
type sessionOptions struct {
	withState  bool
	notify     func(engine.Notification)
	registerer prometheus.Registerer
}

func openDatabase(opts *RootOptions) (*appdb.DB, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "no database configured (use --db or LINGMO_MENU_DB)")
	}
	db, err := appdb.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return db, nil
}

// openSession opens the database and starts a manager over it. With
// withState the user state and default favorites are loaded, so a first
// run pushes the configured defaults.
func openSession(ctx context.Context, opts *RootOptions, so sessionOptions) (*session, error) {
	db, err := openDatabase(opts)
	if err != nil {
		return nil, err
	}

	mopts := manager.Options{
		Notify:     so.notify,
		Registerer: so.registerer,
	}
	if so.withState {
		if err := loadUserConfig(opts, &mopts); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	mgr, err := manager.New(ctx, db, mopts)
	if err != nil {
		_ = db.Close()
		return nil, WrapExitError(ExitFailure, "failed to start manager", err)
	}
	return &session{db: db, mgr: mgr}, nil
}

func loadUserConfig(opts *RootOptions, mopts *manager.Options) error {
	if opts.Settings != "" {
		settings, err := config.LoadSettings(opts.Settings)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load settings", err)
		}
		mopts.DefaultFavorites = settings.DefaultFavoriteApps
	}
	if opts.State != "" {
		state, err := config.LoadUserState(opts.State)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load user state", err)
		}
		mopts.State = state
	}
	return nil
}

// Close stops the manager, which processes already queued requests, then
// closes the database.
func (s *session) Close() error {
	return errors.Join(s.mgr.Close(), s.db.Close())
}

// requireRecord returns the cached record for id or a command error.
func (s *session) requireRecord(id string) (appinfo.Record, error) {
	rec, ok := s.mgr.Get(id)
	if !ok {
		return appinfo.Record{}, NewExitError(ExitFailure, fmt.Sprintf("application not found: %s", id))
	}
	return rec, nil
}
