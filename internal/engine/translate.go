package engine

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/text/unicode/norm"

	"github.com/LingmoOS/lingmo-menu/internal/appinfo"
)

// RecordFromProperties builds a full record for id from backing properties.
// The identifier always comes from id; DesktopFilePath is not consulted.
func RecordFromProperties(id string, props appinfo.PropertyMap) appinfo.Record {
	r := appinfo.Record{ID: id}
	ApplyProperties(&r, props)
	return r
}

// ApplyProperties overwrites the fields of r named by props and returns the
// set of fields it wrote. Properties that map to no record field, such as
// the ingestion flags, contribute nothing.
func ApplyProperties(r *appinfo.Record, props appinfo.PropertyMap) appinfo.FieldSet {
	var changed appinfo.FieldSet
	for _, p := range props.Keys() {
		changed |= applyProperty(r, p, props[p])
	}
	return changed
}

func applyProperty(r *appinfo.Record, p appinfo.Property, v appinfo.Value) appinfo.FieldSet {
	switch p {
	case appinfo.PropTop:
		r.Top = int(appinfo.ToInt(v))
		return appinfo.FieldSet(appinfo.FieldTop)
	case appinfo.PropLock:
		r.Locked = appinfo.ToInt(v) == 1
		return appinfo.FieldSet(appinfo.FieldLocked)
	case appinfo.PropFavorites:
		r.Favorite = int(appinfo.ToInt(v))
		return appinfo.FieldSet(appinfo.FieldFavorite)
	case appinfo.PropLaunchTimes:
		r.LaunchTimes = int(appinfo.ToInt(v))
		return appinfo.FieldSet(appinfo.FieldLaunchTimes)
	case appinfo.PropIcon:
		r.Icon = appinfo.IconPrefix + text(v)
		return appinfo.FieldSet(appinfo.FieldIcon)
	case appinfo.PropLocalName:
		r.Name = text(v)
		return appinfo.FieldSet(appinfo.FieldName)
	case appinfo.PropCategory:
		r.Category = text(v)
		return appinfo.FieldSet(appinfo.FieldCategory)
	case appinfo.PropFirstLetterAll:
		r.FirstLetter = text(v)
		return appinfo.FieldSet(appinfo.FieldFirstLetter)
	case appinfo.PropInsertTime:
		r.InsertTime = text(v)
		return appinfo.FieldSet(appinfo.FieldInsertTime)
	case appinfo.PropLaunched:
		r.Launched = int(appinfo.ToInt(v))
		return appinfo.FieldSet(appinfo.FieldLaunched)
	default:
		// DesktopFilePath is the primary key; DontDisplay and AutoStart
		// only gate ingestion.
		return 0
	}
}

// text converts a value to NFC so names from different indexers compare
// and sort the same way.
func text(v appinfo.Value) string {
	return norm.NFC.String(appinfo.ToString(v))
}

// fetchRecord fetches and converts one application. When filtered is true
// the ingestion filter is applied and ok is false for hidden applications.
// Fetch failures are logged and counted; they never abort a batch.
func (w *Worker) fetchRecord(ctx context.Context, id string, filtered bool) (appinfo.Record, bool) {
	props, err := w.db.FetchOne(ctx, id, appinfo.RecordProperties)
	if err != nil {
		if errors.Is(err, appinfo.ErrNotFound) {
			slog.Debug("application vanished before fetch", "id", id)
			w.metrics.EventsDropped.WithLabelValues(dropStale).Inc()
		} else {
			slog.Warn("fetch application failed", "id", id, "error", NewFetchError("fetch", id, err))
			w.metrics.EventsDropped.WithLabelValues(dropFetch).Inc()
		}
		return appinfo.Record{}, false
	}

	if filtered && !props.Matches(appinfo.VisibleFilter()) {
		slog.Debug("application filtered at ingestion",
			"id", id,
			"dont_display", props.Int(appinfo.PropDontDisplay),
			"auto_start", props.Int(appinfo.PropAutoStart),
		)
		w.metrics.EventsDropped.WithLabelValues(dropFiltered).Inc()
		return appinfo.Record{}, false
	}

	return RecordFromProperties(id, props), true
}

// unique returns ids with duplicates and empty strings removed, keeping the
// first occurrence.
func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
