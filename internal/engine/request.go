package engine

import (
	"context"
	"log/slog"
)

// RequestKind identifies a mutation request.
type RequestKind int

const (
	RequestPinFavorite RequestKind = iota + 1
	RequestReorderFavorite
	RequestPinTop
	RequestMarkLaunched
)

var requestKindNames = map[RequestKind]string{
	RequestPinFavorite:     "pin_favorite",
	RequestReorderFavorite: "reorder_favorite",
	RequestPinTop:          "pin_top",
	RequestMarkLaunched:    "mark_launched",
}

func (k RequestKind) String() string {
	if name, ok := requestKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Request is a fire-and-forget mutation forwarded to the backing database.
type Request struct {
	Kind  RequestKind
	ID    string
	Pin   bool // RequestPinFavorite: false unpins
	Rank  int  // RequestReorderFavorite, RequestPinTop
	Token string
}

// processRequest forwards a request to the backing database. The cache is
// never touched here: the database echoes an Updated event when it accepts
// the change.
func (w *Worker) processRequest(ctx context.Context, req Request) error {
	log := slog.With("kind", req.Kind, "id", req.ID, "token", req.Token)

	var err error
	switch req.Kind {
	case RequestPinFavorite:
		rank := 0
		if req.Pin {
			rank = w.cache.FavoriteCount() + 1
		}
		log.Debug("forwarding favorite rank", "rank", rank)
		err = w.db.SetFavoriteRank(ctx, req.ID, rank)

	case RequestReorderFavorite:
		rank := max(req.Rank, 0)
		log.Debug("forwarding favorite rank", "rank", rank)
		err = w.db.SetFavoriteRank(ctx, req.ID, rank)

	case RequestPinTop:
		rank := max(req.Rank, 0)
		log.Debug("forwarding top rank", "rank", rank)
		err = w.db.SetTopRank(ctx, req.ID, rank)

	case RequestMarkLaunched:
		rec, ok := w.cache.Get(req.ID)
		if !ok {
			log.Debug("launch request for unknown application dropped")
			w.metrics.EventsDropped.WithLabelValues(dropStale).Inc()
			return nil
		}
		if rec.Launched != 0 {
			return nil
		}
		err = w.db.SetLaunchedState(ctx, req.ID)

	default:
		return &RuntimeError{
			Code:    ErrCodeUnknownEvent,
			Message: "unknown request kind: " + req.Kind.String(),
			AppID:   req.ID,
			Token:   req.Token,
		}
	}

	w.metrics.RequestsSent.WithLabelValues(req.Kind.String()).Inc()
	if err != nil {
		w.metrics.RequestsFailed.WithLabelValues(req.Kind.String()).Inc()
		rerr := NewFetchError(req.Kind.String(), req.ID, err)
		rerr.Token = req.Token
		return rerr
	}
	return nil
}
