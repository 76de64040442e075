package webhook

import (
	"context"
	"errors"

	"creator-subscriptions/internal/reconcile"

	"go.uber.org/zap"
)

// Router dispatches verified events to their handler and classifies the result.
type Router struct {
	table  map[Kind]HandlerFunc
	logger *zap.Logger
}

func NewRouter(reconciler *reconcile.Reconciler, recorder *reconcile.Recorder, logger *zap.Logger) *Router {
	return &Router{table: handlers(reconciler, recorder), logger: logger}
}

// Handles reports whether k has a handler.
func (r *Router) Handles(k Kind) bool {
	_, ok := r.table[k]
	return ok
}

func (r *Router) Route(ctx context.Context, env Envelope) Outcome {
	kind := env.Kind()
	handle, ok := r.table[kind]
	if !ok {
		r.logger.Info("unhandled event type",
			zap.String("error_kind", "unknown_event_type"),
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
		)
		return Skipped("unhandled event type")
	}

	err := handle(ctx, env)
	switch {
	case err == nil:
		return Applied()
	case errors.Is(err, errUndecodable):
		r.logger.Error("event payload rejected",
			zap.String("error_kind", "malformed_event"),
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err),
		)
		return Skipped("malformed payload")
	case errors.Is(err, reconcile.ErrNotTracked):
		r.logger.Debug("event refers to an untracked object",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err),
		)
		return Skipped("not tracked")
	case errors.Is(err, reconcile.ErrInvalidRequest):
		r.logger.Warn("event carries invalid data",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err),
		)
		return Skipped("invalid object")
	}

	r.logger.Warn("event handling failed; processor will redeliver",
		zap.String("error_kind", "transient_store_failure"),
		zap.String("event_id", env.ID),
		zap.String("event_type", env.Type),
		zap.Bool("transient", reconcile.IsTransient(err)),
		zap.Error(err),
	)
	return Retryable("handler failed", err)
}
