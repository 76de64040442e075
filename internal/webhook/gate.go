package webhook

import (
	"context"
	"fmt"
	"time"

	"creator-subscriptions/internal/domain/events"

	"go.uber.org/zap"
)

// EventStore persists processed-event markers.
type EventStore interface {
	ClaimEvent(ctx context.Context, eventID, eventType string, now time.Time, lease time.Duration) (*events.ProcessedEvent, events.Claim, error)
	MarkEventProcessed(ctx context.Context, id uint, now time.Time) error
	ReleaseEvent(ctx context.Context, id uint, processingErr string) error
}

// ProcessedCache is an optional fast path in front of the EventStore. It only
// ever remembers events that are already marked processed in the store.
type ProcessedCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

type Decision int

const (
	Proceed Decision = iota
	Duplicate
	InFlight
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Duplicate:
		return "duplicate"
	case InFlight:
		return "in_flight"
	}
	return "unknown"
}

// Ticket identifies a claimed delivery.
type Ticket struct {
	MarkerID uint
	EventID  string
	Attempts int
}

// Gate admits each event id at most once at a time and never again after it
// has been processed.
type Gate struct {
	store  EventStore
	cache  ProcessedCache
	lease  time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewGate returns a Gate. cache may be nil. lease bounds how long a crashed
// delivery can hold an event.
func NewGate(store EventStore, cache ProcessedCache, lease time.Duration, logger *zap.Logger) *Gate {
	return &Gate{store: store, cache: cache, lease: lease, logger: logger, now: time.Now}
}

func (g *Gate) Begin(ctx context.Context, env Envelope) (Ticket, Decision, error) {
	if g.cache != nil {
		seen, err := g.cache.Seen(ctx, env.ID)
		if err != nil {
			g.logger.Warn("processed-event cache lookup failed", zap.String("event_id", env.ID), zap.Error(err))
		} else if seen {
			return Ticket{EventID: env.ID}, Duplicate, nil
		}
	}

	marker, claim, err := g.store.ClaimEvent(ctx, env.ID, env.Type, g.now(), g.lease)
	if err != nil {
		return Ticket{}, InFlight, fmt.Errorf("claim event %s: %w", env.ID, err)
	}
	ticket := Ticket{MarkerID: marker.ID, EventID: env.ID, Attempts: marker.Attempts}

	switch claim {
	case events.ClaimAcquired:
		return ticket, Proceed, nil
	case events.ClaimProcessed:
		g.remember(ctx, env.ID)
		return ticket, Duplicate, nil
	default:
		return ticket, InFlight, nil
	}
}

// Finish records the outcome: final outcomes mark the event processed,
// retryable ones release the claim for the next delivery.
func (g *Gate) Finish(ctx context.Context, t Ticket, out Outcome) error {
	if !out.Final() {
		msg := out.Reason
		if out.Err != nil {
			msg = out.Err.Error()
		}
		if err := g.store.ReleaseEvent(ctx, t.MarkerID, msg); err != nil {
			return fmt.Errorf("release event %s: %w", t.EventID, err)
		}
		return nil
	}

	if err := g.store.MarkEventProcessed(ctx, t.MarkerID, g.now()); err != nil {
		return fmt.Errorf("mark event %s processed: %w", t.EventID, err)
	}
	g.remember(ctx, t.EventID)
	return nil
}

func (g *Gate) remember(ctx context.Context, eventID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Remember(ctx, eventID); err != nil {
		g.logger.Warn("processed-event cache write failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
