package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrRetryLater means the delivery was not applied and must be redelivered.
var ErrRetryLater = errors.New("event not processed; retry later")

// finishTimeout bounds the marker write after the handler returns, which runs
// even when the request budget is spent.
const finishTimeout = 2 * time.Second

type Result struct {
	EventID   string
	Kind      Kind
	Duplicate bool
	Outcome   Outcome
}

// Pipeline is the single path every webhook delivery takes:
// verify, gate, route, finish.
type Pipeline struct {
	verifier *Verifier
	gate     *Gate
	router   *Router
	metrics  *Metrics
	logger   *zap.Logger
	budget   time.Duration
}

func NewPipeline(verifier *Verifier, gate *Gate, router *Router, metrics *Metrics, logger *zap.Logger, budget time.Duration) *Pipeline {
	return &Pipeline{
		verifier: verifier,
		gate:     gate,
		router:   router,
		metrics:  metrics,
		logger:   logger,
		budget:   budget,
	}
}

// Process handles one raw delivery. The returned error is one of
// ErrMisconfigured, ErrInvalidSignature, ErrMalformedEvent or ErrRetryLater;
// a nil error means the delivery must be acknowledged.
func (p *Pipeline) Process(ctx context.Context, payload []byte, signature string) (Result, error) {
	started := time.Now()

	env, err := p.verifier.Verify(payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, ErrMisconfigured):
			p.logger.Error("webhook secret missing; rejecting delivery", zap.String("error_kind", "misconfigured"))
			p.metrics.observe(KindUnknown, "misconfigured", started)
		case errors.Is(err, ErrInvalidSignature):
			p.logger.Warn("webhook signature rejected", zap.String("error_kind", "invalid_signature"), zap.Error(err))
			p.metrics.observe(KindUnknown, "invalid_signature", started)
		default:
			p.logger.Warn("webhook envelope rejected", zap.String("error_kind", "malformed_event"), zap.Error(err))
			p.metrics.observe(KindUnknown, "malformed", started)
		}
		return Result{}, err
	}

	kind := env.Kind()
	res := Result{EventID: env.ID, Kind: kind}
	logger := p.logger.With(zap.String("event_id", env.ID), zap.String("event_type", env.Type))

	if p.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.budget)
		defer cancel()
	}

	ticket, decision, err := p.gate.Begin(ctx, env)
	if err != nil {
		logger.Error("processed-event store unavailable", zap.String("error_kind", "transient_store_failure"), zap.Error(err))
		p.metrics.observe(kind, "retryable", started)
		return res, fmt.Errorf("%w: %v", ErrRetryLater, err)
	}
	switch decision {
	case Duplicate:
		logger.Info("duplicate event acknowledged", zap.String("error_kind", "duplicate_event"))
		p.metrics.observe(kind, "duplicate", started)
		res.Duplicate = true
		return res, nil
	case InFlight:
		logger.Info("event is being processed by another delivery",
			zap.String("error_kind", "duplicate_event"),
			zap.Int("attempts", ticket.Attempts),
		)
		p.metrics.observe(kind, "in_flight", started)
		return res, fmt.Errorf("%w: delivery in flight", ErrRetryLater)
	}

	res.Outcome = p.router.Route(ctx, env)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := p.gate.Finish(fctx, ticket, res.Outcome); err != nil {
		// The effect is stored; a redelivery re-applies it idempotently.
		logger.Error("finishing event failed", zap.String("error_kind", "transient_store_failure"), zap.Error(err))
	}

	p.metrics.observe(kind, res.Outcome.Disposition.String(), started)
	if !res.Outcome.Final() {
		return res, fmt.Errorf("%w: %s: %v", ErrRetryLater, res.Outcome.Reason, res.Outcome.Err)
	}
	logger.Debug("event handled",
		zap.String("outcome", res.Outcome.Disposition.String()),
		zap.String("reason", res.Outcome.Reason),
		zap.Int("attempts", ticket.Attempts),
	)
	return res, nil
}
