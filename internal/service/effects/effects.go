// Package effects runs the post-commit side effects shared by the services:
// read-model invalidation, live change fan-out and claim notifications.
// Failures are logged and never surface to the caller.
package effects

import (
	"context"
	"io"
	"log/slog"

	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/notify"
)

type Invalidator interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID int64, kind string) error
}

type Effects struct {
	cache    Invalidator
	pubsub   Publisher
	notifier notify.Notifier
	logger   *slog.Logger
}

// New builds Effects; any collaborator may be nil.
func New(cache Invalidator, pubsub Publisher, notifier notify.Notifier, logger *slog.Logger) *Effects {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Effects{
		cache:    cache,
		pubsub:   pubsub,
		notifier: notifier,
		logger:   logger,
	}
}

func (e *Effects) Logger() *slog.Logger { return e.logger }

// EventChanged drops cached read models of the event and announces the change.
func (e *Effects) EventChanged(ctx context.Context, eventID int64, kind string) {
	if e.cache != nil {
		if err := e.cache.InvalidateEvent(ctx, eventID); err != nil {
			e.logger.Warn("cache invalidation failed", "event_id", eventID, "error", err)
		}
	}

	if e.pubsub != nil {
		if err := e.pubsub.PublishEventChanged(ctx, eventID, kind); err != nil {
			e.logger.Warn("change publish failed", "event_id", eventID, "kind", kind, "error", err)
		}
	}
}

// ClaimChanged hands a committed transition to the notifier.
func (e *Effects) ClaimChanged(ctx context.Context, ev domain.ClaimEvent) {
	e.logger.Info("claim transition",
		"claim_id", ev.ClaimID,
		"timeslot_id", ev.TimeslotID,
		"event_id", ev.EventID,
		"from", ev.From,
		"to", ev.To,
	)

	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.Warn("notify failed", "claim_id", ev.ClaimID, "error", err)
	}
}
