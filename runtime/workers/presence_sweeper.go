package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/carladovalle/bate-papo-uol-api/contract"
	"github.com/carladovalle/bate-papo-uol-api/domain"
)

// LeftRoomNotice is the body of the status message emitted when a
// participant is evicted for inactivity.
const LeftRoomNotice = "sai da sala..."

// PresenceSweeper periodically evicts participants whose heartbeat went
// silent and posts one departure notice per eviction. A failed notice is
// logged and never stops the sweep or the worker; the participant is
// already gone at that point.
type PresenceSweeper struct {
	log        *slog.Logger
	registry   contract.ParticipantRegistry
	messages   contract.MessageLog
	clock      contract.Clock
	interval   time.Duration
	staleAfter time.Duration
}

func NewPresenceSweeper(
	log *slog.Logger,
	registry contract.ParticipantRegistry,
	messages contract.MessageLog,
	clock contract.Clock,
	interval, staleAfter time.Duration,
) *PresenceSweeper {
	return &PresenceSweeper{
		log:        log,
		registry:   registry,
		messages:   messages,
		clock:      clock,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

func (w *PresenceSweeper) Run(ctx context.Context) error {
	w.log.Info("Starting presence sweeper", "interval", w.interval, "staleAfter", w.staleAfter)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction cycle. The eviction decision happens inside the
// registry under its lock; the departure notices are appended here, after
// the lock is long gone.
func (w *PresenceSweeper) Sweep(ctx context.Context) {
	threshold := w.clock.Now().Add(-w.staleAfter)
	evicted := w.registry.EvictStaleBefore(threshold)

	for _, p := range evicted {
		_, err := w.messages.Append(ctx, domain.MessageInput{
			From: p.Name,
			To:   domain.Broadcast,
			Text: LeftRoomNotice,
			Kind: domain.KindStatus,
		})
		if err != nil {
			w.log.Error("Failed to post departure notice", "name", p.Name, "err", err)
			continue
		}
		w.log.Info("Participant evicted", "name", p.Name, "lastHeartbeat", p.LastHeartbeat)
	}
}
