// Package sweeper drives automatic payouts: it periodically scans running
// circles and settles every cycle that is due.
package sweeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chainsave/circle-engine/internal/adapter"
	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/engine"
	"github.com/chainsave/circle-engine/internal/logger"
	"github.com/chainsave/circle-engine/internal/messaging"
	"github.com/chainsave/circle-engine/internal/store"
)

// Config holds payout sweeper configuration
type Config struct {
	// PlatformAddress is the caller identity of automatic payouts
	PlatformAddress domain.Address
	// BatchSize caps circles examined per page
	BatchSize int
}

// PayoutSweeper settles due cycles of running circles with auto payout
// enabled
type PayoutSweeper struct {
	config    Config
	engine    *engine.Engine
	store     store.Store
	publisher messaging.Publisher
	clock     adapter.Clock
}

// NewPayoutSweeper creates a new payout sweeper. The publisher may be nil
// when event publishing is disabled.
func NewPayoutSweeper(cfg Config, eng *engine.Engine, s store.Store, pub messaging.Publisher, clock adapter.Clock) *PayoutSweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &PayoutSweeper{
		config:    cfg,
		engine:    eng,
		store:     s,
		publisher: pub,
		clock:     clock,
	}
}

// Run performs one sweep over all running circles. Circles that are not due
// yet or have incomplete deposits are skipped; genuine failures are logged
// and the sweep continues.
func (s *PayoutSweeper) Run(ctx context.Context) error {
	now := s.clock.Now().UTC()
	running := domain.StatusRunning
	processed := 0
	skipped := 0

	var afterID uint64
	for {
		circles, err := s.store.ListCircles(ctx, store.CircleFilter{
			AfterID: afterID,
			Limit:   s.config.BatchSize,
			Status:  &running,
		})
		if err != nil {
			return err
		}
		if len(circles) == 0 {
			break
		}

		for i := range circles {
			circle := &circles[i]
			afterID = circle.CircleID

			// Manual-trigger circles reserve the payout to their organizers
			if !circle.AutoPayoutEnabled || circle.ManualTriggerEnabled {
				continue
			}
			if circle.NextPayoutDate == nil || now.Before(*circle.NextPayoutDate) {
				continue
			}

			result, err := s.engine.ProcessPayout(ctx, s.config.PlatformAddress, circle.CircleID)
			if err != nil {
				// Not-due and incomplete cycles are expected during a sweep
				if errors.Is(err, domain.ErrCycleNotReady) {
					skipped++
					continue
				}
				logger.ErrorCtx(ctx, err, zap.Uint64("circle_id", circle.CircleID))
				continue
			}

			processed++
			s.publish(ctx, result, now)
		}

		if len(circles) < s.config.BatchSize {
			break
		}
	}

	logger.InfoCtx(ctx, "Payout sweep finished",
		zap.Int("processed", processed),
		zap.Int("skipped", skipped),
		zap.Time("swept_at", now),
	)
	return nil
}

// publish forwards a committed payout to the broker; failures are logged
func (s *PayoutSweeper) publish(ctx context.Context, result *engine.Result, now time.Time) {
	if s.publisher == nil {
		return
	}

	event := &messaging.CircleEvent{
		CircleID:  result.CircleID,
		EventType: result.Action,
		Action:    result.Action,
		Caller:    s.config.PlatformAddress.String(),
		Atts:      result.Attributes,
		Timestamp: now,
	}
	for _, t := range result.Transfers {
		event.Transfers = append(event.Transfers, messaging.Transfer{
			ID:           t.ID,
			Recipient:    t.Recipient.String(),
			Denomination: t.Denomination,
			Amount:       t.Amount,
		})
	}

	if err := s.publisher.PublishCircleEvent(ctx, event); err != nil {
		logger.ErrorCtx(ctx, err, zap.Uint64("circle_id", result.CircleID))
	}
}
