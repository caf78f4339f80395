package engine

import (
	"context"
	"fmt"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// ProcessPayout settles the current cycle: verifies the due date and deposit
// completeness, sweeps the locked join deposits of blocked non-depositors
// into the pot, takes platform and arbiter fees, pays the scheduled
// recipient, and advances the cycle. The first cycle may pay out at the
// circle's configured partial-deposit threshold instead of full completeness.
func (e *Engine) ProcessPayout(ctx context.Context, caller domain.Address, circleID uint64) (*Result, error) {
	var (
		recipient    domain.Address
		arbiter      *domain.Address
		denomination string
		cycle        uint32
		net          uint64
		platformFee  uint64
		arbiterFee   uint64
		swept        uint64
		completed    bool
	)
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if circle.Status != domain.StatusRunning {
			return domain.NewInvalidStatus("Running", circle.Status)
		}
		if err := authorizePayoutTrigger(circle, caller, e.platform.PlatformAddress); err != nil {
			return err
		}

		cycle = circle.CurrentCycleIndex
		denomination = circle.Denomination
		arbiter = circle.ArbiterAddress

		existing, err := tx.GetPayout(ctx, circleID, cycle)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.NewInvalidParameters(fmt.Sprintf("payout already processed for cycle %d", cycle))
		}

		now := e.clock.Now().UTC()
		if circle.NextPayoutDate != nil && now.Before(*circle.NextPayoutDate) {
			return domain.NewCycleNotReady(circle.NextPayoutDate.Unix())
		}

		blocked, err := blockedFromByMember(ctx, tx, circleID)
		if err != nil {
			return err
		}
		active := activeMembers(circle.Members, blocked, cycle)

		deposits, err := tx.ListDepositsByCycle(ctx, circleID, cycle)
		if err != nil {
			return err
		}
		deposited := make(map[domain.Address]bool, len(deposits))
		var baseSum uint64
		for _, d := range deposits {
			deposited[d.Member] = true
			baseSum, err = domain.CheckedAdd(baseSum, d.Amount)
			if err != nil {
				return domain.NewOverflow("deposit sum overflow")
			}
		}

		received := 0
		for _, m := range active {
			if deposited[m] {
				received++
			}
		}
		required := len(active)
		if cycle == 1 && circle.FirstDistributionThresholdPercent != nil {
			required = len(active) * int(*circle.FirstDistributionThresholdPercent) / 100
		}
		if received < required {
			return domain.NewDepositsIncomplete(required, received)
		}

		// Locked join deposits of blocked members who skipped this cycle
		// stand in for their missing contributions
		for member, from := range blocked {
			if from > cycle || deposited[member] {
				continue
			}
			lock, err := tx.GetMemberLock(ctx, circleID, member)
			if err != nil {
				return err
			}
			if lock == nil {
				continue
			}
			swept, err = domain.CheckedAdd(swept, lock.Amount)
			if err != nil {
				return domain.NewOverflow("swept lock sum overflow")
			}
			if err := tx.DeleteMemberLock(ctx, circleID, member); err != nil {
				return err
			}
		}

		gross, err := domain.CheckedAdd(baseSum, swept)
		if err != nil {
			return domain.NewOverflow("gross pot overflow")
		}

		platformFee, err = domain.BasisPoints(gross, circle.PlatformFeePercent)
		if err != nil {
			return domain.NewOverflow("platform fee overflow")
		}
		if circle.ArbiterFeePercent != nil && circle.ArbiterAddress != nil {
			arbiterFee, err = domain.BasisPoints(gross, *circle.ArbiterFeePercent)
			if err != nil {
				return domain.NewOverflow("arbiter fee overflow")
			}
		}

		net, err = domain.CheckedSub(gross, platformFee)
		if err != nil {
			return domain.NewOverflow("fee exceeds pot")
		}
		net, err = domain.CheckedSub(net, arbiterFee)
		if err != nil {
			return domain.NewOverflow("fee exceeds pot")
		}

		recipient, err = domain.PayoutRecipient(circle.PayoutOrder, cycle)
		if err != nil {
			return err
		}

		remaining, err := domain.CheckedSub(circle.TotalAmountLocked, gross)
		if err != nil {
			return domain.NewOverflow("escrow underflow on payout")
		}
		circle.TotalAmountLocked = remaining

		fees, err := domain.CheckedAdd(circle.TotalPlatformFeesCollected, platformFee)
		if err != nil {
			return domain.NewOverflow("platform fee total overflow")
		}
		circle.TotalPlatformFeesCollected = fees

		if err := tx.SavePayout(ctx, &schema.PayoutRecord{
			CircleID:  circleID,
			Cycle:     cycle,
			Recipient: recipient,
			Amount:    net,
			Timestamp: now,
		}); err != nil {
			return err
		}

		circle.MembersPaidThisCycle = []domain.Address{}
		circle.MembersLateThisCycle = []domain.Address{}
		circle.CyclesCompleted++
		circle.Status = domain.StatusAfterPayout(cycle, circle.TotalCycles)
		if circle.Status == domain.StatusCompleted {
			completed = true
		} else {
			circle.CurrentCycleIndex = cycle + 1
			if circle.NextPayoutDate != nil {
				circle.NextPayoutDate = timePtr(circle.NextPayoutDate.AddDate(0, 0, int(circle.CycleDurationDays)))
			}
		}
		circle.UpdatedAt = now

		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		meta := map[string]any{
			"cycle":        cycle,
			"recipient":    recipient,
			"gross":        gross,
			"swept_locks":  swept,
			"platform_fee": platformFee,
			"arbiter_fee":  arbiterFee,
			"net":          net,
		}
		return appendEvent(ctx, tx, circleID, EventPayoutProcessed,
			fmt.Sprintf("payout for cycle %d of circle %d sent to %s", cycle, circleID, recipient), meta, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("process_payout", circleID)
	result.Attributes["cycle"] = fmt.Sprintf("%d", cycle)
	result.Attributes["recipient"] = recipient.String()
	result.Attributes["net_amount"] = fmt.Sprintf("%d", net)
	result.Attributes["platform_fee"] = fmt.Sprintf("%d", platformFee)
	if swept > 0 {
		result.Attributes["swept_locks"] = fmt.Sprintf("%d", swept)
	}
	if completed {
		result.Attributes["completed"] = "true"
	}
	result.Transfers = append(result.Transfers, newTransfer(recipient, denomination, net))
	if arbiterFee > 0 && arbiter != nil {
		result.Transfers = append(result.Transfers, newTransfer(*arbiter, denomination, arbiterFee))
	}
	return result, nil
}

// authorizePayoutTrigger decides who may trigger a payout: creator and
// arbiter always. Manual-trigger circles reserve the trigger to them;
// otherwise any member may trigger, as may the platform address when auto
// payout is on.
func authorizePayoutTrigger(circle *schema.Circle, caller, platformAddress domain.Address) error {
	caps := capabilities(circle, caller)
	if caps.HasAny(domain.CapCreator, domain.CapArbiter) {
		return nil
	}
	if circle.ManualTriggerEnabled {
		return domain.NewUnauthorized("payout trigger is reserved to creator or arbiter")
	}
	if caller == platformAddress && circle.AutoPayoutEnabled {
		return nil
	}
	if caps.Has(domain.CapMember) {
		return nil
	}
	return domain.NewUnauthorized("caller may not trigger payout")
}
