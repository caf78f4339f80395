package engine

import (
	"context"
	"fmt"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// DistributeBlockedFunds releases the locked join deposits of members blocked
// by the given cycle to the members who deposited in that cycle. The pot
// splits evenly; division remainder goes to the first recipient in member
// order.
func (e *Engine) DistributeBlockedFunds(ctx context.Context, caller domain.Address, circleID uint64, cycle uint32) (*Result, error) {
	var (
		shares       map[domain.Address]uint64
		order        []domain.Address
		denomination string
		total        uint64
	)
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).Has(domain.CapCreator) {
			return domain.NewUnauthorized("only creator can distribute blocked funds")
		}
		if circle.Status != domain.StatusRunning {
			return domain.NewInvalidStatus("Running", circle.Status)
		}

		blocked, err := blockedFromByMember(ctx, tx, circleID)
		if err != nil {
			return err
		}

		var blockedWithLocks []domain.Address
		for member, from := range blocked {
			if from > cycle {
				continue
			}
			lock, err := tx.GetMemberLock(ctx, circleID, member)
			if err != nil {
				return err
			}
			if lock == nil {
				continue
			}
			total, err = domain.CheckedAdd(total, lock.Amount)
			if err != nil {
				return domain.NewOverflow("blocked lock sum overflow")
			}
			blockedWithLocks = append(blockedWithLocks, member)
		}
		if total == 0 {
			return domain.NewInvalidParameters("no blocked funds to distribute")
		}

		deposits, err := tx.ListDepositsByCycle(ctx, circleID, cycle)
		if err != nil {
			return err
		}
		deposited := make(map[domain.Address]bool, len(deposits))
		for _, d := range deposits {
			deposited[d.Member] = true
		}

		// Recipients in member-list order keeps the remainder deterministic
		for _, m := range circle.Members {
			if from, ok := blocked[m]; ok && from <= cycle {
				continue
			}
			if deposited[m] {
				order = append(order, m)
			}
		}
		if len(order) == 0 {
			return domain.NewInvalidParameters("no eligible recipients for blocked funds")
		}

		share := total / uint64(len(order))
		remainder := total % uint64(len(order))
		shares = make(map[domain.Address]uint64, len(order))
		for i, m := range order {
			amount := share
			if i == 0 {
				amount, err = domain.CheckedAdd(amount, remainder)
				if err != nil {
					return domain.NewOverflow("share overflow")
				}
			}
			shares[m] = amount
		}

		now := e.clock.Now().UTC()
		for _, member := range blockedWithLocks {
			if err := tx.DeleteMemberLock(ctx, circleID, member); err != nil {
				return err
			}
		}
		for _, m := range order {
			if err := tx.SaveRefund(ctx, &schema.RefundRecord{
				CircleID:  circleID,
				Member:    m,
				Amount:    shares[m],
				Reason:    "blocked funds distribution",
				Timestamp: now,
			}); err != nil {
				return err
			}
		}

		remaining, err := domain.CheckedSub(circle.TotalAmountLocked, total)
		if err != nil {
			return domain.NewOverflow("escrow underflow on blocked distribution")
		}
		circle.TotalAmountLocked = remaining
		circle.UpdatedAt = now
		denomination = circle.Denomination

		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		meta := map[string]any{"total": total, "recipients": len(order), "cycle": cycle}
		return appendEvent(ctx, tx, circleID, EventBlockedFundsDistributed,
			fmt.Sprintf("blocked funds of circle %d distributed to %d members", circleID, len(order)), meta, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("distribute_blocked_funds", circleID)
	result.Attributes["cycle"] = fmt.Sprintf("%d", cycle)
	result.Attributes["total"] = fmt.Sprintf("%d", total)
	result.Attributes["recipients"] = fmt.Sprintf("%d", len(order))
	for _, m := range order {
		result.Transfers = append(result.Transfers, newTransfer(m, denomination, shares[m]))
	}
	return result, nil
}
