package engine

import (
	"context"
	"fmt"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// LockJoinDeposit escrows a refundable join deposit for the caller. The
// deposit must cover at least one contribution. An invited address that
// locks a deposit before joining is accepted as a member in the same step.
func (e *Engine) LockJoinDeposit(ctx context.Context, caller domain.Address, circleID uint64, payment *Payment) (*Result, error) {
	var (
		joined  bool
		started bool
		amount  uint64
	)
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !domain.CanJoinStatus(circle.Status) && circle.Status != domain.StatusFull {
			return domain.NewInvalidStatus("Draft, Open or Full", circle.Status)
		}

		member := domain.ContainsAddress(circle.Members, caller)
		pending := domain.ContainsAddress(circle.PendingMembers, caller)
		if !member && !pending {
			return domain.NewUnauthorized("caller is neither a member nor invited")
		}

		existing, err := tx.GetMemberLock(ctx, circleID, caller)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.NewInvalidParameters("join deposit already locked")
		}

		amount = attachedAmount(payment, circle.Denomination)
		if amount < circle.ContributionAmount {
			return domain.NewInsufficientFunds(circle.ContributionAmount, amount)
		}

		total, err := domain.CheckedAdd(circle.TotalAmountLocked, amount)
		if err != nil {
			return domain.NewOverflow("escrow overflow on join deposit")
		}
		circle.TotalAmountLocked = total

		now := e.clock.Now().UTC()
		if err := tx.SaveMemberLock(ctx, &schema.MemberLock{
			CircleID: circleID,
			Member:   caller,
			Amount:   amount,
			LockedAt: now,
		}); err != nil {
			return err
		}

		// A pending invitee with a lock in escrow is accepted immediately
		if pending && !member {
			if uint32(len(circle.Members)) >= circle.MaxMembers {
				return domain.NewCircleFull(circle.MaxMembers)
			}
			circle.PendingMembers = domain.RemoveAddress(circle.PendingMembers, caller)
			circle.Members = append(circle.Members, caller)
			circle.Status = domain.StatusAfterJoin(circle.Status, uint32(len(circle.Members)), circle.MaxMembers)
			joined = true

			autoStartType := ""
			if circle.AutoStartType != nil {
				autoStartType = *circle.AutoStartType
			}
			if domain.ShouldAutoStart(circle.Status, circle.AutoStartWhenFull, autoStartType, uint32(len(circle.Members)), circle.MinMembersRequired) {
				if err := e.activate(ctx, tx, circle, now); err != nil {
					return err
				}
				started = true
			}
		}

		circle.UpdatedAt = now
		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		if joined {
			if err := appendEvent(ctx, tx, circleID, EventMemberJoined,
				fmt.Sprintf("member %s joined circle %d", caller, circleID), nil, now); err != nil {
				return err
			}
		}
		meta := map[string]any{"amount": amount}
		return appendEvent(ctx, tx, circleID, EventJoinDepositLocked,
			fmt.Sprintf("member %s locked join deposit in circle %d", caller, circleID), meta, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("lock_join_deposit", circleID)
	result.Attributes["member"] = caller.String()
	result.Attributes["amount"] = fmt.Sprintf("%d", amount)
	if joined {
		result.Attributes["auto_accepted"] = "true"
	}
	if started {
		result.Attributes["auto_started"] = "true"
	}
	return result, nil
}

// DepositContribution records the caller's contribution for the current
// cycle. Deposits after the grace period carry the late fee; strict-mode
// circles reject them outright.
func (e *Engine) DepositContribution(ctx context.Context, caller domain.Address, circleID uint64, payment *Payment) (*Result, error) {
	var (
		late    bool
		lateFee uint64
	)
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if circle.Status != domain.StatusRunning {
			return domain.NewInvalidStatus("Running", circle.Status)
		}
		if !domain.ContainsAddress(circle.Members, caller) {
			return domain.NewUnauthorized("caller is not a member")
		}

		cycle := circle.CurrentCycleIndex

		marker, err := tx.GetBlockedMember(ctx, circleID, caller)
		if err != nil {
			return err
		}
		if marker != nil && marker.BlockedFromCycle <= cycle {
			return domain.NewUnauthorized("member is blocked for this cycle")
		}

		existing, err := tx.GetDeposit(ctx, circleID, caller, cycle)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.NewAlreadyDeposited(caller, cycle)
		}

		now := e.clock.Now().UTC()

		if circle.NextPayoutDate != nil {
			deadline := circle.NextPayoutDate.Add(graceDuration(circle.GracePeriodHours))
			late = now.After(deadline)
		}
		if late && circle.StrictMode {
			return domain.NewMemberLate(caller)
		}

		required := circle.ContributionAmount
		if late {
			lateFee = circle.LateFeeAmount
			required, err = domain.CheckedAdd(required, lateFee)
			if err != nil {
				return domain.NewOverflow("required amount overflow")
			}
		}

		sent := attachedAmount(payment, circle.Denomination)
		if sent < required {
			return domain.NewInsufficientFunds(required, sent)
		}

		total, err := domain.CheckedAdd(circle.TotalAmountLocked, circle.ContributionAmount)
		if err != nil {
			return domain.NewOverflow("escrow overflow on deposit")
		}
		circle.TotalAmountLocked = total

		if err := tx.SaveDeposit(ctx, &schema.DepositRecord{
			CircleID:  circleID,
			Member:    caller,
			Cycle:     cycle,
			Amount:    circle.ContributionAmount,
			Timestamp: now,
			OnTime:    !late,
		}); err != nil {
			return err
		}

		if late {
			penalties, err := domain.CheckedAdd(circle.TotalPenaltiesCollected, lateFee)
			if err != nil {
				return domain.NewOverflow("penalty total overflow")
			}
			circle.TotalPenaltiesCollected = penalties
			if !domain.ContainsAddress(circle.MembersLateThisCycle, caller) {
				circle.MembersLateThisCycle = append(circle.MembersLateThisCycle, caller)
			}
			if err := tx.SavePenalty(ctx, &schema.PenaltyRecord{
				CircleID:  circleID,
				Member:    caller,
				Cycle:     cycle,
				Amount:    lateFee,
				Reason:    "late contribution",
				Timestamp: now,
			}); err != nil {
				return err
			}
		} else if !domain.ContainsAddress(circle.MembersPaidThisCycle, caller) {
			circle.MembersPaidThisCycle = append(circle.MembersPaidThisCycle, caller)
		}

		circle.UpdatedAt = now
		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		meta := map[string]any{"cycle": cycle, "amount": circle.ContributionAmount, "late": late, "late_fee": lateFee}
		return appendEvent(ctx, tx, circleID, EventContributionDeposited,
			fmt.Sprintf("member %s deposited for cycle %d of circle %d", caller, cycle, circleID), meta, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("deposit_contribution", circleID)
	result.Attributes["member"] = caller.String()
	result.Attributes["late"] = fmt.Sprintf("%t", late)
	if lateFee > 0 {
		result.Attributes["late_fee"] = fmt.Sprintf("%d", lateFee)
	}
	return result, nil
}
