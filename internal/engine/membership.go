package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// JoinCircle adds the caller to a circle's member list. Invite-only and
// private circles require an outstanding invitation, which is consumed on
// join. Filling the last seat can auto-start the circle when it is
// configured to start by members.
func (e *Engine) JoinCircle(ctx context.Context, caller domain.Address, circleID uint64) (*Result, error) {
	var started bool
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !domain.CanJoinStatus(circle.Status) {
			return domain.NewInvalidStatus("Draft or Open", circle.Status)
		}
		if domain.ContainsAddress(circle.Members, caller) {
			return domain.NewAlreadyMember(caller)
		}
		if uint32(len(circle.Members)) >= circle.MaxMembers {
			return domain.NewCircleFull(circle.MaxMembers)
		}

		gated := circle.InviteOnly || circle.Visibility == domain.VisibilityPrivate
		if gated {
			if !domain.ContainsAddress(circle.PendingMembers, caller) {
				return domain.NewInviteOnly(circleID)
			}
			circle.PendingMembers = domain.RemoveAddress(circle.PendingMembers, caller)
		}

		circle.Members = append(circle.Members, caller)
		circle.Status = domain.StatusAfterJoin(circle.Status, uint32(len(circle.Members)), circle.MaxMembers)

		now := e.clock.Now().UTC()
		circle.UpdatedAt = now

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

		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventMemberJoined,
			fmt.Sprintf("member %s joined circle %d", caller, circleID), nil, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("join_circle", circleID)
	result.Attributes["member"] = caller.String()
	if started {
		result.Attributes["auto_started"] = "true"
	}
	return result, nil
}

// InviteMember records an invitation for a prospective member. Only circles
// that gate joining (invite-only or private) accept invitations.
func (e *Engine) InviteMember(ctx context.Context, caller domain.Address, circleID uint64, invitee domain.Address) (*Result, error) {
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).HasAny(domain.CapCreator, domain.CapArbiter) {
			return domain.NewUnauthorized("only creator or arbiter can invite members")
		}
		if !circle.InviteOnly && circle.Visibility != domain.VisibilityPrivate {
			return domain.NewInvalidParameters("circle does not gate joining")
		}
		if !domain.CanJoinStatus(circle.Status) {
			return domain.NewInvalidStatus("Draft or Open", circle.Status)
		}
		if domain.ContainsAddress(circle.Members, invitee) {
			return domain.NewAlreadyMember(invitee)
		}
		if domain.ContainsAddress(circle.PendingMembers, invitee) {
			return domain.NewAlreadyInvited(invitee)
		}

		circle.PendingMembers = append(circle.PendingMembers, invitee)

		now := e.clock.Now().UTC()
		circle.UpdatedAt = now
		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventMemberInvited,
			fmt.Sprintf("member %s invited to circle %d", invitee, circleID), nil, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("invite_member", circleID)
	result.Attributes["invitee"] = invitee.String()
	return result, nil
}

// ExitCircle removes the caller from a circle that has not started yet and
// refunds their join deposit if one is locked. The creator cannot exit their
// own circle.
func (e *Engine) ExitCircle(ctx context.Context, caller domain.Address, circleID uint64) (*Result, error) {
	var (
		refund       uint64
		denomination string
	)
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !domain.CanExitStatus(circle.Status) {
			return domain.NewInvalidStatus("Draft, Open or Full", circle.Status)
		}
		if caller == circle.CreatorAddress {
			return domain.NewExitNotAllowed(circleID)
		}
		if !domain.ContainsAddress(circle.Members, caller) {
			return domain.NewUnauthorized("caller is not a member")
		}
		if !circle.MemberExitAllowedBeforeStart {
			return domain.NewExitNotAllowed(circleID)
		}

		now := e.clock.Now().UTC()

		lock, err := tx.GetMemberLock(ctx, circleID, caller)
		if err != nil {
			return err
		}
		if lock != nil {
			remaining, err := domain.CheckedSub(circle.TotalAmountLocked, lock.Amount)
			if err != nil {
				return domain.NewOverflow("escrow underflow on exit refund")
			}
			circle.TotalAmountLocked = remaining
			refund = lock.Amount
			if err := tx.DeleteMemberLock(ctx, circleID, caller); err != nil {
				return err
			}
			if err := tx.SaveRefund(ctx, &schema.RefundRecord{
				CircleID:  circleID,
				Member:    caller,
				Amount:    lock.Amount,
				Reason:    "exit before start",
				Timestamp: now,
			}); err != nil {
				return err
			}
		}

		circle.Members = domain.RemoveAddress(circle.Members, caller)
		circle.Status = domain.StatusAfterExit(circle.Status, circle.Members, circle.CreatorAddress,
			circle.MinMembersRequired, circle.MaxMembers, circle.AutoRefundIfMinNotMet)
		circle.UpdatedAt = now
		denomination = circle.Denomination

		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventMemberExited,
			fmt.Sprintf("member %s exited circle %d", caller, circleID), nil, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("exit_circle", circleID)
	result.Attributes["member"] = caller.String()
	if refund > 0 {
		result.Attributes["refund_amount"] = fmt.Sprintf("%d", refund)
		result.Transfers = append(result.Transfers, newTransfer(caller, denomination, refund))
	}
	return result, nil
}

// StartCircle begins the payout rotation. The payout order is finalized here
// and never changes afterwards.
func (e *Engine) StartCircle(ctx context.Context, caller domain.Address, circleID uint64) (*Result, error) {
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).Has(domain.CapCreator) {
			return domain.NewUnauthorized("only creator can start circle")
		}
		switch circle.Status {
		case domain.StatusDraft, domain.StatusOpen, domain.StatusFull:
		default:
			return domain.NewInvalidStatus("Draft, Open or Full", circle.Status)
		}
		if uint32(len(circle.Members)) < circle.MinMembersRequired {
			return domain.NewMinMembersNotMet(circle.MinMembersRequired, uint32(len(circle.Members)))
		}

		now := e.clock.Now().UTC()
		if err := e.activate(ctx, tx, circle, now); err != nil {
			return err
		}
		circle.UpdatedAt = now
		return tx.SaveCircle(ctx, circle)
	})
	if err != nil {
		return nil, err
	}

	return newResult("start_circle", circleID), nil
}

// activate transitions a circle to Running: finalize the payout order, pin
// the cycle calendar, and open cycle 1. Runs inside the caller's transaction;
// the caller persists the circle.
func (e *Engine) activate(ctx context.Context, tx store.Store, circle *schema.Circle, now time.Time) error {
	// Seeding from block time plus circle id keeps concurrent starts from
	// sharing a shuffle. Not cryptographically secure.
	seed := uint64(now.Unix()) + circle.CircleID
	circle.PayoutOrder = domain.FinalizePayoutOrder(circle.PayoutOrderType, circle.PayoutOrder, circle.Members, seed)

	if circle.StartDate == nil {
		circle.StartDate = timePtr(now)
	}
	if circle.FirstCycleDate == nil {
		circle.FirstCycleDate = circle.StartDate
	}
	if circle.NextPayoutDate == nil {
		circle.NextPayoutDate = timePtr(circle.FirstCycleDate.AddDate(0, 0, int(circle.CycleDurationDays)))
	}
	if circle.EndDate == nil {
		circle.EndDate = timePtr(circleEndDate(*circle.StartDate, circle.CycleDurationDays, circle.MaxMembers, circle.TotalCycles))
	}

	circle.Status = domain.StatusRunning
	circle.CurrentCycleIndex = 1
	circle.MembersPaidThisCycle = []domain.Address{}
	circle.MembersLateThisCycle = []domain.Address{}

	if err := appendEvent(ctx, tx, circle.CircleID, EventCircleStarted,
		fmt.Sprintf("circle %d started with %d members", circle.CircleID, len(circle.Members)), nil, now); err != nil {
		return err
	}

	calendar := map[string]any{
		"payout_order":     circle.PayoutOrder,
		"first_cycle_date": circle.FirstCycleDate,
		"next_payout_date": circle.NextPayoutDate,
		"end_date":         circle.EndDate,
		"cycle_days":       circle.CycleDurationDays,
		"total_cycles":     circle.TotalCycles,
	}
	return appendEvent(ctx, tx, circle.CircleID, EventDistributionCalendar,
		fmt.Sprintf("distribution calendar finalized for circle %d", circle.CircleID), calendar, now)
}

// PauseCircle suspends a running circle
func (e *Engine) PauseCircle(ctx context.Context, caller domain.Address, circleID uint64) (*Result, error) {
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).HasAny(domain.CapCreator, domain.CapArbiter) {
			return domain.NewUnauthorized("only creator or arbiter can pause circle")
		}
		if circle.Status != domain.StatusRunning {
			return domain.NewInvalidStatus("Running", circle.Status)
		}

		circle.Status = domain.StatusPaused
		now := e.clock.Now().UTC()
		circle.UpdatedAt = now
		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventCirclePaused,
			fmt.Sprintf("circle %d paused by %s", circleID, caller), nil, now)
	})
	if err != nil {
		return nil, err
	}

	return newResult("pause_circle", circleID), nil
}

// UnpauseCircle resumes a paused circle. A circle stopped by emergency stays
// stopped until the trigger flag is lifted here by the same roles.
func (e *Engine) UnpauseCircle(ctx context.Context, caller domain.Address, circleID uint64) (*Result, error) {
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).HasAny(domain.CapCreator, domain.CapArbiter) {
			return domain.NewUnauthorized("only creator or arbiter can unpause circle")
		}
		if circle.Status != domain.StatusPaused {
			return domain.NewInvalidStatus("Paused", circle.Status)
		}

		circle.Status = domain.StatusRunning
		circle.EmergencyStopTriggered = false
		circle.WithdrawalLock = false
		now := e.clock.Now().UTC()
		circle.UpdatedAt = now
		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventCircleUnpaused,
			fmt.Sprintf("circle %d unpaused by %s", circleID, caller), nil, now)
	})
	if err != nil {
		return nil, err
	}

	return newResult("unpause_circle", circleID), nil
}

// EmergencyStop halts a circle and locks withdrawals until it is unpaused
func (e *Engine) EmergencyStop(ctx context.Context, caller domain.Address, circleID uint64) (*Result, error) {
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).Has(domain.CapArbiter) {
			return domain.NewUnauthorized("only the arbiter can trigger emergency stop")
		}
		if !circle.EmergencyStopEnabled {
			return domain.NewInvalidParameters("emergency stop is not enabled for this circle")
		}
		if circle.Status != domain.StatusRunning && circle.Status != domain.StatusPaused {
			return domain.NewInvalidStatus("Running or Paused", circle.Status)
		}

		circle.Status = domain.StatusPaused
		circle.EmergencyStopTriggered = true
		circle.WithdrawalLock = true
		now := e.clock.Now().UTC()
		circle.UpdatedAt = now
		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventEmergencyStop,
			fmt.Sprintf("emergency stop triggered on circle %d by %s", circleID, caller), nil, now)
	})
	if err != nil {
		return nil, err
	}

	return newResult("emergency_stop", circleID), nil
}

// CancelCircle terminates a circle before completion and refunds every
// outstanding join deposit
func (e *Engine) CancelCircle(ctx context.Context, caller domain.Address, circleID uint64) (*Result, error) {
	var (
		refunds      []schema.MemberLock
		denomination string
	)
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).HasAny(domain.CapCreator, domain.CapArbiter) {
			return domain.NewUnauthorized("only creator or arbiter can cancel circle")
		}
		switch circle.Status {
		case domain.StatusDraft, domain.StatusOpen, domain.StatusFull,
			domain.StatusRunning, domain.StatusPaused:
		default:
			return domain.NewInvalidStatus("Draft, Open, Full, Running or Paused", circle.Status)
		}

		now := e.clock.Now().UTC()

		locks, err := tx.ListMemberLocks(ctx, circleID)
		if err != nil {
			return err
		}
		for _, lock := range locks {
			remaining, err := domain.CheckedSub(circle.TotalAmountLocked, lock.Amount)
			if err != nil {
				return domain.NewOverflow("escrow underflow on cancel refund")
			}
			circle.TotalAmountLocked = remaining
			if err := tx.DeleteMemberLock(ctx, circleID, lock.Member); err != nil {
				return err
			}
			if err := tx.SaveRefund(ctx, &schema.RefundRecord{
				CircleID:  circleID,
				Member:    lock.Member,
				Amount:    lock.Amount,
				Reason:    "circle cancelled",
				Timestamp: now,
			}); err != nil {
				return err
			}
		}
		refunds = locks
		denomination = circle.Denomination

		circle.Status = domain.StatusCancelled
		circle.UpdatedAt = now
		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventCircleCancelled,
			fmt.Sprintf("circle %d cancelled by %s", circleID, caller), nil, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("cancel_circle", circleID)
	for _, lock := range refunds {
		result.Transfers = append(result.Transfers, newTransfer(lock.Member, denomination, lock.Amount))
	}
	return result, nil
}

// BlockMember excludes a member from deposit requirements and payout
// eligibility starting with the next cycle. Blocks never apply retroactively
// to the cycle in progress.
func (e *Engine) BlockMember(ctx context.Context, caller domain.Address, circleID uint64, member domain.Address, reason string) (*Result, error) {
	var fromCycle uint32
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).Has(domain.CapCreator) {
			return domain.NewUnauthorized("only the creator can block members")
		}
		if !domain.ContainsAddress(circle.Members, member) {
			return domain.NewInvalidParameters("address is not a member of this circle")
		}

		existing, err := tx.GetBlockedMember(ctx, circleID, member)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.NewInvalidParameters("member is already blocked")
		}

		now := e.clock.Now().UTC()
		fromCycle = circle.CurrentCycleIndex + 1
		if err := tx.SaveBlockedMember(ctx, &schema.BlockedMember{
			CircleID:         circleID,
			Member:           member,
			BlockedFromCycle: fromCycle,
			BlockedAt:        now,
		}); err != nil {
			return err
		}

		circle.UpdatedAt = now
		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		meta := map[string]any{"blocked_from_cycle": fromCycle, "reason": reason}
		return appendEvent(ctx, tx, circleID, EventMemberBlocked,
			fmt.Sprintf("member %s blocked from cycle %d", member, fromCycle), meta, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("block_member", circleID)
	result.Attributes["member"] = member.String()
	result.Attributes["blocked_from_cycle"] = fmt.Sprintf("%d", fromCycle)
	return result, nil
}

// AddPrivateMember enrolls an address directly into a private circle,
// bypassing the invite and join steps, with an optional pseudonym
func (e *Engine) AddPrivateMember(ctx context.Context, caller domain.Address, circleID uint64, member domain.Address, pseudonym string) (*Result, error) {
	var started bool
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).Has(domain.CapCreator) {
			return domain.NewUnauthorized("only creator can add private members")
		}
		if circle.Visibility != domain.VisibilityPrivate {
			return domain.NewInvalidParameters("circle is not private")
		}
		if !domain.CanJoinStatus(circle.Status) {
			return domain.NewInvalidStatus("Draft or Open", circle.Status)
		}
		if domain.ContainsAddress(circle.Members, member) {
			return domain.NewAlreadyMember(member)
		}
		if uint32(len(circle.Members)) >= circle.MaxMembers {
			return domain.NewCircleFull(circle.MaxMembers)
		}

		// Direct addition skips the invite/pending flow entirely
		circle.PendingMembers = domain.RemoveAddress(circle.PendingMembers, member)
		circle.Members = append(circle.Members, member)
		circle.PrivateMembers = append(circle.PrivateMembers, member)
		circle.Status = domain.StatusAfterJoin(circle.Status, uint32(len(circle.Members)), circle.MaxMembers)

		now := e.clock.Now().UTC()
		circle.UpdatedAt = now

		if pseudonym != "" {
			if err := tx.UpsertPseudonym(ctx, &schema.MemberPseudonym{
				CircleID:  circleID,
				Member:    member,
				Pseudonym: pseudonym,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
		}

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

		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventPrivateMemberAdded,
			fmt.Sprintf("private member %s added to circle %d", member, circleID), nil, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("add_private_member", circleID)
	result.Attributes["member"] = member.String()
	if started {
		result.Attributes["auto_started"] = "true"
	}
	return result, nil
}

// UpdatePseudonym sets a member's display name within one circle. Creator or
// arbiter may rename any member or pending member regardless of circle
// status.
func (e *Engine) UpdatePseudonym(ctx context.Context, caller domain.Address, circleID uint64, member domain.Address, pseudonym string) (*Result, error) {
	if pseudonym == "" {
		return nil, domain.NewInvalidParameters("pseudonym cannot be empty")
	}

	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).HasAny(domain.CapCreator, domain.CapArbiter) {
			return domain.NewUnauthorized("only creator or arbiter can set pseudonyms")
		}
		if !domain.ContainsAddress(circle.Members, member) && !domain.ContainsAddress(circle.PendingMembers, member) {
			return domain.NewInvalidParameters("target is not a member or pending member")
		}

		now := e.clock.Now().UTC()
		if err := tx.UpsertPseudonym(ctx, &schema.MemberPseudonym{
			CircleID:  circleID,
			Member:    member,
			Pseudonym: pseudonym,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventPseudonymUpdated,
			fmt.Sprintf("pseudonym of %s updated in circle %d", member, circleID), nil, now)
	})
	if err != nil {
		return nil, err
	}

	return newResult("update_pseudonym", circleID), nil
}
