package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// CreateCircleParams carries every creation-time parameter of a circle
type CreateCircleParams struct {
	Name        string
	Description string
	Image       *string

	MaxMembers                   uint32
	MinMembersRequired           uint32
	InviteOnly                   bool
	MemberExitAllowedBeforeStart bool

	ContributionAmount uint64
	Denomination       string
	PenaltyFeeAmount   uint64
	LateFeeAmount      uint64
	ArbiterFeePercent  *uint64
	CreatorLockAmount  uint64

	TotalCycles       uint32
	CycleDurationDays uint32
	StartDate         *time.Time
	GracePeriodHours  uint32
	AutoStartWhenFull bool
	AutoStartType     *string
	AutoStartDate     *time.Time

	PayoutOrderType      domain.PayoutOrderType
	PayoutOrderList      []domain.Address
	AutoPayoutEnabled    bool
	ManualTriggerEnabled bool

	ArbiterAddress                    *domain.Address
	EmergencyStopEnabled              bool
	AutoRefundIfMinNotMet             bool
	MaxMissedPaymentsAllowed          uint32
	StrictMode                        bool
	FirstDistributionThresholdPercent *uint64

	Visibility           domain.Visibility
	ShowMemberIdentities bool
}

func (p *CreateCircleParams) validate() error {
	if p.MaxMembers == 0 || p.MinMembersRequired == 0 {
		return domain.NewInvalidParameters("max_members and min_members_required must be greater than 0")
	}
	if p.MinMembersRequired > p.MaxMembers {
		return domain.NewInvalidParameters("min_members_required cannot exceed max_members")
	}
	if p.TotalCycles == 0 {
		return domain.NewInvalidParameters("total_cycles must be greater than 0")
	}
	if p.ContributionAmount == 0 {
		return domain.NewInvalidParameters("contribution_amount must be greater than 0")
	}
	if len(p.PayoutOrderList) > 0 && uint32(len(p.PayoutOrderList)) != p.MaxMembers {
		return domain.NewInvalidParameters("payout_order_list length must match max_members")
	}
	if p.FirstDistributionThresholdPercent != nil && *p.FirstDistributionThresholdPercent > domain.MaxFirstDistributionThresholdPercent {
		return domain.NewInvalidParameters("first_distribution_threshold_percent cannot exceed 60")
	}
	if !domain.IsValidOrderType(p.PayoutOrderType) {
		return domain.NewInvalidParameters("invalid payout order type")
	}
	if !domain.IsValidVisibility(p.Visibility) {
		return domain.NewInvalidParameters("invalid visibility")
	}
	return nil
}

// CreateCircle registers a new circle in Draft status. The creator becomes
// member index 0 and must attach at least the creator lock amount; the lock
// is stored as the creator's join deposit.
func (e *Engine) CreateCircle(ctx context.Context, caller domain.Address, params CreateCircleParams, payment *Payment) (*Result, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	if params.CreatorLockAmount < e.platform.MinCreatorLock {
		return nil, domain.NewInvalidParameters(fmt.Sprintf("creator lock below platform minimum: %d", e.platform.MinCreatorLock))
	}

	denomination := params.Denomination
	if denomination == "" {
		denomination = e.platform.Denomination
	}

	sent := attachedAmount(payment, denomination)
	if sent < params.CreatorLockAmount {
		return nil, domain.NewInsufficientFunds(params.CreatorLockAmount, sent)
	}

	payoutAmount, err := domain.CheckedMul(params.ContributionAmount, uint64(params.MaxMembers))
	if err != nil {
		return nil, domain.NewInvalidParameters("payout amount overflow")
	}

	now := e.clock.Now().UTC()

	var endDate *time.Time
	if params.StartDate != nil {
		endDate = timePtr(circleEndDate(*params.StartDate, params.CycleDurationDays, params.MaxMembers, params.TotalCycles))
	}

	// A random rotation is generated at start; a predefined list is kept
	// as supplied.
	var payoutOrder []domain.Address
	if params.PayoutOrderType == domain.OrderPredefined {
		payoutOrder = params.PayoutOrderList
	}

	var circleID uint64
	err = e.store.Atomically(ctx, func(tx store.Store) error {
		circleID, err = tx.NextCircleID(ctx)
		if err != nil {
			return err
		}

		circle := schema.Circle{
			CircleID:       circleID,
			Name:           params.Name,
			Description:    params.Description,
			Image:          params.Image,
			CreatorAddress: caller,
			CreatedAt:      now,
			UpdatedAt:      now,

			MaxMembers:                   params.MaxMembers,
			MinMembersRequired:           params.MinMembersRequired,
			InviteOnly:                   params.InviteOnly,
			Members:                      []domain.Address{caller},
			PendingMembers:               []domain.Address{},
			MemberExitAllowedBeforeStart: params.MemberExitAllowedBeforeStart,

			ContributionAmount: params.ContributionAmount,
			Denomination:       denomination,
			PayoutAmount:       payoutAmount,
			PenaltyFeeAmount:   params.PenaltyFeeAmount,
			LateFeeAmount:      params.LateFeeAmount,
			PlatformFeePercent: e.platform.FeePercent,
			ArbiterFeePercent:  params.ArbiterFeePercent,

			TotalCycles:       params.TotalCycles,
			CycleDurationDays: params.CycleDurationDays,
			StartDate:         params.StartDate,
			FirstCycleDate:    params.StartDate,
			NextPayoutDate:    params.StartDate,
			EndDate:           endDate,
			GracePeriodHours:  params.GracePeriodHours,
			AutoStartWhenFull: params.AutoStartWhenFull,
			AutoStartType:     params.AutoStartType,
			AutoStartDate:     params.AutoStartDate,

			PayoutOrderType:      params.PayoutOrderType,
			PayoutOrder:          payoutOrder,
			AutoPayoutEnabled:    params.AutoPayoutEnabled,
			ManualTriggerEnabled: params.ManualTriggerEnabled,

			ArbiterAddress:           params.ArbiterAddress,
			EmergencyStopEnabled:     params.EmergencyStopEnabled,
			AutoRefundIfMinNotMet:    params.AutoRefundIfMinNotMet,
			MaxMissedPaymentsAllowed: params.MaxMissedPaymentsAllowed,
			StrictMode:               params.StrictMode,

			TotalAmountLocked: sent,
			RefundMode:        domain.RefundModeFull,

			CreatorLockAmount:                 params.CreatorLockAmount,
			FirstDistributionThresholdPercent: params.FirstDistributionThresholdPercent,

			Status:               domain.StatusDraft,
			CurrentCycleIndex:    0,
			CyclesCompleted:      0,
			MembersPaidThisCycle: []domain.Address{},
			MembersLateThisCycle: []domain.Address{},
			PrivateMembers:       []domain.Address{},

			Visibility:           params.Visibility,
			ShowMemberIdentities: params.ShowMemberIdentities,
		}

		if err := tx.SaveCircle(ctx, &circle); err != nil {
			return err
		}

		lock := schema.MemberLock{
			CircleID: circleID,
			Member:   caller,
			Amount:   sent,
			LockedAt: now,
		}
		if err := tx.SaveMemberLock(ctx, &lock); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventCircleCreated,
			fmt.Sprintf("circle %d created by %s", circleID, caller), nil, now)
	})
	if err != nil {
		return nil, err
	}

	result := newResult("create_circle", circleID)
	result.Attributes["creator"] = caller.String()
	result.Attributes["creator_lock_amount"] = fmt.Sprintf("%d", sent)
	return result, nil
}

// UpdateCircle changes the descriptive fields of a circle before it starts
func (e *Engine) UpdateCircle(ctx context.Context, caller domain.Address, circleID uint64, name, description, image *string) (*Result, error) {
	err := e.store.Atomically(ctx, func(tx store.Store) error {
		circle, err := loadCircle(ctx, tx, circleID)
		if err != nil {
			return err
		}

		if !capabilities(circle, caller).Has(domain.CapCreator) {
			return domain.NewUnauthorized("only creator can update circle")
		}
		if circle.Status == domain.StatusRunning || circle.Status == domain.StatusCompleted {
			return domain.NewInvalidStatus("not Running or Completed", circle.Status)
		}

		if name != nil {
			circle.Name = *name
		}
		if description != nil {
			circle.Description = *description
		}
		if image != nil {
			circle.Image = image
		}

		now := e.clock.Now().UTC()
		circle.UpdatedAt = now
		if err := tx.SaveCircle(ctx, circle); err != nil {
			return err
		}

		return appendEvent(ctx, tx, circleID, EventCircleUpdated,
			fmt.Sprintf("circle %d updated by %s", circleID, caller), nil, now)
	})
	if err != nil {
		return nil, err
	}

	return newResult("update_circle", circleID), nil
}

// circleEndDate computes the end of the full rotation: one cycle slot per
// member per cycle round.
func circleEndDate(start time.Time, cycleDurationDays uint32, maxMembers, totalCycles uint32) time.Time {
	days := int(cycleDurationDays) * int(maxMembers) * int(totalCycles)
	return start.AddDate(0, 0, days)
}
