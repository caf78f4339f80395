package rest

import (
	"time"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/engine"
)

// PaymentDTO is the settlement-gateway attachment carried on mutating
// requests. The gateway has already collected the funds; the engine only
// validates the reported amount.
type PaymentDTO struct {
	Denomination string `json:"denomination"`
	Amount       uint64 `json:"amount"`
}

func (p *PaymentDTO) toPayment() *engine.Payment {
	if p == nil {
		return nil
	}
	return &engine.Payment{Denomination: p.Denomination, Amount: p.Amount}
}

// CallerRequest is embedded in every mutating request body. The caller
// address is authenticated upstream by the gateway.
type CallerRequest struct {
	Caller  string      `json:"caller" binding:"required"`
	Payment *PaymentDTO `json:"payment,omitempty"`
}

// CreateCircleRequest is the body of POST /circles
type CreateCircleRequest struct {
	CallerRequest

	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Image       *string `json:"image,omitempty"`

	MaxMembers                   uint32 `json:"max_members" binding:"required"`
	MinMembersRequired           uint32 `json:"min_members_required" binding:"required"`
	InviteOnly                   bool   `json:"invite_only"`
	MemberExitAllowedBeforeStart bool   `json:"member_exit_allowed_before_start"`

	ContributionAmount uint64  `json:"contribution_amount" binding:"required"`
	Denomination       string  `json:"denomination"`
	PenaltyFeeAmount   uint64  `json:"penalty_fee_amount"`
	LateFeeAmount      uint64  `json:"late_fee_amount"`
	ArbiterFeePercent  *uint64 `json:"arbiter_fee_percent,omitempty"`
	CreatorLockAmount  uint64  `json:"creator_lock_amount" binding:"required"`

	TotalCycles       uint32     `json:"total_cycles" binding:"required"`
	CycleDurationDays uint32     `json:"cycle_duration_days" binding:"required"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	GracePeriodHours  uint32     `json:"grace_period_hours"`
	AutoStartWhenFull bool       `json:"auto_start_when_full"`
	AutoStartType     *string    `json:"auto_start_type,omitempty"`
	AutoStartDate     *time.Time `json:"auto_start_date,omitempty"`

	PayoutOrderType      string   `json:"payout_order_type" binding:"required"`
	PayoutOrderList      []string `json:"payout_order_list,omitempty"`
	AutoPayoutEnabled    bool     `json:"auto_payout_enabled"`
	ManualTriggerEnabled bool     `json:"manual_trigger_enabled"`

	ArbiterAddress                    *string `json:"arbiter_address,omitempty"`
	EmergencyStopEnabled              bool    `json:"emergency_stop_enabled"`
	AutoRefundIfMinNotMet             bool    `json:"auto_refund_if_min_not_met"`
	MaxMissedPaymentsAllowed          uint32  `json:"max_missed_payments_allowed"`
	StrictMode                        bool    `json:"strict_mode"`
	FirstDistributionThresholdPercent *uint64 `json:"first_distribution_threshold_percent,omitempty"`

	Visibility           string `json:"visibility"`
	ShowMemberIdentities bool   `json:"show_member_identities"`
}

// UpdateCircleRequest is the body of PATCH /circles/:id
type UpdateCircleRequest struct {
	CallerRequest

	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
}

// InviteRequest is the body of POST /circles/:id/invite
type InviteRequest struct {
	CallerRequest

	Invitee string `json:"invitee" binding:"required"`
}

// BlockMemberRequest is the body of POST /circles/:id/block
type BlockMemberRequest struct {
	CallerRequest

	Member string `json:"member" binding:"required"`
	Reason string `json:"reason"`
}

// PrivateMemberRequest is the body of POST /circles/:id/private-members
type PrivateMemberRequest struct {
	CallerRequest

	Member    string `json:"member" binding:"required"`
	Pseudonym string `json:"pseudonym,omitempty"`
}

// PseudonymRequest is the body of PUT /circles/:id/pseudonym
type PseudonymRequest struct {
	CallerRequest

	Member    string `json:"member" binding:"required"`
	Pseudonym string `json:"pseudonym" binding:"required"`
}

// DistributeRequest is the body of POST /circles/:id/distribute-blocked
type DistributeRequest struct {
	CallerRequest

	Cycle uint32 `json:"cycle" binding:"required"`
}

// toParams converts the request into engine creation parameters. Address
// validation happens here; the engine receives normalized addresses.
func (r *CreateCircleRequest) toParams() (engine.CreateCircleParams, error) {
	params := engine.CreateCircleParams{
		Name:        r.Name,
		Description: r.Description,
		Image:       r.Image,

		MaxMembers:                   r.MaxMembers,
		MinMembersRequired:           r.MinMembersRequired,
		InviteOnly:                   r.InviteOnly,
		MemberExitAllowedBeforeStart: r.MemberExitAllowedBeforeStart,

		ContributionAmount: r.ContributionAmount,
		Denomination:       r.Denomination,
		PenaltyFeeAmount:   r.PenaltyFeeAmount,
		LateFeeAmount:      r.LateFeeAmount,
		ArbiterFeePercent:  r.ArbiterFeePercent,
		CreatorLockAmount:  r.CreatorLockAmount,

		TotalCycles:       r.TotalCycles,
		CycleDurationDays: r.CycleDurationDays,
		StartDate:         r.StartDate,
		GracePeriodHours:  r.GracePeriodHours,
		AutoStartWhenFull: r.AutoStartWhenFull,
		AutoStartType:     r.AutoStartType,
		AutoStartDate:     r.AutoStartDate,

		PayoutOrderType:      domain.PayoutOrderType(r.PayoutOrderType),
		AutoPayoutEnabled:    r.AutoPayoutEnabled,
		ManualTriggerEnabled: r.ManualTriggerEnabled,

		EmergencyStopEnabled:              r.EmergencyStopEnabled,
		AutoRefundIfMinNotMet:             r.AutoRefundIfMinNotMet,
		MaxMissedPaymentsAllowed:          r.MaxMissedPaymentsAllowed,
		StrictMode:                        r.StrictMode,
		FirstDistributionThresholdPercent: r.FirstDistributionThresholdPercent,

		Visibility:           domain.Visibility(r.Visibility),
		ShowMemberIdentities: r.ShowMemberIdentities,
	}
	if params.Visibility == "" {
		params.Visibility = domain.VisibilityPublic
	}

	for _, raw := range r.PayoutOrderList {
		addr, err := domain.NormalizeAddress(raw)
		if err != nil {
			return params, err
		}
		params.PayoutOrderList = append(params.PayoutOrderList, addr)
	}
	if r.ArbiterAddress != nil {
		addr, err := domain.NormalizeAddress(*r.ArbiterAddress)
		if err != nil {
			return params, err
		}
		params.ArbiterAddress = &addr
	}

	return params, nil
}
