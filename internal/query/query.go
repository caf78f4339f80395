// Package query is the read side of the circle engine. It serves snapshots
// assembled from the store without taking transactions; all mutation goes
// through the engine.
package query

import (
	"context"
	"time"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// Executor answers read queries against the ledger store
type Executor struct {
	store store.Store
}

// NewExecutor creates a new query executor
func NewExecutor(s store.Store) *Executor {
	return &Executor{store: s}
}

// CircleView is the public projection of one circle. Member addresses are
// replaced by pseudonyms when the circle hides identities.
type CircleView struct {
	CircleID       uint64         `json:"circle_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Image          *string        `json:"image,omitempty"`
	CreatorAddress domain.Address `json:"creator_address"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	MaxMembers         uint32   `json:"max_members"`
	MinMembersRequired uint32   `json:"min_members_required"`
	InviteOnly         bool     `json:"invite_only"`
	MemberCount        int      `json:"member_count"`
	Members            []string `json:"members"`

	ContributionAmount uint64  `json:"contribution_amount"`
	Denomination       string  `json:"denomination"`
	PayoutAmount       uint64  `json:"payout_amount"`
	LateFeeAmount      uint64  `json:"late_fee_amount"`
	PlatformFeePercent uint64  `json:"platform_fee_percent"`
	ArbiterFeePercent  *uint64 `json:"arbiter_fee_percent,omitempty"`

	TotalCycles       uint32     `json:"total_cycles"`
	CycleDurationDays uint32     `json:"cycle_duration_days"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	NextPayoutDate    *time.Time `json:"next_payout_date,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	GracePeriodHours  uint32     `json:"grace_period_hours"`

	PayoutOrderType domain.PayoutOrderType `json:"payout_order_type"`
	PayoutOrder     []string               `json:"payout_order,omitempty"`

	Status            domain.CircleStatus `json:"status"`
	CurrentCycleIndex uint32              `json:"current_cycle_index"`
	CyclesCompleted   uint32              `json:"cycles_completed"`

	TotalAmountLocked          uint64 `json:"total_amount_locked"`
	TotalPenaltiesCollected    uint64 `json:"total_penalties_collected"`
	TotalPlatformFeesCollected uint64 `json:"total_platform_fees_collected"`

	Visibility           domain.Visibility `json:"visibility"`
	ShowMemberIdentities bool              `json:"show_member_identities"`
}

// GetCircle retrieves one circle by id
func (q *Executor) GetCircle(ctx context.Context, circleID uint64) (*CircleView, error) {
	circle, err := q.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if circle == nil {
		return nil, domain.NewNotFound(circleID)
	}

	pseudonyms, err := q.pseudonymIndex(ctx, circleID, circle)
	if err != nil {
		return nil, err
	}
	view := newCircleView(circle, pseudonyms)
	return &view, nil
}

// ListCircles retrieves a page of circles ordered by id
func (q *Executor) ListCircles(ctx context.Context, filter store.CircleFilter) ([]CircleView, error) {
	circles, err := q.store.ListCircles(ctx, filter)
	if err != nil {
		return nil, err
	}

	views := make([]CircleView, 0, len(circles))
	for i := range circles {
		pseudonyms, err := q.pseudonymIndex(ctx, circles[i].CircleID, &circles[i])
		if err != nil {
			return nil, err
		}
		views = append(views, newCircleView(&circles[i], pseudonyms))
	}
	return views, nil
}

// MemberView is one member's standing within a circle
type MemberView struct {
	Display          string  `json:"display"`
	IsCreator        bool    `json:"is_creator"`
	HasLockedDeposit bool    `json:"has_locked_deposit"`
	LockedAmount     uint64  `json:"locked_amount"`
	Blocked          bool    `json:"blocked"`
	BlockedFromCycle *uint32 `json:"blocked_from_cycle,omitempty"`
}

// GetMembers retrieves the member roster of a circle
func (q *Executor) GetMembers(ctx context.Context, circleID uint64) ([]MemberView, error) {
	circle, err := q.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if circle == nil {
		return nil, domain.NewNotFound(circleID)
	}

	pseudonyms, err := q.pseudonymIndex(ctx, circleID, circle)
	if err != nil {
		return nil, err
	}
	locks, err := q.store.ListMemberLocks(ctx, circleID)
	if err != nil {
		return nil, err
	}
	lockByMember := make(map[domain.Address]uint64, len(locks))
	for _, l := range locks {
		lockByMember[l.Member] = l.Amount
	}
	blocks, err := q.store.ListBlockedMembers(ctx, circleID)
	if err != nil {
		return nil, err
	}
	blockByMember := make(map[domain.Address]uint32, len(blocks))
	for _, b := range blocks {
		blockByMember[b.Member] = b.BlockedFromCycle
	}

	members := make([]MemberView, 0, len(circle.Members))
	for _, m := range circle.Members {
		view := MemberView{
			Display:   displayName(m, pseudonyms),
			IsCreator: m == circle.CreatorAddress,
		}
		if amount, ok := lockByMember[m]; ok {
			view.HasLockedDeposit = true
			view.LockedAmount = amount
		}
		if from, ok := blockByMember[m]; ok {
			view.Blocked = true
			fromCopy := from
			view.BlockedFromCycle = &fromCopy
		}
		members = append(members, view)
	}
	return members, nil
}

// CycleView is the progress snapshot of the cycle in flight
type CycleView struct {
	CircleID       uint64         `json:"circle_id"`
	Cycle          uint32         `json:"cycle"`
	Recipient      domain.Address `json:"recipient,omitempty"`
	NextPayoutDate *time.Time     `json:"next_payout_date,omitempty"`
	RequiredCount  int            `json:"required_count"`
	DepositedCount int            `json:"deposited_count"`
	LateCount      int            `json:"late_count"`
}

// GetCurrentCycle retrieves deposit progress for the running cycle
func (q *Executor) GetCurrentCycle(ctx context.Context, circleID uint64) (*CycleView, error) {
	circle, err := q.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if circle == nil {
		return nil, domain.NewNotFound(circleID)
	}
	if circle.Status != domain.StatusRunning && circle.Status != domain.StatusPaused {
		return nil, domain.NewInvalidStatus("Running or Paused", circle.Status)
	}

	cycle := circle.CurrentCycleIndex
	blocks, err := q.store.ListBlockedMembers(ctx, circleID)
	if err != nil {
		return nil, err
	}
	active := len(circle.Members)
	for _, b := range blocks {
		if b.BlockedFromCycle <= cycle && domain.ContainsAddress(circle.Members, b.Member) {
			active--
		}
	}

	deposits, err := q.store.ListDepositsByCycle(ctx, circleID, cycle)
	if err != nil {
		return nil, err
	}

	view := CycleView{
		CircleID:       circleID,
		Cycle:          cycle,
		NextPayoutDate: circle.NextPayoutDate,
		RequiredCount:  active,
		DepositedCount: len(deposits),
		LateCount:      len(circle.MembersLateThisCycle),
	}
	if recipient, err := domain.PayoutRecipient(circle.PayoutOrder, cycle); err == nil {
		view.Recipient = recipient
	}
	return &view, nil
}

// ListCycleDeposits retrieves the deposits of one cycle
func (q *Executor) ListCycleDeposits(ctx context.Context, circleID uint64, cycle uint32) ([]schema.DepositRecord, error) {
	return q.store.ListDepositsByCycle(ctx, circleID, cycle)
}

// ListMemberDeposits retrieves one member's deposits across all cycles
func (q *Executor) ListMemberDeposits(ctx context.Context, circleID uint64, member domain.Address) ([]schema.DepositRecord, error) {
	return q.store.ListDepositsByMember(ctx, circleID, member)
}

// ListPayouts retrieves a circle's payout history in cycle order
func (q *Executor) ListPayouts(ctx context.Context, circleID uint64) ([]schema.PayoutRecord, error) {
	return q.store.ListPayouts(ctx, circleID)
}

// ListPenalties retrieves penalties, optionally narrowed to one member
func (q *Executor) ListPenalties(ctx context.Context, circleID uint64, member *domain.Address) ([]schema.PenaltyRecord, error) {
	return q.store.ListPenalties(ctx, circleID, member)
}

// ListRefunds retrieves all refunds issued by a circle
func (q *Executor) ListRefunds(ctx context.Context, circleID uint64) ([]schema.RefundRecord, error) {
	return q.store.ListRefunds(ctx, circleID)
}

// ListEvents retrieves up to limit audit events, most recent first
func (q *Executor) ListEvents(ctx context.Context, circleID uint64, limit int) ([]schema.EventLog, error) {
	return q.store.ListEvents(ctx, circleID, limit)
}

// MemberBalance is the contributed-versus-received position of one member
type MemberBalance struct {
	CircleID    uint64         `json:"circle_id"`
	Member      domain.Address `json:"member"`
	Contributed uint64         `json:"contributed"`
	Received    uint64         `json:"received"`
	Penalties   uint64         `json:"penalties"`
	Refunded    uint64         `json:"refunded"`
	Locked      uint64         `json:"locked"`
}

// GetMemberBalance computes a member's net position in one circle
func (q *Executor) GetMemberBalance(ctx context.Context, circleID uint64, member domain.Address) (*MemberBalance, error) {
	circle, err := q.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if circle == nil {
		return nil, domain.NewNotFound(circleID)
	}

	balance := MemberBalance{CircleID: circleID, Member: member}

	deposits, err := q.store.ListDepositsByMember(ctx, circleID, member)
	if err != nil {
		return nil, err
	}
	for _, d := range deposits {
		balance.Contributed, err = domain.CheckedAdd(balance.Contributed, d.Amount)
		if err != nil {
			return nil, err
		}
	}

	payouts, err := q.store.ListPayouts(ctx, circleID)
	if err != nil {
		return nil, err
	}
	for _, p := range payouts {
		if p.Recipient != member {
			continue
		}
		balance.Received, err = domain.CheckedAdd(balance.Received, p.Amount)
		if err != nil {
			return nil, err
		}
	}

	penalties, err := q.store.ListPenalties(ctx, circleID, &member)
	if err != nil {
		return nil, err
	}
	for _, p := range penalties {
		balance.Penalties, err = domain.CheckedAdd(balance.Penalties, p.Amount)
		if err != nil {
			return nil, err
		}
	}

	refunds, err := q.store.ListRefunds(ctx, circleID)
	if err != nil {
		return nil, err
	}
	for _, r := range refunds {
		if r.Member != member {
			continue
		}
		balance.Refunded, err = domain.CheckedAdd(balance.Refunded, r.Amount)
		if err != nil {
			return nil, err
		}
	}

	lock, err := q.store.GetMemberLock(ctx, circleID, member)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		balance.Locked = lock.Amount
	}

	return &balance, nil
}

// CircleStats aggregates a circle's escrow and rotation progress
type CircleStats struct {
	CircleID                   uint64              `json:"circle_id"`
	Status                     domain.CircleStatus `json:"status"`
	MemberCount                int                 `json:"member_count"`
	BlockedCount               int                 `json:"blocked_count"`
	CyclesCompleted            uint32              `json:"cycles_completed"`
	TotalCycles                uint32              `json:"total_cycles"`
	TotalAmountLocked          uint64              `json:"total_amount_locked"`
	TotalPaidOut               uint64              `json:"total_paid_out"`
	TotalPenaltiesCollected    uint64              `json:"total_penalties_collected"`
	TotalPlatformFeesCollected uint64              `json:"total_platform_fees_collected"`
}

// GetCircleStats retrieves aggregate figures for one circle
func (q *Executor) GetCircleStats(ctx context.Context, circleID uint64) (*CircleStats, error) {
	circle, err := q.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if circle == nil {
		return nil, domain.NewNotFound(circleID)
	}

	blocks, err := q.store.ListBlockedMembers(ctx, circleID)
	if err != nil {
		return nil, err
	}
	payouts, err := q.store.ListPayouts(ctx, circleID)
	if err != nil {
		return nil, err
	}
	var paid uint64
	for _, p := range payouts {
		paid, err = domain.CheckedAdd(paid, p.Amount)
		if err != nil {
			return nil, err
		}
	}

	return &CircleStats{
		CircleID:                   circleID,
		Status:                     circle.Status,
		MemberCount:                len(circle.Members),
		BlockedCount:               len(blocks),
		CyclesCompleted:            circle.CyclesCompleted,
		TotalCycles:                circle.TotalCycles,
		TotalAmountLocked:          circle.TotalAmountLocked,
		TotalPaidOut:               paid,
		TotalPenaltiesCollected:    circle.TotalPenaltiesCollected,
		TotalPlatformFeesCollected: circle.TotalPlatformFeesCollected,
	}, nil
}

// MemberStats tracks one member's payment record across settled cycles
type MemberStats struct {
	CircleID         uint64         `json:"circle_id"`
	Member           domain.Address `json:"member"`
	TotalContributed uint64         `json:"total_contributed"`
	TotalReceived    uint64         `json:"total_received"`
	TotalPenalties   uint64         `json:"total_penalties"`
	MissedPayments   uint32         `json:"missed_payments"`
}

// GetMemberStats computes a member's payment history in one circle. A cycle
// counts as missed only once it has settled without a deposit from the member.
func (q *Executor) GetMemberStats(ctx context.Context, circleID uint64, member domain.Address) (*MemberStats, error) {
	circle, err := q.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if circle == nil {
		return nil, domain.NewNotFound(circleID)
	}

	stats := MemberStats{CircleID: circleID, Member: member}

	deposits, err := q.store.ListDepositsByMember(ctx, circleID, member)
	if err != nil {
		return nil, err
	}
	depositCycles := make(map[uint32]bool, len(deposits))
	for _, d := range deposits {
		depositCycles[d.Cycle] = true
		stats.TotalContributed, err = domain.CheckedAdd(stats.TotalContributed, d.Amount)
		if err != nil {
			return nil, err
		}
	}
	for cycle := uint32(1); cycle <= circle.CyclesCompleted; cycle++ {
		if !depositCycles[cycle] {
			stats.MissedPayments++
		}
	}

	payouts, err := q.store.ListPayouts(ctx, circleID)
	if err != nil {
		return nil, err
	}
	for _, p := range payouts {
		if p.Recipient != member {
			continue
		}
		stats.TotalReceived, err = domain.CheckedAdd(stats.TotalReceived, p.Amount)
		if err != nil {
			return nil, err
		}
	}

	penalties, err := q.store.ListPenalties(ctx, circleID, &member)
	if err != nil {
		return nil, err
	}
	for _, p := range penalties {
		stats.TotalPenalties, err = domain.CheckedAdd(stats.TotalPenalties, p.Amount)
		if err != nil {
			return nil, err
		}
	}

	return &stats, nil
}

// pseudonymIndex loads pseudonyms for a circle that hides member identities.
// Public-identity circles skip the lookup.
func (q *Executor) pseudonymIndex(ctx context.Context, circleID uint64, circle *schema.Circle) (map[domain.Address]string, error) {
	if circle.ShowMemberIdentities {
		return nil, nil
	}
	pseudonyms, err := q.store.ListPseudonyms(ctx, circleID)
	if err != nil {
		return nil, err
	}
	index := make(map[domain.Address]string, len(pseudonyms))
	for _, p := range pseudonyms {
		index[p.Member] = p.Pseudonym
	}
	return index, nil
}

// displayName resolves how one member appears in public views. Members of an
// identity-hiding circle without a pseudonym show as "anonymous".
func displayName(member domain.Address, pseudonyms map[domain.Address]string) string {
	if pseudonyms == nil {
		return member.String()
	}
	if name, ok := pseudonyms[member]; ok {
		return name
	}
	return "anonymous"
}

func newCircleView(circle *schema.Circle, pseudonyms map[domain.Address]string) CircleView {
	members := make([]string, 0, len(circle.Members))
	for _, m := range circle.Members {
		members = append(members, displayName(m, pseudonyms))
	}
	var order []string
	for _, m := range circle.PayoutOrder {
		order = append(order, displayName(m, pseudonyms))
	}

	return CircleView{
		CircleID:       circle.CircleID,
		Name:           circle.Name,
		Description:    circle.Description,
		Image:          circle.Image,
		CreatorAddress: circle.CreatorAddress,
		CreatedAt:      circle.CreatedAt,
		UpdatedAt:      circle.UpdatedAt,

		MaxMembers:         circle.MaxMembers,
		MinMembersRequired: circle.MinMembersRequired,
		InviteOnly:         circle.InviteOnly,
		MemberCount:        len(circle.Members),
		Members:            members,

		ContributionAmount: circle.ContributionAmount,
		Denomination:       circle.Denomination,
		PayoutAmount:       circle.PayoutAmount,
		LateFeeAmount:      circle.LateFeeAmount,
		PlatformFeePercent: circle.PlatformFeePercent,
		ArbiterFeePercent:  circle.ArbiterFeePercent,

		TotalCycles:       circle.TotalCycles,
		CycleDurationDays: circle.CycleDurationDays,
		StartDate:         circle.StartDate,
		NextPayoutDate:    circle.NextPayoutDate,
		EndDate:           circle.EndDate,
		GracePeriodHours:  circle.GracePeriodHours,

		PayoutOrderType: circle.PayoutOrderType,
		PayoutOrder:     order,

		Status:            circle.Status,
		CurrentCycleIndex: circle.CurrentCycleIndex,
		CyclesCompleted:   circle.CyclesCompleted,

		TotalAmountLocked:          circle.TotalAmountLocked,
		TotalPenaltiesCollected:    circle.TotalPenaltiesCollected,
		TotalPlatformFeesCollected: circle.TotalPlatformFeesCollected,

		Visibility:           circle.Visibility,
		ShowMemberIdentities: circle.ShowMemberIdentities,
	}
}
