// Package engine implements the savings-circle lifecycle engine: membership,
// escrow accounting, payout rotation, and blocked-funds recovery.
//
// Every operation follows the same shape: load the circle, validate the
// caller and preconditions, mutate an in-memory copy, and persist all writes
// in one store transaction. Transfer instructions are constructed only after
// the transaction commits and are handed to the settlement layer; their
// eventual execution can never roll back committed state.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chainsave/circle-engine/internal/adapter"
	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// PlatformConfig holds platform-level parameters applied to every circle
type PlatformConfig struct {
	// FeePercent is the platform fee in basis points (10000 = 100%)
	FeePercent uint64
	// Denomination is the default currency denomination for new circles
	Denomination string
	// MinCreatorLock is the smallest creator lock accepted at creation
	MinCreatorLock uint64
	// PlatformAddress receives accrued platform fees (withdrawal handled
	// outside this engine)
	PlatformAddress domain.Address
}

// Payment is the amount attached to an operation by the caller, as reported
// by the settlement gateway.
type Payment struct {
	Denomination string `json:"denomination"`
	Amount       uint64 `json:"amount"`
}

// TransferInstruction is a declarative outgoing transfer appended to an
// operation result. It is enqueued for execution outside the operation.
type TransferInstruction struct {
	ID           string         `json:"id"`
	Recipient    domain.Address `json:"recipient"`
	Denomination string         `json:"denomination"`
	Amount       uint64         `json:"amount"`
}

// Result is the success outcome of one engine operation
type Result struct {
	Action     string                `json:"action"`
	CircleID   uint64                `json:"circle_id"`
	Attributes map[string]string     `json:"attributes,omitempty"`
	Transfers  []TransferInstruction `json:"transfers,omitempty"`
}

// Engine executes circle lifecycle operations against the ledger store
type Engine struct {
	store    store.Store
	clock    adapter.Clock
	platform PlatformConfig
}

// New creates a new engine
func New(s store.Store, clock adapter.Clock, platform PlatformConfig) *Engine {
	return &Engine{store: s, clock: clock, platform: platform}
}

// Store exposes the underlying store for the read-only query layer
func (e *Engine) Store() store.Store {
	return e.store
}

func newResult(action string, circleID uint64) *Result {
	return &Result{
		Action:     action,
		CircleID:   circleID,
		Attributes: map[string]string{},
	}
}

func newTransfer(recipient domain.Address, denomination string, amount uint64) TransferInstruction {
	return TransferInstruction{
		ID:           uuid.NewString(),
		Recipient:    recipient,
		Denomination: denomination,
		Amount:       amount,
	}
}

// loadCircle fetches a circle or reports not-found
func loadCircle(ctx context.Context, tx store.Store, circleID uint64) (*schema.Circle, error) {
	circle, err := tx.GetCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if circle == nil {
		return nil, domain.NewNotFound(circleID)
	}
	return circle, nil
}

// attachedAmount returns the amount of the required denomination sent with
// the request. A missing payment or a denomination mismatch counts as zero.
func attachedAmount(payment *Payment, denomination string) uint64 {
	if payment == nil || payment.Denomination != denomination {
		return 0
	}
	return payment.Amount
}

// capabilities resolves the caller's roles for one circle
func capabilities(circle *schema.Circle, caller domain.Address) domain.CapabilitySet {
	return domain.ResolveCapabilities(caller, circle.CreatorAddress, circle.ArbiterAddress, circle.Members)
}

// blockedFromByMember indexes a circle's block markers by member address
func blockedFromByMember(ctx context.Context, tx store.Store, circleID uint64) (map[domain.Address]uint32, error) {
	markers, err := tx.ListBlockedMembers(ctx, circleID)
	if err != nil {
		return nil, err
	}
	blocked := make(map[domain.Address]uint32, len(markers))
	for _, m := range markers {
		blocked[m.Member] = m.BlockedFromCycle
	}
	return blocked, nil
}

// activeMembers returns the members whose deposits are still required at the
// given cycle, preserving member-list order.
func activeMembers(members []domain.Address, blocked map[domain.Address]uint32, cycle uint32) []domain.Address {
	active := make([]domain.Address, 0, len(members))
	for _, m := range members {
		if from, ok := blocked[m]; ok && from <= cycle {
			continue
		}
		active = append(active, m)
	}
	return active
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func graceDuration(hours uint32) time.Duration {
	return time.Duration(hours) * time.Hour
}
