package store

import (
	"context"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// CircleFilter narrows ListCircles results
type CircleFilter struct {
	// AfterID paginates past the given circle id (exclusive)
	AfterID uint64
	// Limit caps the page size; implementations apply their own default/max
	Limit int
	// Status filters by lifecycle status when set
	Status *domain.CircleStatus
	// Creator filters by creator address when set
	Creator *domain.Address
}

// Store defines the persistence contract for the circle engine. Lookups for
// a single record return (nil, nil) when the record does not exist.
//
// Atomically runs fn against a transactional view of the store; every write
// issued inside fn commits together or not at all.
type Store interface {
	// Atomically executes fn inside a single transaction
	Atomically(ctx context.Context, fn func(tx Store) error) error

	// NextCircleID increments and returns the global circle counter.
	// It fails closed on counter overflow.
	NextCircleID(ctx context.Context) (uint64, error)
	// NextEventID increments and returns the per-circle event counter.
	// It fails closed on counter overflow.
	NextEventID(ctx context.Context, circleID uint64) (uint64, error)

	// GetCircle retrieves a circle by id
	GetCircle(ctx context.Context, circleID uint64) (*schema.Circle, error)
	// SaveCircle inserts or updates a circle record
	SaveCircle(ctx context.Context, circle *schema.Circle) error
	// ListCircles retrieves circles ordered by id ascending
	ListCircles(ctx context.Context, filter CircleFilter) ([]schema.Circle, error)

	// GetDeposit retrieves the deposit for (circle, member, cycle)
	GetDeposit(ctx context.Context, circleID uint64, member domain.Address, cycle uint32) (*schema.DepositRecord, error)
	// SaveDeposit appends a deposit record
	SaveDeposit(ctx context.Context, deposit *schema.DepositRecord) error
	// ListDepositsByCycle retrieves all deposits for one cycle of a circle
	ListDepositsByCycle(ctx context.Context, circleID uint64, cycle uint32) ([]schema.DepositRecord, error)
	// ListDepositsByMember retrieves one member's deposits in ascending cycle order
	ListDepositsByMember(ctx context.Context, circleID uint64, member domain.Address) ([]schema.DepositRecord, error)

	// SavePenalty appends a penalty record
	SavePenalty(ctx context.Context, penalty *schema.PenaltyRecord) error
	// ListPenalties retrieves penalties for a circle, optionally for one member
	ListPenalties(ctx context.Context, circleID uint64, member *domain.Address) ([]schema.PenaltyRecord, error)

	// GetPayout retrieves the payout for (circle, cycle)
	GetPayout(ctx context.Context, circleID uint64, cycle uint32) (*schema.PayoutRecord, error)
	// SavePayout appends a payout record
	SavePayout(ctx context.Context, payout *schema.PayoutRecord) error
	// ListPayouts retrieves a circle's payouts in ascending cycle order
	ListPayouts(ctx context.Context, circleID uint64) ([]schema.PayoutRecord, error)

	// GetMemberLock retrieves a member's join-deposit lock
	GetMemberLock(ctx context.Context, circleID uint64, member domain.Address) (*schema.MemberLock, error)
	// SaveMemberLock stores a join-deposit lock
	SaveMemberLock(ctx context.Context, lock *schema.MemberLock) error
	// DeleteMemberLock removes a join-deposit lock (refund or sweep)
	DeleteMemberLock(ctx context.Context, circleID uint64, member domain.Address) error
	// ListMemberLocks retrieves all outstanding locks of a circle
	ListMemberLocks(ctx context.Context, circleID uint64) ([]schema.MemberLock, error)

	// GetBlockedMember retrieves a member's block marker
	GetBlockedMember(ctx context.Context, circleID uint64, member domain.Address) (*schema.BlockedMember, error)
	// SaveBlockedMember stores a block marker
	SaveBlockedMember(ctx context.Context, blocked *schema.BlockedMember) error
	// ListBlockedMembers retrieves all block markers of a circle
	ListBlockedMembers(ctx context.Context, circleID uint64) ([]schema.BlockedMember, error)

	// UpsertPseudonym creates or replaces a member's pseudonym
	UpsertPseudonym(ctx context.Context, pseudonym *schema.MemberPseudonym) error
	// ListPseudonyms retrieves all pseudonyms of a circle
	ListPseudonyms(ctx context.Context, circleID uint64) ([]schema.MemberPseudonym, error)

	// SaveRefund appends a refund record
	SaveRefund(ctx context.Context, refund *schema.RefundRecord) error
	// ListRefunds retrieves all refund records of a circle
	ListRefunds(ctx context.Context, circleID uint64) ([]schema.RefundRecord, error)

	// AppendEvent appends an audit-trail entry
	AppendEvent(ctx context.Context, event *schema.EventLog) error
	// ListEvents retrieves up to limit events, most recent first
	ListEvents(ctx context.Context, circleID uint64, limit int) ([]schema.EventLog, error)
}
