package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/chainsave/circle-engine/internal/domain"
)

// DepositRecord represents the deposit_records table - one accepted
// contribution per (circle, member, cycle). The unique index makes deposits
// naturally idempotent per cycle: a second write for the same key is rejected.
type DepositRecord struct {
	ID       int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CircleID uint64         `gorm:"column:circle_id;not null;uniqueIndex:idx_deposits_circle_member_cycle,priority:1"`
	Member   domain.Address `gorm:"column:member;not null;type:text;uniqueIndex:idx_deposits_circle_member_cycle,priority:2"`
	Cycle    uint32         `gorm:"column:cycle;not null;uniqueIndex:idx_deposits_circle_member_cycle,priority:3"`
	// Amount is the base contribution amount, excluding any late fee
	Amount    uint64    `gorm:"column:amount;not null"`
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
	OnTime    bool      `gorm:"column:on_time;not null"`
}

// TableName specifies the table name for the DepositRecord model
func (DepositRecord) TableName() string {
	return "deposit_records"
}

// PenaltyRecord represents the penalty_records table - a late fee charged on
// top of a deposit that arrived after the grace period.
type PenaltyRecord struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CircleID  uint64         `gorm:"column:circle_id;not null;uniqueIndex:idx_penalties_circle_member_cycle,priority:1"`
	Member    domain.Address `gorm:"column:member;not null;type:text;uniqueIndex:idx_penalties_circle_member_cycle,priority:2"`
	Cycle     uint32         `gorm:"column:cycle;not null;uniqueIndex:idx_penalties_circle_member_cycle,priority:3"`
	Amount    uint64         `gorm:"column:amount;not null"`
	Reason    string         `gorm:"column:reason;not null;type:text"`
	Timestamp time.Time      `gorm:"column:timestamp;not null;type:timestamptz"`
}

// TableName specifies the table name for the PenaltyRecord model
func (PenaltyRecord) TableName() string {
	return "penalty_records"
}

// PayoutRecord represents the payout_records table - one completed payout per
// (circle, cycle); cycle numbers are dense starting at 1.
type PayoutRecord struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	CircleID uint64 `gorm:"column:circle_id;not null;uniqueIndex:idx_payouts_circle_cycle,priority:1"`
	Cycle    uint32 `gorm:"column:cycle;not null;uniqueIndex:idx_payouts_circle_cycle,priority:2"`
	// Recipient is the member the pot was paid to for this cycle
	Recipient domain.Address `gorm:"column:recipient;not null;type:text"`
	// Amount is the net payout after platform and arbiter fees
	Amount    uint64    `gorm:"column:amount;not null"`
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
}

// TableName specifies the table name for the PayoutRecord model
func (PayoutRecord) TableName() string {
	return "payout_records"
}

// RefundRecord represents the refund_records table - funds returned to a
// member outside the payout rotation (pre-start exit, blocked-funds
// redistribution).
type RefundRecord struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CircleID  uint64         `gorm:"column:circle_id;not null;index:idx_refunds_circle"`
	Member    domain.Address `gorm:"column:member;not null;type:text"`
	Amount    uint64         `gorm:"column:amount;not null"`
	Reason    string         `gorm:"column:reason;not null;type:text"`
	Timestamp time.Time      `gorm:"column:timestamp;not null;type:timestamptz"`
}

// TableName specifies the table name for the RefundRecord model
func (RefundRecord) TableName() string {
	return "refund_records"
}

// MemberLock represents the member_locks table - the refundable join deposit
// a member posts to secure membership, distinct from per-cycle contributions
// and usable as substitute funds if the member is later blocked.
type MemberLock struct {
	ID       int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CircleID uint64         `gorm:"column:circle_id;not null;uniqueIndex:idx_locks_circle_member,priority:1"`
	Member   domain.Address `gorm:"column:member;not null;type:text;uniqueIndex:idx_locks_circle_member,priority:2"`
	Amount   uint64         `gorm:"column:amount;not null"`
	LockedAt time.Time      `gorm:"column:locked_at;not null;type:timestamptz"`
}

// TableName specifies the table name for the MemberLock model
func (MemberLock) TableName() string {
	return "member_locks"
}

// BlockedMember represents the blocked_members table - the cycle from which a
// member is excluded from payout-eligibility checks. Blocks are always
// prospective; one outstanding block per member.
type BlockedMember struct {
	ID               int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CircleID         uint64         `gorm:"column:circle_id;not null;uniqueIndex:idx_blocked_circle_member,priority:1"`
	Member           domain.Address `gorm:"column:member;not null;type:text;uniqueIndex:idx_blocked_circle_member,priority:2"`
	BlockedFromCycle uint32         `gorm:"column:blocked_from_cycle;not null"`
	BlockedAt        time.Time      `gorm:"column:blocked_at;not null;type:timestamptz"`
}

// TableName specifies the table name for the BlockedMember model
func (BlockedMember) TableName() string {
	return "blocked_members"
}

// MemberPseudonym represents the member_pseudonyms table - display names for
// members of private circles.
type MemberPseudonym struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CircleID  uint64         `gorm:"column:circle_id;not null;uniqueIndex:idx_pseudonyms_circle_member,priority:1"`
	Member    domain.Address `gorm:"column:member;not null;type:text;uniqueIndex:idx_pseudonyms_circle_member,priority:2"`
	Pseudonym string         `gorm:"column:pseudonym;not null;type:text"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null;type:timestamptz"`
}

// TableName specifies the table name for the MemberPseudonym model
func (MemberPseudonym) TableName() string {
	return "member_pseudonyms"
}

// EventLog represents the event_logs table - the append-only per-circle audit
// trail, numbered sequentially from the event counter.
type EventLog struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	CircleID  uint64         `gorm:"column:circle_id;not null;uniqueIndex:idx_events_circle_event,priority:1"`
	EventID   uint64         `gorm:"column:event_id;not null;uniqueIndex:idx_events_circle_event,priority:2"`
	EventType string         `gorm:"column:event_type;not null;type:text"`
	Data      string         `gorm:"column:data;not null;type:text"`
	Meta      datatypes.JSON `gorm:"column:meta;type:jsonb"`
	Timestamp time.Time      `gorm:"column:timestamp;not null;type:timestamptz"`
}

// TableName specifies the table name for the EventLog model
func (EventLog) TableName() string {
	return "event_logs"
}

// Counter represents the counters table - explicit monotonic counter rows
// (circle ids, per-circle event ids), incremented in the same transaction as
// the state they number.
type Counter struct {
	Key   string `gorm:"column:key;primaryKey;type:text"`
	Value uint64 `gorm:"column:value;not null"`
}

// TableName specifies the table name for the Counter model
func (Counter) TableName() string {
	return "counters"
}
