package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/chainsave/circle-engine/internal/domain"
)

// Circle represents the circles table - the aggregate root of one
// rotating-savings group. Address lists are stored as JSON columns; child
// records (deposits, penalties, payouts, locks) live in their own tables
// keyed by circle_id.
type Circle struct {
	// CircleID is assigned sequentially from the circle counter
	CircleID uint64 `gorm:"column:circle_id;primaryKey"`
	// Name is the display name of the circle
	Name string `gorm:"column:name;not null;type:text"`
	// Description is the free-form description of the circle
	Description string `gorm:"column:description;not null;type:text"`
	// Image is an optional image reference
	Image *string `gorm:"column:image;type:text"`
	// CreatorAddress is the identity that created the circle (member index 0)
	CreatorAddress domain.Address `gorm:"column:creator_address;not null;type:text;index"`
	// CreatedAt is the timestamp when the circle was created
	CreatedAt time.Time `gorm:"column:created_at;not null;type:timestamptz"`
	// UpdatedAt is the timestamp when the circle was last mutated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;type:timestamptz"`

	// Membership parameters
	MaxMembers                   uint32                              `gorm:"column:max_members;not null"`
	MinMembersRequired           uint32                              `gorm:"column:min_members_required;not null"`
	InviteOnly                   bool                                `gorm:"column:invite_only;not null"`
	Members                      datatypes.JSONSlice[domain.Address] `gorm:"column:members;type:jsonb"`
	PendingMembers               datatypes.JSONSlice[domain.Address] `gorm:"column:pending_members;type:jsonb"`
	MemberExitAllowedBeforeStart bool                                `gorm:"column:member_exit_allowed_before_start;not null"`

	// Financial parameters; amounts are in the smallest unit of Denomination
	ContributionAmount uint64  `gorm:"column:contribution_amount;not null"`
	Denomination       string  `gorm:"column:denomination;not null;type:text"`
	PayoutAmount       uint64  `gorm:"column:payout_amount;not null"`
	PenaltyFeeAmount   uint64  `gorm:"column:penalty_fee_amount;not null"`
	LateFeeAmount      uint64  `gorm:"column:late_fee_amount;not null"`
	PlatformFeePercent uint64  `gorm:"column:platform_fee_percent;not null"`
	ArbiterFeePercent  *uint64 `gorm:"column:arbiter_fee_percent"`

	// Cycle and time parameters
	TotalCycles       uint32     `gorm:"column:total_cycles;not null"`
	CycleDurationDays uint32     `gorm:"column:cycle_duration_days;not null"`
	StartDate         *time.Time `gorm:"column:start_date;type:timestamptz"`
	FirstCycleDate    *time.Time `gorm:"column:first_cycle_date;type:timestamptz"`
	NextPayoutDate    *time.Time `gorm:"column:next_payout_date;type:timestamptz"`
	EndDate           *time.Time `gorm:"column:end_date;type:timestamptz"`
	GracePeriodHours  uint32     `gorm:"column:grace_period_hours;not null"`
	AutoStartWhenFull bool       `gorm:"column:auto_start_when_full;not null"`
	AutoStartType     *string    `gorm:"column:auto_start_type;type:text"`
	AutoStartDate     *time.Time `gorm:"column:auto_start_date;type:timestamptz"`

	// Payout logic parameters
	PayoutOrderType      domain.PayoutOrderType              `gorm:"column:payout_order_type;not null;type:text"`
	PayoutOrder          datatypes.JSONSlice[domain.Address] `gorm:"column:payout_order;type:jsonb"`
	AutoPayoutEnabled    bool                                `gorm:"column:auto_payout_enabled;not null"`
	ManualTriggerEnabled bool                                `gorm:"column:manual_trigger_enabled;not null"`

	// Security and risk controls
	ArbiterAddress           *domain.Address `gorm:"column:arbiter_address;type:text"`
	EmergencyStopEnabled     bool            `gorm:"column:emergency_stop_enabled;not null"`
	EmergencyStopTriggered   bool            `gorm:"column:emergency_stop_triggered;not null"`
	AutoRefundIfMinNotMet    bool            `gorm:"column:auto_refund_if_min_not_met;not null"`
	MaxMissedPaymentsAllowed uint32          `gorm:"column:max_missed_payments_allowed;not null"`
	StrictMode               bool            `gorm:"column:strict_mode;not null"`

	// Escrow totals, always derivable from the child record tables
	TotalAmountLocked          uint64            `gorm:"column:total_amount_locked;not null"`
	TotalPenaltiesCollected    uint64            `gorm:"column:total_penalties_collected;not null"`
	TotalPlatformFeesCollected uint64            `gorm:"column:total_platform_fees_collected;not null"`
	WithdrawalLock             bool              `gorm:"column:withdrawal_lock;not null"`
	RefundMode                 domain.RefundMode `gorm:"column:refund_mode;not null;type:text"`

	// Creator lock and first-distribution gating
	CreatorLockAmount                 uint64  `gorm:"column:creator_lock_amount;not null"`
	FirstDistributionThresholdPercent *uint64 `gorm:"column:first_distribution_threshold_percent"`

	// Runtime state
	Status               domain.CircleStatus                 `gorm:"column:status;not null;type:text;index"`
	CurrentCycleIndex    uint32                              `gorm:"column:current_cycle_index;not null"`
	CyclesCompleted      uint32                              `gorm:"column:cycles_completed;not null"`
	MembersPaidThisCycle datatypes.JSONSlice[domain.Address] `gorm:"column:members_paid_this_cycle;type:jsonb"`
	MembersLateThisCycle datatypes.JSONSlice[domain.Address] `gorm:"column:members_late_this_cycle;type:jsonb"`
	PrivateMembers       datatypes.JSONSlice[domain.Address] `gorm:"column:private_members;type:jsonb"`

	// Visibility and UX
	Visibility           domain.Visibility `gorm:"column:visibility;not null;type:text"`
	ShowMemberIdentities bool              `gorm:"column:show_member_identities;not null"`
}

// TableName specifies the table name for the Circle model
func (Circle) TableName() string {
	return "circles"
}
