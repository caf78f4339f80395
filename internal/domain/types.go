package domain

// CircleStatus represents the lifecycle status of a savings circle
type CircleStatus string

const (
	// StatusDraft is the initial status of a freshly created circle
	StatusDraft CircleStatus = "draft"
	// StatusOpen is the status of a circle accepting members
	StatusOpen CircleStatus = "open"
	// StatusFull is the status of a circle at member capacity, not yet started
	StatusFull CircleStatus = "full"
	// StatusRunning is the status of a circle with active contribution cycles
	StatusRunning CircleStatus = "running"
	// StatusPaused is the status of a temporarily halted circle
	StatusPaused CircleStatus = "paused"
	// StatusCompleted is the terminal status after every cycle has paid out
	StatusCompleted CircleStatus = "completed"
	// StatusCancelled is the terminal status of an aborted circle
	StatusCancelled CircleStatus = "cancelled"
)

// IsValidStatus checks if a status is one of the known lifecycle statuses
func IsValidStatus(s CircleStatus) bool {
	switch s {
	case StatusDraft, StatusOpen, StatusFull, StatusRunning, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further lifecycle mutation
func (s CircleStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PayoutOrderType selects how the payout rotation is established at start
type PayoutOrderType string

const (
	// OrderPredefined uses the creator-supplied list, falling back to join order
	OrderPredefined PayoutOrderType = "predefined"
	// OrderRandom shuffles the final member list with a deterministic seed
	OrderRandom PayoutOrderType = "random"
)

// IsValidOrderType checks if an order type is supported
func IsValidOrderType(t PayoutOrderType) bool {
	return t == OrderPredefined || t == OrderRandom
}

// Visibility controls whether a circle is publicly listable
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// IsValidVisibility checks if a visibility value is supported
func IsValidVisibility(v Visibility) bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// RefundMode selects how funds are returned when a circle is cancelled
type RefundMode string

const (
	RefundModeFull           RefundMode = "full_refund"
	RefundModePartial        RefundMode = "partial_refund"
	RefundModeAutoDistribute RefundMode = "auto_distribute"
)

// AutoStartByMembers flips a full circle straight to running without an
// explicit start call, provided the minimum-member guard still holds.
const AutoStartByMembers = "by_members"

// BasisPointDenominator is the fee denominator: 10000 basis points = 100%.
const BasisPointDenominator = 10000

// MaxFirstDistributionThresholdPercent caps the configurable share of active
// members that must have deposited before the first payout.
const MaxFirstDistributionThresholdPercent = 60
