package domain

import "fmt"

// ErrorKind discriminates the distinct rejection conditions of the engine.
// Every operation fails with exactly one kind and commits nothing.
type ErrorKind string

const (
	KindUnauthorized      ErrorKind = "unauthorized"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidStatus     ErrorKind = "invalid_status"
	KindCircleFull        ErrorKind = "circle_full"
	KindInviteOnly        ErrorKind = "invite_only"
	KindAlreadyMember     ErrorKind = "already_member"
	KindAlreadyInvited    ErrorKind = "already_invited"
	KindAlreadyDeposited  ErrorKind = "already_deposited"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindExitNotAllowed    ErrorKind = "exit_not_allowed"
	KindMinMembersNotMet  ErrorKind = "min_members_not_met"
	KindCycleNotReady     ErrorKind = "cycle_not_ready"
	KindMemberLate        ErrorKind = "member_late"
	KindOverflow          ErrorKind = "overflow"
	KindInvalidParameters ErrorKind = "invalid_parameters"
)

// Error is a validation failure carrying its kind and a human-readable
// message. Errors of the same kind match under errors.Is regardless of
// message, so callers can branch on the sentinel values below.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel values for errors.Is matching.
var (
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "circle not found"}
	ErrInvalidStatus     = &Error{Kind: KindInvalidStatus, Message: "invalid circle status"}
	ErrCircleFull        = &Error{Kind: KindCircleFull, Message: "circle is full"}
	ErrInviteOnly        = &Error{Kind: KindInviteOnly, Message: "circle is invite-only"}
	ErrAlreadyMember     = &Error{Kind: KindAlreadyMember, Message: "already a member"}
	ErrAlreadyInvited    = &Error{Kind: KindAlreadyInvited, Message: "already invited"}
	ErrAlreadyDeposited  = &Error{Kind: KindAlreadyDeposited, Message: "deposit already made for this cycle"}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrExitNotAllowed    = &Error{Kind: KindExitNotAllowed, Message: "exit not allowed"}
	ErrMinMembersNotMet  = &Error{Kind: KindMinMembersNotMet, Message: "minimum members not met"}
	ErrCycleNotReady     = &Error{Kind: KindCycleNotReady, Message: "cycle not ready"}
	ErrMemberLate        = &Error{Kind: KindMemberLate, Message: "member is late, grace period ended"}
	ErrOverflow          = &Error{Kind: KindOverflow, Message: "arithmetic overflow"}
	ErrInvalidParameters = &Error{Kind: KindInvalidParameters, Message: "invalid parameters"}
)

// NewUnauthorized builds an authorization failure with a role hint
func NewUnauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: "unauthorized: " + msg}
}

// NewNotFound builds an unknown-circle failure
func NewNotFound(circleID uint64) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("circle not found: %d", circleID)}
}

// NewInvalidStatus reports the expected versus actual status of an operation
func NewInvalidStatus(expected string, actual CircleStatus) *Error {
	return &Error{
		Kind:    KindInvalidStatus,
		Message: fmt.Sprintf("circle is not in the correct status, expected: %s, got: %s", expected, actual),
	}
}

// NewCircleFull builds a capacity-exceeded failure
func NewCircleFull(max uint32) *Error {
	return &Error{Kind: KindCircleFull, Message: fmt.Sprintf("circle is full, max members: %d", max)}
}

// NewInviteOnly builds an invite-required failure
func NewInviteOnly(circleID uint64) *Error {
	return &Error{Kind: KindInviteOnly, Message: fmt.Sprintf("circle %d is invite-only", circleID)}
}

// NewAlreadyMember builds a duplicate-join failure
func NewAlreadyMember(addr Address) *Error {
	return &Error{Kind: KindAlreadyMember, Message: fmt.Sprintf("member already joined: %s", addr)}
}

// NewAlreadyInvited builds a duplicate-invite failure
func NewAlreadyInvited(addr Address) *Error {
	return &Error{Kind: KindAlreadyInvited, Message: fmt.Sprintf("member already invited: %s", addr)}
}

// NewAlreadyDeposited builds a duplicate-deposit failure for one cycle
func NewAlreadyDeposited(addr Address, cycle uint32) *Error {
	return &Error{
		Kind:    KindAlreadyDeposited,
		Message: fmt.Sprintf("deposit already made by %s for cycle %d", addr, cycle),
	}
}

// NewInsufficientFunds reports the required versus attached amount
func NewInsufficientFunds(required, sent uint64) *Error {
	return &Error{
		Kind:    KindInsufficientFunds,
		Message: fmt.Sprintf("insufficient funds, required: %d, sent: %d", required, sent),
	}
}

// NewExitNotAllowed builds an exit rejection
func NewExitNotAllowed(circleID uint64) *Error {
	return &Error{Kind: KindExitNotAllowed, Message: fmt.Sprintf("member exit not allowed for circle %d", circleID)}
}

// NewMinMembersNotMet reports the required versus current member count
func NewMinMembersNotMet(required, current uint32) *Error {
	return &Error{
		Kind:    KindMinMembersNotMet,
		Message: fmt.Sprintf("minimum members not met, required: %d, current: %d", required, current),
	}
}

// NewCycleNotReady reports the payout due date that has not been reached
func NewCycleNotReady(nextPayoutUnix int64) *Error {
	return &Error{
		Kind:    KindCycleNotReady,
		Message: fmt.Sprintf("cycle not ready, next payout date: %d", nextPayoutUnix),
	}
}

// NewDepositsIncomplete reports how many deposits the current cycle still
// requires before it can pay out
func NewDepositsIncomplete(required, received int) *Error {
	return &Error{
		Kind:    KindCycleNotReady,
		Message: fmt.Sprintf("cycle deposits incomplete, required: %d, received: %d", required, received),
	}
}

// NewMemberLate builds a strict-mode late-payment rejection
func NewMemberLate(addr Address) *Error {
	return &Error{Kind: KindMemberLate, Message: fmt.Sprintf("member is late, grace period ended: %s", addr)}
}

// NewOverflow builds a checked-arithmetic failure
func NewOverflow(msg string) *Error {
	return &Error{Kind: KindOverflow, Message: msg}
}

// NewInvalidParameters builds the catch-all malformed-input failure
func NewInvalidParameters(msg string) *Error {
	return &Error{Kind: KindInvalidParameters, Message: "invalid parameters: " + msg}
}
