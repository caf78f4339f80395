package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/chainsave/circle-engine/internal/store"
	"github.com/chainsave/circle-engine/internal/store/schema"
)

// Audit-trail event types, one per state-mutating operation.
const (
	EventCircleCreated           = "circle_created"
	EventCircleUpdated           = "circle_updated"
	EventMemberJoined            = "member_joined"
	EventMemberInvited           = "member_invited"
	EventMemberExited            = "member_exited"
	EventCircleStarted           = "circle_started"
	EventDistributionCalendar    = "distribution_calendar"
	EventJoinDepositLocked       = "join_deposit_locked"
	EventContributionDeposited   = "contribution_deposited"
	EventPayoutProcessed         = "payout_processed"
	EventCirclePaused            = "circle_paused"
	EventCircleUnpaused          = "circle_unpaused"
	EventEmergencyStop           = "emergency_stop"
	EventCircleCancelled         = "circle_cancelled"
	EventMemberBlocked           = "member_blocked"
	EventPrivateMemberAdded      = "private_member_added"
	EventPseudonymUpdated        = "pseudonym_updated"
	EventBlockedFundsDistributed = "blocked_funds_distributed"
)

// appendEvent writes the next audit-trail entry for a circle. The per-circle
// counter is incremented in the same transaction as the state it numbers;
// counter overflow is the only failure an append can introduce.
func appendEvent(ctx context.Context, tx store.Store, circleID uint64, eventType, data string, meta any, ts time.Time) error {
	eventID, err := tx.NextEventID(ctx, circleID)
	if err != nil {
		return err
	}

	event := schema.EventLog{
		CircleID:  circleID,
		EventID:   eventID,
		EventType: eventType,
		Data:      data,
		Timestamp: ts,
	}
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal event meta: %w", err)
		}
		event.Meta = datatypes.JSON(raw)
	}

	return tx.AppendEvent(ctx, &event)
}
