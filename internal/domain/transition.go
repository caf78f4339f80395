package domain

// Pure status-derivation functions. The boolean-flag-driven transitions
// (auto-start, auto-refund, invite gating) resolve here so the engine applies
// a single consistent decision per event and the table stays unit-testable.

// CanJoinStatus reports whether a circle accepts joins in the given status
func CanJoinStatus(s CircleStatus) bool {
	return s == StatusDraft || s == StatusOpen
}

// CanExitStatus reports whether members may exit in the given status.
// Exit is a pre-start operation only: Running, Paused, Completed and
// Cancelled all reject it.
func CanExitStatus(s CircleStatus) bool {
	return s == StatusDraft || s == StatusOpen || s == StatusFull
}

// StatusAfterJoin derives the status once a new member has been appended
func StatusAfterJoin(current CircleStatus, memberCount, maxMembers uint32) CircleStatus {
	if memberCount >= maxMembers {
		return StatusFull
	}
	if current == StatusDraft {
		return StatusOpen
	}
	return current
}

// ShouldAutoStart reports whether a circle that just reached capacity flips
// straight to running without an explicit start call.
func ShouldAutoStart(status CircleStatus, autoStartWhenFull bool, autoStartType string, memberCount, minRequired uint32) bool {
	return status == StatusFull &&
		autoStartWhenFull &&
		autoStartType == AutoStartByMembers &&
		memberCount >= minRequired
}

// StatusAfterExit derives the status once a member has been removed.
// Precedence: the creator left alone resets to Draft; dropping below the
// minimum with auto-refund enabled cancels; a no-longer-full circle reopens.
func StatusAfterExit(current CircleStatus, remaining []Address, creator Address, minRequired, maxMembers uint32, autoRefundIfMinNotMet bool) CircleStatus {
	if len(remaining) == 1 && remaining[0] == creator {
		return StatusDraft
	}
	if uint32(len(remaining)) < minRequired {
		if autoRefundIfMinNotMet {
			return StatusCancelled
		}
		return StatusOpen
	}
	if current == StatusFull && uint32(len(remaining)) < maxMembers {
		return StatusOpen
	}
	return current
}

// StatusAfterPayout derives the status once the current cycle has paid out
func StatusAfterPayout(cycleIndex, totalCycles uint32) CircleStatus {
	if cycleIndex >= totalCycles {
		return StatusCompleted
	}
	return StatusRunning
}
