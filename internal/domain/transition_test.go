package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanJoinStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   CircleStatus
		expected bool
	}{
		{
			name:     "draft accepts joins",
			status:   StatusDraft,
			expected: true,
		},
		{
			name:     "open accepts joins",
			status:   StatusOpen,
			expected: true,
		},
		{
			name:     "full rejects joins",
			status:   StatusFull,
			expected: false,
		},
		{
			name:     "running rejects joins",
			status:   StatusRunning,
			expected: false,
		},
		{
			name:     "completed rejects joins",
			status:   StatusCompleted,
			expected: false,
		},
		{
			name:     "cancelled rejects joins",
			status:   StatusCancelled,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanJoinStatus(tt.status))
		})
	}
}

func TestCanExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   CircleStatus
		expected bool
	}{
		{
			name:     "draft allows exit",
			status:   StatusDraft,
			expected: true,
		},
		{
			name:     "open allows exit",
			status:   StatusOpen,
			expected: true,
		},
		{
			name:     "full allows exit",
			status:   StatusFull,
			expected: true,
		},
		{
			name:     "running rejects exit",
			status:   StatusRunning,
			expected: false,
		},
		{
			name:     "paused rejects exit",
			status:   StatusPaused,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanExitStatus(tt.status))
		})
	}
}

func TestStatusAfterJoin(t *testing.T) {
	tests := []struct {
		name        string
		current     CircleStatus
		memberCount uint32
		maxMembers  uint32
		expected    CircleStatus
	}{
		{
			name:        "draft flips to open on first join",
			current:     StatusDraft,
			memberCount: 2,
			maxMembers:  5,
			expected:    StatusOpen,
		},
		{
			name:        "open stays open below capacity",
			current:     StatusOpen,
			memberCount: 3,
			maxMembers:  5,
			expected:    StatusOpen,
		},
		{
			name:        "open flips to full at capacity",
			current:     StatusOpen,
			memberCount: 5,
			maxMembers:  5,
			expected:    StatusFull,
		},
		{
			name:        "draft flips straight to full when capacity is reached",
			current:     StatusDraft,
			memberCount: 2,
			maxMembers:  2,
			expected:    StatusFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusAfterJoin(tt.current, tt.memberCount, tt.maxMembers))
		})
	}
}

func TestShouldAutoStart(t *testing.T) {
	tests := []struct {
		name              string
		status            CircleStatus
		autoStartWhenFull bool
		autoStartType     string
		memberCount       uint32
		minRequired       uint32
		expected          bool
	}{
		{
			name:              "full circle with auto start by members",
			status:            StatusFull,
			autoStartWhenFull: true,
			autoStartType:     AutoStartByMembers,
			memberCount:       5,
			minRequired:       3,
			expected:          true,
		},
		{
			name:              "auto start disabled",
			status:            StatusFull,
			autoStartWhenFull: false,
			autoStartType:     AutoStartByMembers,
			memberCount:       5,
			minRequired:       3,
			expected:          false,
		},
		{
			name:              "wrong trigger type",
			status:            StatusFull,
			autoStartWhenFull: true,
			autoStartType:     "by_date",
			memberCount:       5,
			minRequired:       3,
			expected:          false,
		},
		{
			name:              "not full yet",
			status:            StatusOpen,
			autoStartWhenFull: true,
			autoStartType:     AutoStartByMembers,
			memberCount:       4,
			minRequired:       3,
			expected:          false,
		},
		{
			name:              "below minimum members",
			status:            StatusFull,
			autoStartWhenFull: true,
			autoStartType:     AutoStartByMembers,
			memberCount:       2,
			minRequired:       3,
			expected:          false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ShouldAutoStart(tt.status, tt.autoStartWhenFull, tt.autoStartType, tt.memberCount, tt.minRequired)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStatusAfterExit(t *testing.T) {
	creator := Address("0xCreator")
	alice := Address("0xAlice")
	bob := Address("0xBob")

	tests := []struct {
		name          string
		current       CircleStatus
		remaining     []Address
		minRequired   uint32
		maxMembers    uint32
		autoRefund    bool
		expected      CircleStatus
	}{
		{
			name:        "creator alone resets to draft",
			current:     StatusOpen,
			remaining:   []Address{creator},
			minRequired: 3,
			maxMembers:  5,
			expected:    StatusDraft,
		},
		{
			name:        "below minimum with auto refund cancels",
			current:     StatusOpen,
			remaining:   []Address{creator, alice},
			minRequired: 3,
			maxMembers:  5,
			autoRefund:  true,
			expected:    StatusCancelled,
		},
		{
			name:        "below minimum without auto refund reopens",
			current:     StatusOpen,
			remaining:   []Address{creator, alice},
			minRequired: 3,
			maxMembers:  5,
			expected:    StatusOpen,
		},
		{
			name:        "full circle reopens when a slot frees",
			current:     StatusFull,
			remaining:   []Address{creator, alice, bob},
			minRequired: 3,
			maxMembers:  4,
			expected:    StatusOpen,
		},
		{
			name:        "open circle stays open above minimum",
			current:     StatusOpen,
			remaining:   []Address{creator, alice, bob},
			minRequired: 3,
			maxMembers:  5,
			expected:    StatusOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StatusAfterExit(tt.current, tt.remaining, creator, tt.minRequired, tt.maxMembers, tt.autoRefund)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStatusAfterPayout(t *testing.T) {
	tests := []struct {
		name        string
		cycleIndex  uint32
		totalCycles uint32
		expected    CircleStatus
	}{
		{
			name:        "intermediate cycle keeps running",
			cycleIndex:  2,
			totalCycles: 5,
			expected:    StatusRunning,
		},
		{
			name:        "final cycle completes",
			cycleIndex:  5,
			totalCycles: 5,
			expected:    StatusCompleted,
		},
		{
			name:        "single cycle completes immediately",
			cycleIndex:  1,
			totalCycles: 1,
			expected:    StatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusAfterPayout(tt.cycleIndex, tt.totalCycles))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusDraft.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPaused.Terminal())
}
