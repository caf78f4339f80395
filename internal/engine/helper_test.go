package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/store"
)

const (
	testDenomination = "uusdc"
	testContribution = uint64(100)
	testCreatorLock  = uint64(50)
	testJoinLock     = uint64(120)
)

var (
	creator  = domain.Address("0xCreator")
	alice    = domain.Address("0xAlice")
	bob      = domain.Address("0xBob")
	carol    = domain.Address("0xCarol")
	arbiter  = domain.Address("0xArbiter")
	platform = domain.Address("0xPlatform")
	stranger = domain.Address("0xStranger")
)

// testClock is a manually advanced clock so due dates are deterministic
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Since(t time.Time) time.Duration {
	return c.now.Sub(t)
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, store.Store, *testClock) {
	t.Helper()
	s := store.NewMemoryStore()
	clock := newTestClock()
	e := New(s, clock, PlatformConfig{
		FeePercent:      100, // 1%
		Denomination:    testDenomination,
		MinCreatorLock:  1,
		PlatformAddress: platform,
	})
	return e, s, clock
}

func defaultParams() CreateCircleParams {
	return CreateCircleParams{
		Name:                         "lunch club",
		Description:                  "weekly savings pool",
		MaxMembers:                   3,
		MinMembersRequired:           2,
		MemberExitAllowedBeforeStart: true,
		ContributionAmount:           testContribution,
		Denomination:                 testDenomination,
		LateFeeAmount:                10,
		CreatorLockAmount:            testCreatorLock,
		TotalCycles:                  3,
		CycleDurationDays:            7,
		GracePeriodHours:             24,
		PayoutOrderType:              domain.OrderPredefined,
		Visibility:                   domain.VisibilityPublic,
		ShowMemberIdentities:         true,
	}
}

func payment(amount uint64) *Payment {
	return &Payment{Denomination: testDenomination, Amount: amount}
}

// createTestCircle creates a circle with the given params and returns its id
func createTestCircle(t *testing.T, e *Engine, params CreateCircleParams) uint64 {
	t.Helper()
	result, err := e.CreateCircle(context.Background(), creator, params, payment(params.CreatorLockAmount))
	require.NoError(t, err)
	return result.CircleID
}

// createRunningCircle creates a three-member circle and starts it. The payout
// order falls back to join order: creator, alice, bob.
func createRunningCircle(t *testing.T, e *Engine) uint64 {
	t.Helper()
	ctx := context.Background()
	circleID := createTestCircle(t, e, defaultParams())

	_, err := e.JoinCircle(ctx, alice, circleID)
	require.NoError(t, err)
	_, err = e.JoinCircle(ctx, bob, circleID)
	require.NoError(t, err)
	_, err = e.StartCircle(ctx, creator, circleID)
	require.NoError(t, err)
	return circleID
}

// depositAll submits the current-cycle contribution for every given member
func depositAll(t *testing.T, e *Engine, circleID uint64, members ...domain.Address) {
	t.Helper()
	for _, m := range members {
		_, err := e.DepositContribution(context.Background(), m, circleID, payment(testContribution))
		require.NoError(t, err)
	}
}

func getCircle(t *testing.T, s store.Store, circleID uint64) *circleSnapshot {
	t.Helper()
	circle, err := s.GetCircle(context.Background(), circleID)
	require.NoError(t, err)
	require.NotNil(t, circle)
	return &circleSnapshot{
		Status:            circle.Status,
		Members:           circle.Members,
		PendingMembers:    circle.PendingMembers,
		PayoutOrder:       circle.PayoutOrder,
		CurrentCycleIndex: circle.CurrentCycleIndex,
		CyclesCompleted:   circle.CyclesCompleted,
		TotalAmountLocked: circle.TotalAmountLocked,
		TotalPenalties:    circle.TotalPenaltiesCollected,
		TotalPlatformFees: circle.TotalPlatformFeesCollected,
		NextPayoutDate:    circle.NextPayoutDate,
	}
}

// circleSnapshot is the subset of circle state the tests assert on
type circleSnapshot struct {
	Status            domain.CircleStatus
	Members           []domain.Address
	PendingMembers    []domain.Address
	PayoutOrder       []domain.Address
	CurrentCycleIndex uint32
	CyclesCompleted   uint32
	TotalAmountLocked uint64
	TotalPenalties    uint64
	TotalPlatformFees uint64
	NextPayoutDate    *time.Time
}
