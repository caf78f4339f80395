package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsave/circle-engine/internal/domain"
)

func TestLockJoinDeposit(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	circleID := createTestCircle(t, e, defaultParams())

	_, err := e.JoinCircle(ctx, alice, circleID)
	require.NoError(t, err)

	result, err := e.LockJoinDeposit(ctx, alice, circleID, payment(testJoinLock))
	require.NoError(t, err)
	assert.Equal(t, "120", result.Attributes["amount"])

	circle := getCircle(t, s, circleID)
	assert.Equal(t, testCreatorLock+testJoinLock, circle.TotalAmountLocked)

	lock, err := s.GetMemberLock(ctx, circleID, alice)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, testJoinLock, lock.Amount)
}

func TestLockJoinDepositRejections(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	circleID := createTestCircle(t, e, defaultParams())
	_, err := e.JoinCircle(ctx, alice, circleID)
	require.NoError(t, err)

	t.Run("duplicate lock", func(t *testing.T) {
		_, err := e.LockJoinDeposit(ctx, alice, circleID, payment(testJoinLock))
		require.NoError(t, err)
		_, err = e.LockJoinDeposit(ctx, alice, circleID, payment(testJoinLock))
		assert.ErrorIs(t, err, domain.ErrInvalidParameters)
	})

	t.Run("neither member nor invited", func(t *testing.T) {
		_, err := e.LockJoinDeposit(ctx, stranger, circleID, payment(testJoinLock))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("no funds attached", func(t *testing.T) {
		_, err := e.JoinCircle(ctx, bob, circleID)
		require.NoError(t, err)
		_, err = e.LockJoinDeposit(ctx, bob, circleID, nil)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("lock below one contribution", func(t *testing.T) {
		_, err := e.LockJoinDeposit(ctx, bob, circleID, payment(testContribution-1))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})
}

func TestLockJoinDepositAcceptsInvitee(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	params := defaultParams()
	params.InviteOnly = true
	circleID := createTestCircle(t, e, params)

	_, err := e.InviteMember(ctx, creator, circleID, alice)
	require.NoError(t, err)

	// Locking a deposit accepts the invitation in the same step
	result, err := e.LockJoinDeposit(ctx, alice, circleID, payment(testJoinLock))
	require.NoError(t, err)
	assert.Equal(t, "true", result.Attributes["auto_accepted"])

	circle := getCircle(t, s, circleID)
	assert.Contains(t, circle.Members, alice)
	assert.Empty(t, circle.PendingMembers)
}

func TestLockJoinDepositAutoStart(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	params := defaultParams()
	params.InviteOnly = true
	params.AutoStartWhenFull = true
	autoStartType := domain.AutoStartByMembers
	params.AutoStartType = &autoStartType
	circleID := createTestCircle(t, e, params)

	for _, m := range []domain.Address{alice, bob} {
		_, err := e.InviteMember(ctx, creator, circleID, m)
		require.NoError(t, err)
	}
	_, err := e.LockJoinDeposit(ctx, alice, circleID, payment(testJoinLock))
	require.NoError(t, err)

	// The last accepted invitee fills the circle and starts it
	result, err := e.LockJoinDeposit(ctx, bob, circleID, payment(testJoinLock))
	require.NoError(t, err)
	assert.Equal(t, "true", result.Attributes["auto_started"])
	assert.Equal(t, domain.StatusRunning, getCircle(t, s, circleID).Status)
}

func TestDepositContribution(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	circleID := createRunningCircle(t, e)

	before := getCircle(t, s, circleID).TotalAmountLocked
	result, err := e.DepositContribution(ctx, alice, circleID, payment(testContribution))
	require.NoError(t, err)
	assert.Equal(t, "false", result.Attributes["late"])

	circle := getCircle(t, s, circleID)
	assert.Equal(t, before+testContribution, circle.TotalAmountLocked)

	deposit, err := s.GetDeposit(ctx, circleID, alice, 1)
	require.NoError(t, err)
	require.NotNil(t, deposit)
	assert.Equal(t, testContribution, deposit.Amount)
	assert.True(t, deposit.OnTime)
}

func TestDepositContributionRejections(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	circleID := createRunningCircle(t, e)

	t.Run("duplicate deposit in one cycle", func(t *testing.T) {
		_, err := e.DepositContribution(ctx, alice, circleID, payment(testContribution))
		require.NoError(t, err)
		_, err = e.DepositContribution(ctx, alice, circleID, payment(testContribution))
		assert.ErrorIs(t, err, domain.ErrAlreadyDeposited)
	})

	t.Run("non-member", func(t *testing.T) {
		_, err := e.DepositContribution(ctx, stranger, circleID, payment(testContribution))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("short payment", func(t *testing.T) {
		_, err := e.DepositContribution(ctx, bob, circleID, payment(testContribution-1))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("not running", func(t *testing.T) {
		draftID := createTestCircle(t, e, defaultParams())
		_, err := e.DepositContribution(ctx, creator, draftID, payment(testContribution))
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	})
}

func TestDepositContributionLate(t *testing.T) {
	ctx := context.Background()

	t.Run("late fee charged after grace period", func(t *testing.T) {
		e, s, clock := newTestEngine(t)
		circleID := createRunningCircle(t, e)

		// Past the payout date plus the 24h grace period
		clock.Advance(7*24*time.Hour + 25*time.Hour)

		_, err := e.DepositContribution(ctx, alice, circleID, payment(testContribution))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		result, err := e.DepositContribution(ctx, alice, circleID, payment(testContribution+10))
		require.NoError(t, err)
		assert.Equal(t, "true", result.Attributes["late"])
		assert.Equal(t, "10", result.Attributes["late_fee"])

		circle := getCircle(t, s, circleID)
		// Only the base contribution enters escrow; the fee accrues separately
		assert.Equal(t, testCreatorLock+testContribution, circle.TotalAmountLocked)
		assert.Equal(t, uint64(10), circle.TotalPenalties)

		deposit, err := s.GetDeposit(ctx, circleID, alice, 1)
		require.NoError(t, err)
		require.NotNil(t, deposit)
		assert.False(t, deposit.OnTime)

		penalties, err := s.ListPenalties(ctx, circleID, &alice)
		require.NoError(t, err)
		require.Len(t, penalties, 1)
		assert.Equal(t, uint64(10), penalties[0].Amount)
		assert.Equal(t, "late contribution", penalties[0].Reason)
	})

	t.Run("within grace period is on time", func(t *testing.T) {
		e, s, clock := newTestEngine(t)
		circleID := createRunningCircle(t, e)

		clock.Advance(7*24*time.Hour + 12*time.Hour)

		result, err := e.DepositContribution(ctx, alice, circleID, payment(testContribution))
		require.NoError(t, err)
		assert.Equal(t, "false", result.Attributes["late"])
		assert.Equal(t, uint64(0), getCircle(t, s, circleID).TotalPenalties)
	})

	t.Run("strict mode rejects late deposits", func(t *testing.T) {
		e, _, clock := newTestEngine(t)
		params := defaultParams()
		params.StrictMode = true
		circleID := createTestCircle(t, e, params)
		_, err := e.JoinCircle(ctx, alice, circleID)
		require.NoError(t, err)
		_, err = e.StartCircle(ctx, creator, circleID)
		require.NoError(t, err)

		clock.Advance(7*24*time.Hour + 25*time.Hour)

		_, err = e.DepositContribution(ctx, alice, circleID, payment(testContribution+10))
		assert.ErrorIs(t, err, domain.ErrMemberLate)
	})
}

func TestDepositContributionBlockedMember(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()
	circleID := createRunningCircle(t, e)

	_, err := e.BlockMember(ctx, creator, circleID, bob, "missed payments")
	require.NoError(t, err)

	// Current cycle still accepts the blocked member's deposit
	depositAll(t, e, circleID, creator, alice, bob)

	clock.Advance(8 * 24 * time.Hour)
	_, err = e.ProcessPayout(ctx, creator, circleID)
	require.NoError(t, err)

	// From cycle 2 on the block applies
	_, err = e.DepositContribution(ctx, bob, circleID, payment(testContribution))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
