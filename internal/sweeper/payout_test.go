package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/engine"
	"github.com/chainsave/circle-engine/internal/logger"
	"github.com/chainsave/circle-engine/internal/store"
)

const testDenomination = "uusdc"

var (
	creator  = domain.Address("0xCreator")
	alice    = domain.Address("0xAlice")
	bob      = domain.Address("0xBob")
	platform = domain.Address("0xPlatform")
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: true}); err != nil {
		panic(err)
	}
	m.Run()
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Since(t time.Time) time.Duration {
	return c.now.Sub(t)
}

type fixture struct {
	engine  *engine.Engine
	store   store.Store
	clock   *testClock
	sweeper *PayoutSweeper
}

func newFixture(t *testing.T, batchSize int) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e := engine.New(s, clock, engine.PlatformConfig{
		FeePercent:      100,
		Denomination:    testDenomination,
		MinCreatorLock:  1,
		PlatformAddress: platform,
	})
	sw := NewPayoutSweeper(Config{PlatformAddress: platform, BatchSize: batchSize}, e, s, nil, clock)
	return &fixture{engine: e, store: s, clock: clock, sweeper: sw}
}

// createRunningCircle starts a three-member circle and returns its id
func (f *fixture) createRunningCircle(t *testing.T, autoPayout bool) uint64 {
	t.Helper()
	ctx := context.Background()

	params := engine.CreateCircleParams{
		Name:               "sweep target",
		Description:        "test circle",
		MaxMembers:         3,
		MinMembersRequired: 2,
		ContributionAmount: 100,
		Denomination:       testDenomination,
		CreatorLockAmount:  50,
		TotalCycles:        3,
		CycleDurationDays:  7,
		GracePeriodHours:   24,
		PayoutOrderType:    domain.OrderPredefined,
		AutoPayoutEnabled:  autoPayout,
		Visibility:         domain.VisibilityPublic,
	}
	result, err := f.engine.CreateCircle(ctx, creator, params,
		&engine.Payment{Denomination: testDenomination, Amount: 50})
	require.NoError(t, err)
	circleID := result.CircleID

	_, err = f.engine.JoinCircle(ctx, alice, circleID)
	require.NoError(t, err)
	_, err = f.engine.JoinCircle(ctx, bob, circleID)
	require.NoError(t, err)
	_, err = f.engine.StartCircle(ctx, creator, circleID)
	require.NoError(t, err)
	return circleID
}

func (f *fixture) depositAll(t *testing.T, circleID uint64) {
	t.Helper()
	for _, m := range []domain.Address{creator, alice, bob} {
		_, err := f.engine.DepositContribution(context.Background(), m, circleID,
			&engine.Payment{Denomination: testDenomination, Amount: 100})
		require.NoError(t, err)
	}
}

func TestSweepProcessesDueCircle(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	circleID := f.createRunningCircle(t, true)
	f.depositAll(t, circleID)

	f.clock.now = f.clock.now.Add(8 * 24 * time.Hour)
	require.NoError(t, f.sweeper.Run(ctx))

	payout, err := f.store.GetPayout(ctx, circleID, 1)
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.Equal(t, creator, payout.Recipient)

	circle, err := f.store.GetCircle(ctx, circleID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), circle.CurrentCycleIndex)
}

func TestSweepSkipsCircles(t *testing.T) {
	ctx := context.Background()

	t.Run("not yet due", func(t *testing.T) {
		f := newFixture(t, 100)
		circleID := f.createRunningCircle(t, true)
		f.depositAll(t, circleID)

		require.NoError(t, f.sweeper.Run(ctx))

		payout, err := f.store.GetPayout(ctx, circleID, 1)
		require.NoError(t, err)
		assert.Nil(t, payout)
	})

	t.Run("incomplete deposits", func(t *testing.T) {
		f := newFixture(t, 100)
		circleID := f.createRunningCircle(t, true)

		f.clock.now = f.clock.now.Add(8 * 24 * time.Hour)
		require.NoError(t, f.sweeper.Run(ctx))

		payout, err := f.store.GetPayout(ctx, circleID, 1)
		require.NoError(t, err)
		assert.Nil(t, payout)
	})

	t.Run("auto payout disabled", func(t *testing.T) {
		f := newFixture(t, 100)
		circleID := f.createRunningCircle(t, false)
		f.depositAll(t, circleID)

		f.clock.now = f.clock.now.Add(8 * 24 * time.Hour)
		require.NoError(t, f.sweeper.Run(ctx))

		payout, err := f.store.GetPayout(ctx, circleID, 1)
		require.NoError(t, err)
		assert.Nil(t, payout)
	})
}

func TestSweepPagesThroughCircles(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	var ids []uint64
	for range 5 {
		circleID := f.createRunningCircle(t, true)
		f.depositAll(t, circleID)
		ids = append(ids, circleID)
	}

	f.clock.now = f.clock.now.Add(8 * 24 * time.Hour)
	require.NoError(t, f.sweeper.Run(ctx))

	for _, circleID := range ids {
		payout, err := f.store.GetPayout(ctx, circleID, 1)
		require.NoError(t, err)
		assert.NotNil(t, payout, "circle %d should have been swept", circleID)
	}
}
