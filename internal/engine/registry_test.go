package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsave/circle-engine/internal/domain"
)

func TestCreateCircle(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := e.CreateCircle(ctx, creator, defaultParams(), payment(testCreatorLock))
	require.NoError(t, err)
	assert.Equal(t, "create_circle", result.Action)
	assert.Equal(t, uint64(1), result.CircleID)
	assert.Equal(t, creator.String(), result.Attributes["creator"])

	circle := getCircle(t, s, result.CircleID)
	assert.Equal(t, domain.StatusDraft, circle.Status)
	assert.Equal(t, []domain.Address{creator}, []domain.Address(circle.Members))
	assert.Equal(t, testCreatorLock, circle.TotalAmountLocked)

	lock, err := s.GetMemberLock(ctx, result.CircleID, creator)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, testCreatorLock, lock.Amount)

	// Circle ids are sequential
	second, err := e.CreateCircle(ctx, creator, defaultParams(), payment(testCreatorLock))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.CircleID)
}

func TestCreateCircleValidation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		mutate      func(*CreateCircleParams)
		payment     *Payment
		expectedErr error
	}{
		{
			name:        "zero max members",
			mutate:      func(p *CreateCircleParams) { p.MaxMembers = 0 },
			payment:     payment(testCreatorLock),
			expectedErr: domain.ErrInvalidParameters,
		},
		{
			name: "min exceeds max",
			mutate: func(p *CreateCircleParams) {
				p.MinMembersRequired = 10
			},
			payment:     payment(testCreatorLock),
			expectedErr: domain.ErrInvalidParameters,
		},
		{
			name:        "zero total cycles",
			mutate:      func(p *CreateCircleParams) { p.TotalCycles = 0 },
			payment:     payment(testCreatorLock),
			expectedErr: domain.ErrInvalidParameters,
		},
		{
			name:        "zero contribution",
			mutate:      func(p *CreateCircleParams) { p.ContributionAmount = 0 },
			payment:     payment(testCreatorLock),
			expectedErr: domain.ErrInvalidParameters,
		},
		{
			name: "payout order list length mismatch",
			mutate: func(p *CreateCircleParams) {
				p.PayoutOrderList = []domain.Address{alice, bob}
			},
			payment:     payment(testCreatorLock),
			expectedErr: domain.ErrInvalidParameters,
		},
		{
			name: "threshold above cap",
			mutate: func(p *CreateCircleParams) {
				threshold := uint64(75)
				p.FirstDistributionThresholdPercent = &threshold
			},
			payment:     payment(testCreatorLock),
			expectedErr: domain.ErrInvalidParameters,
		},
		{
			name:        "unknown order type",
			mutate:      func(p *CreateCircleParams) { p.PayoutOrderType = "alphabetical" },
			payment:     payment(testCreatorLock),
			expectedErr: domain.ErrInvalidParameters,
		},
		{
			name:        "creator lock not attached",
			mutate:      func(p *CreateCircleParams) {},
			payment:     payment(testCreatorLock - 1),
			expectedErr: domain.ErrInsufficientFunds,
		},
		{
			name:        "wrong denomination counts as zero",
			mutate:      func(p *CreateCircleParams) {},
			payment:     &Payment{Denomination: "uatom", Amount: testCreatorLock},
			expectedErr: domain.ErrInsufficientFunds,
		},
		{
			name:        "missing payment",
			mutate:      func(p *CreateCircleParams) {},
			payment:     nil,
			expectedErr: domain.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := defaultParams()
			tt.mutate(&params)
			result, err := e.CreateCircle(ctx, creator, params, tt.payment)
			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, result)
		})
	}
}

func TestCreateCirclePlatformDefaults(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	params := defaultParams()
	params.Denomination = ""
	circleID := createTestCircle(t, e, params)

	circle, err := s.GetCircle(ctx, circleID)
	require.NoError(t, err)
	assert.Equal(t, testDenomination, circle.Denomination)
	assert.Equal(t, uint64(100), circle.PlatformFeePercent)
	// Payout amount is the full pot of one cycle
	assert.Equal(t, testContribution*3, circle.PayoutAmount)
}

func TestUpdateCircle(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	circleID := createTestCircle(t, e, defaultParams())

	name := "dinner club"
	description := "monthly savings pool"
	_, err := e.UpdateCircle(ctx, creator, circleID, &name, &description, nil)
	require.NoError(t, err)

	circle, err := s.GetCircle(ctx, circleID)
	require.NoError(t, err)
	assert.Equal(t, "dinner club", circle.Name)
	assert.Equal(t, "monthly savings pool", circle.Description)

	// Nil fields are left untouched
	image := "ipfs://image"
	_, err = e.UpdateCircle(ctx, creator, circleID, nil, nil, &image)
	require.NoError(t, err)
	circle, err = s.GetCircle(ctx, circleID)
	require.NoError(t, err)
	assert.Equal(t, "dinner club", circle.Name)
	require.NotNil(t, circle.Image)
	assert.Equal(t, "ipfs://image", *circle.Image)
}

func TestUpdateCircleRejections(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	name := "renamed"

	t.Run("non-creator", func(t *testing.T) {
		circleID := createTestCircle(t, e, defaultParams())
		_, err := e.UpdateCircle(ctx, alice, circleID, &name, nil, nil)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("unknown circle", func(t *testing.T) {
		_, err := e.UpdateCircle(ctx, creator, 999, &name, nil, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("running circle", func(t *testing.T) {
		circleID := createRunningCircle(t, e)
		_, err := e.UpdateCircle(ctx, creator, circleID, &name, nil, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	})
}
