package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizePayoutOrder(t *testing.T) {
	alice := Address("0xAlice")
	bob := Address("0xBob")
	carol := Address("0xCarol")

	tests := []struct {
		name       string
		orderType  PayoutOrderType
		predefined []Address
		members    []Address
		seed       uint64
		expected   []Address
	}{
		{
			name:       "predefined uses the supplied list",
			orderType:  OrderPredefined,
			predefined: []Address{carol, alice, bob},
			members:    []Address{alice, bob, carol},
			expected:   []Address{carol, alice, bob},
		},
		{
			name:      "predefined falls back to join order",
			orderType: OrderPredefined,
			members:   []Address{alice, bob, carol},
			expected:  []Address{alice, bob, carol},
		},
		{
			name:      "random shuffle reorders members",
			orderType: OrderRandom,
			members:   []Address{alice, bob, carol},
			seed:      1,
			expected:  []Address{alice, carol, bob},
		},
		{
			name:      "random shuffle with empty members",
			orderType: OrderRandom,
			members:   nil,
			seed:      42,
			expected:  []Address{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FinalizePayoutOrder(tt.orderType, tt.predefined, tt.members, tt.seed)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFinalizePayoutOrderDeterminism(t *testing.T) {
	members := []Address{"0xA", "0xB", "0xC", "0xD", "0xE"}

	first := FinalizePayoutOrder(OrderRandom, nil, members, 12345)
	second := FinalizePayoutOrder(OrderRandom, nil, members, 12345)
	assert.Equal(t, first, second)

	// Every member still appears exactly once after the shuffle.
	seen := map[Address]int{}
	for _, a := range first {
		seen[a]++
	}
	require.Len(t, seen, len(members))
	for _, a := range members {
		assert.Equal(t, 1, seen[a])
	}
}

func TestFinalizePayoutOrderDoesNotAliasInput(t *testing.T) {
	members := []Address{"0xA", "0xB", "0xC"}
	result := FinalizePayoutOrder(OrderPredefined, nil, members, 0)

	result[0] = "0xZ"
	assert.Equal(t, Address("0xA"), members[0])
}

func TestPayoutRecipient(t *testing.T) {
	order := []Address{"0xA", "0xB", "0xC"}

	tests := []struct {
		name        string
		order       []Address
		cycleIndex  uint32
		expected    Address
		expectError bool
	}{
		{
			name:       "first cycle",
			order:      order,
			cycleIndex: 1,
			expected:   "0xA",
		},
		{
			name:       "last cycle of rotation",
			order:      order,
			cycleIndex: 3,
			expected:   "0xC",
		},
		{
			name:       "rotation wraps around",
			order:      order,
			cycleIndex: 4,
			expected:   "0xA",
		},
		{
			name:        "empty order",
			order:       nil,
			cycleIndex:  1,
			expectError: true,
		},
		{
			name:        "zero cycle index",
			order:       order,
			cycleIndex:  0,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipient, err := PayoutRecipient(tt.order, tt.cycleIndex)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, recipient)
			}
		})
	}
}
