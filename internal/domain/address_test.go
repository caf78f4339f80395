package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		expected    Address
		expectError bool
	}{
		{
			name:     "lowercase input is checksummed",
			raw:      "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
			expected: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		},
		{
			name:     "checksummed input is unchanged",
			raw:      "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			expected: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		},
		{
			name:        "not an address",
			raw:         "not-an-address",
			expectError: true,
		},
		{
			name:        "empty string",
			raw:         "",
			expectError: true,
		},
		{
			name:        "too short",
			raw:         "0x1234",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := NormalizeAddress(tt.raw)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidParameters)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, addr)
			}
		})
	}
}

func TestContainsAndRemoveAddress(t *testing.T) {
	list := []Address{"0xA", "0xB", "0xC"}

	assert.True(t, ContainsAddress(list, "0xB"))
	assert.False(t, ContainsAddress(list, "0xD"))
	assert.False(t, ContainsAddress(nil, "0xA"))

	assert.Equal(t, []Address{"0xA", "0xC"}, RemoveAddress(list, "0xB"))
	assert.Equal(t, []Address{"0xA", "0xB", "0xC"}, RemoveAddress(list, "0xD"))
	assert.Len(t, list, 3)
}

func TestResolveCapabilities(t *testing.T) {
	creator := Address("0xCreator")
	arbiter := Address("0xArbiter")
	member := Address("0xMember")
	members := []Address{creator, member}

	tests := []struct {
		name     string
		caller   Address
		arbiter  *Address
		expected []Capability
	}{
		{
			name:     "creator is also a member",
			caller:   creator,
			arbiter:  &arbiter,
			expected: []Capability{CapCreator, CapMember},
		},
		{
			name:     "arbiter alone",
			caller:   arbiter,
			arbiter:  &arbiter,
			expected: []Capability{CapArbiter},
		},
		{
			name:     "plain member",
			caller:   member,
			arbiter:  &arbiter,
			expected: []Capability{CapMember},
		},
		{
			name:     "stranger has no standing",
			caller:   "0xStranger",
			arbiter:  &arbiter,
			expected: nil,
		},
		{
			name:     "no arbiter configured",
			caller:   arbiter,
			arbiter:  nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := ResolveCapabilities(tt.caller, creator, tt.arbiter, members)
			assert.Len(t, set, len(tt.expected))
			for _, c := range tt.expected {
				assert.True(t, set.Has(c))
			}
			if len(tt.expected) > 0 {
				assert.True(t, set.HasAny(tt.expected...))
			}
			assert.False(t, set.HasAny("nonexistent"))
		})
	}
}
