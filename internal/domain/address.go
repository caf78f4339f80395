package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// Address is a normalized (EIP-55 checksummed) member identity.
type Address string

// String returns the string representation of the address
func (a Address) String() string {
	return string(a)
}

// ValidAddress checks if a raw string is a well-formed hex address
func ValidAddress(raw string) bool {
	return common.IsHexAddress(raw)
}

// NormalizeAddress validates a raw identity and returns its checksummed form.
func NormalizeAddress(raw string) (Address, error) {
	if !common.IsHexAddress(raw) {
		return "", NewInvalidParameters("malformed address: " + raw)
	}
	return Address(common.HexToAddress(raw).Hex()), nil
}

// ContainsAddress reports whether list contains addr
func ContainsAddress(list []Address, addr Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// RemoveAddress returns list without addr, preserving order
func RemoveAddress(list []Address, addr Address) []Address {
	out := make([]Address, 0, len(list))
	for _, a := range list {
		if a != addr {
			out = append(out, a)
		}
	}
	return out
}
