package domain

import "math/bits"

// Checked escrow arithmetic. Every balance mutation in the engine goes
// through these helpers; overflow and underflow surface as errors instead of
// wrapping or saturating.

// CheckedAdd returns a+b or an overflow error
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, NewOverflow("addition overflow")
	}
	return sum, nil
}

// CheckedSub returns a-b or an underflow error
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, NewOverflow("subtraction underflow")
	}
	return diff, nil
}

// CheckedMul returns a*b or an overflow error
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, NewOverflow("multiplication overflow")
	}
	return lo, nil
}

// MulRatio computes amount*numerator/denominator with a 128-bit intermediate,
// so fee math cannot overflow before the division. The result is floored.
func MulRatio(amount, numerator, denominator uint64) (uint64, error) {
	if denominator == 0 {
		return 0, NewInvalidParameters("zero denominator")
	}
	hi, lo := bits.Mul64(amount, numerator)
	if hi >= denominator {
		return 0, NewOverflow("ratio overflow")
	}
	quot, _ := bits.Div64(hi, lo, denominator)
	return quot, nil
}

// BasisPoints computes amount*bp/10000, the platform and arbiter fee formula.
func BasisPoints(amount, bp uint64) (uint64, error) {
	return MulRatio(amount, bp, BasisPointDenominator)
}
