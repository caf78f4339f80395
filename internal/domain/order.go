package domain

// FinalizePayoutOrder establishes the payout rotation exactly once, at the
// transition into running. Predefined ordering uses the creation-time list
// when one was supplied and otherwise the join order of the final member
// list. Random ordering applies a deterministic pseudo-shuffle seeded by
// block time plus circle id: element i swaps with (seed + i*7) mod n.
//
// The shuffle is NOT cryptographically secure. Whoever can influence
// transaction timing can influence the ordering; callers must not rely on it
// resisting manipulation.
func FinalizePayoutOrder(orderType PayoutOrderType, predefined, members []Address, seed uint64) []Address {
	if orderType == OrderPredefined {
		if len(predefined) > 0 {
			return cloneAddresses(predefined)
		}
		return cloneAddresses(members)
	}

	out := cloneAddresses(members)
	n := uint64(len(out))
	if n == 0 {
		return out
	}
	for i := range out {
		j := (seed + uint64(i)*7) % n
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// PayoutRecipient selects the recipient for a 1-based cycle index by cycling
// the finalized order from index 0.
func PayoutRecipient(order []Address, cycleIndex uint32) (Address, error) {
	if len(order) == 0 {
		return "", NewInvalidParameters("payout order not set")
	}
	if cycleIndex == 0 {
		return "", NewInvalidParameters("cycle index must be 1-based")
	}
	return order[int(cycleIndex-1)%len(order)], nil
}

func cloneAddresses(in []Address) []Address {
	out := make([]Address, len(in))
	copy(out, in)
	return out
}
