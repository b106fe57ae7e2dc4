package automaton

// LiveChildren counts children that are not dead.
func LiveChildren(children []ChildRecord) int {
	n := 0
	for _, c := range children {
		if c.Status != StatusDead {
			n++
		}
	}
	return n
}

// CheckQuota returns a *QuotaError when the live child count has reached max.
func CheckQuota(children []ChildRecord, max int) error {
	if LiveChildren(children) >= max {
		return &QuotaError{Max: max}
	}
	return nil
}
