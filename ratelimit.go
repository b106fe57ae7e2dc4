package automaton

import "time"

// CheckSpawnRate reports whether a new spawn may proceed at now given the
// persisted children. It returns a *RateLimitError when the most recently
// created child is younger than interval. Ties on CreatedAt are irrelevant:
// any most-recent record gives the same answer.
func CheckSpawnRate(children []ChildRecord, interval time.Duration, now time.Time) error {
	if len(children) == 0 || interval <= 0 {
		return nil
	}

	last := children[0].CreatedAt
	for _, c := range children[1:] {
		if c.CreatedAt.After(last) {
			last = c.CreatedAt
		}
	}

	elapsed := now.Sub(last)
	if elapsed < interval {
		return &RateLimitError{Wait: interval - elapsed}
	}
	return nil
}
