package automaton

import "strings"

// ParseStatus infers a child status from the free-text output of the remote
// status query. Tokens are matched as substrings, case-sensitively, in
// precedence order dead, sleeping, running; ok is false when none occurs.
func ParseStatus(output string) (status Status, ok bool) {
	switch {
	case strings.Contains(output, string(StatusDead)):
		return StatusDead, true
	case strings.Contains(output, string(StatusSleeping)):
		return StatusSleeping, true
	case strings.Contains(output, string(StatusRunning)):
		return StatusRunning, true
	}
	return "", false
}
