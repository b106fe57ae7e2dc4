package automaton

import (
	"os"
	"path/filepath"
)

// Home returns the automaton home directory.
// It defaults to ~/.automaton but can be overridden with the AUTOMATON_HOME environment variable.
func Home() string {
	if v := os.Getenv("AUTOMATON_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".automaton")
}

// DefaultDBPath returns the default SQLite database path (~/.automaton/state.db).
func DefaultDBPath() string {
	return filepath.Join(Home(), "state.db")
}

// ConstitutionPath returns the local policy document propagated to children.
func ConstitutionPath() string {
	return filepath.Join(Home(), "constitution.md")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(Home(), "automaton.yaml")
}
