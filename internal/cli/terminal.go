package cli

import (
	"golang.org/x/term"
)

// TerminalDetector reports whether a file descriptor is an interactive
// terminal. An interface so tests can force either answer.
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector is the default implementation using golang.org/x/term
type DefaultTerminalDetector struct{}

// IsTerminal implements TerminalDetector
func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}
