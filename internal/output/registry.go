package output

import (
	"fmt"
	"log/slog"
)

// Descriptor describes a registered backend: a stable lowercase name,
// a human-readable description, and a constructor for an unopened
// session.
type Descriptor struct {
	Name        string
	Description string
	New         func() Backend
}

// registry holds descriptors in registration order. Platform-specific
// backends only register on builds that can actually run them.
var registry []Descriptor

// defaultOrder is the auto-selection preference. The file and
// diagnostic backends are deliberately absent; they are explicit-only.
var defaultOrder = []string{"alsa", "malgo", "oto"}

// Register adds a backend descriptor. Each backend implementation
// calls this from init.
func Register(d Descriptor) {
	registry = append(registry, d)
	slog.Debug("registered output backend", "name", d.Name)
}

// All returns the registered descriptors in registration order.
func All() []Descriptor {
	out := make([]Descriptor, len(registry))
	copy(out, registry)
	return out
}

// Find returns the descriptor registered under exactly name.
func Find(name string) (Descriptor, error) {
	for _, d := range registry {
		if d.Name == name {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// Select resolves a backend choice. A non-empty name must match a
// registered descriptor exactly; an empty name picks the first
// available entry of order, falling back to the built-in default
// order when order is empty.
func Select(name string, order []string) (Descriptor, error) {
	if name != "" {
		return Find(name)
	}

	if len(order) == 0 {
		order = defaultOrder
	}

	for _, n := range order {
		if d, err := Find(n); err == nil {
			slog.Debug("auto-selected output backend", "name", n)
			return d, nil
		}
	}

	return Descriptor{}, fmt.Errorf("%w: none of %v is available", ErrUnknownBackend, order)
}
