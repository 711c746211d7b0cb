// Package output abstracts PCM playback devices behind a uniform
// session interface with pluggable, registry-selected backends.
package output

import (
	"errors"
	"time"
)

// Common errors for Backend implementations
var (
	ErrUnknownBackend    = errors.New("unknown output backend")
	ErrDeviceUnavailable = errors.New("output device unavailable")
	ErrNotOpen           = errors.New("output backend not open")
)

// Backend is a single playback session. The stream pushed through
// Write is 16-bit signed little-endian interleaved stereo PCM; a
// backend that cannot play that format downconverts internally.
//
// Sessions are not safe for concurrent use: one goroutine owns the
// lifecycle. Backends with an asynchronous device context synchronize
// that internally.
type Backend interface {
	// Open acquires the device and negotiates the sample rate. The
	// device string names a specific device, empty means the system
	// default. The returned rate is what the device actually granted;
	// callers must not assume the request was honored exactly.
	Open(device string, rate int) (int, error)

	// Write delivers all of p to the device before returning, blocking
	// or polling while device capacity is exhausted. Backends running a
	// reduced hardware format convert p in place, so callers must not
	// rely on p's contents afterwards. A recoverable underrun is
	// handled internally and never surfaces as an error.
	Write(p []byte) error

	// Pause and Resume are best effort; backends that cannot mute
	// implement them as no-ops. Safe to call in any state.
	Pause()
	Resume()

	// Close releases the device. Idempotent; closing a session that
	// never opened returns nil.
	Close() error
}

// UnderrunCounter is implemented by backends that count device
// underruns recovered during playback.
type UnderrunCounter interface {
	Underruns() int
}

// PollTuner is implemented by backends whose Write polls device
// progress at a fixed interval.
type PollTuner interface {
	SetPollInterval(d time.Duration)
}

// FormatLimiter is implemented by backends that can restrict the
// hardware format they negotiate. maxBits of 0 leaves the sample
// depth unrestricted.
type FormatLimiter interface {
	SetFormatLimit(maxBits int, forceMono bool)
}
