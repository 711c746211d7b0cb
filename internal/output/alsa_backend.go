package output

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"
)

// pcmDevice is the slice of a blocking kernel PCM stream the alsa
// backend drives. The real implementation sits on
// github.com/gen2brain/alsa; tests substitute a scripted fake.
type pcmDevice interface {
	// WriteFrames submits whole frames from p and returns the number
	// of frames accepted. An underrun surfaces as an error wrapping
	// syscall.EPIPE and leaves the stream stopped until Prepare.
	WriteFrames(p []byte) (int, error)
	Prepare() error
	Start() error
	FrameBytes() int
	Drain() error
	Close() error
}

// pcmOpener acquires a configured PCM device and reports the rate the
// driver granted. Injected so tests can run the backend against a
// fake.
type pcmOpener func(device string, rate int) (pcmDevice, int, error)

// AlsaBackend pushes PCM through a blocking kernel stream. Underruns
// are recovered by re-priming the device and retrying the caller's
// data; the device stream is started explicitly once the first
// submission after open or recovery has been accepted.
type AlsaBackend struct {
	open pcmOpener

	dev          pcmDevice
	frameBytes   int
	pendingStart bool
	underruns    int
}

// NewAlsaBackend returns an unopened session on the default kernel PCM
// opener.
func NewAlsaBackend() *AlsaBackend {
	return &AlsaBackend{open: openPCMDevice}
}

func newAlsaBackendWithOpener(open pcmOpener) *AlsaBackend {
	return &AlsaBackend{open: open}
}

// Open acquires the device. Stereo 16-bit is required; the rate is
// negotiated and the granted value returned.
func (b *AlsaBackend) Open(device string, rate int) (int, error) {
	if b.dev != nil {
		return 0, fmt.Errorf("alsa backend already open")
	}

	slog.Debug("opening alsa backend", "device", device, "rate", rate)

	dev, granted, err := b.open(device, rate)
	if err != nil {
		slog.Error("alsa backend open failed", "device", device, "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if granted <= 0 {
		_ = dev.Close()
		return 0, fmt.Errorf("%w: driver granted rate %d", ErrDeviceUnavailable, granted)
	}

	b.dev = dev
	b.frameBytes = dev.FrameBytes()
	b.pendingStart = true
	b.underruns = 0

	slog.Info("alsa backend open",
		"device", device,
		"requested_rate", rate,
		"granted_rate", granted)

	return granted, nil
}

// Write submits p frame by frame until the device has accepted all of
// it. On underrun the device is re-primed and the same data retried;
// any other device error propagates.
func (b *AlsaBackend) Write(p []byte) error {
	if b.dev == nil {
		return ErrNotOpen
	}

	for len(p) >= b.frameBytes {
		n, err := b.dev.WriteFrames(p)
		if err != nil {
			if !errors.Is(err, syscall.EPIPE) {
				return fmt.Errorf("pcm write failed: %w", err)
			}

			b.underruns++
			slog.Warn("pcm underrun, re-priming device", "underruns", b.underruns)

			if perr := b.dev.Prepare(); perr != nil {
				return fmt.Errorf("pcm re-prime failed: %w", perr)
			}
			b.pendingStart = true
			continue
		}

		p = p[n*b.frameBytes:]

		if b.pendingStart {
			// Start only once data is queued; starting an empty
			// stream trips an immediate underrun.
			b.pendingStart = false
			if serr := b.dev.Start(); serr != nil {
				return fmt.Errorf("pcm start failed: %w", serr)
			}
		}
	}

	return nil
}

// Pause is a no-op; the kernel stream keeps draining what was queued.
func (b *AlsaBackend) Pause() {
	slog.Debug("alsa backend pause is a no-op")
}

// Resume is a no-op.
func (b *AlsaBackend) Resume() {
	slog.Debug("alsa backend resume is a no-op")
}

// Close drains queued audio and releases the device. Idempotent.
func (b *AlsaBackend) Close() error {
	if b.dev == nil {
		return nil
	}

	dev := b.dev
	b.dev = nil
	b.pendingStart = false

	if err := dev.Drain(); err != nil {
		slog.Debug("pcm drain on close", "error", err)
	}
	if err := dev.Close(); err != nil {
		return fmt.Errorf("pcm close failed: %w", err)
	}

	slog.Debug("alsa backend closed", "underruns", b.underruns)
	return nil
}

// Underruns reports how many underruns were recovered since Open.
func (b *AlsaBackend) Underruns() int {
	return b.underruns
}
