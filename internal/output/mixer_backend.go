package output

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	mixBufferCount = 4
	mixBufferMax   = 65536

	// defaultPollInterval paces the readiness and ring-progress polls.
	defaultPollInterval = 20 * time.Millisecond
)

// mixerDevice is an asynchronous player that consumes submitted
// buffers in order and reports each completion from its own execution
// context.
type mixerDevice interface {
	// Submit queues one buffer for playback. The device owns p until
	// the matching completion fires.
	Submit(p []byte) error
	Pause() error
	Resume() error
	// Close lets queued audio finish, then releases the device.
	Close() error
}

// mixerOpener acquires an asynchronous device. done is invoked once
// per fully consumed buffer, from the device's own context, with
// underrun=true when the device ran dry around that buffer and
// recovered on its own.
type mixerOpener func(device string, rate int, done func(underrun bool)) (mixerDevice, int, error)

// MixerBackend rotates PCM through four fixed buffers submitted to an
// asynchronous mixer device, throttled by a completion-fed readiness
// counter.
type MixerBackend struct {
	open mixerOpener
	poll time.Duration

	dev  mixerDevice
	bufs [mixBufferCount][]byte
	next int // index of the buffer being filled
	idx  int // write cursor within bufs[next]

	// mu guards ready and underruns, the only state shared with the
	// device's completion context.
	mu        sync.Mutex
	ready     int
	underruns int
}

// NewMixerBackend returns an unopened session on the default
// asynchronous device opener.
func NewMixerBackend() *MixerBackend {
	return &MixerBackend{open: openMixerDevice, poll: defaultPollInterval}
}

func newMixerBackendWithOpener(open mixerOpener) *MixerBackend {
	return &MixerBackend{open: open, poll: defaultPollInterval}
}

// SetPollInterval adjusts how often Write rechecks buffer readiness
// while all buffers are in flight.
func (b *MixerBackend) SetPollInterval(d time.Duration) {
	if d > 0 {
		b.poll = d
	}
}

// mixBufferSize returns the per-buffer byte size for a sample rate:
// rate/4 rounded down to a power of two, capped at 64 KiB.
func mixBufferSize(rate int) int {
	target := rate >> 2
	size := 1
	for size<<1 <= target {
		size <<= 1
	}
	if size > mixBufferMax {
		size = mixBufferMax
	}
	return size
}

// Open acquires the device, allocates the buffer ring, and primes the
// device's queue with two silent buffers.
func (b *MixerBackend) Open(device string, rate int) (int, error) {
	if b.dev != nil {
		return 0, fmt.Errorf("mixer backend already open")
	}

	slog.Debug("opening mixer backend", "device", device, "rate", rate)

	dev, granted, err := b.open(device, rate, b.complete)
	if err != nil {
		slog.Error("mixer backend open failed", "device", device, "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if granted <= 0 {
		_ = dev.Close()
		return 0, fmt.Errorf("%w: device granted rate %d", ErrDeviceUnavailable, granted)
	}

	size := mixBufferSize(granted)
	for i := range b.bufs {
		b.bufs[i] = make([]byte, size)
	}

	// Two silent buffers go out first so the device starts with its
	// queue primed; one spare remains beyond the pair in flight.
	if err := dev.Submit(b.bufs[0]); err != nil {
		_ = dev.Close()
		return 0, fmt.Errorf("%w: priming submit failed: %v", ErrDeviceUnavailable, err)
	}
	if err := dev.Submit(b.bufs[1]); err != nil {
		_ = dev.Close()
		return 0, fmt.Errorf("%w: priming submit failed: %v", ErrDeviceUnavailable, err)
	}

	b.dev = dev
	b.next = 2
	b.idx = 0
	b.ready = 1
	b.underruns = 0

	slog.Info("mixer backend open",
		"device", device,
		"requested_rate", rate,
		"granted_rate", granted,
		"buffer_bytes", size)

	return granted, nil
}

// complete runs on the device's completion context. It only signals
// capacity; buffer contents are never touched here.
func (b *MixerBackend) complete(underrun bool) {
	b.mu.Lock()
	b.ready++
	if underrun {
		b.underruns++
	}
	count := b.underruns
	b.mu.Unlock()

	if underrun {
		slog.Warn("mixer device underrun", "underruns", count)
	}
}

// Write accumulates p into the rotating buffers, submitting each one
// as it fills. A chunk larger than one buffer fills and submits
// several in a single call.
func (b *MixerBackend) Write(p []byte) error {
	if b.dev == nil {
		return ErrNotOpen
	}

	for len(p) > 0 {
		n := copy(b.bufs[b.next][b.idx:], p)
		b.idx += n
		p = p[n:]

		if b.idx == len(b.bufs[b.next]) {
			if err := b.submitCurrent(); err != nil {
				return err
			}
		}
	}

	return nil
}

// submitCurrent waits for a free slot, hands the current buffer to the
// device, and rotates to the next one.
func (b *MixerBackend) submitCurrent() error {
	b.claimSlot()

	if err := b.dev.Submit(b.bufs[b.next][:b.idx]); err != nil {
		return fmt.Errorf("mixer submit failed: %w", err)
	}

	b.next = (b.next + 1) % mixBufferCount
	b.idx = 0
	return nil
}

// claimSlot blocks until the readiness counter is positive, then takes
// one slot. Check and decrement stay under the lock so the counter can
// never go negative.
func (b *MixerBackend) claimSlot() {
	for {
		b.mu.Lock()
		if b.ready > 0 {
			b.ready--
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		time.Sleep(b.poll)
	}
}

// Pause delegates to the device.
func (b *MixerBackend) Pause() {
	if b.dev == nil {
		return
	}
	if err := b.dev.Pause(); err != nil {
		slog.Debug("mixer pause", "error", err)
	}
}

// Resume delegates to the device.
func (b *MixerBackend) Resume() {
	if b.dev == nil {
		return
	}
	if err := b.dev.Resume(); err != nil {
		slog.Debug("mixer resume", "error", err)
	}
}

// Close flushes the partial buffer remnant and releases the device.
// Idempotent.
func (b *MixerBackend) Close() error {
	if b.dev == nil {
		return nil
	}

	if b.idx > 0 {
		if err := b.submitCurrent(); err != nil {
			slog.Debug("mixer flush on close", "error", err)
		}
	}

	dev := b.dev
	b.dev = nil

	if err := dev.Close(); err != nil {
		return fmt.Errorf("mixer close failed: %w", err)
	}

	slog.Debug("mixer backend closed", "underruns", b.Underruns())
	return nil
}

// Underruns reports how many device underruns the completion path has
// signaled since Open.
func (b *MixerBackend) Underruns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.underruns
}
