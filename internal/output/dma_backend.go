package output

import (
	"fmt"
	"log/slog"
	"time"
)

// minDMARate is the lowest rate DMA-style hardware will run at;
// requests below it are clamped up.
const minDMARate = 4000

// dmaCaps describes what a ring device's hardware can play. A zero max
// rate means unlimited.
type dmaCaps struct {
	Bits16        bool
	Stereo        bool
	MaxRateMono   int
	MaxRateStereo int
}

// dmaDevice is a hardware-style ring buffer drained continuously by
// the device. The engine owns the write cursor and polls the device's
// read cursor for free space.
type dmaDevice interface {
	Caps() dmaCaps
	// Start begins continuous playback of the ring at the given format
	// and rate. Called exactly once, before any WriteAt.
	Start(format pcmFormat, rate int) error
	RingSize() int
	// ReadCursor reports the device's current read offset in bytes.
	ReadCursor() int
	WriteAt(off int, p []byte)
	// Fill overwrites the entire ring with b.
	Fill(b byte)
	Close() error
}

// dmaOpener reserves ring-buffer hardware. Injected so tests can run
// the backend against a scripted cursor.
type dmaOpener func(device string) (dmaDevice, error)

// DMABackend copies PCM into a device-owned ring behind a polled
// hardware read cursor, downconverting in place when the device cannot
// play 16-bit stereo.
type DMABackend struct {
	open dmaOpener
	poll time.Duration

	maxBits   int
	forceMono bool

	dev    dmaDevice
	format pcmFormat
	tail   int // software write cursor
}

// NewDMABackend returns an unopened session on the default ring device
// opener.
func NewDMABackend() *DMABackend {
	return &DMABackend{open: openDMADevice, poll: defaultPollInterval}
}

func newDMABackendWithOpener(open dmaOpener) *DMABackend {
	return &DMABackend{open: open, poll: defaultPollInterval}
}

// SetPollInterval adjusts how often Write rechecks the read cursor
// when the ring has no free space.
func (b *DMABackend) SetPollInterval(d time.Duration) {
	if d > 0 {
		b.poll = d
	}
}

// SetFormatLimit restricts the negotiated format below the device's
// capabilities: maxBits 8 forces 8-bit output, forceMono drops stereo.
// Zero values leave the hardware caps untouched.
func (b *DMABackend) SetFormatLimit(maxBits int, forceMono bool) {
	b.maxBits = maxBits
	b.forceMono = forceMono
}

// Open reserves the device, picks the best playable format, clamps the
// rate to the device's range, and starts continuous playback.
func (b *DMABackend) Open(device string, rate int) (int, error) {
	if b.dev != nil {
		return 0, fmt.Errorf("dma backend already open")
	}

	slog.Debug("opening dma backend", "device", device, "rate", rate)

	dev, err := b.open(device)
	if err != nil {
		slog.Error("dma backend open failed", "device", device, "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	caps := dev.Caps()
	if b.maxBits == 8 {
		caps.Bits16 = false
	}
	if b.forceMono {
		caps.Stereo = false
	}

	var format pcmFormat
	switch {
	case caps.Bits16 && caps.Stereo:
		format = formatS16Stereo
	case caps.Stereo:
		format = formatU8Stereo
	default:
		format = formatU8Mono
	}

	if rate < minDMARate {
		rate = minDMARate
	}
	max := caps.MaxRateStereo
	if format == formatU8Mono {
		max = caps.MaxRateMono
	}
	if max > 0 && rate > max {
		rate = max
	}

	if err := dev.Start(format, rate); err != nil {
		_ = dev.Close()
		return 0, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	b.dev = dev
	b.format = format
	b.tail = 0

	slog.Info("dma backend open",
		"device", device,
		"format", format.String(),
		"granted_rate", rate,
		"ring_bytes", dev.RingSize())

	return rate, nil
}

// Write downconverts p for the negotiated format and copies it into
// the ring, polling for cursor progress until every byte is delivered.
func (b *DMABackend) Write(p []byte) error {
	if b.dev == nil {
		return ErrNotOpen
	}

	data := p
	switch b.format {
	case formatU8Stereo:
		data = to8BitStereo(p)
	case formatU8Mono:
		data = to8BitMono(p)
	}

	for len(data) > 0 {
		n := b.copyToRing(data)
		if n == 0 {
			time.Sleep(b.poll)
			continue
		}
		data = data[n:]
	}

	return nil
}

// copyToRing copies what fits between the write cursor and the
// device's read cursor, honoring wraparound, and returns the number of
// bytes copied. Zero means the ring had no free space on this poll.
func (b *DMABackend) copyToRing(data []byte) int {
	size := b.dev.RingSize()
	pos := b.dev.ReadCursor() &^ 0xff

	switch {
	case pos > b.tail:
		n := min(len(data), pos-b.tail)
		b.dev.WriteAt(b.tail, data[:n])
		b.tail += n
		return n

	case pos < b.tail:
		// Free space wraps: tail to end of ring, then start to cursor.
		n := min(len(data), size-b.tail)
		b.dev.WriteAt(b.tail, data[:n])
		b.tail += n
		if b.tail == size {
			b.tail = 0
		}
		if n == len(data) || b.tail != 0 {
			return n
		}
		m := min(len(data)-n, pos)
		b.dev.WriteAt(0, data[n:n+m])
		b.tail = m
		return n + m

	default:
		return 0
	}
}

// Pause floods the ring with the format's silence value. The hardware
// keeps draining, so halting DMA is never needed; playback resumes as
// soon as fresh data lands.
func (b *DMABackend) Pause() {
	if b.dev == nil {
		return
	}
	b.dev.Fill(b.format.silence())
	slog.Debug("dma backend paused", "silence", b.format.silence())
}

// Resume is a no-op; writing data resumes audible playback.
func (b *DMABackend) Resume() {
	slog.Debug("dma backend resume is a no-op")
}

// Close stops the device and releases the ring. Idempotent.
func (b *DMABackend) Close() error {
	if b.dev == nil {
		return nil
	}

	dev := b.dev
	b.dev = nil
	b.tail = 0

	if err := dev.Close(); err != nil {
		return fmt.Errorf("dma close failed: %w", err)
	}

	slog.Debug("dma backend closed")
	return nil
}
