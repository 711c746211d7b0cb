package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
)

func init() {
	Register(Descriptor{
		Name:        "oto",
		Description: "oto ring-buffer output (pure Go)",
		New:         func() Backend { return NewDMABackend() },
	})
}

// oto allows exactly one context per process, so it is cached and
// suspended between sessions rather than torn down.
var (
	otoCtxMu    sync.Mutex
	otoCtx      *oto.Context
	otoCtxRate  int
	otoCtxChans int
	otoCtxFmt   oto.Format
)

// otoDevice emulates DMA hardware: an oto player drains the ring at
// playback cadence through Read, wrapping continuously whether or not
// fresh data arrived. Stale ring contents replay exactly as hardware
// would, which is why pausing floods the ring with silence.
type otoDevice struct {
	mu   sync.Mutex
	ring []byte
	pos  int // device read cursor

	player *oto.Player
}

func openDMADevice(device string) (dmaDevice, error) {
	if device != "" {
		slog.Warn("oto backend plays through the default device", "requested", device)
	}
	return &otoDevice{}, nil
}

// Caps reports full capability; constrained formats are reachable via
// the backend's format limit.
func (d *otoDevice) Caps() dmaCaps {
	return dmaCaps{Bits16: true, Stereo: true}
}

// dmaRingSize picks a power-of-two ring of roughly a quarter second.
func dmaRingSize(rate int, format pcmFormat) int {
	target := rate * format.frameBytes() / 4
	size := 4096
	for size < target && size < 65536 {
		size <<= 1
	}
	return size
}

func (d *otoDevice) Start(format pcmFormat, rate int) error {
	chans := 2
	sampleFmt := oto.FormatSignedInt16LE
	fill := byte(0x00)
	switch format {
	case formatU8Stereo:
		sampleFmt = oto.FormatUnsignedInt8
		fill = 0x80
	case formatU8Mono:
		sampleFmt = oto.FormatUnsignedInt8
		chans = 1
		fill = 0x80
	}

	ctx, err := acquireOtoContext(rate, chans, sampleFmt)
	if err != nil {
		return err
	}

	d.ring = make([]byte, dmaRingSize(rate, format))
	if fill != 0 {
		for i := range d.ring {
			d.ring[i] = fill
		}
	}

	d.player = ctx.NewPlayer(d)
	d.player.Play()

	slog.Debug("oto ring playback started",
		"rate", rate,
		"channels", chans,
		"ring_bytes", len(d.ring))
	return nil
}

func acquireOtoContext(rate, chans int, format oto.Format) (*oto.Context, error) {
	otoCtxMu.Lock()
	defer otoCtxMu.Unlock()

	if otoCtx != nil {
		if otoCtxRate != rate || otoCtxChans != chans || otoCtxFmt != format {
			return nil, fmt.Errorf("oto context already runs %d Hz/%d ch; cannot reconfigure", otoCtxRate, otoCtxChans)
		}
		if err := otoCtx.Resume(); err != nil {
			return nil, fmt.Errorf("oto context resume: %w", err)
		}
		return otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: chans,
		Format:       format,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("oto context: %w", err)
	}
	<-ready

	otoCtx = ctx
	otoCtxRate = rate
	otoCtxChans = chans
	otoCtxFmt = format
	return ctx, nil
}

// Read hands the player the next run of ring bytes, wrapping at the
// end. It never blocks and never runs dry.
func (d *otoDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := copy(p, d.ring[d.pos:])
	d.pos += n
	if d.pos == len(d.ring) {
		d.pos = 0
	}
	return n, nil
}

func (d *otoDevice) RingSize() int {
	return len(d.ring)
}

func (d *otoDevice) ReadCursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

func (d *otoDevice) WriteAt(off int, p []byte) {
	d.mu.Lock()
	copy(d.ring[off:], p)
	d.mu.Unlock()
}

func (d *otoDevice) Fill(b byte) {
	d.mu.Lock()
	for i := range d.ring {
		d.ring[i] = b
	}
	d.mu.Unlock()
}

// Close stops the player and suspends the shared context so the ring
// stops draining.
func (d *otoDevice) Close() error {
	if d.player != nil {
		if err := d.player.Close(); err != nil {
			slog.Debug("oto player close", "error", err)
		}
		d.player = nil
	}

	otoCtxMu.Lock()
	defer otoCtxMu.Unlock()
	if otoCtx != nil {
		if err := otoCtx.Suspend(); err != nil {
			slog.Debug("oto context suspend", "error", err)
		}
	}
	return nil
}
