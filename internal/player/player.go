// Package player pumps PCM from a source into an output backend in
// fixed-size chunks, applying volume on the way.
package player

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/resoundio/resound/internal/output"
	"github.com/resoundio/resound/internal/source"
)

const defaultChunkBytes = 16384

// pauseIdle is how long the pump sleeps between checks while paused.
const pauseIdle = 10 * time.Millisecond

// Stats summarizes one playback run.
type Stats struct {
	BytesWritten int64
	Chunks       int64
	Underruns    int
	Elapsed      time.Duration
}

// Player drives a single playback loop. One goroutine runs Play;
// SetVolume, Pause, Resume, and Stop may be called from others.
type Player struct {
	backend output.Backend
	chunk   int

	mutex   sync.RWMutex
	volume  float32
	paused  bool
	stopped bool
}

// New creates a player writing to an already-open backend.
func New(backend output.Backend) *Player {
	return &Player{
		backend: backend,
		chunk:   defaultChunkBytes,
		volume:  1.0,
	}
}

// SetChunkBytes overrides the transfer chunk size.
func (p *Player) SetChunkBytes(n int) {
	if n > 0 {
		p.chunk = n
	}
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float32) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("invalid volume: %f", volume)
	}
	p.mutex.Lock()
	p.volume = volume
	p.mutex.Unlock()
	return nil
}

// Volume returns the current volume level.
func (p *Player) Volume() float32 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.volume
}

// Pause suspends the pump and the backend. Safe to call while Play
// runs.
func (p *Player) Pause() {
	p.mutex.Lock()
	already := p.paused
	p.paused = true
	p.mutex.Unlock()

	if !already {
		p.backend.Pause()
		slog.Debug("playback paused")
	}
}

// Resume continues after Pause.
func (p *Player) Resume() {
	p.mutex.Lock()
	already := !p.paused
	p.paused = false
	p.mutex.Unlock()

	if !already {
		p.backend.Resume()
		slog.Debug("playback resumed")
	}
}

func (p *Player) isPaused() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.paused
}

// Stop ends playback after the chunk in flight. Unlike a context
// cancellation, a stop reports as a normal completion. Takes effect
// even while paused.
func (p *Player) Stop() {
	p.mutex.Lock()
	p.stopped = true
	p.mutex.Unlock()
	slog.Debug("playback stop requested")
}

func (p *Player) isStopped() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.stopped
}

// Play streams src to the backend until the source ends or ctx is
// canceled. The returned stats are valid in both cases.
func (p *Player) Play(ctx context.Context, src source.Source) (*Stats, error) {
	stats := &Stats{}
	start := time.Now()
	buf := make([]byte, p.chunk)

	slog.Debug("playback loop starting", "chunk_bytes", p.chunk, "rate", src.Rate())

	for {
		select {
		case <-ctx.Done():
			p.finish(stats, start)
			slog.Info("playback canceled",
				"bytes_written", stats.BytesWritten,
				"elapsed", stats.Elapsed)
			return stats, ctx.Err()
		default:
		}

		if p.isStopped() {
			break
		}

		if p.isPaused() {
			time.Sleep(pauseIdle)
			continue
		}

		n, err := src.Fill(buf)
		if n > 0 {
			applyVolume(buf[:n], p.Volume())
			if werr := p.backend.Write(buf[:n]); werr != nil {
				p.finish(stats, start)
				return stats, fmt.Errorf("writing to backend: %w", werr)
			}
			stats.BytesWritten += int64(n)
			stats.Chunks++
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			p.finish(stats, start)
			return stats, fmt.Errorf("reading source: %w", err)
		}
	}

	p.finish(stats, start)
	slog.Info("playback complete",
		"bytes_written", stats.BytesWritten,
		"chunks", stats.Chunks,
		"underruns", stats.Underruns,
		"elapsed", stats.Elapsed)
	return stats, nil
}

func (p *Player) finish(stats *Stats, start time.Time) {
	stats.Elapsed = time.Since(start)
	if uc, ok := p.backend.(output.UnderrunCounter); ok {
		stats.Underruns = uc.Underruns()
	}
}

// applyVolume scales 16-bit little-endian samples in place. Full
// volume is a no-op.
func applyVolume(p []byte, volume float32) {
	if volume == 1.0 {
		return
	}
	for i := 0; i+1 < len(p); i += 2 {
		sample := int16(uint16(p[i]) | uint16(p[i+1])<<8)
		sample = int16(float32(sample) * volume)
		p[i] = byte(uint16(sample))
		p[i+1] = byte(uint16(sample) >> 8)
	}
}
