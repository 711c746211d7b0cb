// Package source turns audio files and generators into a uniform
// 16-bit stereo PCM stream for playback.
package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Common decode errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Source produces 16-bit signed little-endian interleaved stereo PCM.
type Source interface {
	// Fill writes up to len(p) bytes of PCM into p and returns the
	// number written. io.EOF signals the end of the stream; a short
	// fill without error is not the end.
	Fill(p []byte) (int, error)

	// Rate reports the stream's sample rate in Hz.
	Rate() int

	Close() error
}

// Clip is fully decoded audio: 16-bit signed little-endian samples,
// interleaved when stereo.
type Clip struct {
	Samples  []byte
	Channels int
	Rate     int
}

// Frames reports the clip length in sample frames.
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / (2 * c.Channels)
}

// clipSource streams a decoded clip, duplicating mono samples across
// both output channels.
type clipSource struct {
	clip *Clip
	off  int
}

// NewClipSource wraps a decoded clip as a Source. Only mono and stereo
// clips are playable.
func NewClipSource(clip *Clip) (Source, error) {
	if clip == nil || len(clip.Samples) == 0 {
		return nil, ErrInvalidData
	}
	if clip.Rate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidData, clip.Rate)
	}
	if clip.Channels != 1 && clip.Channels != 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, clip.Channels)
	}

	slog.Debug("clip source created",
		"frames", clip.Frames(),
		"channels", clip.Channels,
		"rate", clip.Rate)

	return &clipSource{clip: clip}, nil
}

func (s *clipSource) Fill(p []byte) (int, error) {
	if s.off >= len(s.clip.Samples) {
		return 0, io.EOF
	}

	if s.clip.Channels == 2 {
		n := copy(p, s.clip.Samples[s.off:])
		s.off += n
		return n, nil
	}

	// Mono: each 2-byte sample lands on both output channels.
	frames := len(p) / 4
	remaining := (len(s.clip.Samples) - s.off) / 2
	if frames > remaining {
		frames = remaining
	}
	for i := 0; i < frames; i++ {
		lo := s.clip.Samples[s.off]
		hi := s.clip.Samples[s.off+1]
		p[4*i], p[4*i+1] = lo, hi
		p[4*i+2], p[4*i+3] = lo, hi
		s.off += 2
	}
	return frames * 4, nil
}

func (s *clipSource) Rate() int { return s.clip.Rate }

func (s *clipSource) Close() error { return nil }
