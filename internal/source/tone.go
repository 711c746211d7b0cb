package source

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"
)

const toneAmplitude = 0.30

// ToneSource generates a fixed-length stereo sine wave. Useful for
// exercising backends without an audio file.
type ToneSource struct {
	freq   float64
	rate   int
	phase  float64
	remain int // frames left
}

// NewTone creates a sine generator at freq Hz for the given duration.
func NewTone(freq float64, rate int, d time.Duration) (*ToneSource, error) {
	if freq <= 0 {
		return nil, fmt.Errorf("invalid tone frequency %g", freq)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", rate)
	}
	if d <= 0 {
		return nil, fmt.Errorf("invalid tone duration %s", d)
	}

	frames := int(float64(rate) * d.Seconds())
	if frames < 1 {
		frames = 1
	}

	slog.Debug("tone source created", "freq", freq, "rate", rate, "frames", frames)

	return &ToneSource{freq: freq, rate: rate, remain: frames}, nil
}

func (s *ToneSource) Fill(p []byte) (int, error) {
	if s.remain == 0 {
		return 0, io.EOF
	}

	frames := len(p) / 4
	if frames > s.remain {
		frames = s.remain
	}

	step := 2 * math.Pi * s.freq / float64(s.rate)
	for i := 0; i < frames; i++ {
		v := int16(toneAmplitude * 32767 * math.Sin(s.phase))
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}

		lo, hi := byte(uint16(v)), byte(uint16(v)>>8)
		p[4*i], p[4*i+1] = lo, hi
		p[4*i+2], p[4*i+3] = lo, hi
	}

	s.remain -= frames
	return frames * 4, nil
}

func (s *ToneSource) Rate() int { return s.rate }

func (s *ToneSource) Close() error { return nil }
