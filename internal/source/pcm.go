package source

import (
	"fmt"
	"io"
	"log/slog"
)

// PCMSource streams already-decoded 16-bit stereo PCM from a reader,
// typically a pipe or standard input.
type PCMSource struct {
	r    io.Reader
	rate int
}

// NewPCMSource wraps r as a raw PCM stream at the given rate.
func NewPCMSource(r io.Reader, rate int) (*PCMSource, error) {
	if r == nil {
		return nil, fmt.Errorf("nil PCM reader")
	}
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", rate)
	}

	slog.Debug("raw PCM source created", "rate", rate)
	return &PCMSource{r: r, rate: rate}, nil
}

func (s *PCMSource) Fill(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *PCMSource) Rate() int { return s.rate }

// Close closes the underlying reader when it supports closing.
func (s *PCMSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
