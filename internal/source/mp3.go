package source

import (
	"io"
	"log/slog"
	"strings"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// Mp3Decoder handles MPEG layer 3 files.
type Mp3Decoder struct{}

func NewMp3Decoder() *Mp3Decoder {
	return &Mp3Decoder{}
}

func (d *Mp3Decoder) FormatName() string { return "MP3" }

func (d *Mp3Decoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".mp3") || strings.HasSuffix(lower, ".mpeg")
}

// Decode drains the MP3 stream. The decoder emits 16-bit stereo
// directly, whatever the encoded channel layout.
func (d *Mp3Decoder) Decode(reader io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(reader)
	if err != nil {
		slog.Error("failed to open MP3 stream", "error", err)
		return nil, ErrInvalidData
	}

	samples, err := io.ReadAll(dec)
	if err != nil {
		slog.Error("failed to decode MP3 stream", "error", err)
		return nil, ErrReadFailure
	}
	if len(samples) == 0 {
		return nil, ErrInvalidData
	}

	slog.Debug("MP3 decode complete",
		"sample_rate", dec.SampleRate(),
		"bytes", len(samples))

	return &Clip{
		Samples:  samples,
		Channels: 2,
		Rate:     dec.SampleRate(),
	}, nil
}
