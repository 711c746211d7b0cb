package source

import (
	"bytes"
	"io"
	"log/slog"
	"strings"

	"github.com/go-audio/aiff"
)

// AiffDecoder handles AIFF files.
type AiffDecoder struct{}

func NewAiffDecoder() *AiffDecoder {
	return &AiffDecoder{}
}

func (d *AiffDecoder) FormatName() string { return "AIFF" }

func (d *AiffDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".aiff") || strings.HasSuffix(lower, ".aif")
}

// Decode reads the whole file and returns its samples as 16-bit PCM,
// shifting other depths to 16 bits.
func (d *AiffDecoder) Decode(reader io.Reader) (*Clip, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read AIFF data", "error", err)
		return nil, ErrReadFailure
	}
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	dec := aiff.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if !dec.IsValidFile() {
		slog.Error("invalid AIFF file")
		return nil, ErrInvalidData
	}

	rate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	bitDepth := int(dec.SampleBitDepth())

	slog.Debug("AIFF format detected",
		"sample_rate", rate,
		"channels", channels,
		"bits_per_sample", bitDepth)

	if channels == 0 || rate == 0 {
		return nil, ErrInvalidData
	}

	var shift uint
	switch bitDepth {
	case 16:
		shift = 0
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		slog.Error("unsupported AIFF bit depth", "bits", bitDepth)
		return nil, ErrUnsupportedFormat
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		slog.Error("failed to read AIFF samples", "error", err)
		return nil, ErrReadFailure
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrInvalidData
	}

	samples := make([]byte, 0, len(buf.Data)*2)
	for _, s := range buf.Data {
		v := int16(s >> shift)
		samples = append(samples, byte(uint16(v)), byte(uint16(v)>>8))
	}

	slog.Debug("AIFF decode complete", "samples", len(buf.Data))

	return &Clip{
		Samples:  samples,
		Channels: channels,
		Rate:     rate,
	}, nil
}
