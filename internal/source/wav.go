package source

import (
	"bytes"
	"io"
	"log/slog"
	"strings"

	"github.com/youpy/go-wav"
)

// WavDecoder handles RIFF WAVE files.
type WavDecoder struct{}

func NewWavDecoder() *WavDecoder {
	return &WavDecoder{}
}

func (d *WavDecoder) FormatName() string { return "WAV" }

func (d *WavDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".wav") || strings.HasSuffix(lower, ".wave")
}

// Decode reads the whole file and returns its samples as 16-bit PCM,
// downshifting deeper formats.
func (d *WavDecoder) Decode(reader io.Reader) (*Clip, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read WAV data", "error", err)
		return nil, ErrReadFailure
	}
	if len(data) == 0 {
		return nil, ErrInvalidData
	}

	wavReader := wav.NewReader(bytes.NewReader(data))
	format, err := wavReader.Format()
	if err != nil {
		slog.Error("failed to read WAV format", "error", err)
		return nil, ErrInvalidData
	}

	slog.Debug("WAV format detected",
		"sample_rate", format.SampleRate,
		"channels", format.NumChannels,
		"bits_per_sample", format.BitsPerSample)

	if format.NumChannels == 0 || format.SampleRate == 0 {
		return nil, ErrInvalidData
	}
	switch format.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		slog.Error("unsupported WAV bit depth", "bits", format.BitsPerSample)
		return nil, ErrUnsupportedFormat
	}

	var samples []byte
	frames := 0
	for {
		chunk, err := wavReader.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Error("failed to read WAV samples", "error", err)
			return nil, ErrReadFailure
		}
		if len(chunk) == 0 {
			break
		}

		for _, sample := range chunk {
			for ch := 0; ch < int(format.NumChannels); ch++ {
				var val int
				if ch < len(sample.Values) {
					val = sample.Values[ch]
				}

				var v int16
				switch format.BitsPerSample {
				case 8:
					// 8-bit WAV is unsigned.
					v = int16(val-128) << 8
				case 16:
					v = int16(val)
				case 24:
					v = int16(val >> 8)
				case 32:
					v = int16(val >> 16)
				}
				samples = append(samples, byte(uint16(v)), byte(uint16(v)>>8))
			}
		}
		frames += len(chunk)
	}

	if len(samples) == 0 {
		return nil, ErrInvalidData
	}

	slog.Debug("WAV decode complete", "frames", frames)

	return &Clip{
		Samples:  samples,
		Channels: int(format.NumChannels),
		Rate:     int(format.SampleRate),
	}, nil
}
