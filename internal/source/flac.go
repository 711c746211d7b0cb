package source

import (
	"io"
	"log/slog"
	"strings"

	"github.com/gopxl/beep/v2/flac"
)

// FlacDecoder handles FLAC files.
type FlacDecoder struct{}

func NewFlacDecoder() *FlacDecoder {
	return &FlacDecoder{}
}

func (d *FlacDecoder) FormatName() string { return "FLAC" }

func (d *FlacDecoder) CanDecode(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".flac")
}

// Decode drains the FLAC stream. The decoder hands back stereo float
// frames regardless of the encoded layout, so the clip is always
// stereo.
func (d *FlacDecoder) Decode(reader io.Reader) (*Clip, error) {
	streamer, format, err := flac.Decode(reader)
	if err != nil {
		slog.Error("failed to open FLAC stream", "error", err)
		return nil, ErrInvalidData
	}
	defer streamer.Close()

	slog.Debug("FLAC format detected",
		"sample_rate", int(format.SampleRate),
		"channels", format.NumChannels,
		"precision", format.Precision)

	var samples []byte
	frames := make([][2]float64, 1024)
	for {
		n, ok := streamer.Stream(frames)
		for i := 0; i < n; i++ {
			l := floatToInt16(frames[i][0])
			r := floatToInt16(frames[i][1])
			samples = append(samples,
				byte(uint16(l)), byte(uint16(l)>>8),
				byte(uint16(r)), byte(uint16(r)>>8))
		}
		if !ok {
			if serr := streamer.Err(); serr != nil && serr != io.EOF {
				slog.Error("failed to decode FLAC stream", "error", serr)
				return nil, ErrReadFailure
			}
			break
		}
	}

	if len(samples) == 0 {
		return nil, ErrInvalidData
	}

	slog.Debug("FLAC decode complete", "bytes", len(samples))

	return &Clip{
		Samples:  samples,
		Channels: 2,
		Rate:     int(format.SampleRate),
	}, nil
}

func floatToInt16(f float64) int16 {
	if f > 1 {
		f = 1
	}
	if f < -1 {
		f = -1
	}
	return int16(f * 32767)
}
