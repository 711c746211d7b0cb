package output

import (
	"fmt"
	"log/slog"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

const defaultWavePath = "resound-out.wav"

func init() {
	Register(Descriptor{
		Name:        "wave",
		Description: "WAV file capture (no audible output)",
		New:         func() Backend { return NewWaveBackend() },
	})
}

// WaveBackend records the stream to a RIFF WAVE file instead of a
// device. It is selected by name only, never by fallback order.
type WaveBackend struct {
	fs   afero.Fs
	file afero.File
	enc  *wav.Encoder
	path string
	rate int
}

func NewWaveBackend() *WaveBackend {
	return NewWaveBackendWithFs(afero.NewOsFs())
}

// NewWaveBackendWithFs creates a wave backend writing through the given
// filesystem.
func NewWaveBackendWithFs(fs afero.Fs) *WaveBackend {
	return &WaveBackend{fs: fs}
}

// Open creates the capture file. The device string is the output path;
// empty means resound-out.wav in the working directory.
func (b *WaveBackend) Open(device string, rate int) (int, error) {
	if b.enc != nil {
		return 0, fmt.Errorf("wave backend already open on %s", b.path)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", rate)
	}

	path := device
	if path == "" {
		path = defaultWavePath
	}

	f, err := b.fs.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrDeviceUnavailable, path, err)
	}

	b.file = f
	b.path = path
	b.rate = rate
	b.enc = wav.NewEncoder(f, rate, 16, 2, 1)

	slog.Debug("wave capture opened", "path", path, "rate", rate)
	return rate, nil
}

func (b *WaveBackend) Write(p []byte) error {
	if b.enc == nil {
		return fmt.Errorf("%w: wave backend", ErrNotOpen)
	}

	data := make([]int, len(p)/2)
	for i := range data {
		data[i] = int(int16(uint16(p[2*i]) | uint16(p[2*i+1])<<8))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: b.rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := b.enc.Write(buf); err != nil {
		return fmt.Errorf("wave encode: %w", err)
	}
	return nil
}

func (b *WaveBackend) Pause() {
	slog.Debug("wave backend pause ignored")
}

func (b *WaveBackend) Resume() {
	slog.Debug("wave backend resume ignored")
}

// Close finalizes the RIFF headers and closes the file.
func (b *WaveBackend) Close() error {
	if b.enc == nil {
		return nil
	}

	encErr := b.enc.Close()
	fileErr := b.file.Close()
	b.enc = nil
	b.file = nil

	if encErr != nil {
		return fmt.Errorf("finalize %s: %w", b.path, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close %s: %w", b.path, fileErr)
	}

	slog.Debug("wave capture closed", "path", b.path)
	return nil
}
