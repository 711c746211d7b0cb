package output

import (
	"fmt"
	"log/slog"
)

func init() {
	Register(Descriptor{
		Name:        "null",
		Description: "discard all audio (benchmarking)",
		New:         func() Backend { return NewNullBackend() },
	})
}

// NullBackend accepts and discards everything. Selected by name only.
type NullBackend struct {
	open  bool
	bytes int64
}

func NewNullBackend() *NullBackend {
	return &NullBackend{}
}

func (b *NullBackend) Open(device string, rate int) (int, error) {
	if b.open {
		return 0, fmt.Errorf("null backend already open")
	}
	if rate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", rate)
	}
	b.open = true
	b.bytes = 0
	slog.Debug("null backend opened", "rate", rate)
	return rate, nil
}

func (b *NullBackend) Write(p []byte) error {
	if !b.open {
		return fmt.Errorf("%w: null backend", ErrNotOpen)
	}
	b.bytes += int64(len(p))
	return nil
}

func (b *NullBackend) Pause()  {}
func (b *NullBackend) Resume() {}

func (b *NullBackend) Close() error {
	if !b.open {
		return nil
	}
	b.open = false
	slog.Debug("null backend closed", "bytes_discarded", b.bytes)
	return nil
}

// BytesDiscarded reports how much data has been written since Open.
func (b *NullBackend) BytesDiscarded() int64 {
	return b.bytes
}
