package output

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type ringWrite struct {
	off int
	n   int
}

// fakeDMADevice plays the role of a ring-buffer card. ReadCursor
// returns scripted positions, the last one repeating, so tests control
// exactly how much free space each poll reveals.
type fakeDMADevice struct {
	caps    dmaCaps
	ring    []byte
	cursors []int
	nextCur int

	stream  []byte // bytes in WriteAt order
	writes  []ringWrite
	fills   []byte
	format  pcmFormat
	rate    int
	started bool
	closed  bool

	startErr error
}

var _ dmaDevice = (*fakeDMADevice)(nil)

func (f *fakeDMADevice) Caps() dmaCaps { return f.caps }

func (f *fakeDMADevice) Start(format pcmFormat, rate int) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.format = format
	f.rate = rate
	f.started = true
	return nil
}

func (f *fakeDMADevice) RingSize() int { return len(f.ring) }

func (f *fakeDMADevice) ReadCursor() int {
	if len(f.cursors) == 0 {
		return 0
	}
	c := f.cursors[f.nextCur]
	if f.nextCur < len(f.cursors)-1 {
		f.nextCur++
	}
	return c
}

func (f *fakeDMADevice) WriteAt(off int, p []byte) {
	copy(f.ring[off:], p)
	f.stream = append(f.stream, p...)
	f.writes = append(f.writes, ringWrite{off: off, n: len(p)})
}

func (f *fakeDMADevice) Fill(b byte) {
	f.fills = append(f.fills, b)
	for i := range f.ring {
		f.ring[i] = b
	}
}

func (f *fakeDMADevice) Close() error {
	f.closed = true
	return nil
}

func fullCaps() dmaCaps {
	return dmaCaps{Bits16: true, Stereo: true, MaxRateMono: 44100, MaxRateStereo: 44100}
}

func openDMAOn(t *testing.T, dev *fakeDMADevice, rate int) (*DMABackend, int) {
	t.Helper()
	b := newDMABackendWithOpener(func(device string) (dmaDevice, error) {
		return dev, nil
	})
	b.SetPollInterval(time.Millisecond)

	granted, err := b.Open("", rate)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return b, granted
}

func TestDMAOpenDeviceUnavailable(t *testing.T) {
	b := newDMABackendWithOpener(func(device string) (dmaDevice, error) {
		return nil, errors.New("no card")
	})
	if _, err := b.Open("", 44100); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Open error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestDMAOpenStartFailure(t *testing.T) {
	dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 4096), startErr: errors.New("irq conflict")}
	b := newDMABackendWithOpener(func(device string) (dmaDevice, error) {
		return dev, nil
	})

	if _, err := b.Open("", 44100); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Open error = %v, want ErrDeviceUnavailable", err)
	}
	if !dev.closed {
		t.Error("device left open after failed start")
	}
}

func TestDMAFormatNegotiation(t *testing.T) {
	tests := []struct {
		name      string
		caps      dmaCaps
		maxBits   int
		forceMono bool
		want      pcmFormat
	}{
		{"full card", fullCaps(), 0, false, formatS16Stereo},
		{"8-bit stereo card", dmaCaps{Stereo: true, MaxRateStereo: 22050, MaxRateMono: 44100}, 0, false, formatU8Stereo},
		{"mono card", dmaCaps{MaxRateMono: 22050}, 0, false, formatU8Mono},
		{"capped to 8-bit", fullCaps(), 8, false, formatU8Stereo},
		{"forced mono", fullCaps(), 0, true, formatU8Mono},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDMADevice{caps: tt.caps, ring: make([]byte, 4096)}
			b := newDMABackendWithOpener(func(device string) (dmaDevice, error) {
				return dev, nil
			})
			b.SetFormatLimit(tt.maxBits, tt.forceMono)

			if _, err := b.Open("", 22050); err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if dev.format != tt.want {
				t.Errorf("negotiated %s, want %s", dev.format, tt.want)
			}
		})
	}
}

func TestDMARateClamping(t *testing.T) {
	tests := []struct {
		name string
		caps dmaCaps
		rate int
		want int
	}{
		{"below floor", fullCaps(), 3000, 4000},
		{"above stereo ceiling", dmaCaps{Bits16: true, Stereo: true, MaxRateStereo: 22050, MaxRateMono: 44100}, 44100, 22050},
		{"at the ceiling", fullCaps(), 44100, 44100},
		{"in range untouched", fullCaps(), 11025, 11025},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDMADevice{caps: tt.caps, ring: make([]byte, 4096)}
			b := newDMABackendWithOpener(func(device string) (dmaDevice, error) {
				return dev, nil
			})

			granted, err := b.Open("", tt.rate)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if granted != tt.want {
				t.Errorf("granted %d, want %d", granted, tt.want)
			}
			if dev.rate != tt.want {
				t.Errorf("device started at %d, want %d", dev.rate, tt.want)
			}
		})
	}
}

func TestDMAWriteSingleRegion(t *testing.T) {
	dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 4096), cursors: []int{1024}}
	b, _ := openDMAOn(t, dev, 44100)

	data := frames(128, 4)
	if err := b.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if len(dev.writes) != 1 || dev.writes[0] != (ringWrite{off: 0, n: 512}) {
		t.Errorf("writes = %v, want one copy of 512 bytes at offset 0", dev.writes)
	}
	if !bytes.Equal(dev.ring[:512], data) {
		t.Error("ring does not hold the written data")
	}
	if b.tail != 512 {
		t.Errorf("tail = %d, want 512", b.tail)
	}
}

func TestDMACursorMasking(t *testing.T) {
	// A raw cursor of 1000 must be treated as 768: the low byte is
	// noise while the transfer is in flight.
	dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 4096), cursors: []int{1000, 2048}}
	b, _ := openDMAOn(t, dev, 44100)

	data := frames(225, 4)
	if err := b.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := []ringWrite{{off: 0, n: 768}, {off: 768, n: 132}}
	if len(dev.writes) != 2 || dev.writes[0] != want[0] || dev.writes[1] != want[1] {
		t.Errorf("writes = %v, want %v", dev.writes, want)
	}
}

func TestDMAWriteWrapsAroundRingEnd(t *testing.T) {
	dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 4096), cursors: []int{3072}}
	b, _ := openDMAOn(t, dev, 44100)
	b.tail = 3584

	data := frames(192, 4)
	if err := b.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := []ringWrite{{off: 3584, n: 512}, {off: 0, n: 256}}
	if len(dev.writes) != 2 || dev.writes[0] != want[0] || dev.writes[1] != want[1] {
		t.Fatalf("writes = %v, want %v", dev.writes, want)
	}
	if !bytes.Equal(dev.ring[3584:], data[:512]) || !bytes.Equal(dev.ring[:256], data[512:]) {
		t.Error("wrapped copy misplaced data")
	}
	if b.tail != 256 {
		t.Errorf("tail = %d, want 256", b.tail)
	}
}

func TestDMAWriteWaitsOutFullRing(t *testing.T) {
	// Cursor equal to the tail means full; the writer polls until the
	// device drains past it.
	dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 4096), cursors: []int{512, 512, 1536}}
	b, _ := openDMAOn(t, dev, 44100)
	b.tail = 512

	data := frames(64, 4)
	if err := b.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if dev.nextCur != 2 {
		t.Errorf("cursor polled %d times, want 3", dev.nextCur+1)
	}
	if !bytes.Equal(dev.ring[512:768], data) {
		t.Error("data not delivered after the ring drained")
	}
}

func TestDMAWriteDeliversEverythingAcrossPolls(t *testing.T) {
	dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 1024), cursors: []int{512, 0, 512, 0}}
	b, _ := openDMAOn(t, dev, 44100)

	data := frames(512, 4)
	if err := b.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if !bytes.Equal(dev.stream, data) {
		t.Errorf("device received %d bytes in stream order, want all %d", len(dev.stream), len(data))
	}
}

func TestDMAWriteConvertsTo8BitStereo(t *testing.T) {
	dev := &fakeDMADevice{
		caps:    dmaCaps{Stereo: true, MaxRateStereo: 22050, MaxRateMono: 44100},
		ring:    make([]byte, 4096),
		cursors: []int{2048},
	}
	b, granted := openDMAOn(t, dev, 44100)

	if granted != 22050 {
		t.Fatalf("granted %d, want 22050", granted)
	}
	if err := b.Write(s16le(0, 32767, -32768, 256)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := []byte{128, 255, 0, 129}
	if !bytes.Equal(dev.stream, want) {
		t.Errorf("device received %v, want downconverted %v", dev.stream, want)
	}
}

func TestDMAWriteConvertsToMono(t *testing.T) {
	dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 4096), cursors: []int{2048}}
	b := newDMABackendWithOpener(func(device string) (dmaDevice, error) {
		return dev, nil
	})
	b.SetFormatLimit(0, true)

	if _, err := b.Open("", 22050); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := b.Write(s16le(1000, -1000, 512, 0)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := []byte{128, 129}
	if !bytes.Equal(dev.stream, want) {
		t.Errorf("device received %v, want mono %v", dev.stream, want)
	}
}

func TestDMAPauseFillsSilence(t *testing.T) {
	tests := []struct {
		name    string
		maxBits int
		want    byte
	}{
		{"16-bit silence", 0, 0x00},
		{"8-bit silence", 8, 0x80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 1024)}
			b := newDMABackendWithOpener(func(device string) (dmaDevice, error) {
				return dev, nil
			})
			b.SetFormatLimit(tt.maxBits, false)

			if _, err := b.Open("", 22050); err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			b.Pause()

			if len(dev.fills) != 1 || dev.fills[0] != tt.want {
				t.Errorf("fills = %v, want one fill of %#x", dev.fills, tt.want)
			}
			b.Resume()
			if len(dev.fills) != 1 {
				t.Error("Resume touched the ring")
			}
		})
	}
}

func TestDMACloseIdempotent(t *testing.T) {
	dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 1024)}
	b, _ := openDMAOn(t, dev, 22050)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !dev.closed {
		t.Error("device not closed")
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := b.Write([]byte{1, 2, 3, 4}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write after Close = %v, want ErrNotOpen", err)
	}
}

func TestDMAOpenTwice(t *testing.T) {
	dev := &fakeDMADevice{caps: fullCaps(), ring: make([]byte, 1024)}
	b, _ := openDMAOn(t, dev, 22050)
	if _, err := b.Open("", 22050); err == nil {
		t.Error("second Open succeeded, want error")
	}
}
