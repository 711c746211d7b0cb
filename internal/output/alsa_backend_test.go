package output

import (
	"errors"
	"fmt"
	"reflect"
	"syscall"
	"testing"
)

type pcmWriteResult struct {
	frames int
	err    error
}

// fakePCMDevice scripts WriteFrames outcomes and records the call
// sequence. With an empty script every write accepts all frames.
type fakePCMDevice struct {
	frameBytes int
	script     []pcmWriteResult
	writes     [][]byte
	events     []string
	prepareErr error
	startErr   error
	closed     bool
}

var _ pcmDevice = (*fakePCMDevice)(nil)

func (f *fakePCMDevice) WriteFrames(p []byte) (int, error) {
	f.events = append(f.events, "write")
	cp := make([]byte, len(p))
	copy(cp, p)
	f.writes = append(f.writes, cp)

	if len(f.script) > 0 {
		r := f.script[0]
		f.script = f.script[1:]
		return r.frames, r.err
	}
	return len(p) / f.frameBytes, nil
}

func (f *fakePCMDevice) Prepare() error {
	f.events = append(f.events, "prepare")
	return f.prepareErr
}

func (f *fakePCMDevice) Start() error {
	f.events = append(f.events, "start")
	return f.startErr
}

func (f *fakePCMDevice) FrameBytes() int { return f.frameBytes }

func (f *fakePCMDevice) Drain() error {
	f.events = append(f.events, "drain")
	return nil
}

func (f *fakePCMDevice) Close() error {
	f.events = append(f.events, "close")
	f.closed = true
	return nil
}

func openAlsaOn(t *testing.T, dev *fakePCMDevice, granted int) *AlsaBackend {
	t.Helper()
	b := newAlsaBackendWithOpener(func(device string, rate int) (pcmDevice, int, error) {
		return dev, granted, nil
	})
	if _, err := b.Open("default", 44100); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return b
}

func frames(n, frameBytes int) []byte {
	out := make([]byte, n*frameBytes)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

func TestAlsaOpenNegotiatesRate(t *testing.T) {
	var gotDevice string
	var gotRate int
	b := newAlsaBackendWithOpener(func(device string, rate int) (pcmDevice, int, error) {
		gotDevice, gotRate = device, rate
		return &fakePCMDevice{frameBytes: 4}, 22050, nil
	})

	granted, err := b.Open("hw:1,0", 44100)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if granted != 22050 {
		t.Errorf("granted rate = %d, want the driver's 22050", granted)
	}
	if gotDevice != "hw:1,0" || gotRate != 44100 {
		t.Errorf("opener got (%q, %d), want (hw:1,0, 44100)", gotDevice, gotRate)
	}
}

func TestAlsaOpenDeviceUnavailable(t *testing.T) {
	b := newAlsaBackendWithOpener(func(device string, rate int) (pcmDevice, int, error) {
		return nil, 0, errors.New("no such card")
	})

	_, err := b.Open("hw:9,0", 44100)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Open error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestAlsaOpenBadGrantedRate(t *testing.T) {
	dev := &fakePCMDevice{frameBytes: 4}
	b := newAlsaBackendWithOpener(func(device string, rate int) (pcmDevice, int, error) {
		return dev, 0, nil
	})

	if _, err := b.Open("default", 44100); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Open error = %v, want ErrDeviceUnavailable", err)
	}
	if !dev.closed {
		t.Error("device left open after rejected rate")
	}
}

func TestAlsaOpenTwice(t *testing.T) {
	b := openAlsaOn(t, &fakePCMDevice{frameBytes: 4}, 44100)
	if _, err := b.Open("default", 44100); err == nil {
		t.Error("second Open succeeded, want error")
	}
}

func TestAlsaWriteBeforeOpen(t *testing.T) {
	b := newAlsaBackendWithOpener(nil)
	if err := b.Write([]byte{1, 2, 3, 4}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write error = %v, want ErrNotOpen", err)
	}
}

func TestAlsaWriteChunksAndStartsOnce(t *testing.T) {
	dev := &fakePCMDevice{
		frameBytes: 4,
		script:     []pcmWriteResult{{frames: 2}, {frames: 2}},
	}
	b := openAlsaOn(t, dev, 44100)

	data := frames(4, 4)
	if err := b.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// The stream starts after the first accepted submission, and the
	// second submission carries only the remaining frames.
	want := []string{"write", "start", "write"}
	if !reflect.DeepEqual(dev.events, want) {
		t.Errorf("events = %v, want %v", dev.events, want)
	}
	if !reflect.DeepEqual(dev.writes[1], data[8:]) {
		t.Errorf("second submission = %v, want the unaccepted tail %v", dev.writes[1], data[8:])
	}
}

func TestAlsaUnderrunRecovery(t *testing.T) {
	dev := &fakePCMDevice{
		frameBytes: 4,
		script: []pcmWriteResult{
			{err: fmt.Errorf("xrun: %w", syscall.EPIPE)},
		},
	}
	b := openAlsaOn(t, dev, 44100)

	data := frames(2, 4)
	if err := b.Write(data); err != nil {
		t.Fatalf("Write failed after recoverable underrun: %v", err)
	}

	// One re-prime, then the same data again, then the deferred start.
	want := []string{"write", "prepare", "write", "start"}
	if !reflect.DeepEqual(dev.events, want) {
		t.Errorf("events = %v, want %v", dev.events, want)
	}
	if !reflect.DeepEqual(dev.writes[0], dev.writes[1]) {
		t.Error("retry did not resubmit the same data")
	}
	if b.Underruns() != 1 {
		t.Errorf("Underruns() = %d, want 1", b.Underruns())
	}
}

func TestAlsaUnderrunMidStream(t *testing.T) {
	dev := &fakePCMDevice{
		frameBytes: 4,
		script: []pcmWriteResult{
			{frames: 1},
			{err: fmt.Errorf("xrun: %w", syscall.EPIPE)},
			{frames: 1},
		},
	}
	b := openAlsaOn(t, dev, 44100)

	data := frames(2, 4)
	if err := b.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// The stream restarts explicitly after mid-stream recovery.
	want := []string{"write", "start", "write", "prepare", "write", "start"}
	if !reflect.DeepEqual(dev.events, want) {
		t.Errorf("events = %v, want %v", dev.events, want)
	}
	if !reflect.DeepEqual(dev.writes[2], data[4:]) {
		t.Errorf("post-recovery submission = %v, want %v", dev.writes[2], data[4:])
	}
}

func TestAlsaNonUnderrunErrorPropagates(t *testing.T) {
	dev := &fakePCMDevice{
		frameBytes: 4,
		script:     []pcmWriteResult{{err: errors.New("device yanked")}},
	}
	b := openAlsaOn(t, dev, 44100)

	err := b.Write(frames(1, 4))
	if err == nil {
		t.Fatal("Write succeeded, want fatal device error")
	}
	for _, ev := range dev.events {
		if ev == "prepare" {
			t.Error("fatal error triggered an underrun re-prime")
		}
	}
}

func TestAlsaPrepareFailureIsFatal(t *testing.T) {
	dev := &fakePCMDevice{
		frameBytes: 4,
		script:     []pcmWriteResult{{err: fmt.Errorf("xrun: %w", syscall.EPIPE)}},
		prepareErr: errors.New("device gone"),
	}
	b := openAlsaOn(t, dev, 44100)

	if err := b.Write(frames(1, 4)); err == nil {
		t.Error("Write succeeded despite failed re-prime")
	}
}

func TestAlsaWriteIgnoresSubFrameTail(t *testing.T) {
	dev := &fakePCMDevice{frameBytes: 4}
	b := openAlsaOn(t, dev, 44100)

	if err := b.Write(nil); err != nil {
		t.Errorf("empty Write failed: %v", err)
	}
	if err := b.Write([]byte{1, 2}); err != nil {
		t.Errorf("sub-frame Write failed: %v", err)
	}
	if len(dev.events) != 0 {
		t.Errorf("device touched for sub-frame data: %v", dev.events)
	}
}

func TestAlsaCloseDrainsAndIsIdempotent(t *testing.T) {
	dev := &fakePCMDevice{frameBytes: 4}
	b := openAlsaOn(t, dev, 44100)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	want := []string{"drain", "close"}
	if !reflect.DeepEqual(dev.events, want) {
		t.Errorf("events = %v, want %v", dev.events, want)
	}

	if err := b.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if len(dev.events) != 2 {
		t.Error("second Close touched the device again")
	}

	if err := b.Write(frames(1, 4)); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write after Close = %v, want ErrNotOpen", err)
	}
}
