//go:build cgo

package output

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

func init() {
	Register(Descriptor{
		Name:        "malgo",
		Description: "miniaudio asynchronous mixer (cross platform)",
		New:         func() Backend { return NewMixerBackend() },
	})
}

// malgoDevice feeds submitted buffers to a miniaudio playback device.
// The data callback runs on miniaudio's own context; it drains the
// queue in submission order and fires done once per finished buffer.
type malgoDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	done   func(underrun bool)

	mu     sync.Mutex
	queue  [][]byte
	offset int // consumed bytes of queue[0]
	paused bool
}

// openMixerDevice starts a miniaudio playback device at the requested
// rate in 16-bit stereo. miniaudio converts internally, so the granted
// rate is the requested one.
func openMixerDevice(device string, rate int, done func(underrun bool)) (mixerDevice, int, error) {
	if device != "" {
		slog.Warn("mixer backend plays through the default device", "requested", device)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, 0, fmt.Errorf("malgo context init: %w", err)
	}

	d := &malgoDevice{ctx: mctx, done: done}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 2
	deviceConfig.SampleRate = uint32(rate)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: d.onData,
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, 0, fmt.Errorf("malgo device init: %w", err)
	}
	d.device = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, 0, fmt.Errorf("malgo device start: %w", err)
	}

	slog.Debug("malgo playback device started", "rate", rate)
	return d, rate, nil
}

// onData copies queued buffers into the device's output and fires the
// completion callback for each buffer fully consumed. The remainder is
// silence when the queue runs dry.
func (d *malgoDevice) onData(pOutputSample, pInputSamples []byte, framecount uint32) {
	finished := 0
	n := 0

	d.mu.Lock()
	for n < len(pOutputSample) && len(d.queue) > 0 {
		head := d.queue[0]
		c := copy(pOutputSample[n:], head[d.offset:])
		n += c
		d.offset += c
		if d.offset == len(head) {
			d.queue = d.queue[1:]
			d.offset = 0
			finished++
		}
	}
	d.mu.Unlock()

	ranDry := n < len(pOutputSample)
	for i := n; i < len(pOutputSample); i++ {
		pOutputSample[i] = 0
	}

	// A buffer that finished right as the queue emptied completes with
	// the underrun flag, matching how mixer hardware reports it.
	for i := 0; i < finished; i++ {
		d.done(ranDry && i == finished-1)
	}
}

func (d *malgoDevice) Submit(p []byte) error {
	d.mu.Lock()
	d.queue = append(d.queue, p)
	d.mu.Unlock()
	return nil
}

func (d *malgoDevice) Pause() error {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
	return d.device.Stop()
}

func (d *malgoDevice) Resume() error {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
	return d.device.Start()
}

// Close waits for queued audio to finish (unless paused), then tears
// the device and context down.
func (d *malgoDevice) Close() error {
	for {
		d.mu.Lock()
		idle := len(d.queue) == 0 || d.paused
		d.mu.Unlock()
		if idle {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := d.device.Stop(); err != nil {
		slog.Debug("malgo device stop", "error", err)
	}
	d.device.Uninit()

	err := d.ctx.Uninit()
	d.ctx.Free()
	if err != nil {
		return fmt.Errorf("malgo context uninit: %w", err)
	}

	slog.Debug("malgo playback device closed")
	return nil
}
