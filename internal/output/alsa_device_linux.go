//go:build linux

package output

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/alsa"
)

func init() {
	Register(Descriptor{
		Name:        "alsa",
		Description: "Linux kernel PCM (blocking ALSA device)",
		New:         func() Backend { return NewAlsaBackend() },
	})
}

// alsaDevice adapts github.com/gen2brain/alsa to pcmDevice.
type alsaDevice struct {
	pcm *alsa.PCM
}

// openPCMDevice opens an ALSA playback stream with roughly half a
// second of buffer split into ~50ms periods; the driver may round
// both. PCM_NORESTART keeps underrun recovery in the backend instead
// of the library.
func openPCMDevice(device string, rate int) (pcmDevice, int, error) {
	periodSize := uint32(rate / 20)
	if periodSize < 64 {
		periodSize = 64
	}

	config := &alsa.Config{
		Channels:    2,
		Rate:        uint32(rate),
		PeriodSize:  periodSize,
		PeriodCount: 10,
		Format:      alsa.SNDRV_PCM_FORMAT_S16_LE,
	}

	var (
		pcm *alsa.PCM
		err error
	)
	if device == "" {
		pcm, err = alsa.PcmOpen(0, 0, alsa.PCM_OUT|alsa.PCM_NORESTART, config)
	} else {
		pcm, err = alsa.PcmOpenByName(device, alsa.PCM_OUT|alsa.PCM_NORESTART, config)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("alsa open: %w", err)
	}

	granted := int(pcm.Rate())
	slog.Debug("alsa pcm configured",
		"device", device,
		"granted_rate", granted,
		"period_frames", pcm.PeriodSize(),
		"buffer_frames", pcm.BufferSize())

	return &alsaDevice{pcm: pcm}, granted, nil
}

func (d *alsaDevice) WriteFrames(p []byte) (int, error) {
	return d.pcm.Write(p)
}

func (d *alsaDevice) Prepare() error {
	return d.pcm.Prepare()
}

func (d *alsaDevice) Start() error {
	return d.pcm.Start()
}

func (d *alsaDevice) FrameBytes() int {
	return int(alsa.PcmFramesToBytes(d.pcm, 1))
}

func (d *alsaDevice) Drain() error {
	return d.pcm.Drain()
}

func (d *alsaDevice) Close() error {
	return d.pcm.Close()
}
