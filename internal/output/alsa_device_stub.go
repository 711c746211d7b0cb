//go:build !linux

package output

import "fmt"

// openPCMDevice is unavailable off Linux. The alsa descriptor is not
// registered here; a directly constructed backend fails to open.
func openPCMDevice(device string, rate int) (pcmDevice, int, error) {
	return nil, 0, fmt.Errorf("kernel PCM output requires linux")
}
