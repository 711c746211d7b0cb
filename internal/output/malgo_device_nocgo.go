//go:build !cgo

package output

import "fmt"

// openMixerDevice requires cgo for miniaudio. Without it the malgo
// descriptor is not registered and a directly constructed backend
// fails to open.
func openMixerDevice(device string, rate int, done func(underrun bool)) (mixerDevice, int, error) {
	return nil, 0, fmt.Errorf("miniaudio output requires cgo")
}
