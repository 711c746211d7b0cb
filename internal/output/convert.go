package output

// pcmFormat is the on-device sample format negotiated by the DMA
// backend. The canonical stream is always 16-bit stereo; the other
// formats exist for hardware that cannot play it.
type pcmFormat int

const (
	formatS16Stereo pcmFormat = iota
	formatU8Stereo
	formatU8Mono
)

func (f pcmFormat) String() string {
	switch f {
	case formatS16Stereo:
		return "s16-stereo"
	case formatU8Stereo:
		return "u8-stereo"
	case formatU8Mono:
		return "u8-mono"
	}
	return "unknown"
}

// frameBytes returns the on-device size of one sample frame.
func (f pcmFormat) frameBytes() int {
	switch f {
	case formatU8Stereo:
		return 2
	case formatU8Mono:
		return 1
	}
	return 4
}

// silence returns the byte value that renders as silence in this
// format: 0x00 for signed 16-bit, the 0x80 bias for unsigned 8-bit.
func (f pcmFormat) silence() byte {
	if f == formatS16Stereo {
		return 0x00
	}
	return 0x80
}

// to8BitStereo converts 16-bit signed little-endian stereo samples to
// unsigned 8-bit stereo in place: each sample collapses to its high
// byte rebiased by +128. Returns the shortened prefix of p holding the
// converted data.
func to8BitStereo(p []byte) []byte {
	n := len(p) / 2
	for i := 0; i < n; i++ {
		s := int16(uint16(p[2*i]) | uint16(p[2*i+1])<<8)
		p[i] = byte(int(s>>8) + 128)
	}
	return p[:n]
}

// to8BitMono converts 16-bit signed little-endian stereo samples to
// unsigned 8-bit mono in place: left and right average to one rebiased
// byte. Returns the shortened prefix of p holding the converted data.
func to8BitMono(p []byte) []byte {
	n := len(p) / 4
	for i := 0; i < n; i++ {
		l := int16(uint16(p[4*i]) | uint16(p[4*i+1])<<8)
		r := int16(uint16(p[4*i+2]) | uint16(p[4*i+3])<<8)
		p[i] = byte((int(l)+int(r))>>9 + 128)
	}
	return p[:n]
}
