package output

import "testing"

func s16le(samples ...int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = append(out, byte(uint16(s)), byte(uint16(s)>>8))
	}
	return out
}

func TestTo8BitStereo(t *testing.T) {
	in := s16le(0, 32767, -32768, 256, -256, 1000)
	want := []byte{128, 255, 0, 129, 127, 131}

	got := to8BitStereo(in)

	if len(got) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestTo8BitStereoInPlace(t *testing.T) {
	in := s16le(100, 200, 300, 400)
	got := to8BitStereo(in)

	if &got[0] != &in[0] {
		t.Error("conversion allocated instead of reusing the input buffer")
	}
	if len(got) != len(in)/2 {
		t.Errorf("got %d bytes from %d input bytes", len(got), len(in))
	}
}

func TestTo8BitMono(t *testing.T) {
	tests := []struct {
		name string
		l, r int16
		want byte
	}{
		{"silence", 0, 0, 128},
		{"full positive", 32767, 32767, 255},
		{"full negative", -32768, -32768, 0},
		{"opposing cancels", 1000, -1000, 128},
		{"left only", 512, 0, 129},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := to8BitMono(s16le(tt.l, tt.r))
			if len(got) != 1 {
				t.Fatalf("got %d bytes, want 1", len(got))
			}
			if got[0] != tt.want {
				t.Errorf("mono(%d, %d) = %d, want %d", tt.l, tt.r, got[0], tt.want)
			}
		})
	}
}

func TestTo8BitMonoTracksAverage(t *testing.T) {
	// The mono sample must stay within one step of the true channel
	// average converted to 8-bit.
	for l := -32768; l <= 32767; l += 4093 {
		for r := -32768; r <= 32767; r += 5741 {
			got := int(to8BitMono(s16le(int16(l), int16(r)))[0])
			want := ((l + r) / 2 >> 8) + 128
			diff := got - want
			if diff < -1 || diff > 1 {
				t.Fatalf("mono(%d, %d) = %d, average maps to %d", l, r, got, want)
			}
		}
	}
}

func TestTo8BitMonoInPlace(t *testing.T) {
	in := s16le(100, 200, 300, 400)
	got := to8BitMono(in)

	if &got[0] != &in[0] {
		t.Error("conversion allocated instead of reusing the input buffer")
	}
	if len(got) != len(in)/4 {
		t.Errorf("got %d bytes from %d input bytes", len(got), len(in))
	}
}

func TestPCMFormatMeta(t *testing.T) {
	tests := []struct {
		format  pcmFormat
		str     string
		frame   int
		silence byte
	}{
		{formatS16Stereo, "s16-stereo", 4, 0x00},
		{formatU8Stereo, "u8-stereo", 2, 0x80},
		{formatU8Mono, "u8-mono", 1, 0x80},
	}
	for _, tt := range tests {
		if got := tt.format.String(); got != tt.str {
			t.Errorf("String() = %q, want %q", got, tt.str)
		}
		if got := tt.format.frameBytes(); got != tt.frame {
			t.Errorf("%s frameBytes() = %d, want %d", tt.str, got, tt.frame)
		}
		if got := tt.format.silence(); got != tt.silence {
			t.Errorf("%s silence() = %#x, want %#x", tt.str, got, tt.silence)
		}
	}
}
