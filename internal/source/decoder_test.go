package source

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

func TestDefaultRegistryFormats(t *testing.T) {
	r := NewDefaultRegistry()
	want := []string{"WAV", "MP3", "AIFF", "FLAC"}
	if got := r.SupportedFormats(); !reflect.DeepEqual(got, want) {
		t.Errorf("SupportedFormats() = %v, want %v", got, want)
	}
}

func TestDetectFormatByExtension(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		filename string
		want     string
	}{
		{"song.wav", "WAV"},
		{"SONG.MP3", "MP3"},
		{"track.aif", "AIFF"},
		{"track.aiff", "AIFF"},
		{"album.flac", "FLAC"},
		{"", ""},
		{"noise.ogg", ""},
	}
	for _, tt := range tests {
		d := r.DetectFormat(tt.filename)
		switch {
		case tt.want == "" && d != nil:
			t.Errorf("DetectFormat(%q) = %s, want none", tt.filename, d.FormatName())
		case tt.want != "" && d == nil:
			t.Errorf("DetectFormat(%q) = none, want %s", tt.filename, tt.want)
		case tt.want != "" && d.FormatName() != tt.want:
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.filename, d.FormatName(), tt.want)
		}
	}
}

func TestDetectFormatContentOverridesExtension(t *testing.T) {
	r := NewDefaultRegistry()
	wavData := buildWAV(2, 44100, 16, []byte{0, 0, 0, 0})

	d := r.DetectFormatWithContent("mislabeled.mp3", wavData)
	if d == nil || d.FormatName() != "WAV" {
		t.Errorf("content detection picked %v, want WAV over the .mp3 extension", d)
	}
}

func TestDetectFormatFallsBackToExtension(t *testing.T) {
	r := NewDefaultRegistry()

	d := r.DetectFormatWithContent("song.wav", []byte("unrecognizable header bytes"))
	if d == nil || d.FormatName() != "WAV" {
		t.Errorf("fallback detection picked %v, want WAV by extension", d)
	}
}

func TestDecodeFileUnsupported(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.DecodeFile("mystery.xyz", bytes.NewReader([]byte("garbage")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("DecodeFile error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRegistryOpen(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := []byte{0x11, 0x22, 0x33, 0x44}
	if err := afero.WriteFile(fs, "clip.wav", buildWAV(2, 22050, 16, payload), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	r := NewDefaultRegistry()
	s, err := r.Open(fs, "clip.wav")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if s.Rate() != 22050 {
		t.Errorf("Rate() = %d, want 22050", s.Rate())
	}

	buf := make([]byte, 16)
	n, err := s.Fill(buf)
	if err != nil || n != len(payload) {
		t.Fatalf("Fill = (%d, %v), want (%d, nil)", n, err, len(payload))
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Errorf("Fill returned %v, want %v", buf[:n], payload)
	}
	if _, err := s.Fill(buf); err != io.EOF {
		t.Errorf("Fill past end = %v, want io.EOF", err)
	}
}

func TestRegistryOpenMissingFile(t *testing.T) {
	r := NewDefaultRegistry()
	if _, err := r.Open(afero.NewMemMapFs(), "absent.wav"); !errors.Is(err, ErrReadFailure) {
		t.Errorf("Open error = %v, want ErrReadFailure", err)
	}
}

func TestRegisterNilDecoder(t *testing.T) {
	r := NewRegistry()
	r.Register(nil)
	if got := len(r.SupportedFormats()); got != 0 {
		t.Errorf("registry holds %d decoders after nil Register, want 0", got)
	}
}
