package source

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// Decoder decodes one audio container format into a Clip.
type Decoder interface {
	// Decode reads the full stream and returns decoded 16-bit PCM.
	Decode(reader io.Reader) (*Clip, error)

	// CanDecode checks if this decoder handles the given filename.
	CanDecode(filename string) bool

	// FormatName returns the short name of the handled format.
	FormatName() string
}

// Registry holds decoders and resolves which one handles a file.
type Registry struct {
	decoders []Decoder
}

// NewRegistry creates an empty decoder registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make([]Decoder, 0)}
}

// NewDefaultRegistry creates a registry with WAV, MP3, AIFF, and FLAC
// support.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewWavDecoder())
	r.Register(NewMp3Decoder())
	r.Register(NewAiffDecoder())
	r.Register(NewFlacDecoder())

	slog.Debug("default decoder registry initialized",
		"supported_formats", r.SupportedFormats())
	return r
}

// Register adds a decoder. Earlier registrations win extension ties.
func (r *Registry) Register(d Decoder) {
	if d == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}
	r.decoders = append(r.decoders, d)
	slog.Debug("registered decoder", "format", d.FormatName())
}

// SupportedFormats lists the format names of all registered decoders.
func (r *Registry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, d := range r.decoders {
		formats = append(formats, d.FormatName())
	}
	return formats
}

// DetectFormat picks a decoder by filename extension alone.
func (r *Registry) DetectFormat(filename string) Decoder {
	if filename == "" {
		return nil
	}
	for _, d := range r.decoders {
		if d.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename, "format", d.FormatName())
			return d
		}
	}
	return nil
}

// DetectFormatWithContent sniffs magic bytes first and falls back to
// the extension. Content wins when both disagree.
func (r *Registry) DetectFormatWithContent(filename string, data []byte) Decoder {
	if len(data) > 0 {
		mime := strings.ToLower(mimetype.Detect(data).String())
		slog.Debug("magic byte detection", "filename", filename, "mime", mime)

		var byContent Decoder
		switch {
		case strings.Contains(mime, "wav"):
			byContent = r.findByFormat("WAV")
		case strings.Contains(mime, "mpeg") || strings.Contains(mime, "mp3"):
			byContent = r.findByFormat("MP3")
		case strings.Contains(mime, "aiff"):
			byContent = r.findByFormat("AIFF")
		case strings.Contains(mime, "flac"):
			byContent = r.findByFormat("FLAC")
		}
		if byContent != nil {
			return byContent
		}
	}

	return r.DetectFormat(filename)
}

func (r *Registry) findByFormat(name string) Decoder {
	for _, d := range r.decoders {
		if strings.EqualFold(d.FormatName(), name) {
			return d
		}
	}
	return nil
}

// DecodeFile buffers the reader, resolves a decoder, and decodes.
func (r *Registry) DecodeFile(filename string, reader io.Reader) (*Clip, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read audio file", "filename", filename, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	d := r.DetectFormatWithContent(filename, data)
	if d == nil {
		slog.Error("no decoder for file", "filename", filename)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	slog.Debug("decoder selected", "filename", filename, "format", d.FormatName())

	clip, err := d.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Error("decode failed",
			"filename", filename, "format", d.FormatName(), "error", err)
		return nil, err
	}

	slog.Info("file decoded",
		"filename", filename,
		"format", d.FormatName(),
		"frames", clip.Frames(),
		"channels", clip.Channels,
		"rate", clip.Rate)
	return clip, nil
}

// Open decodes the file at path into a playable Source.
func (r *Registry) Open(fsys afero.Fs, path string) (Source, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	defer f.Close()

	clip, err := r.DecodeFile(path, f)
	if err != nil {
		return nil, err
	}
	return NewClipSource(clip)
}
