package export

import (
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/batrec/internal/errors"
)

const (
	bitDepth    = 16
	numChannels = 1
	// wavPCM is the WAVE format tag for integer PCM.
	wavPCM = 1
)

// ClipWriter writes one mono 16-bit WAV file. The header sizes are filled
// in by Close.
type ClipWriter struct {
	path   string
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	frames int
}

// CreateClip creates path and prepares a WAV encoder at sampleRate.
func CreateClip(path string, sampleRate int) (*ClipWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return &ClipWriter{
		path: path,
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, bitDepth, numChannels, wavPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: sampleRate, NumChannels: numChannels},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Write appends samples as frames.
func (w *ClipWriter) Write(samples []int16) error {
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = int(s)
	}
	if err := w.enc.Write(w.buf); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("path", w.path).
			Build()
	}
	w.frames += len(samples)
	return nil
}

// Close finalizes the header and closes the file.
func (w *ClipWriter) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if err := errors.Join(encErr, fileErr); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("path", w.path).
			Build()
	}
	return nil
}

// Path returns the file path.
func (w *ClipWriter) Path() string { return w.path }

// Frames returns the number of frames written so far.
func (w *ClipWriter) Frames() int { return w.frames }
