package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"voiceagent/config"
)

// Clip est un énoncé terminé : mono, PCM signé 16 bits.
type Clip struct {
	Samples    []int16
	SampleRate int
	Chunks     int
}

func newClip(chunks [][]int16, sampleRate int) *Clip {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	samples := make([]int16, 0, n)
	for _, c := range chunks {
		samples = append(samples, c...)
	}
	return &Clip{Samples: samples, SampleRate: sampleRate, Chunks: len(chunks)}
}

func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// PCM renvoie les samples en little-endian, le format attendu par oto.
func (c *Clip) PCM() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)        // LSB
		buf[i*2+1] = byte(s >> 8) // MSB
	}
	return buf
}

// WriteWAV encode le clip en WAV PCM 16 bits mono.
func (c *Clip) WriteWAV(w io.WriteSeeker) error {
	enc := wav.NewEncoder(w, c.SampleRate, config.BitDepth, config.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: config.Channels,
			SampleRate:  c.SampleRate,
		},
		Data:           make([]int, len(c.Samples)),
		SourceBitDepth: config.BitDepth,
	}
	for i, s := range c.Samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

// SaveTemp écrit le clip dans un nouveau .wav temporaire de dir ("" = os.TempDir)
// et retourne son chemin. Le fichier appartient à l'appelant.
func (c *Clip) SaveTemp(dir string) (string, error) {
	f, err := os.CreateTemp(dir, "utterance-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp wav: %w", err)
	}
	path := f.Name()

	if err := c.WriteWAV(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp wav: %w", err)
	}
	return path, nil
}

// DecodeWAV relit un WAV PCM 16 bits mono en clip.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	if d.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", d.BitDepth)
	}
	if d.NumChans != 1 {
		return nil, fmt.Errorf("unsupported channel count: %d (only mono is supported)", d.NumChans)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return &Clip{Samples: samples, SampleRate: int(d.SampleRate)}, nil
}
