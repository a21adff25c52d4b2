// audio/capture.go
package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"voiceagent/config"
)

// StreamConfig décrit le format de capture (mono, int16).
type StreamConfig struct {
	SampleRate int
	Channels   int
	ChunkSize  int // samples par lecture
}

// DefaultStreamConfig est la configuration fixe du périphérique pour un tour.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate: config.SampleRate,
		Channels:   config.Channels,
		ChunkSize:  config.ChunkSize,
	}
}

// InputStream fournit des chunks de taille fixe, en bloquant. Ouvert une fois
// par enregistrement, il est arrêté et fermé par celui qui l'a ouvert.
type InputStream interface {
	Start() error
	// Read bloque jusqu'à ce qu'un chunk complet soit disponible.
	Read() ([]int16, error)
	Stop() error
	Close() error
}

// StreamOpener ouvre le périphérique d'entrée. Remplacé par un faux flux dans les tests.
type StreamOpener func(cfg StreamConfig) (InputStream, error)

type portAudioStream struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPortAudio ouvre le micro par défaut en mode bloquant.
// portaudio.Initialize() doit être appelé avant, dans main.go.
func OpenPortAudio(cfg StreamConfig) (InputStream, error) {
	if cfg.Channels != 1 {
		return nil, fmt.Errorf("capture must be mono, got %d channels", cfg.Channels)
	}
	if cfg.ChunkSize <= 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid stream config: %+v", cfg)
	}

	buf := make([]int16, cfg.ChunkSize*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		cfg.Channels, // input channels
		0,            // output channels (micro seulement)
		float64(cfg.SampleRate),
		cfg.ChunkSize,
		buf,
	)
	if err != nil {
		return nil, fmt.Errorf("open portaudio stream: %w", err)
	}
	return &portAudioStream{stream: stream, buf: buf}, nil
}

func (p *portAudioStream) Start() error {
	return p.stream.Start()
}

func (p *portAudioStream) Read() ([]int16, error) {
	// Un overflow perd quelques samples mais le chunk reste exploitable.
	if err := p.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	chunk := make([]int16, len(p.buf))
	copy(chunk, p.buf)
	return chunk, nil
}

func (p *portAudioStream) Stop() error {
	return p.stream.Stop()
}

func (p *portAudioStream) Close() error {
	return p.stream.Close()
}
