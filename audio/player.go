package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"voiceagent/logging"
)

// ErrEmptyAudio : rien à sauvegarder ni à jouer.
var ErrEmptyAudio = errors.New("audio: empty audio data")

// Player garde la réponse synthétisée sur disque et la joue via oto.
// Un seul contexte oto est autorisé par process : il est créé au premier
// Play, au sample rate de ce premier clip.
type Player struct {
	log *logging.Logger
	dir string

	mu        sync.Mutex
	otoCtx    *oto.Context
	otoRate   int
	current   *oto.Player
	isPlaying bool
}

// NewPlayer crée un player qui écrit ses fichiers dans dir ("" = os.TempDir).
func NewPlayer(log *logging.Logger, dir string) *Player {
	if log == nil {
		log = logging.Nop()
	}
	return &Player{log: log.With("player"), dir: dir}
}

// Save écrit l'audio synthétisé dans un .wav temporaire et retourne son chemin.
func (p *Player) Save(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyAudio
	}
	f, err := os.CreateTemp(p.dir, "reply-*.wav")
	if err != nil {
		p.log.Error("Failed to save audio: %v", err)
		return "", fmt.Errorf("create reply file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		p.log.Error("Failed to save audio: %v", err)
		return "", fmt.Errorf("write reply file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close reply file: %w", err)
	}
	return path, nil
}

// Play joue le fichier WAV et bloque jusqu'à la fin de la lecture,
// l'annulation du contexte ou un appel à Interrupt.
func (p *Player) Play(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open reply file: %w", err)
	}
	clip, err := DecodeWAV(f)
	f.Close()
	if err != nil {
		return err
	}
	if len(clip.Samples) == 0 {
		return ErrEmptyAudio
	}

	otoCtx, err := p.context(clip.SampleRate)
	if err != nil {
		return err
	}

	player := otoCtx.NewPlayer(bytes.NewReader(clip.PCM()))
	p.mu.Lock()
	p.current = player
	p.isPlaying = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.current = nil
		p.isPlaying = false
		p.mu.Unlock()
		if err := player.Close(); err != nil {
			p.log.Warn("close oto player: %v", err)
		}
	}()

	p.log.Info("Playing reply (%.1fs)", clip.Duration().Seconds())
	player.Play() // non bloquant en v3

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Interrupt coupe la lecture en cours, s'il y en a une.
func (p *Player) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Pause()
	}
}

// IsPlaying retourne l'état actuel du player.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPlaying
}

func (p *Player) context(sampleRate int) (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.otoCtx != nil {
		if sampleRate != p.otoRate {
			return nil, fmt.Errorf("reply sample rate %d differs from output rate %d", sampleRate, p.otoRate)
		}
		return p.otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE, // PCM 16-bit little-endian
	}
	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("create oto context: %w", err)
	}
	<-readyChan // attendre que le système audio soit prêt
	p.log.Debug("oto context ready at %d Hz", sampleRate)

	p.otoCtx = otoCtx
	p.otoRate = sampleRate
	return otoCtx, nil
}
