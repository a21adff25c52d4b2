package audio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"voiceagent/logging"
	"voiceagent/metrics"
)

// ErrNoSpeech : l'enregistrement s'est terminé sans aucun chunk au-dessus du seuil.
var ErrNoSpeech = errors.New("audio: no speech detected")

// RecordParams est passé à chaque appel : l'interface peut les régler entre deux tours.
type RecordParams struct {
	Threshold       float64 // niveau moyen absolu
	SilenceDuration float64 // secondes de silence qui terminent l'énoncé
}

type Recorder struct {
	open            StreamOpener
	cfg             StreamConfig
	log             *logging.Logger
	metrics         *metrics.Metrics
	noSpeechTimeout time.Duration

	running atomic.Bool
}

type RecorderOption func(*Recorder)

func WithStreamConfig(cfg StreamConfig) RecorderOption {
	return func(r *Recorder) { r.cfg = cfg }
}

func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithNoSpeechTimeout remplace le plafond de 10s (utilisé par les tests).
func WithNoSpeechTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.noSpeechTimeout = d }
}

func NewRecorder(open StreamOpener, log *logging.Logger, opts ...RecorderOption) *Recorder {
	if log == nil {
		log = logging.Nop()
	}
	r := &Recorder{
		open:            open,
		cfg:             DefaultStreamConfig(),
		log:             log.With("recorder"),
		noSpeechTimeout: NoSpeechTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stop demande l'arrêt de l'enregistrement en cours. Vérifié à chaque chunk :
// une lecture bloquante en cours n'est pas interrompue.
func (r *Recorder) Stop() {
	r.running.Store(false)
}

// Recording indique si un appel à Record est dans sa boucle de capture.
func (r *Recorder) Recording() bool {
	return r.running.Load()
}

// Record écoute jusqu'à la fin d'un énoncé et le retourne.
//
// Les chunks sont ignorés jusqu'au premier au-dessus du seuil. Ensuite tout
// est gardé jusqu'à dépasser SilenceDuration en chunks calmes consécutifs (le
// chunk qui franchit la limite n'est pas gardé). Si personne ne parle avant le
// timeout, ou si Stop arrive avant toute parole, Record retourne ErrNoSpeech.
// Le flux est arrêté et fermé sur tous les chemins de retour.
func (r *Recorder) Record(ctx context.Context, p RecordParams, obs PhaseObserver) (*Clip, error) {
	r.running.Store(true)
	defer r.running.Store(false)

	stream, err := r.open(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	defer r.release(stream)

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	r.log.Info("Started listening...")
	notify(obs, PhaseListening)

	var (
		buffer        [][]int16
		silenceChunks int
		totalChunks   int
		speech        bool
	)
	maxSilenceChunks := SilenceChunks(p.SilenceDuration, r.cfg.SampleRate, r.cfg.ChunkSize)
	maxTotalChunks := chunksFor(r.noSpeechTimeout, r.cfg.SampleRate, r.cfg.ChunkSize)

loop:
	for r.running.Load() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := stream.Read()
		if err != nil {
			return nil, fmt.Errorf("read input stream: %w", err)
		}
		r.metrics.ChunkRead()

		level := Level(chunk)
		totalChunks++
		r.log.Debug("level %.2f, threshold %.0f", level, p.Threshold)

		if !speech && totalChunks > maxTotalChunks {
			r.log.Info("No speech detected within timeout, stopping.")
			break
		}

		switch {
		case level > p.Threshold:
			if !speech {
				speech = true
				r.log.Info("Speech detected")
				notify(obs, PhaseSpeaking)
			}
			silenceChunks = 0
			buffer = append(buffer, chunk)

		case speech:
			silenceChunks++
			if silenceChunks > maxSilenceChunks {
				r.log.Info("Silence detected, processing speech...")
				break loop
			}
			buffer = append(buffer, chunk)
		}
	}

	if !speech || len(buffer) == 0 {
		return nil, ErrNoSpeech
	}

	clip := newClip(buffer, r.cfg.SampleRate)
	r.metrics.Utterance(clip.Duration())
	return clip, nil
}

// Levels affiche le niveau de chaque chunk pendant la durée donnée, pour
// choisir un seuil adapté au micro.
func (r *Recorder) Levels(ctx context.Context, d time.Duration, fn func(i int, level float64)) error {
	stream, err := r.open(r.cfg)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	defer r.release(stream)

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}

	n := chunksFor(d, r.cfg.SampleRate, r.cfg.ChunkSize)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := stream.Read()
		if err != nil {
			return fmt.Errorf("read input stream: %w", err)
		}
		fn(i, Level(chunk))
	}
	return nil
}

func (r *Recorder) release(stream InputStream) {
	if err := stream.Stop(); err != nil {
		r.log.Warn("stop input stream: %v", err)
	}
	if err := stream.Close(); err != nil {
		r.log.Warn("close input stream: %v", err)
	}
}
