package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voiceagent/audio"
	"voiceagent/config"
	"voiceagent/llm"
	"voiceagent/logging"
	"voiceagent/metrics"
)

// Collaborateurs du tour. Les implémentations réelles sont audio.Recorder,
// speech.Client, llm.Client et audio.Player.
type (
	Recorder interface {
		Record(ctx context.Context, p audio.RecordParams, obs audio.PhaseObserver) (*audio.Clip, error)
	}
	Transcriber interface {
		HasCredential() bool
		Transcribe(ctx context.Context, path string) (string, error)
	}
	Responder interface {
		HasCredential() bool
		Chat(ctx context.Context, text string, history []llm.Turn) (string, error)
	}
	Synthesizer interface {
		Synthesize(ctx context.Context, text string) ([]byte, error)
	}
	Player interface {
		Save(data []byte) (string, error)
		Play(ctx context.Context, path string) error
	}
)

type Deps struct {
	Recorder Recorder
	STT      Transcriber
	LLM      Responder
	TTS      Synthesizer
	Player   Player

	// Log doit être la racine partagée avec les collaborateurs : la session
	// s'y abonne pour recevoir leurs entrées.
	Log     *logging.Logger
	Metrics *metrics.Metrics

	// Phases reçoit listening/speaking pendant l'enregistrement (peut être nil).
	Phases audio.PhaseObserver
	// TempDir accueille le WAV de l'énoncé ("" = os.TempDir).
	TempDir string
	// KeepHistory rejoue les tours précédents de la session au LLM.
	KeepHistory bool
}

// Settings est lu au début de chaque tour.
type Settings struct {
	Threshold       float64
	SilenceDuration float64
	Play            bool
}

// DefaultSettings retourne les valeurs VAD par défaut, lecture activée.
func DefaultSettings() Settings {
	return Settings{
		Threshold:       config.DefaultVADThreshold,
		SilenceDuration: config.DefaultSilenceDuration,
		Play:            true,
	}
}

// Outcome est le résultat d'un tour. En cas d'échec, les champs remplis avant
// l'étape fautive sont gardés (la transcription survit à un échec du LLM).
type Outcome struct {
	RoundID    string
	Transcript string
	Reply      string
	AudioPath  string
	Status     string
	Err        error
}

type Agent struct {
	deps Deps
	log  *logging.Logger
}

func NewAgent(deps Deps) *Agent {
	if deps.Log == nil {
		deps.Log = logging.Nop()
	}
	return &Agent{deps: deps, log: deps.Log.With("agent")}
}

// RunTurn exécute un tour sur s. Refuse de démarrer si un tour tourne déjà
// sur la session, et vérifie les clés avant d'enregistrer. Toute erreur
// interrompt les étapes suivantes ; la session est libre au retour.
func (a *Agent) RunTurn(ctx context.Context, s *Session, set Settings) Outcome {
	if !s.begin() {
		a.log.Warn("Processing... Please wait")
		a.deps.Metrics.RoundFailed(reason(ErrBusy))
		return Outcome{Err: ErrBusy, Status: StatusFor(ErrBusy)}
	}
	defer s.end()

	unsubscribe := a.log.AddObserver(s)
	defer unsubscribe()

	out := Outcome{RoundID: uuid.NewString()}
	start := time.Now()
	a.log.Z().Debug().Str("round_id", out.RoundID).Msg("round started")
	a.deps.Metrics.RoundStarted()

	err := a.run(ctx, s, set, &out)
	out.Err = err
	out.Status = StatusFor(err)

	var ev *zerolog.Event
	if err != nil {
		a.deps.Metrics.RoundFailed(reason(err))
		ev = a.log.Z().Warn().Err(err).Str("reason", reason(err))
	} else {
		ev = a.log.Z().Info()
	}
	ev.Str("round_id", out.RoundID).Dur("elapsed", time.Since(start)).Msg("round finished")

	return out
}

func (a *Agent) run(ctx context.Context, s *Session, set Settings, out *Outcome) error {
	if !a.deps.STT.HasCredential() || !a.deps.LLM.HasCredential() {
		a.log.Error("Please enter your API keys to get started.")
		return ErrMissingCredentials
	}

	s.clearAudio()

	params := audio.RecordParams{
		Threshold:       config.ClampThreshold(set.Threshold),
		SilenceDuration: config.ClampSilenceDuration(set.SilenceDuration),
	}
	clip, err := a.deps.Recorder.Record(ctx, params, a.deps.Phases)
	if err != nil {
		if errors.Is(err, audio.ErrNoSpeech) {
			a.log.Warn("No speech detected")
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Error("Recording failed: %v", err)
		return stageErr(StageRecord, err)
	}

	path, err := clip.SaveTemp(a.deps.TempDir)
	if err != nil {
		a.log.Error("Failed to save recording: %v", err)
		return stageErr(StageSave, err)
	}
	a.log.Info("Recorded %.1fs of audio", clip.Duration().Seconds())

	// Transcribe supprime le fichier dans tous les cas.
	transcript, err := a.deps.STT.Transcribe(ctx, path)
	if err != nil {
		return stageErr(StageTranscribe, err)
	}
	out.Transcript = transcript
	s.setTranscript(transcript)

	var history []llm.Turn
	if a.deps.KeepHistory {
		history = s.History()
	}
	reply, err := a.deps.LLM.Chat(ctx, transcript, history)
	if err != nil {
		return stageErr(StageRespond, err)
	}
	out.Reply = reply
	s.setReply(reply)

	data, err := a.deps.TTS.Synthesize(ctx, reply)
	if err != nil {
		return stageErr(StageSynthesize, err)
	}
	replyPath, err := a.deps.Player.Save(data)
	if err != nil {
		return stageErr(StageSave, err)
	}
	out.AudioPath = replyPath
	s.setAudio(replyPath)

	if a.deps.KeepHistory {
		s.appendHistory(llm.Turn{User: transcript, Assistant: reply})
	}

	a.log.Success("Response ready!")

	if set.Play {
		if err := a.deps.Player.Play(ctx, replyPath); err != nil && ctx.Err() == nil {
			// La réponse reste disponible dans AudioPath.
			a.log.Warn("Playback failed: %v", err)
		}
	}
	return nil
}
