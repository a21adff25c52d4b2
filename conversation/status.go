package conversation

import (
	"context"
	"errors"
	"fmt"

	"voiceagent/audio"
	"voiceagent/llm"
	"voiceagent/speech"
)

var (
	// ErrBusy : un tour est demandé alors qu'un autre tourne.
	ErrBusy = errors.New("conversation: a round is already in progress")

	// ErrMissingCredentials : une clé API manque, rien n'est enregistré.
	ErrMissingCredentials = errors.New("conversation: API keys not set")
)

// Stage identifie l'étape du tour qui a échoué.
type Stage string

const (
	StageRecord     Stage = "record"
	StageTranscribe Stage = "transcribe"
	StageRespond    Stage = "respond"
	StageSynthesize Stage = "synthesize"
	StageSave       Stage = "save"
)

// StageError associe l'étape fautive à l'erreur d'un collaborateur.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Messages affichés à l'utilisateur.
const (
	StatusReady       = "Response ready!"
	StatusBusy        = "Processing... Please wait"
	StatusMissingKeys = "Please enter your API keys to get started."
	StatusNoSpeech    = "No speech detected"
	StatusStopped     = "Stopped"
	StatusCapture     = "Microphone error, check your input device"
	StatusUnknown     = "Something went wrong, see logs"
)

// StatusFor traduit l'issue d'un tour en message court pour l'utilisateur.
func StatusFor(err error) string {
	switch {
	case err == nil:
		return StatusReady
	case errors.Is(err, ErrBusy):
		return StatusBusy
	case errors.Is(err, ErrMissingCredentials),
		errors.Is(err, speech.ErrMissingCredential),
		errors.Is(err, llm.ErrMissingCredential):
		return StatusMissingKeys
	case errors.Is(err, audio.ErrNoSpeech):
		return StatusNoSpeech
	case errors.Is(err, context.Canceled):
		return StatusStopped
	}

	var se *StageError
	if !errors.As(err, &se) {
		return StatusUnknown
	}
	transport := errors.Is(err, speech.ErrTransport) || errors.Is(err, llm.ErrTransport) ||
		errors.Is(err, context.DeadlineExceeded)
	empty := errors.Is(err, speech.ErrEmptyResult) || errors.Is(err, llm.ErrEmptyResult)

	switch se.Stage {
	case StageRecord:
		return StatusCapture
	case StageTranscribe:
		if empty {
			return "Could not understand the audio"
		}
		if transport {
			return "Transcription failed, check your Deepgram key and connection"
		}
	case StageRespond:
		if empty {
			return "No response from AI"
		}
		if transport {
			return "AI response failed, check your Groq key and connection"
		}
	case StageSynthesize:
		if empty {
			return "No audio returned for the response"
		}
		if transport {
			return "Speech synthesis failed, check your Deepgram key and connection"
		}
	case StageSave:
		return "Could not save audio"
	}
	return StatusUnknown
}

// reason est le label de voice_round_failures_total.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrMissingCredentials),
		errors.Is(err, speech.ErrMissingCredential),
		errors.Is(err, llm.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, audio.ErrNoSpeech):
		return "no_speech"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, speech.ErrTransport), errors.Is(err, llm.ErrTransport),
		errors.Is(err, context.DeadlineExceeded):
		return "transport"
	case errors.Is(err, speech.ErrEmptyResult), errors.Is(err, llm.ErrEmptyResult):
		return "empty_result"
	}
	var se *StageError
	if errors.As(err, &se) && se.Stage == StageRecord {
		return "capture"
	}
	return "other"
}
