package audio

// Phase est un événement de capture émis par le recorder.
type Phase int

const (
	PhaseListening Phase = iota + 1
	PhaseSpeaking
)

func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "listening"
	case PhaseSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// PhaseObserver est notifié de façon synchrone, depuis la goroutine d'enregistrement.
type PhaseObserver interface {
	OnPhase(Phase)
}

type PhaseFunc func(Phase)

func (f PhaseFunc) OnPhase(p Phase) { f(p) }

func notify(o PhaseObserver, p Phase) {
	if o != nil {
		o.OnPhase(p)
	}
}
