// Package logging fournit le logger passé à chaque étape du tour.
//
// Chaque entrée part vers zerolog (console) puis, de façon synchrone, vers les
// observers enregistrés : c'est ainsi que la session garde les lignes qu'elle
// affiche. Le logger lui-même ne conserve rien.
package logging

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry est un événement {horodatage, niveau, message}.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] [%s] %s", e.Time.Format("15:04:05"), e.Level, e.Message)
}

// Observer reçoit chaque entrée, sur la goroutine qui l'a journalisée.
type Observer interface {
	OnLog(Entry)
}

type ObserverFunc func(Entry)

func (f ObserverFunc) OnLog(e Entry) { f(e) }

// hub est partagé entre un logger et ses enfants (With).
type hub struct {
	mu        sync.Mutex
	observers map[int]Observer
	nextID    int
}

type Logger struct {
	zl        zerolog.Logger
	component string
	hub       *hub
}

// New crée un logger console (format HH:MM:SS) au niveau donné.
// Un niveau invalide retombe sur info.
func New(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	consoleWriter := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
	zl := zerolog.New(consoleWriter).Level(lvl).With().Timestamp().Logger()
	return &Logger{
		zl:  zl,
		hub: &hub{observers: make(map[int]Observer)},
	}
}

// Nop retourne un logger muet qui notifie quand même ses observers.
func Nop() *Logger {
	return &Logger{
		zl:  zerolog.Nop(),
		hub: &hub{observers: make(map[int]Observer)},
	}
}

// With retourne un logger enfant marqué du nom de composant. Les enfants
// partagent les observers de leur parent.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		zl:        l.zl.With().Str("component", component).Logger(),
		component: component,
		hub:       l.hub,
	}
}

// Z expose le logger zerolog sous-jacent pour les champs structurés.
func (l *Logger) Z() *zerolog.Logger {
	return &l.zl
}

// AddObserver enregistre o et retourne la fonction qui le retire.
func (l *Logger) AddObserver(o Observer) func() {
	l.hub.mu.Lock()
	id := l.hub.nextID
	l.hub.nextID++
	l.hub.observers[id] = o
	l.hub.mu.Unlock()

	return func() {
		l.hub.mu.Lock()
		delete(l.hub.observers, id)
		l.hub.mu.Unlock()
	}
}

func (l *Logger) Debug(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Success(format string, args ...any) {
	l.log(LevelSuccess, fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarning, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, fmt.Sprintf(format, args...))
}

func (l *Logger) log(level Level, msg string) {
	switch level {
	case LevelSuccess:
		l.zl.Info().Bool("success", true).Msg(msg)
	case LevelWarning:
		l.zl.Warn().Msg(msg)
	case LevelError:
		l.zl.Error().Msg(msg)
	default:
		l.zl.Info().Msg(msg)
	}

	entry := Entry{Time: time.Now(), Level: level, Component: l.component, Message: msg}

	// Ordre d'enregistrement, sur les seuls observers encore actifs.
	l.hub.mu.Lock()
	ids := slices.Sorted(maps.Keys(l.hub.observers))
	observers := make([]Observer, len(ids))
	for i, id := range ids {
		observers[i] = l.hub.observers[id]
	}
	l.hub.mu.Unlock()

	// Hors verrou : un observer peut lui-même journaliser.
	for _, o := range observers {
		o.OnLog(entry)
	}
}
