// Package conversation exécute un tour vocal (enregistrement, transcription,
// réponse, synthèse, sauvegarde, lecture) sur une session qui garde ce que
// l'utilisateur voit.
package conversation

import (
	"os"
	"sync"

	"voiceagent/llm"
	"voiceagent/logging"
)

// MaxSessionLogs borne les entrées gardées par session.
const MaxSessionLogs = 200

// Session porte l'état d'une conversation. Sûre en concurrence : le tour la
// modifie pendant que l'interface la lit.
type Session struct {
	mu         sync.Mutex
	transcript string
	reply      string
	audioPath  string
	processing bool
	history    []llm.Turn
	logs       []logging.Entry
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

func (s *Session) Reply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply
}

// AudioPath est la réponse sauvegardée du dernier tour terminé, ou "".
func (s *Session) AudioPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioPath
}

// Processing indique si un tour est en cours.
func (s *Session) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// History retourne une copie des échanges gardés pour le LLM.
func (s *Session) History() []llm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Turn(nil), s.history...)
}

// Reset démarre une nouvelle conversation. Les logs sont gardés, le reste
// est effacé (audio sauvegardé compris).
func (s *Session) Reset() {
	s.mu.Lock()
	path := s.audioPath
	s.transcript = ""
	s.reply = ""
	s.audioPath = ""
	s.history = nil
	s.mu.Unlock()

	removeFile(path)
}

// OnLog implémente logging.Observer.
func (s *Session) OnLog(e logging.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, e)
	if over := len(s.logs) - MaxSessionLogs; over > 0 {
		s.logs = append(s.logs[:0], s.logs[over:]...)
	}
}

// Logs retourne au plus les n dernières entrées, la plus ancienne en tête (n <= 0 : toutes).
func (s *Session) Logs(n int) []logging.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.logs) {
		n = len(s.logs)
	}
	return append([]logging.Entry(nil), s.logs[len(s.logs)-n:]...)
}

// begin passe la session en traitement ; false si un tour tourne déjà.
func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing {
		return false
	}
	s.processing = true
	return true
}

func (s *Session) end() {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
}

// clearAudio oublie (et supprime) la réponse du tour précédent.
func (s *Session) clearAudio() {
	s.mu.Lock()
	path := s.audioPath
	s.audioPath = ""
	s.mu.Unlock()

	removeFile(path)
}

func (s *Session) setTranscript(text string) {
	s.mu.Lock()
	s.transcript = text
	s.mu.Unlock()
}

func (s *Session) setReply(text string) {
	s.mu.Lock()
	s.reply = text
	s.mu.Unlock()
}

func (s *Session) setAudio(path string) {
	s.mu.Lock()
	s.audioPath = path
	s.mu.Unlock()
}

func (s *Session) appendHistory(t llm.Turn) {
	s.mu.Lock()
	s.history = append(s.history, t)
	s.mu.Unlock()
}

func removeFile(path string) {
	if path != "" {
		os.Remove(path)
	}
}
