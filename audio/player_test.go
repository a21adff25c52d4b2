package audio

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"voiceagent/logging"
)

func TestPlayerSave(t *testing.T) {
	dir := t.TempDir()
	p := NewPlayer(logging.Nop(), dir)

	data := []byte("RIFF....WAVEfake")
	path, err := p.Save(data)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("saved %q, want %q", got, data)
	}
}

func TestPlayerSaveEmpty(t *testing.T) {
	p := NewPlayer(nil, t.TempDir())
	if _, err := p.Save(nil); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestPlayerSaveBadDir(t *testing.T) {
	p := NewPlayer(logging.Nop(), "/nonexistent/dir/for/replies")
	if _, err := p.Save([]byte{1, 2}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestPlayerPlayMissingFile(t *testing.T) {
	p := NewPlayer(logging.Nop(), t.TempDir())
	if err := p.Play(t.Context(), "/nonexistent/reply.wav"); err == nil {
		t.Error("expected error for missing file")
	}
	if p.IsPlaying() {
		t.Error("IsPlaying should be false")
	}
}
