package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"voiceagent/logging"
	"voiceagent/metrics"
)

func tempClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utterance.wav")
	if err := os.WriteFile(path, []byte("RIFFfakewav"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func assertDeleted(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s still exists (stat err = %v)", path, err)
	}
}

func newTestClient(url, key string, log *logging.Logger) *Client {
	return NewClient(Config{APIKey: key, BaseURL: url, Timeout: 2 * time.Second}, log, nil)
}

// errorLog retient le dernier message d'erreur journalisé par log.
func errorLog(log *logging.Logger) *string {
	var last string
	log.AddObserver(logging.ObserverFunc(func(e logging.Entry) {
		if e.Level == logging.LevelError {
			last = e.Message
		}
	}))
	return &last
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/listen" {
			t.Errorf("got %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("model"); got != "nova-2" {
			t.Errorf("model = %q, want nova-2", got)
		}
		if got := r.URL.Query().Get("smart_format"); got != "true" {
			t.Errorf("smart_format = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/wav" {
			t.Errorf("Content-Type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFFfakewav" {
			t.Errorf("body = %q", body)
		}
		io.WriteString(w, `{"metadata":{"duration":1.2},"results":{"channels":[{"alternatives":[{"transcript":"hello there","confidence":0.98}]}]}}`)
	}))
	defer srv.Close()

	log := logging.Nop()
	c := newTestClient(srv.URL, "dg-key", log)
	path := tempClip(t)

	text, err := c.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q, want %q", text, "hello there")
	}
	assertDeleted(t, path)
}

func TestTranscribeBlankTranscript(t *testing.T) {
	for name, body := range map[string]string{
		"whitespace":      `{"results":{"channels":[{"alternatives":[{"transcript":"   "}]}]}}`,
		"no channels":     `{"results":{"channels":[]}}`,
		"no alternatives": `{"results":{"channels":[{"alternatives":[]}]}}`,
		"invalid json":    `not json`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			}))
			defer srv.Close()

			path := tempClip(t)
			_, err := newTestClient(srv.URL, "k", logging.Nop()).Transcribe(context.Background(), path)
			if !errors.Is(err, ErrEmptyResult) {
				t.Errorf("err = %v, want ErrEmptyResult", err)
			}
			assertDeleted(t, path)
		})
	}
}

func TestTranscribeMissingKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	log := logging.Nop()
	lastErr := errorLog(log)
	path := tempClip(t)
	_, err := newTestClient(srv.URL, "", log).Transcribe(context.Background(), path)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times", hits.Load())
	}
	if msg := *lastErr; msg != "Deepgram API key not set" {
		t.Errorf("logged %q", msg)
	}
	assertDeleted(t, path)
}

func TestTranscribeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"err_msg":"invalid credentials"}`)
	}))
	defer srv.Close()

	log := logging.Nop()
	lastErr := errorLog(log)
	m := metrics.New(prometheus.NewRegistry())
	c := NewClient(Config{APIKey: "bad", BaseURL: srv.URL}, log, m)
	path := tempClip(t)

	_, err := c.Transcribe(context.Background(), path)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("err = %v, want *APIError 401", err)
	}
	msg := *lastErr
	if !strings.Contains(msg, "401") || !strings.Contains(msg, "invalid credentials") {
		t.Errorf("logged %q, want status and body", msg)
	}
	if got := testutil.ToFloat64(m.RequestErrors.WithLabelValues(metrics.EndpointSTT)); got != 1 {
		t.Errorf("stt errors = %v, want 1", got)
	}
	assertDeleted(t, path)
}

func TestTranscribeTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	path := tempClip(t)
	_, err := newTestClient(url, "k", logging.Nop()).Transcribe(context.Background(), path)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", err)
	}
	assertDeleted(t, path)
}

func TestTranscribeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, logging.Nop(), nil)
	path := tempClip(t)
	_, err := c.Transcribe(context.Background(), path)
	if !errors.Is(err, ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", err)
	}
	assertDeleted(t, path)
}

func TestSynthesize(t *testing.T) {
	wav := []byte("RIFF\x24\x00\x00\x00WAVEfmt audio")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speak" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("model") != "aura-asteria-en" || q.Get("encoding") != "linear16" || q.Get("container") != "wav" {
			t.Errorf("query = %v", q)
		}
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "audio/wav" {
			t.Errorf("Accept = %q", got)
		}
		var req speakRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Text != "Hi! How can I help?" {
			t.Errorf("text = %q", req.Text)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav)
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL, "dg-key", logging.Nop()).Synthesize(context.Background(), "Hi! How can I help?")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(wav) {
		t.Errorf("audio = %q, want %q", got, wav)
	}
}

func TestSynthesizeFailures(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
		defer srv.Close()

		log := logging.Nop()
		lastErr := errorLog(log)
		if _, err := newTestClient(srv.URL, "", log).Synthesize(context.Background(), "hi"); !errors.Is(err, ErrMissingCredential) {
			t.Errorf("err = %v, want ErrMissingCredential", err)
		}
		if hits.Load() != 0 {
			t.Error("network call made without credential")
		}
		if *lastErr == "" {
			t.Error("missing credential not logged")
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		log := logging.Nop()
		lastErr := errorLog(log)
		_, err := newTestClient(srv.URL, "k", log).Synthesize(context.Background(), "hi")
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
			t.Fatalf("err = %v, want *APIError 503", err)
		}
		if msg := *lastErr; !strings.Contains(msg, "503") || !strings.Contains(msg, "overloaded") {
			t.Errorf("logged %q", msg)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()

		if _, err := newTestClient(srv.URL, "k", logging.Nop()).Synthesize(context.Background(), "hi"); !errors.Is(err, ErrEmptyResult) {
			t.Errorf("err = %v, want ErrEmptyResult", err)
		}
	})

	t.Run("blank text", func(t *testing.T) {
		if _, err := newTestClient("http://127.0.0.1:1", "k", logging.Nop()).Synthesize(context.Background(), "  "); !errors.Is(err, ErrEmptyResult) {
			t.Errorf("err = %v, want ErrEmptyResult", err)
		}
	})
}

func TestSetAPIKey(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte("RIFFaudio"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "", logging.Nop())
	if c.HasCredential() {
		t.Fatal("HasCredential with no key")
	}
	if _, err := c.Synthesize(context.Background(), "hi"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}

	c.SetAPIKey(" dg-late\n")
	if !c.HasCredential() {
		t.Fatal("HasCredential false after SetAPIKey")
	}
	if _, err := c.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if auth != "Token dg-late" {
		t.Errorf("Authorization = %q, want Token dg-late", auth)
	}
}
