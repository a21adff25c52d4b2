package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"voiceagent/metrics"
)

type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// transcript renvoie channels[0].alternatives[0].transcript, ou "".
func (r *listenResponse) transcript() string {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return ""
	}
	return r.Results.Channels[0].Alternatives[0].Transcript
}

// Transcribe envoie le fichier WAV à Deepgram et retourne la transcription.
// Le fichier est supprimé avant de rendre la main, quel que soit le résultat.
func (c *Client) Transcribe(ctx context.Context, path string) (text string, err error) {
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			c.log.Warn("Failed to delete %s: %v", path, rmErr)
		}
	}()

	if !c.HasCredential() {
		c.log.Error("Deepgram API key not set")
		return "", ErrMissingCredential
	}

	c.log.Info("Transcribing audio...")

	f, err := os.Open(path)
	if err != nil {
		c.log.Error("Transcription error: %v", err)
		return "", fmt.Errorf("open audio clip: %w", err)
	}
	defer f.Close()

	u := c.endpoint("listen",
		"model="+url.QueryEscape(c.cfg.STTModel),
		"smart_format=true",
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, f)
	if err != nil {
		return "", err
	}
	if info, statErr := f.Stat(); statErr == nil {
		req.ContentLength = info.Size()
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "audio/wav")

	start := time.Now()
	defer func() { c.metrics.ObserveRequest(metrics.EndpointSTT, start, err) }()

	body, err := c.do(req, "listen")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.log.Error("Transcription failed: %d - %s", apiErr.StatusCode, apiErr.Body)
		} else {
			c.log.Error("Transcription error: %v", err)
		}
		return "", err
	}

	var resp listenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.log.Error("Transcription error: invalid response: %v", err)
		return "", fmt.Errorf("%w: deepgram response parse error: %v", ErrEmptyResult, err)
	}

	text = resp.transcript()
	if strings.TrimSpace(text) == "" {
		c.log.Warn("No speech detected in audio")
		return "", ErrEmptyResult
	}

	c.log.Success("Transcribed: %q", text)
	return text, nil
}
