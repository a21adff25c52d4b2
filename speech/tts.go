package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voiceagent/metrics"
)

type speakRequest struct {
	Text string `json:"text"`
}

// Synthesize convertit le texte en parole et retourne le WAV brut (linear16).
func (c *Client) Synthesize(ctx context.Context, text string) (audio []byte, err error) {
	if !c.HasCredential() {
		c.log.Error("Deepgram API key not set")
		return nil, ErrMissingCredential
	}
	if strings.TrimSpace(text) == "" {
		c.log.Warn("Nothing to synthesize")
		return nil, ErrEmptyResult
	}

	c.log.Info("Synthesizing speech...")

	payload, err := json.Marshal(speakRequest{Text: text})
	if err != nil {
		return nil, err
	}

	u := c.endpoint("speak",
		"model="+url.QueryEscape(c.cfg.TTSModel),
		"encoding=linear16",
		"container=wav",
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	start := time.Now()
	defer func() { c.metrics.ObserveRequest(metrics.EndpointTTS, start, err) }()

	audio, err = c.do(req, "speak")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.log.Error("TTS failed: %d - %s", apiErr.StatusCode, apiErr.Body)
		} else {
			c.log.Error("TTS error: %v", err)
		}
		return nil, err
	}
	if len(audio) == 0 {
		c.log.Error("TTS returned no audio")
		return nil, ErrEmptyResult
	}

	c.log.Success("Speech synthesis complete (%d bytes)", len(audio))
	return audio, nil
}
