// Package speech est le client Deepgram : transcription de l'énoncé
// enregistré et synthèse vocale de la réponse.
package speech

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"voiceagent/config"
	"voiceagent/logging"
	"voiceagent/metrics"
)

var (
	// ErrMissingCredential : aucune clé API, aucun appel réseau n'est fait.
	ErrMissingCredential = errors.New("speech: Deepgram API key not set")

	// ErrTransport enveloppe erreurs réseau, timeouts et réponses non-2xx.
	ErrTransport = errors.New("speech: transport failure")

	// ErrEmptyResult : l'appel a réussi mais ne contient rien d'exploitable.
	ErrEmptyResult = errors.New("speech: empty result")
)

// APIError est une réponse non-2xx de Deepgram.
type APIError struct {
	Op         string // "listen" ou "speak"
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deepgram %s: API error %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return ErrTransport }

type Config struct {
	APIKey   string
	BaseURL  string
	STTModel string
	TTSModel string
	Timeout  time.Duration
}

// ConfigFrom extrait la section Deepgram de la configuration globale.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		APIKey:   cfg.Deepgram.APIKey,
		BaseURL:  cfg.Deepgram.BaseURL,
		STTModel: cfg.Deepgram.STTModel,
		TTSModel: cfg.Deepgram.TTSModel,
		Timeout:  cfg.Deepgram.GetTimeoutDuration(),
	}
}

type Client struct {
	cfg     Config
	http    *http.Client
	log     *logging.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	apiKey string
}

func NewClient(cfg Config, log *logging.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DeepgramBaseURL
	}
	if cfg.STTModel == "" {
		cfg.STTModel = config.DeepgramSTTModel
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = config.DeepgramTTSModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultRequestTimeout * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		log:     log.With("deepgram"),
		metrics: m,
		apiKey:  cfg.APIKey,
	}
}

// HasCredential indique si une clé API est configurée.
func (c *Client) HasCredential() bool {
	return c.key() != ""
}

// SetAPIKey remplace la clé pour les appels suivants.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = strings.TrimSpace(key)
	c.mu.Unlock()
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

func (c *Client) endpoint(op string, query ...string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + op + "?" + strings.Join(query, "&")
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Token "+c.key())
}

// do envoie la requête et lit tout le corps. Les réponses non-2xx deviennent des *APIError.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
