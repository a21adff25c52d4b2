// Package llm génère la réponse parlée via l'API Groq, compatible OpenAI.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"voiceagent/config"
	"voiceagent/logging"
	"voiceagent/metrics"
)

var (
	// ErrMissingCredential : aucune clé API, aucun appel réseau n'est fait.
	ErrMissingCredential = errors.New("llm: Groq API key not set")

	// ErrTransport enveloppe erreurs réseau, timeouts et réponses non-2xx.
	ErrTransport = errors.New("llm: transport failure")

	// ErrEmptyResult : le premier choix ne contient aucun texte.
	ErrEmptyResult = errors.New("llm: empty response")
)

// APIError est une réponse non-2xx de l'endpoint chat. Body est le corps brut.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("groq chat: API error %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return ErrTransport }

// Turn est un échange complet, rejoué dans l'historique.
type Turn struct {
	User      string
	Assistant string
}

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float32
	SystemPrompt string
	Timeout      time.Duration
}

// ConfigFrom combine les sections groq et llm de la configuration globale.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		APIKey:       cfg.Groq.APIKey,
		BaseURL:      cfg.Groq.BaseURL,
		Model:        cfg.Groq.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
		SystemPrompt: cfg.LLM.SystemPrompt,
		Timeout:      cfg.Groq.GetTimeoutDuration(),
	}
}

type Client struct {
	http    *http.Client
	log     *logging.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	cfg    Config
	client *openai.Client
}

func NewClient(cfg Config, log *logging.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.GroqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = config.GroqModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = config.LLMMaxTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = config.SystemPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultRequestTimeout * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}

	c := &Client{
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
		log:     log.With("groq"),
		metrics: m,
		cfg:     cfg,
	}
	c.client = c.newOpenAI(cfg.APIKey)
	return c
}

// newOpenAI construit le client go-openai pour une clé : elle ne peut pas
// être changée sur un client existant.
func (c *Client) newOpenAI(key string) *openai.Client {
	oc := openai.DefaultConfig(key)
	oc.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	oc.HTTPClient = c.http
	return openai.NewClientWithConfig(oc)
}

// HasCredential indique si une clé API est configurée.
func (c *Client) HasCredential() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.APIKey != ""
}

// SetAPIKey remplace la clé pour les tours suivants.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.APIKey = strings.TrimSpace(key)
	c.client = c.newOpenAI(c.cfg.APIKey)
}

// messages construit system + historique + message utilisateur.
func messages(system, text string, history []Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2+2*len(history))
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, t := range history {
		msgs = append(msgs,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.User},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Assistant},
		)
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
}

// Chat envoie text, précédé du prompt système et de l'historique, et retourne
// le contenu du premier choix. Pas de retry.
func (c *Client) Chat(ctx context.Context, text string, history []Turn) (reply string, err error) {
	c.mu.RLock()
	cfg, client := c.cfg, c.client
	c.mu.RUnlock()

	if cfg.APIKey == "" {
		c.log.Error("Groq API key not set")
		return "", ErrMissingCredential
	}

	c.log.Info("Getting AI response...")

	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    messages(cfg.SystemPrompt, text, history),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}

	start := time.Now()
	defer func() { c.metrics.ObserveRequest(metrics.EndpointLLM, start, err) }()

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		err = c.classify(err)
		return "", err
	}

	if len(resp.Choices) > 0 {
		reply = resp.Choices[0].Message.Content
	}
	if strings.TrimSpace(reply) == "" {
		c.log.Error("No response from AI")
		return "", ErrEmptyResult
	}

	c.log.Success("AI: %q", reply)
	return reply, nil
}

// classify ramène les erreurs go-openai dans la taxonomie du paquet.
// Un corps JSON d'erreur donne un *openai.APIError ; un corps illisible
// (passerelle 502 en texte brut) donne un *openai.RequestError dont Body
// garde le texte reçu.
func (c *Client) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		c.log.Error("LLM request failed: %d - %s", apiErr.HTTPStatusCode, apiErr.Message)
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := strings.TrimSpace(string(reqErr.Body))
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		c.log.Error("LLM request failed: %d - %s", reqErr.HTTPStatusCode, body)
		if reqErr.Err != nil {
			c.log.Debug("LLM error response not decoded: %v", reqErr.Err)
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Body: body}
	}
	c.log.Error("LLM error: %v", err)
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
