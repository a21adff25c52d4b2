package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format de capture micro (fixe, attendu par le VAD et par le STT).
const (
	SampleRate = 16000
	Channels   = 1
	BitDepth   = 16
	ChunkSize  = 1024 // samples par lecture
)

// Bornes du VAD exposées à l'interface.
const (
	DefaultVADThreshold = 500.0
	MinVADThreshold     = 100.0
	MaxVADThreshold     = 2000.0

	DefaultSilenceDuration = 1.5 // secondes
	MinSilenceDuration     = 0.5
	MaxSilenceDuration     = 3.0
)

// Services externes.
const (
	DeepgramBaseURL  = "https://api.deepgram.com/v1"
	DeepgramSTTModel = "nova-2"
	DeepgramTTSModel = "aura-asteria-en"

	GroqBaseURL = "https://api.groq.com/openai/v1"
	GroqModel   = "llama-3.3-70b-versatile"

	LLMMaxTokens   = 150
	LLMTemperature = 0.7
	SystemPrompt   = "You are a helpful voice assistant. Keep responses concise and conversational, under 2-3 sentences."

	DefaultRequestTimeout = 30 // secondes
)

// Config regroupe tout ce qui peut être réglé sans recompiler.
type Config struct {
	VAD      VADConfig      `yaml:"vad"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
	Groq     GroqConfig     `yaml:"groq"`
	LLM      LLMConfig      `yaml:"llm"`
	Playback PlaybackConfig `yaml:"playback"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// VADConfig porte les valeurs par défaut d'un tour, réglables entre deux tours.
type VADConfig struct {
	Threshold       float64 `yaml:"threshold"`
	SilenceDuration float64 `yaml:"silence_duration"` // seconds
}

type DeepgramConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	STTModel string `yaml:"stt_model"`
	TTSModel string `yaml:"tts_model"`
	Timeout  int    `yaml:"timeout"` // seconds
}

type GroqConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout"` // seconds
}

type LLMConfig struct {
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
	KeepHistory  bool    `yaml:"keep_history"`
}

type PlaybackConfig struct {
	Enabled bool   `yaml:"enabled"`
	TempDir string `yaml:"temp_dir"` // "" = os.TempDir()
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Address string `yaml:"address"` // "" = désactivé
}

// Default retourne la configuration utilisée quand aucun fichier n'est fourni.
func Default() *Config {
	return &Config{
		VAD: VADConfig{
			Threshold:       DefaultVADThreshold,
			SilenceDuration: DefaultSilenceDuration,
		},
		Deepgram: DeepgramConfig{
			BaseURL:  DeepgramBaseURL,
			STTModel: DeepgramSTTModel,
			TTSModel: DeepgramTTSModel,
			Timeout:  DefaultRequestTimeout,
		},
		Groq: GroqConfig{
			BaseURL: GroqBaseURL,
			Model:   GroqModel,
			Timeout: DefaultRequestTimeout,
		},
		LLM: LLMConfig{
			MaxTokens:    LLMMaxTokens,
			Temperature:  LLMTemperature,
			SystemPrompt: SystemPrompt,
		},
		Playback: PlaybackConfig{Enabled: true},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load lit le fichier YAML (optionnel), applique les variables d'environnement
// puis valide. Les champs absents du fichier gardent leur valeur par défaut.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Les clés API viennent de préférence de l'environnement.
func (c *Config) applyEnv() {
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		c.Deepgram.APIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		c.Groq.APIKey = v
	}
	if v := os.Getenv("VOICE_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate vérifie chaque section. Une clé API absente n'est pas une erreur :
// c'est le tour qui refuse de démarrer, pas le process.
func (c *Config) Validate() error {
	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}
	if err := c.Deepgram.Validate(); err != nil {
		return fmt.Errorf("deepgram config: %w", err)
	}
	if err := c.Groq.Validate(); err != nil {
		return fmt.Errorf("groq config: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (v *VADConfig) Validate() error {
	if v.Threshold < MinVADThreshold || v.Threshold > MaxVADThreshold {
		return fmt.Errorf("threshold must be between %.0f and %.0f, got %.1f", MinVADThreshold, MaxVADThreshold, v.Threshold)
	}
	if v.SilenceDuration < MinSilenceDuration || v.SilenceDuration > MaxSilenceDuration {
		return fmt.Errorf("silence_duration must be between %.1f and %.1f seconds, got %.2f", MinSilenceDuration, MaxSilenceDuration, v.SilenceDuration)
	}
	return nil
}

func (d *DeepgramConfig) Validate() error {
	if d.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	if d.STTModel == "" || d.TTSModel == "" {
		return fmt.Errorf("stt_model and tts_model cannot be empty")
	}
	if d.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", d.Timeout)
	}
	return nil
}

func (g *GroqConfig) Validate() error {
	if g.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	if g.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if g.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", g.Timeout)
	}
	return nil
}

func (l *LLMConfig) Validate() error {
	if l.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", l.MaxTokens)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %.2f", l.Temperature)
	}
	if strings.TrimSpace(l.SystemPrompt) == "" {
		return fmt.Errorf("system_prompt cannot be empty")
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	return nil
}

// GetTimeoutDuration retourne le timeout par requête en time.Duration.
func (d *DeepgramConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}

// GetTimeoutDuration retourne le timeout par requête en time.Duration.
func (g *GroqConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

// HasCredentials indique si les deux clés nécessaires à un tour sont présentes.
func (c *Config) HasCredentials() bool {
	return c.Deepgram.APIKey != "" && c.Groq.APIKey != ""
}

// ClampThreshold ramène un seuil saisi dans les bornes de l'interface.
func ClampThreshold(v float64) float64 {
	return min(max(v, MinVADThreshold), MaxVADThreshold)
}

// ClampSilenceDuration ramène une durée de silence dans les bornes de l'interface.
func ClampSilenceDuration(v float64) float64 {
	return min(max(v, MinSilenceDuration), MaxSilenceDuration)
}
