package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voiceagent/audio"
	"voiceagent/config"
	"voiceagent/conversation"
	"voiceagent/llm"
	"voiceagent/logging"
	"voiceagent/metrics"
	"voiceagent/speech"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	threshold := flag.Float64("threshold", 0, "VAD threshold, mean absolute level (100-2000)")
	silence := flag.Float64("silence", 0, "seconds of silence that end an utterance (0.5-3.0)")
	mute := flag.Bool("mute", false, "save replies without playing them")
	levels := flag.Float64("levels", 0, "print microphone levels for N seconds and exit")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceagent: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = strings.ToLower(*logLevel)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Address = *metricsAddr
	}
	if *mute {
		cfg.Playback.Enabled = false
	}

	settings := conversation.Settings{
		Threshold:       cfg.VAD.Threshold,
		SilenceDuration: cfg.VAD.SilenceDuration,
		Play:            cfg.Playback.Enabled,
	}
	if *threshold > 0 {
		settings.Threshold = config.ClampThreshold(*threshold)
	}
	if *silence > 0 {
		settings.SilenceDuration = config.ClampSilenceDuration(*silence)
	}

	log := logging.New(os.Stderr, cfg.Logging.Level)
	log.Info("Starting voice agent...")

	// --- PortAudio (une seule fois pour tout le processus) ---
	if err := portaudio.Initialize(); err != nil {
		log.Z().Fatal().Err(err).Msg("PortAudio initialization failed")
	}
	defer portaudio.Terminate()
	log.Z().Debug().Msg("PortAudio initialized")

	m := metrics.New(prometheus.DefaultRegisterer)
	recorder := audio.NewRecorder(audio.OpenPortAudio, log, audio.WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Premier Ctrl+C : arrête l'enregistrement en cours. Sinon : quitte.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGINT && recorder.Recording() {
				log.Warn("Stopping recording...")
				recorder.Stop()
				continue
			}
			log.Info("Shutting down...")
			cancel()
			return
		}
	}()

	if *levels > 0 {
		runLevels(ctx, recorder, time.Duration(*levels*float64(time.Second)), settings.Threshold)
		return
	}

	if cfg.Metrics.Address != "" {
		srv := serveMetrics(cfg.Metrics.Address, log)
		defer srv.Close()
	}

	if !cfg.HasCredentials() {
		log.Warn("Please enter your API keys to get started (DEEPGRAM_API_KEY, GROQ_API_KEY).")
	}

	deepgram := speech.NewClient(speech.ConfigFrom(cfg), log, m)
	groq := llm.NewClient(llm.ConfigFrom(cfg), log, m)
	player := audio.NewPlayer(log, cfg.Playback.TempDir)
	defer player.Interrupt()

	agent := conversation.NewAgent(conversation.Deps{
		Recorder: recorder,
		STT:      deepgram,
		LLM:      groq,
		TTS:      deepgram,
		Player:   player,
		Log:      log,
		Metrics:  m,
		Phases: audio.PhaseFunc(func(p audio.Phase) {
			switch p {
			case audio.PhaseListening:
				fmt.Println("Listening... Speak now!")
			case audio.PhaseSpeaking:
				fmt.Println("Speech detected...")
			}
		}),
		KeepHistory: cfg.LLM.KeepHistory,
	})

	session := conversation.NewSession()
	defer session.Reset()

	term := &terminal{
		out:      os.Stdout,
		settings: settings,
		session:  session,
		turn:     agent.RunTurn,
		keys: []apiKey{
			{name: "deepgram", label: "Deepgram", client: deepgram},
			{name: "groq", label: "Groq", client: groq},
		},
	}
	term.run(ctx, readLines(os.Stdin))
	log.Info("Bye.")
}

// runLevels aide à choisir le seuil : un niveau par chunk, '*' au-dessus du seuil.
func runLevels(ctx context.Context, rec *audio.Recorder, d time.Duration, threshold float64) {
	fmt.Printf("Measuring input levels for %s (threshold %.0f)...\n", d, threshold)
	err := rec.Levels(ctx, d, func(i int, level float64) {
		mark := " "
		if level > threshold {
			mark = "*"
		}
		bar := strings.Repeat("#", min(int(level/50), 60))
		fmt.Printf("%4d %s %7.1f %s\n", i, mark, level, bar)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "voiceagent: %v\n", err)
	}
}

func serveMetrics(addr string, log *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server: %v", err)
		}
	}()
	return srv
}
