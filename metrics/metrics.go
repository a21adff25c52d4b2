// Package metrics expose les compteurs Prometheus du tour vocal.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Endpoints suivis par RequestDuration.
const (
	EndpointSTT = "stt"
	EndpointLLM = "llm"
	EndpointTTS = "tts"
)

// Metrics regroupe les collectors. Un *Metrics nil est valide et n'enregistre
// rien : les tests construisent les composants sans registry.
type Metrics struct {
	Rounds        prometheus.Counter
	RoundFailures *prometheus.CounterVec

	CaptureChunks     prometheus.Counter
	UtteranceDuration prometheus.Histogram

	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec
}

// New crée les collectors et les enregistre sur reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rounds: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_rounds_total",
			Help: "Total number of conversation rounds started",
		}),
		RoundFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_round_failures_total",
			Help: "Rounds aborted before a reply was ready, by reason",
		}, []string{"reason"}),
		CaptureChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_capture_chunks_total",
			Help: "Audio chunks read from the input device",
		}),
		UtteranceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_utterance_seconds",
			Help:    "Duration of recorded utterances",
			Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30},
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_request_duration_seconds",
			Help:    "Latency of calls to external speech and language services",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		RequestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_request_errors_total",
			Help: "Failed calls to external services",
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) RoundStarted() {
	if m == nil {
		return
	}
	m.Rounds.Inc()
}

func (m *Metrics) RoundFailed(reason string) {
	if m == nil {
		return
	}
	m.RoundFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ChunkRead() {
	if m == nil {
		return
	}
	m.CaptureChunks.Inc()
}

func (m *Metrics) Utterance(d time.Duration) {
	if m == nil {
		return
	}
	m.UtteranceDuration.Observe(d.Seconds())
}

// ObserveRequest enregistre la durée d'un appel externe et son échec éventuel.
func (m *Metrics) ObserveRequest(endpoint string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		m.RequestErrors.WithLabelValues(endpoint).Inc()
	}
}
