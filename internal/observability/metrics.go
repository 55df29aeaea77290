package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by Ladybot. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Turns              *prometheus.CounterVec
	TurnErrors         *prometheus.CounterVec
	TokensGenerated    prometheus.Counter
	GenerationLatency  prometheus.Histogram
	RecognitionErrors  *prometheus.CounterVec
	RecognitionLatency prometheus.Histogram
	Listening          prometheus.Gauge
	WSClients          prometheus.Gauge
	WSMessages         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers on reg; pass nil to use the default registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var (
		r prometheus.Registerer = prometheus.DefaultRegisterer
		g prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		r, g = reg, reg
	}
	f := promauto.With(r)

	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed conversation turns by input source.",
		}, []string{"source"}),
		TurnErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_errors_total",
			Help:      "Failed turns by stage.",
		}, []string{"stage"}),
		TokensGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_generated_total",
			Help:      "Tokens emitted to the display.",
		}),
		GenerationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of one reply generation.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		RecognitionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Speech recognition failures by kind.",
		}, []string{"kind"}),
		RecognitionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognition_duration_seconds",
			Help:      "Wall time of one recognition call.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		Listening: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listening",
			Help:      "1 while the speech recognition loop runs.",
		}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected UI pages.",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		gatherer: g,
	}
}

func (m *Metrics) ObserveTurn(source string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveTurnError(stage string) {
	if m == nil {
		return
	}
	m.TurnErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveGeneration(tokens int, d time.Duration) {
	if m == nil {
		return
	}
	m.TokensGenerated.Add(float64(tokens))
	m.GenerationLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveRecognition(d time.Duration, errKind string) {
	if m == nil {
		return
	}
	m.RecognitionLatency.Observe(d.Seconds())
	if errKind != "" {
		m.RecognitionErrors.WithLabelValues(errKind).Inc()
	}
}

func (m *Metrics) SetListening(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Listening.Set(1)
	} else {
		m.Listening.Set(0)
	}
}

func (m *Metrics) ObserveWS(direction, kind string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, kind).Inc()
}

func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.WSClients.Add(float64(delta))
}

// Handler serves the registry the metrics were created on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
