package cwregen

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the decoder pipeline collectors.
type Metrics struct {
	samples     prometheus.Counter
	rejected    prometheus.Counter
	characters  prometheus.Counter
	unknown     prometheus.Counter
	words       prometheus.Counter
	ditLen      prometheus.Gauge
	threshold   prometheus.Gauge
	queueDepth  prometheus.Gauge
	calibration *prometheus.CounterVec // result: applied, suggested, invalid
	suggested   prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		samples: f.NewCounter(prometheus.CounterOpts{
			Name: "cwregen_samples_total",
			Help: "Samples accepted by the decoder",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "cwregen_samples_rejected_total",
			Help: "Samples rejected for having the wrong shape",
		}),
		characters: f.NewCounter(prometheus.CounterOpts{
			Name: "cwregen_characters_total",
			Help: "Characters emitted, including the unknown marker",
		}),
		unknown: f.NewCounter(prometheus.CounterOpts{
			Name: "cwregen_unknown_characters_total",
			Help: "Character periods that did not match the code table",
		}),
		words: f.NewCounter(prometheus.CounterOpts{
			Name: "cwregen_words_total",
			Help: "Word separators emitted",
		}),
		ditLen: f.NewGauge(prometheus.GaugeOpts{
			Name: "cwregen_dit_length_ticks",
			Help: "Current dit length in ticks",
		}),
		threshold: f.NewGauge(prometheus.GaugeOpts{
			Name: "cwregen_threshold",
			Help: "Current activation threshold",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "cwregen_queue_depth",
			Help: "Samples waiting for the decoder worker",
		}),
		calibration: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cwregen_calibration_runs_total",
			Help: "Calibration passes by result",
		}, []string{"result"}),
		suggested: f.NewGauge(prometheus.GaugeOpts{
			Name: "cwregen_calibration_suggested_dit_length_ticks",
			Help: "Last dit length suggested by calibration",
		}),
	}
}

// MetricsHandler serves the collectors registered in g.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
