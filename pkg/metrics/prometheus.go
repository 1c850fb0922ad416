package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisionsTotal *prometheus.CounterVec
	denialsTotal   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	evalDuration   prometheus.Histogram
	fetchChunks    *prometheus.CounterVec
	bestScore      prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_decisions_total",
				Help: "Trade decisions by instrument and outcome",
			},
			[]string{"instrument", "outcome"},
		),
		denialsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_risk_denials_total",
				Help: "Risk manager denials by reason",
			},
			[]string{"reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepilot_last_price",
				Help: "Last observed price for an instrument",
			},
			[]string{"instrument"},
		),
		evalDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradepilot_evaluation_duration_seconds",
				Help:    "Duration of parameter set evaluations",
				Buckets: prometheus.DefBuckets,
			},
		),
		fetchChunks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_fetch_chunks_total",
				Help: "Historical data chunk fetches by result",
			},
			[]string{"result"},
		),
		bestScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradepilot_best_score",
				Help: "Score of the best configuration found so far",
			},
		),
	}
}

// RecordDecision records a trade decision outcome for an instrument.
func (r *Recorder) RecordDecision(instrument, outcome string) {
	r.decisionsTotal.WithLabelValues(instrument, outcome).Inc()
}

// RecordDenial records a risk denial by reason.
func (r *Recorder) RecordDenial(reason string) {
	r.denialsTotal.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for an instrument.
func (r *Recorder) RecordLastPrice(instrument string, price float64) {
	r.lastPrice.WithLabelValues(instrument).Set(price)
}

// RecordEvaluation records one parameter evaluation duration in seconds.
func (r *Recorder) RecordEvaluation(seconds float64) {
	r.evalDuration.Observe(seconds)
}

// RecordFetchChunk records one historical chunk fetch attempt.
func (r *Recorder) RecordFetchChunk(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.fetchChunks.WithLabelValues(result).Inc()
}

// RecordBestScore records the running best configuration score.
func (r *Recorder) RecordBestScore(score float64) {
	r.bestScore.Set(score)
}
