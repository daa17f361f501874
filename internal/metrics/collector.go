// Package metrics records prediction, error and feedback instrumentation
// and exposes it in the Prometheus text format.
package metrics

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Error kinds used as the error_type label. Anything else is folded into
// KindOther so user input can never create new series.
const (
	KindImageDecode       = "ImageDecodeError"
	KindUnsupportedFormat = "UnsupportedFormatError"
	KindScoring           = "ScoringError"
	KindPersistence       = "PersistenceError"
	KindFeedbackDecode    = "FeedbackDecodeError"
	KindInvalidRequest    = "InvalidRequest"
	KindNotFound          = "NotFound"
	KindInternal          = "InternalServerError"
	KindOther             = "Other"
)

var ErrorKinds = []string{
	KindImageDecode,
	KindUnsupportedFormat,
	KindScoring,
	KindPersistence,
	KindFeedbackDecode,
	KindInvalidRequest,
	KindNotFound,
	KindInternal,
	KindOther,
}

var FeedbackTypes = []string{"accept", "reject"}

var (
	LatencyBuckets    = []float64{0.1, 0.5, 1.0, 2.0, 5.0}
	ConfidenceBuckets = []float64{0.1, 0.3, 0.5, 0.7, 0.9}
)

// MetricsInternalError describes a failure inside the collector. It is
// logged and counted, never returned to callers.
type MetricsInternalError struct {
	Op  string
	Err error
}

func (e *MetricsInternalError) Error() string {
	return fmt.Sprintf("metrics %s: %v", e.Op, e.Err)
}

func (e *MetricsInternalError) Unwrap() error { return e.Err }

type Options struct {
	Classes []string
	Logger  *slog.Logger
	// RuntimeCollectors adds Go runtime and process metrics to the registry.
	RuntimeCollectors bool
}

// Collector owns a private registry; every application builds its own and
// passes it to the components that report to it.
type Collector struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	predictions *prometheus.CounterVec
	latency     prometheus.Histogram
	confidence  prometheus.Histogram
	errors      *prometheus.CounterVec
	feedback    *prometheus.CounterVec
	accuracy    prometheus.Gauge

	classes   map[string]struct{}
	kinds     map[string]struct{}
	feedbacks map[string]struct{}

	mu            sync.Mutex
	feedbackTotal uint64
	correctTotal  uint64

	internalErrors atomic.Uint64
}

func New(opts Options) *Collector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "model_predictions_total",
			Help: "Total number of predictions made",
		}, []string{"class_name"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_prediction_latency_seconds",
			Help:    "Time spent scoring a prediction",
			Buckets: LatencyBuckets,
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_prediction_confidence",
			Help:    "Confidence scores of predictions",
			Buckets: ConfidenceBuckets,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "application_errors_total",
			Help: "Total number of application errors",
		}, []string{"error_type"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "user_feedback_total",
			Help: "Total number of user feedback received",
		}, []string{"feedback_type", "prediction_class"}),
		accuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "model_accuracy",
			Help: "Model accuracy based on user feedback",
		}),
		classes:   toSet(opts.Classes),
		kinds:     toSet(ErrorKinds),
		feedbacks: toSet(FeedbackTypes),
	}

	c.registry.MustRegister(c.predictions, c.latency, c.confidence, c.errors, c.feedback, c.accuracy)
	if opts.RuntimeCollectors {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// Pre-create every series so scrapes show zeros before the first event.
	for _, class := range opts.Classes {
		c.predictions.WithLabelValues(class)
		for _, ft := range FeedbackTypes {
			c.feedback.WithLabelValues(ft, class)
		}
	}
	for _, kind := range ErrorKinds {
		c.errors.WithLabelValues(kind)
	}

	return c
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// RecordPrediction counts one successful prediction and observes its
// latency and confidence.
func (c *Collector) RecordPrediction(class string, confidence float64, latency time.Duration) {
	defer c.guard("record_prediction")

	if _, ok := c.classes[class]; !ok {
		c.internal("record_prediction", fmt.Errorf("unknown class %q", class))
		return
	}
	c.predictions.WithLabelValues(class).Inc()
	c.latency.Observe(latency.Seconds())
	c.confidence.Observe(confidence)
}

func (c *Collector) RecordError(kind string) {
	defer c.guard("record_error")

	if _, ok := c.kinds[kind]; !ok {
		c.internal("record_error", fmt.Errorf("unknown error kind %q", kind))
		kind = KindOther
	}
	c.errors.WithLabelValues(kind).Inc()
}

// RecordFeedback counts a feedback submission and refreshes the accuracy
// gauge as correct/total over all feedback seen by this collector.
func (c *Collector) RecordFeedback(feedbackType, predictedClass string, isCorrect bool) {
	defer c.guard("record_feedback")

	if _, ok := c.feedbacks[feedbackType]; !ok {
		c.internal("record_feedback", fmt.Errorf("unknown feedback type %q", feedbackType))
		return
	}
	if _, ok := c.classes[predictedClass]; !ok {
		c.internal("record_feedback", fmt.Errorf("unknown class %q", predictedClass))
		return
	}

	c.feedback.WithLabelValues(feedbackType, predictedClass).Inc()

	c.mu.Lock()
	c.feedbackTotal++
	if isCorrect {
		c.correctTotal++
	}
	c.accuracy.Set(float64(c.correctTotal) / float64(c.feedbackTotal))
	c.mu.Unlock()
}

// Accuracy returns the current correct/total feedback ratio.
func (c *Collector) Accuracy() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feedbackTotal == 0 {
		return 0
	}
	return float64(c.correctTotal) / float64(c.feedbackTotal)
}

// Snapshot renders every metric in the text exposition format.
func (c *Collector) Snapshot() ([]byte, error) {
	families, err := c.registry.Gather()
	if err != nil {
		c.internal("snapshot", err)
		if len(families) == 0 {
			return nil, err
		}
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			c.internal("snapshot", err)
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Handler serves the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(c.logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// InternalErrors is the number of swallowed collector failures.
func (c *Collector) InternalErrors() uint64 {
	return c.internalErrors.Load()
}

func (c *Collector) internal(op string, err error) {
	c.internalErrors.Add(1)
	c.logger.Error("metrics internal error", "error", &MetricsInternalError{Op: op, Err: err})
}

func (c *Collector) guard(op string) {
	if r := recover(); r != nil {
		c.internal(op, fmt.Errorf("panic: %v", r))
	}
}
