package predictor

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Brownie44l1/pet-classifier/internal/metrics"
	"github.com/Brownie44l1/pet-classifier/internal/model"
	"github.com/Brownie44l1/pet-classifier/internal/preprocess"
)

// Scorer is a loaded model returning the ClassB probability for a tensor.
// Implementations must be safe for concurrent use.
type Scorer interface {
	Score(t model.Tensor) (float32, error)
}

type Preprocessor interface {
	Preprocess(raw []byte) (model.Tensor, error)
}

// Recorder is the part of the metrics collector the predictor reports to.
type Recorder interface {
	RecordPrediction(class string, confidence float64, latency time.Duration)
}

// PredictionError wraps a preprocessing or scoring failure. Kind is the
// metrics error label for the failure.
type PredictionError struct {
	Kind string
	Err  error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed (%s): %v", e.Kind, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

type Predictor struct {
	preprocessor Preprocessor
	scorer       Scorer
	recorder     Recorder
	labels       model.Labels
	logger       *slog.Logger
	now          func() time.Time
}

func New(pre Preprocessor, scorer Scorer, recorder Recorder, labels model.Labels, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Predictor{
		preprocessor: pre,
		scorer:       scorer,
		recorder:     recorder,
		labels:       labels,
		logger:       logger,
		now:          time.Now,
	}
}

// Predict runs one preprocessing and scoring attempt. On success exactly one
// prediction is recorded; on failure nothing is recorded and the caller owns
// the error metric.
func (p *Predictor) Predict(raw []byte) (model.PredictionResult, error) {
	tensor, err := p.preprocessor.Preprocess(raw)
	if err != nil {
		return model.PredictionResult{}, &PredictionError{Kind: preprocessKind(err), Err: err}
	}

	start := p.now()
	score, err := p.scorer.Score(tensor)
	latency := p.now().Sub(start)
	if err != nil {
		return model.PredictionResult{}, &PredictionError{Kind: metrics.KindScoring, Err: err}
	}

	raw64 := float64(score)
	if math.IsNaN(raw64) {
		return model.PredictionResult{}, &PredictionError{Kind: metrics.KindScoring, Err: errors.New("score is NaN")}
	}

	class, confidence := Decide(raw64)
	result := model.PredictionResult{
		Class:      class,
		Label:      p.labels.Of(class),
		RawScore:   clamp(raw64),
		Confidence: confidence,
		Latency:    latency,
	}

	p.recorder.RecordPrediction(result.Label, result.Confidence, result.Latency)
	p.logger.Debug("prediction completed",
		"class", result.Label,
		"raw_score", result.RawScore,
		"confidence", result.Confidence,
		"latency", result.Latency)

	return result, nil
}

// Decide applies the decision threshold: scores below it are ClassA. The
// confidence is the distance from the threshold rescaled to [0,1].
func Decide(raw float64) (model.Class, float64) {
	raw = clamp(raw)
	class := model.ClassB
	if raw < model.Threshold {
		class = model.ClassA
	}
	return class, math.Abs(raw-model.Threshold) * 2
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func preprocessKind(err error) string {
	var unsupported *preprocess.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		return metrics.KindUnsupportedFormat
	}
	return metrics.KindImageDecode
}
