// Package feedback persists user judgements on predictions and reports them
// to the metrics collector.
package feedback

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Brownie44l1/pet-classifier/internal/model"
	"github.com/google/uuid"
)

// Recorder is the part of the metrics collector feedback reports to.
type Recorder interface {
	RecordFeedback(feedbackType, predictedClass string, isCorrect bool)
}

type Store interface {
	SaveImage(id string, data []byte) (string, error)
	SaveMetadata(rec Record) error
	RemoveImage(path string) error
}

type Processor struct {
	store    Store
	recorder Recorder
	labels   model.Labels
	logger   *slog.Logger
	now      func() time.Time
	newID    func() (string, error)
}

func NewProcessor(store Store, recorder Recorder, labels model.Labels, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:    store,
		recorder: recorder,
		labels:   labels,
		logger:   logger,
		now:      time.Now,
		newID:    newID,
	}
}

// UUIDv7 ids sort by creation time and stay unique within the same tick.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Process validates and stores one submission. Every call creates a new
// record. The image is written before its metadata, and nothing is
// reported to the collector unless both writes succeed.
func (p *Processor) Process(sub Submission) (Summary, error) {
	class, err := p.labels.Parse(sub.Prediction)
	if err != nil {
		return Summary{}, &ValidationError{Field: "prediction", Reason: err.Error()}
	}
	feedbackType, err := ParseType(sub.FeedbackType)
	if err != nil {
		return Summary{}, &ValidationError{Field: "feedback", Reason: err.Error()}
	}
	if c := sub.Confidence; c != nil && (math.IsNaN(*c) || *c < 0 || *c > 1) {
		return Summary{}, &ValidationError{Field: "confidence", Reason: "must be within [0,1]"}
	}

	image, err := decodeImage(sub.Image)
	if err != nil {
		return Summary{}, &DecodeError{Err: err}
	}

	id, err := p.newID()
	if err != nil {
		return Summary{}, &PersistenceError{Op: "generate id", Err: err}
	}

	imagePath, err := p.store.SaveImage(id, image)
	if err != nil {
		return Summary{}, &PersistenceError{Op: "write image", ID: id, Err: err}
	}

	label := p.labels.Of(class)
	rec := Record{
		ID:           id,
		Timestamp:    p.now(),
		Prediction:   label,
		FeedbackType: feedbackType,
		Confidence:   sub.Confidence,
		ImagePath:    imagePath,
	}
	if err := p.store.SaveMetadata(rec); err != nil {
		if rmErr := p.store.RemoveImage(imagePath); rmErr != nil {
			p.logger.Warn("failed to remove orphaned feedback image", "id", id, "path", imagePath, "error", rmErr)
		}
		return Summary{}, &PersistenceError{Op: "write metadata", ID: id, Err: err}
	}

	summary := Summary{
		ID:             id,
		FeedbackType:   feedbackType,
		PredictedClass: label,
		IsCorrect:      feedbackType == Accept,
	}
	p.recorder.RecordFeedback(string(summary.FeedbackType), summary.PredictedClass, summary.IsCorrect)

	p.logger.Info("feedback stored",
		"id", id,
		"feedback_type", feedbackType,
		"prediction", label,
		"is_correct", summary.IsCorrect)

	return summary, nil
}

func decodeImage(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, errors.New("malformed data URL")
		}
		payload = payload[comma+1:]
	}
	if payload == "" {
		return nil, errors.New("empty image payload")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, err
		}
	}
	if len(data) == 0 {
		return nil, errors.New("empty image payload")
	}
	return data, nil
}
