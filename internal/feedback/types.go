package feedback

import (
	"fmt"
	"strings"
	"time"
)

type Type string

const (
	Accept Type = "accept"
	Reject Type = "reject"
)

func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Accept:
		return Accept, nil
	case Reject:
		return Reject, nil
	}
	return "", fmt.Errorf("unknown feedback type %q", s)
}

// Submission is a user's judgement on a prediction, as received from the form.
type Submission struct {
	Prediction   string
	FeedbackType string
	Image        string // base64, optionally a data URL
	Confidence   *float64
}

// Record is the metadata persisted next to each feedback image.
type Record struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Prediction   string    `json:"prediction"`
	FeedbackType Type      `json:"feedback_type"`
	Confidence   *float64  `json:"confidence"`
	ImagePath    string    `json:"image_path"`
}

type Summary struct {
	ID             string `json:"id"`
	FeedbackType   Type   `json:"feedback_type"`
	PredictedClass string `json:"prediction_class"`
	IsCorrect      bool   `json:"is_correct"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DecodeError means the submitted image payload could not be decoded. It is
// raised before anything is written.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode feedback image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PersistenceError is a failed disk write of one of the two feedback artifacts.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist feedback %s (%s): %v", e.ID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
