package model

import (
	"fmt"
	"strings"
	"time"
)

// Decision boundary between the two classes. Scores strictly below it are
// ClassA, everything else ClassB.
const Threshold = 0.5

type Class int

const (
	ClassA Class = iota
	ClassB
)

// Labels are the human names of ClassA and ClassB, in that order.
type Labels [2]string

func (l Labels) Of(c Class) string {
	if c != ClassA && c != ClassB {
		return ""
	}
	return l[c]
}

// Parse maps a label back to its class. Matching ignores case and
// surrounding whitespace.
func (l Labels) Parse(s string) (Class, error) {
	s = strings.TrimSpace(s)
	for i, name := range l {
		if strings.EqualFold(name, s) {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("unknown class %q", s)
}

func (l Labels) Slice() []string {
	return []string{l[0], l[1]}
}

type Layout int

const (
	LayoutNCHW Layout = iota
	LayoutNHWC
)

// Tensor is a single preprocessed image ready for scoring.
type Tensor struct {
	Data  []float32
	Shape []int64
}

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// Validate fills defaults and checks the metadata describes a binary image
// classifier with a 3-channel square input.
func (m *Metadata) Validate() error {
	if len(m.Classes) != 2 {
		return fmt.Errorf("expected 2 classes, got %d", len(m.Classes))
	}
	if m.Classes[0] == "" || m.Classes[1] == "" || strings.EqualFold(m.Classes[0], m.Classes[1]) {
		return fmt.Errorf("class labels must be distinct and non-empty: %v", m.Classes)
	}
	if len(m.InputShape) != 4 {
		return fmt.Errorf("expected 4-dimensional input shape, got %v", m.InputShape)
	}
	if m.InputShape[1] != 3 && m.InputShape[3] != 3 {
		return fmt.Errorf("input shape %v has no 3-channel axis", m.InputShape)
	}
	if m.ImageSize == 0 {
		if m.Layout() == LayoutNCHW {
			m.ImageSize = int(m.InputShape[2])
		} else {
			m.ImageSize = int(m.InputShape[1])
		}
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("invalid image size %d", m.ImageSize)
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, 1}
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	return nil
}

func (m Metadata) Layout() Layout {
	if len(m.InputShape) == 4 && m.InputShape[1] == 3 {
		return LayoutNCHW
	}
	return LayoutNHWC
}

func (m Metadata) Labels() Labels {
	var l Labels
	copy(l[:], m.Classes)
	return l
}

// PredictionResult is the outcome of one successful inference call.
type PredictionResult struct {
	Class      Class
	Label      string
	RawScore   float64
	Confidence float64
	Latency    time.Duration
}

func (r PredictionResult) LatencySeconds() float64 {
	return r.Latency.Seconds()
}

// ConfidencePercent is the confidence rendered for display, e.g. 80.0.
func (r PredictionResult) ConfidencePercent() float64 {
	return r.Confidence * 100
}

type PredictionResponse struct {
	Class             string  `json:"class"`
	RawScore          float64 `json:"raw_score"`
	Confidence        float64 `json:"confidence"`
	ConfidencePercent float64 `json:"confidence_percentage"`
	LatencySeconds    float64 `json:"latency_seconds"`
	Image             string  `json:"image,omitempty"`
}

func NewPredictionResponse(r PredictionResult, imageBase64 string) PredictionResponse {
	return PredictionResponse{
		Class:             r.Label,
		RawScore:          r.RawScore,
		Confidence:        r.Confidence,
		ConfidencePercent: r.ConfidencePercent(),
		LatencySeconds:    r.LatencySeconds(),
		Image:             imageBase64,
	}
}
