package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// ModelLoadError means the scorer could not be built at startup. It is
// fatal: no route is registered without a working scorer.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// LoadMetadata reads and validates the JSON sidecar describing the model.
func LoadMetadata(path string) (Metadata, error) {
	var metadata Metadata
	raw, err := os.ReadFile(path)
	if err != nil {
		return metadata, &ModelLoadError{Path: path, Err: fmt.Errorf("failed to read metadata: %w", err)}
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return metadata, &ModelLoadError{Path: path, Err: fmt.Errorf("failed to parse metadata: %w", err)}
	}
	if err := metadata.Validate(); err != nil {
		return metadata, &ModelLoadError{Path: path, Err: err}
	}
	return metadata, nil
}

// ONNXScorer runs a binary classifier exported to ONNX. The session is
// created once and shared; every Score call brings its own tensors, so
// concurrent calls never touch each other's buffers.
type ONNXScorer struct {
	session  *ort.DynamicAdvancedSession
	Metadata Metadata
}

// NewONNXScorer loads the model and its metadata. libraryPath may be empty
// to use the platform default onnxruntime shared library.
func NewONNXScorer(modelPath, metadataPath, libraryPath string) (*ONNXScorer, error) {
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: err}
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, &ModelLoadError{Path: modelPath, Err: errors.New("model artifact is empty or not a file")}
	}

	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, &ModelLoadError{Path: modelPath, Err: fmt.Errorf("failed to initialize ONNX environment: %w", err)}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName}, nil)
	if err != nil {
		return nil, &ModelLoadError{Path: modelPath, Err: fmt.Errorf("failed to create ONNX session: %w", err)}
	}

	return &ONNXScorer{
		session:  session,
		Metadata: metadata,
	}, nil
}

// Score runs one forward pass and returns the probability of ClassB.
func (s *ONNXScorer) Score(t Tensor) (float32, error) {
	input, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(s.Metadata.OutputShape...))
	if err != nil {
		return 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}

	return probability(output.GetData())
}

// probability accepts either a single sigmoid output or a two-way softmax,
// in which case the second entry is the ClassB probability.
func probability(out []float32) (float32, error) {
	var p float32
	switch len(out) {
	case 1:
		p = out[0]
	case 2:
		p = out[1]
	default:
		return 0, fmt.Errorf("unexpected output size %d", len(out))
	}
	if math.IsNaN(float64(p)) || math.IsInf(float64(p), 0) {
		return 0, fmt.Errorf("model returned non-finite score %v", p)
	}
	return p, nil
}

func (s *ONNXScorer) Close() {
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
