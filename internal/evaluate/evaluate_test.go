package evaluate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Brownie44l1/pet-classifier/internal/metrics"
	"github.com/Brownie44l1/pet-classifier/internal/model"
	"github.com/Brownie44l1/pet-classifier/internal/predictor"
)

var labels = model.Labels{"cat", "dog"}

// fakeClassifier answers from the file contents: "cat", "dog", "bad" or
// "boom".
type fakeClassifier struct{}

func (fakeClassifier) Predict(raw []byte) (model.PredictionResult, error) {
	switch string(raw) {
	case "cat":
		return model.PredictionResult{Class: model.ClassA, Label: "cat"}, nil
	case "dog":
		return model.PredictionResult{Class: model.ClassB, Label: "dog"}, nil
	case "boom":
		return model.PredictionResult{}, &predictor.PredictionError{Kind: metrics.KindScoring, Err: errors.New("session failed")}
	}
	return model.PredictionResult{}, &predictor.PredictionError{Kind: metrics.KindImageDecode, Err: errors.New("not an image")}
}

func writeDataset(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRun_Metrics(t *testing.T) {
	// cat: 3 right, 1 called dog. dog: 2 right, 0 wrong. One unreadable image.
	dir := writeDataset(t, map[string]string{
		"cat/1.jpg":     "cat",
		"cat/2.jpg":     "cat",
		"cat/3.jpg":     "cat",
		"cat/4.jpg":     "dog",
		"cat/.DS_Store": "junk",
		"dog/1.jpg":     "dog",
		"dog/2.jpg":     "dog",
		"dog/3.jpg":     "bad",
	})

	report, err := Run(context.Background(), fakeClassifier{}, labels, dir, quiet())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Total != 6 || report.Correct != 5 || report.Skipped != 1 {
		t.Fatalf("Unexpected totals %+v", report)
	}
	if !approx(report.Accuracy, 5.0/6.0) {
		t.Errorf("Expected accuracy 5/6, got %v", report.Accuracy)
	}

	cat, dog := report.Classes[0], report.Classes[1]
	if cat.Label != "cat" || dog.Label != "dog" {
		t.Fatalf("Unexpected class order %+v", report.Classes)
	}
	if !approx(cat.Precision, 1) || !approx(cat.Recall, 0.75) || cat.Support != 4 {
		t.Errorf("Unexpected cat report %+v", cat)
	}
	if !approx(dog.Precision, 2.0/3.0) || !approx(dog.Recall, 1) || dog.Support != 2 {
		t.Errorf("Unexpected dog report %+v", dog)
	}
	if !approx(dog.F1, 0.8) {
		t.Errorf("Expected dog F1 0.8, got %v", dog.F1)
	}
}

func TestRun_ScoringFailureAborts(t *testing.T) {
	dir := writeDataset(t, map[string]string{"cat/1.jpg": "boom"})

	_, err := Run(context.Background(), fakeClassifier{}, labels, dir, quiet())
	if err == nil {
		t.Fatal("Expected scoring failure to abort the run")
	}
}

func TestRun_MissingClassDirectory(t *testing.T) {
	dir := writeDataset(t, map[string]string{"dog/1.jpg": "dog"})

	report, err := Run(context.Background(), fakeClassifier{}, labels, dir, quiet())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Total != 1 || report.Classes[0].Support != 0 {
		t.Errorf("Unexpected report %+v", report)
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := writeDataset(t, map[string]string{"cat/1.jpg": "cat"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, fakeClassifier{}, labels, dir, quiet()); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestReport_Write(t *testing.T) {
	report := &Report{
		Total: 2, Correct: 1, Accuracy: 0.5,
		Classes: []ClassReport{{Label: "cat", Precision: 1, Recall: 0.5, F1: 0.667, Support: 2}},
	}
	var buf bytes.Buffer
	if err := report.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"PRECISION", "cat", "0.500", "(1/2)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}
