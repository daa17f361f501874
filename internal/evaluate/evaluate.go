// Package evaluate measures a classifier against a labelled image directory
// laid out as <dir>/<label>/<image>.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/Brownie44l1/pet-classifier/internal/metrics"
	"github.com/Brownie44l1/pet-classifier/internal/model"
	"github.com/Brownie44l1/pet-classifier/internal/predictor"
)

type Classifier interface {
	Predict(raw []byte) (model.PredictionResult, error)
}

type ClassReport struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

type Report struct {
	Total    int           `json:"total"`
	Correct  int           `json:"correct"`
	Skipped  int           `json:"skipped"`
	Accuracy float64       `json:"accuracy"`
	Classes  []ClassReport `json:"classes"`
}

// Run classifies every file under dir/<label>. Files the classifier rejects
// as images are skipped and counted; scoring failures abort the run.
func Run(ctx context.Context, c Classifier, labels model.Labels, dir string, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// confusion[actual][predicted]
	var confusion [2][2]int
	report := &Report{}

	for _, actual := range []model.Class{model.ClassA, model.ClassB} {
		label := labels.Of(actual)
		classDir := filepath.Join(dir, label)
		entries, err := os.ReadDir(classDir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn("no images for class", "class", label, "dir", classDir)
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", classDir, err)
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			path := filepath.Join(classDir, entry.Name())

			raw, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("skipping unreadable file", "path", path, "error", err)
				report.Skipped++
				continue
			}

			result, err := c.Predict(raw)
			if err != nil {
				var perr *predictor.PredictionError
				if errors.As(err, &perr) && perr.Kind != metrics.KindScoring {
					logger.Warn("skipping image", "path", path, "error", err)
					report.Skipped++
					continue
				}
				return nil, fmt.Errorf("failed to classify %s: %w", path, err)
			}

			confusion[actual][result.Class]++
			report.Total++
			if result.Class == actual {
				report.Correct++
			}
		}
	}

	if report.Total > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Total)
	}
	for _, c := range []model.Class{model.ClassA, model.ClassB} {
		report.Classes = append(report.Classes, classReport(labels.Of(c), c, confusion))
	}
	sort.Slice(report.Classes, func(i, j int) bool { return report.Classes[i].Label < report.Classes[j].Label })

	logger.Info("evaluation finished",
		"total", report.Total,
		"correct", report.Correct,
		"skipped", report.Skipped,
		"accuracy", report.Accuracy)
	return report, nil
}

func classReport(label string, c model.Class, confusion [2][2]int) ClassReport {
	other := 1 - c
	tp := confusion[c][c]
	fn := confusion[c][other]
	fp := confusion[other][c]

	cr := ClassReport{Label: label, Support: tp + fn}
	if tp+fp > 0 {
		cr.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		cr.Recall = float64(tp) / float64(tp+fn)
	}
	if cr.Precision+cr.Recall > 0 {
		cr.F1 = 2 * cr.Precision * cr.Recall / (cr.Precision + cr.Recall)
	}
	return cr
}

// Write prints the report as an aligned table.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "CLASS\tPRECISION\tRECALL\tF1\tSUPPORT\n")
	for _, c := range r.Classes {
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintf(tw, "\naccuracy\t%.3f\t(%d/%d)\tskipped\t%d\n", r.Accuracy, r.Correct, r.Total, r.Skipped)
	return tw.Flush()
}
