package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Brownie44l1/pet-classifier/internal/app"
	"github.com/Brownie44l1/pet-classifier/internal/evaluate"
	"github.com/Brownie44l1/pet-classifier/internal/logger"
	"github.com/spf13/cobra"
)

var (
	datasetDir string
	jsonOutput bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure the model against a labelled image directory",
	Long: `Classifies every image under <dataset>/<label>/ with the configured model and
reports accuracy plus per-class precision, recall and F1. Files that are not
readable images are skipped and counted.`,
	Example: `  pet-classifier evaluate --dataset ./data/validation
  pet-classifier evaluate --dataset ./data/validation --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		// stdout carries the report.
		log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

		a, err := app.New(cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		report, err := evaluate.Run(ctx, a.Predictor(), a.Labels(), datasetDir, log)
		if err != nil {
			return fmt.Errorf("evaluation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return report.Write(out)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&datasetDir, "dataset", "d", "", "Directory with one sub-directory of images per class")
	evaluateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	evaluateCmd.MarkFlagRequired("dataset")
	addModelFlags(evaluateCmd)
}
