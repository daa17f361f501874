package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/pet-classifier/internal/app"
	"github.com/Brownie44l1/pet-classifier/internal/config"
	"github.com/Brownie44l1/pet-classifier/internal/logger"
	"github.com/spf13/cobra"
)

var (
	portOverride        int
	metricsPortOverride int
	modelOverride       string
	metadataOverride    string
	feedbackDirOverride string
	logLevelOverride    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prediction server",
	Example: `  # Serve with defaults (./models/model.onnx on :8080)
  pet-classifier serve

  # Separate metrics listener for Prometheus
  pet-classifier serve --port 8080 --metrics-port 9090

  # Use a different model
  pet-classifier serve --model ./models/pets.onnx --metadata ./models/pets.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		log, closer, err := logger.New(cfg.LogDir, cfg.LogLevel)
		if err != nil {
			return err
		}
		defer closer.Close()

		a, err := app.New(cfg, log)
		if err != nil {
			log.Error("failed to start", "error", err)
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

// loadConfig applies command-line overrides on top of file and environment
// configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portOverride
	}
	if flags.Changed("metrics-port") {
		cfg.MetricsPort = metricsPortOverride
	}
	if modelOverride != "" {
		cfg.ModelPath = modelOverride
	}
	if metadataOverride != "" {
		cfg.MetadataPath = metadataOverride
	}
	if feedbackDirOverride != "" {
		cfg.FeedbackDir = feedbackDirOverride
	}
	if logLevelOverride != "" {
		cfg.LogLevel = logLevelOverride
	}
	return cfg, cfg.Validate()
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&modelOverride, "model", "m", "", "Path to the ONNX model")
	cmd.Flags().StringVar(&metadataOverride, "metadata", "", "Path to the model metadata JSON")
	cmd.Flags().StringVar(&logLevelOverride, "log-level", "", "Log level (debug, info, warn, error)")
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&portOverride, "port", "p", 0, "HTTP port")
	serveCmd.Flags().IntVar(&metricsPortOverride, "metrics-port", 0, "Separate port for /metrics (0 uses the main port only)")
	serveCmd.Flags().StringVar(&feedbackDirOverride, "feedback-dir", "", "Directory for feedback images and metadata")
	addModelFlags(serveCmd)
}
