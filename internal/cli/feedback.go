package cli

import (
	"encoding/json"

	"github.com/Brownie44l1/pet-classifier/internal/feedback"
	"github.com/spf13/cobra"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Inspect stored user feedback",
}

var feedbackStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the feedback log as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store, err := feedback.NewFileStore(cfg.FeedbackDir)
		if err != nil {
			return err
		}
		stats, err := feedback.ComputeStats(store)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.AddCommand(feedbackStatsCmd)

	feedbackStatsCmd.Flags().StringVar(&feedbackDirOverride, "feedback-dir", "", "Directory for feedback images and metadata")
}
