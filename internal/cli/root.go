package cli

import (
	"github.com/spf13/cobra"
)

var (
	// cfgFile is the --config flag; empty searches the default files.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "pet-classifier",
		Short: "Image classification service with metrics and feedback capture",
		Long: `Serves a binary image classifier over HTTP, exposes Prometheus metrics
for every prediction and stores user feedback on disk. Use 'serve --help' for
server options.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./classifier.yaml or ./config.yaml)")
}
