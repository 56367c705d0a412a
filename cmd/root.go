package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "fixloop",
	Short: "Adaptive diagnostic engine for device troubleshooting",
	Long: `Fixloop runs adaptive diagnostic sessions: it keeps a probability
distribution over root causes, asks the question with the highest
expected information gain, and recommends repair tutorials once it is
confident. Resolved sessions feed an offline learning loop that grows
the knowledge base over time.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".fixloop.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
