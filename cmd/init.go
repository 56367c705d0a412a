package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fixloop/fixloop/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize fixloop configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure fixloop and generates a .fixloop.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
