package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fixloop/fixloop/internal/progress"
	"github.com/fixloop/fixloop/internal/tutorials"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <corpus.yml>",
	Short: "Ingest a tutorial corpus into the search index",
	Long: `Loads a YAML tutorial corpus, replaces the stored tutorials for its
category, and rebuilds the vector index entries so future diagnoses can
recommend them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ingester := tutorials.NewIngester(app.tutorials, app.vectors, progress.NewReporter())
		count, err := ingester.IngestFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if err := app.vectors.Persist(cmd.Context(), cfg.Storage.VectorDir); err != nil {
			return fmt.Errorf("persisting vector index: %w", err)
		}

		fmt.Printf("Ingested %d tutorials (%d documents indexed)\n", count, app.vectors.Count())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
