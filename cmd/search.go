package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fixloop/fixloop/internal/vectordb"
)

var (
	searchCategory   string
	searchDifficulty string
	searchLimit      int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantically search the tutorial index",
	Long: `Searches the tutorial vector index directly with a natural language
query, bypassing the diagnostic session. Useful for checking what an
ingested corpus can answer.`,
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

		if app.vectors.Count() == 0 {
			fmt.Println("Tutorial index is empty. Run `fixloop ingest` first.")
			return nil
		}

		var filter *vectordb.SearchFilter
		if searchCategory != "" || searchDifficulty != "" {
			filter = &vectordb.SearchFilter{}
			if searchCategory != "" {
				filter.Category = &searchCategory
			}
			if searchDifficulty != "" {
				d := vectordb.Difficulty(searchDifficulty)
				filter.Difficulty = &d
			}
		}

		results, err := app.vectors.Search(cmd.Context(), args[0], searchLimit, filter)
		if err != nil {
			return fmt.Errorf("searching tutorials: %w", err)
		}

		fmt.Print(vectordb.FormatResults(results))
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "filter by device category")
	searchCmd.Flags().StringVar(&searchDifficulty, "difficulty", "", "filter by difficulty: beginner, intermediate, advanced")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}
