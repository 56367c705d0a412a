package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var learnLookback int

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Run one learning cycle over recent sessions",
	Long: `Scans resolved sessions in the lookback window, discovers new
symptom-to-cause patterns and discriminating questions, refreshes
per-question effectiveness stats, and leaves candidates pending for
review.`,
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

		report, err := app.runner.Run(cmd.Context(), learnLookback)
		if err != nil {
			return err
		}

		fmt.Printf("Learning run %s\n", report.RunID)
		fmt.Printf("  sessions scanned:     %d\n", report.ScannedSessions)
		fmt.Printf("  pattern candidates:   %d (skipped %d)\n", report.DiscoveredPatterns, report.SkippedPatterns)
		fmt.Printf("  question candidates:  %d (skipped %d)\n", report.DiscoveredQuestions, report.SkippedQuestions)
		if report.AutoApproved > 0 {
			fmt.Printf("  auto-approved:        %d\n", report.AutoApproved)
		}

		patterns, err := app.knowledge.PendingPatternCandidates(cmd.Context())
		if err != nil {
			return err
		}
		questions, err := app.knowledge.PendingQuestionCandidates(cmd.Context())
		if err != nil {
			return err
		}
		if len(patterns)+len(questions) == 0 {
			fmt.Println("\nNo candidates pending review.")
			return nil
		}

		fmt.Println("\nPending pattern candidates:")
		for _, c := range patterns {
			fmt.Printf("  %s  %s: %v -> %s  (n=%d, r=%.2f, w=%.2f)\n",
				c.ID, c.Category, c.Symptoms, c.Cause,
				c.ObservedCount, c.SuccessRate(), c.Confidence)
		}
		fmt.Println("\nPending question candidates:")
		for _, c := range questions {
			fmt.Printf("  %s  %s: %q  (sessions=%d, avg gain=%.2f bits)\n",
				c.ID, c.Category, c.Text, c.ObservedCount, c.AvgGain)
		}
		fmt.Println("\nApprove with `fixloop learn approve <id>`.")
		return nil
	},
}

var learnApproveKind string

var learnApproveCmd = &cobra.Command{
	Use:   "approve <candidate-id>",
	Short: "Approve a pending pattern or question candidate",
	Args:  cobra.ExactArgs(1),
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

		id := args[0]
		switch learnApproveKind {
		case "pattern":
			err = app.knowledge.ApprovePatternCandidate(cmd.Context(), id, cfg.Learning.N0)
		case "question":
			err = app.knowledge.ApproveQuestionCandidate(cmd.Context(), id)
		default:
			return fmt.Errorf("--kind must be pattern or question")
		}
		if err != nil {
			return err
		}

		if err := app.library.Rebuild(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("Approved %s candidate %s\n", learnApproveKind, id)
		return nil
	},
}

func init() {
	learnCmd.Flags().IntVar(&learnLookback, "lookback", 0, "lookback window in days (0 uses config)")
	learnApproveCmd.Flags().StringVar(&learnApproveKind, "kind", "pattern", "candidate kind: pattern or question")
	learnCmd.AddCommand(learnApproveCmd)
	rootCmd.AddCommand(learnCmd)
}
