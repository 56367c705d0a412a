package cmd

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/fixloop/fixloop/internal/feedback"
	"github.com/fixloop/fixloop/internal/knowledge"
	"github.com/fixloop/fixloop/internal/session"
)

var (
	diagnoseCategory string
	diagnoseSymptoms string
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run an interactive diagnostic session",
	Long: `Starts a diagnostic conversation in the terminal: describe the problem,
answer the questions fixloop asks, and get a diagnosis with matching
repair tutorials.`,
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

		category := diagnoseCategory
		if category == "" {
			prompt := promptui.Prompt{Label: "Device category"}
			if category, err = prompt.Run(); err != nil {
				return fmt.Errorf("category: %w", err)
			}
		}

		descPrompt := promptui.Prompt{Label: "Describe the problem"}
		description, err := descPrompt.Run()
		if err != nil {
			return fmt.Errorf("description: %w", err)
		}

		in := session.StartInput{Category: category, Text: description}
		for _, s := range strings.Split(diagnoseSymptoms, ",") {
			if s = strings.TrimSpace(s); s != "" {
				in.Symptoms = append(in.Symptoms, knowledge.Symptom(s))
			}
		}

		turn, err := app.controller.Start(cmd.Context(), in)
		if err != nil {
			return err
		}

		for turn.Status == session.StatusQuestioning {
			answerPrompt := promptui.Select{
				Label: turn.NextQuestion.Text,
				Items: []string{"yes", "no", "uncertain"},
			}
			_, answer, err := answerPrompt.Run()
			if err != nil {
				return fmt.Errorf("answer: %w", err)
			}

			turn, err = app.controller.Answer(cmd.Context(), session.AnswerInput{
				SessionID:  turn.SessionID,
				QuestionID: turn.NextQuestion.ID,
				Answer:     knowledge.Answer(answer),
			})
			if err != nil {
				return err
			}
		}

		printDiagnosis(turn)

		if len(turn.Tutorials) == 0 {
			return nil
		}
		return recordOutcome(cmd, app, turn)
	},
}

func printDiagnosis(turn *session.Turn) {
	fmt.Println()
	if turn.LowConfidence {
		fmt.Printf("Most likely cause (low confidence): %s (%.0f%%)\n", turn.FinalCause, turn.Confidence*100)
		fmt.Println("The question budget ran out before a confident diagnosis was reached.")
	} else {
		fmt.Printf("Diagnosis: %s (%.0f%% confidence)\n", turn.FinalCause, turn.Confidence*100)
	}

	if len(turn.Tutorials) == 0 {
		fmt.Println("\nNo matching tutorials found.")
		return
	}
	fmt.Println("\nRecommended tutorials:")
	for i, rec := range turn.Tutorials {
		fmt.Printf("  %d. %s [%s, score %.2f]\n", i+1, rec.Tutorial.Title, rec.Tutorial.Difficulty, rec.Score)
	}
}

// recordOutcome asks whether the top tutorial solved the problem and feeds
// the answer back into the learning loop.
func recordOutcome(cmd *cobra.Command, app *app, turn *session.Turn) error {
	solvedPrompt := promptui.Select{
		Label: "Did this solve your problem?",
		Items: []string{"yes", "no", "skip"},
	}
	_, solvedStr, err := solvedPrompt.Run()
	if err != nil || solvedStr == "skip" {
		return nil
	}
	solved := solvedStr == "yes"

	if err := app.sessions.SetResolution(cmd.Context(), turn.SessionID, solved); err != nil {
		return err
	}
	return app.feedback.Record(cmd.Context(), feedback.Feedback{
		SessionID:  turn.SessionID,
		TutorialID: turn.Tutorials[0].Tutorial.ID,
		Solved:     solved,
	})
}

func init() {
	diagnoseCmd.Flags().StringVar(&diagnoseCategory, "category", "", "device category")
	diagnoseCmd.Flags().StringVar(&diagnoseSymptoms, "symptoms", "", "comma-separated symptom tags")
	rootCmd.AddCommand(diagnoseCmd)
}
