package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .fixloop.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to fixloop! Let's configure your deployment.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Embedding provider.
	providerPrompt := promptui.Select{
		Label: "Select embedding provider",
		Items: []string{"openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.Provider.Embedding = ProviderType(providerStr)
	if cfg.Provider.Embedding == ProviderOllama {
		cfg.Provider.EmbeddingModel = "nomic-embed-text"
	}

	// 2. Server address.
	addrPrompt := promptui.Prompt{
		Label:   "API listen address",
		Default: cfg.Server.Addr,
	}
	if cfg.Server.Addr, err = addrPrompt.Run(); err != nil {
		return nil, fmt.Errorf("listen address: %w", err)
	}

	// 3. Storage paths.
	dbPrompt := promptui.Prompt{
		Label:   "SQLite database path",
		Default: cfg.Storage.DBPath,
	}
	if cfg.Storage.DBPath, err = dbPrompt.Run(); err != nil {
		return nil, fmt.Errorf("database path: %w", err)
	}
	seedPrompt := promptui.Prompt{
		Label:   "Knowledge seed file",
		Default: cfg.Storage.SeedPath,
	}
	if cfg.Storage.SeedPath, err = seedPrompt.Run(); err != nil {
		return nil, fmt.Errorf("seed path: %w", err)
	}

	// 4. Question budget.
	budgetPrompt := promptui.Prompt{
		Label:   "Questions per session",
		Default: strconv.Itoa(cfg.Diagnosis.MaxQuestions),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return fmt.Errorf("must be a positive integer")
			}
			return nil
		},
	}
	budgetStr, err := budgetPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("question budget: %w", err)
	}
	cfg.Diagnosis.MaxQuestions, _ = strconv.Atoi(budgetStr)

	// 5. Auto-approval policy. Defaults to manual review.
	approvePrompt := promptui.Select{
		Label: "Learned-pattern approval",
		Items: []string{
			"manual: every candidate waits for human review",
			"auto: promote candidates above the high-confidence bar",
		},
	}
	approveIdx, _, err := approvePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("approval policy: %w", err)
	}
	cfg.Learning.AutoApprove = approveIdx == 1

	// Check for API key.
	if envVar := APIKeyEnvVar(cfg.Provider.Embedding); envVar != "" {
		if os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment before running fixloop serve.\n", envVar)
		}
	}

	configPath := ".fixloop.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return cfg, nil
}
