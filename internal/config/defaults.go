package config

// DefaultConfig returns a Config with the production defaults. Every
// threshold here can be overridden per deployment through .fixloop.yml or
// FIXLOOP_* environment variables.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8080",
			LearningSchedule: "0 3 * * *",
		},
		Storage: StorageConfig{
			DBPath:    "data/fixloop.db",
			SeedPath:  "seed/knowledge.yml",
			VectorDir: "data/vectors",
		},
		Provider: ProviderConfig{
			Embedding:      ProviderOpenAI,
			EmbeddingModel: "text-embedding-3-small",
			AnalyzerModel:  "gpt-4o-mini",
			OllamaBaseURL:  "http://localhost:11434",
		},
		Diagnosis: DiagnosisConfig{
			Alpha:               0.7,
			ConfidenceThreshold: 0.70,
			MaxQuestions:        5,
			FactConfidence:      0.8,
			CauseFloor:          0.1,
			MinGain:             0.05,
		},
		Retrieval: RetrievalConfig{
			VectorWeight:  0.6,
			FeedbackGamma: 0.3,
			TutorialLimit: 3,
		},
		Learning: LearningConfig{
			N0:                    5,
			MinSupport:            3,
			MinSuccessRate:        0.7,
			MinConfidence:         0.65,
			EntropyThreshold:      1.5,
			MinClusterSessions:    3,
			LowValueMinAsked:      5,
			LowValueGainFloor:     0.1,
			AutoApprove:           false,
			AutoApproveConfidence: 0.9,
			LookbackDays:          30,
		},
	}
}
