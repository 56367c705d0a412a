package config

// ProviderType identifies an embedding/analysis provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level fixloop configuration, corresponding to
// .fixloop.yml.
type Config struct {
	Server    ServerConfig    `yaml:"server" koanf:"server"`
	Storage   StorageConfig   `yaml:"storage" koanf:"storage"`
	Provider  ProviderConfig  `yaml:"provider" koanf:"provider"`
	Diagnosis DiagnosisConfig `yaml:"diagnosis" koanf:"diagnosis"`
	Retrieval RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Learning  LearningConfig  `yaml:"learning" koanf:"learning"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr" koanf:"addr"`
	// LearningSchedule is a five-field cron expression for periodic
	// learning cycles. Empty disables the scheduler.
	LearningSchedule string `yaml:"learning_schedule" koanf:"learning_schedule"`
}

// StorageConfig holds file locations: the SQLite database, the knowledge
// seed, and the vector-index persistence directory.
type StorageConfig struct {
	DBPath    string `yaml:"db_path" koanf:"db_path"`
	SeedPath  string `yaml:"seed_path" koanf:"seed_path"`
	VectorDir string `yaml:"vector_dir" koanf:"vector_dir"`
}

// ProviderConfig selects the external embedding and input-analysis backend.
type ProviderConfig struct {
	Embedding      ProviderType `yaml:"embedding" koanf:"embedding"`
	EmbeddingModel string       `yaml:"embedding_model" koanf:"embedding_model"`
	AnalyzerModel  string       `yaml:"analyzer_model" koanf:"analyzer_model"`
	OllamaBaseURL  string       `yaml:"ollama_base_url" koanf:"ollama_base_url"`
}

// DiagnosisConfig holds the belief-update and question-selection tunables.
type DiagnosisConfig struct {
	// Alpha is the seed weight when fusing seed and learned patterns.
	Alpha float64 `yaml:"alpha" koanf:"alpha"`
	// ConfidenceThreshold ends a session as complete when reached.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" koanf:"confidence_threshold"`
	// MaxQuestions is the per-session question budget.
	MaxQuestions int `yaml:"max_questions" koanf:"max_questions"`
	// FactConfidence is the known-fact level above which a question is
	// redundant.
	FactConfidence float64 `yaml:"fact_confidence" koanf:"fact_confidence"`
	// CauseFloor is the combined belief mass below which a question's
	// causes make it irrelevant.
	CauseFloor float64 `yaml:"cause_floor" koanf:"cause_floor"`
	// MinGain is the expected information-gain floor for asking at all.
	MinGain float64 `yaml:"min_gain" koanf:"min_gain"`
}

// RetrievalConfig holds the tutorial-ranking weights.
type RetrievalConfig struct {
	VectorWeight  float64 `yaml:"vector_weight" koanf:"vector_weight"`
	FeedbackGamma float64 `yaml:"feedback_gamma" koanf:"feedback_gamma"`
	TutorialLimit int     `yaml:"tutorial_limit" koanf:"tutorial_limit"`
}

// LearningConfig holds the batch-learning gates. The three pattern gates
// (min_support, min_success_rate, min_confidence) are independent: all must
// pass before a candidate is emitted.
type LearningConfig struct {
	N0                    float64 `yaml:"n0" koanf:"n0"`
	MinSupport            int     `yaml:"min_support" koanf:"min_support"`
	MinSuccessRate        float64 `yaml:"min_success_rate" koanf:"min_success_rate"`
	MinConfidence         float64 `yaml:"min_confidence" koanf:"min_confidence"`
	EntropyThreshold      float64 `yaml:"entropy_threshold" koanf:"entropy_threshold"`
	MinClusterSessions    int     `yaml:"min_cluster_sessions" koanf:"min_cluster_sessions"`
	LowValueMinAsked      int     `yaml:"low_value_min_asked" koanf:"low_value_min_asked"`
	LowValueGainFloor     float64 `yaml:"low_value_gain_floor" koanf:"low_value_gain_floor"`
	AutoApprove           bool    `yaml:"auto_approve" koanf:"auto_approve"`
	AutoApproveConfidence float64 `yaml:"auto_approve_confidence" koanf:"auto_approve_confidence"`
	LookbackDays          int     `yaml:"lookback_days" koanf:"lookback_days"`
}
