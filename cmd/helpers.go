package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fixloop/fixloop/internal/config"
	"github.com/fixloop/fixloop/internal/db"
	"github.com/fixloop/fixloop/internal/embeddings"
	"github.com/fixloop/fixloop/internal/feedback"
	"github.com/fixloop/fixloop/internal/knowledge"
	"github.com/fixloop/fixloop/internal/learning"
	"github.com/fixloop/fixloop/internal/retrieval"
	"github.com/fixloop/fixloop/internal/selector"
	"github.com/fixloop/fixloop/internal/session"
	"github.com/fixloop/fixloop/internal/tutorials"
	"github.com/fixloop/fixloop/internal/vectordb"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `fixloop init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newEmbedder creates an embeddings.Embedder from config.
func newEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.Provider.Embedding {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(cfg.Provider.EmbeddingModel)), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(cfg.Provider.EmbeddingModel, 768, cfg.Provider.OllamaBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider.Embedding)
	}
}

// newAnalyzer creates the input analyzer when an OpenAI key is available.
// Without one the CLI and API fall back to pre-extracted symptoms.
func newAnalyzer(cfg *config.Config) embeddings.Analyzer {
	apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
	if apiKey == "" {
		return nil
	}
	return embeddings.NewOpenAIAnalyzer(apiKey, cfg.Provider.AnalyzerModel)
}

// app is the fully wired dependency graph shared by serve, diagnose, and
// learn.
type app struct {
	cfg        *config.Config
	db         *db.DB
	library    *knowledge.Library
	knowledge  *knowledge.Store
	sessions   *session.Store
	tutorials  *tutorials.Store
	feedback   *feedback.Store
	vectors    *vectordb.ChromemStore
	stats      *learning.Stats
	ranker     *retrieval.Ranker
	controller *session.Controller
	runner     *learning.Runner
}

func (a *app) Close() { a.db.Close() }

// buildApp opens storage and wires every component from config.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := db.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	seed, err := knowledge.LoadSeed(cfg.Storage.SeedPath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("loading knowledge seed: %w", err)
	}

	kstore := knowledge.NewStore(database)
	library, err := knowledge.NewLibrary(ctx, seed, kstore)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("building knowledge snapshot: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}
	vectors, err := vectordb.NewChromemStore(embedder)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	if err := vectors.Load(ctx, cfg.Storage.VectorDir); err != nil {
		// The index may simply not exist yet; retrieval degrades to
		// keyword search until `fixloop ingest` has run.
		fmt.Fprintf(os.Stderr, "Warning: could not load vector index from %s: %v\n", cfg.Storage.VectorDir, err)
	}

	tutStore := tutorials.NewStore(database)
	fbStore := feedback.NewStore(database)
	ranker := retrieval.NewRanker(retrieval.Config{
		VectorWeight:   cfg.Retrieval.VectorWeight,
		FeedbackGamma:  cfg.Retrieval.FeedbackGamma,
		CandidateLimit: retrieval.DefaultConfig().CandidateLimit,
	}, vectors, tutStore, fbStore)

	sessStore := session.NewStore(database)
	stats := learning.NewStats(database)
	controller := session.NewController(session.Config{
		Alpha:               cfg.Diagnosis.Alpha,
		ConfidenceThreshold: cfg.Diagnosis.ConfidenceThreshold,
		MaxQuestions:        cfg.Diagnosis.MaxQuestions,
		Selector:            selectorConfig(cfg),
		TutorialLimit:       cfg.Retrieval.TutorialLimit,
	}, library, sessStore, stats, ranker, newAnalyzer(cfg))

	learnCfg := learning.Config{
		N0:                    cfg.Learning.N0,
		MinSupport:            cfg.Learning.MinSupport,
		MinSuccessRate:        cfg.Learning.MinSuccessRate,
		MinConfidence:         cfg.Learning.MinConfidence,
		EntropyThreshold:      cfg.Learning.EntropyThreshold,
		MinClusterSessions:    cfg.Learning.MinClusterSessions,
		LowValueMinAsked:      cfg.Learning.LowValueMinAsked,
		LowValueGainFloor:     cfg.Learning.LowValueGainFloor,
		AutoApprove:           cfg.Learning.AutoApprove,
		AutoApproveConfidence: cfg.Learning.AutoApproveConfidence,
		LookbackDays:          cfg.Learning.LookbackDays,
	}
	engine := learning.NewEngine(learnCfg, sessStore, kstore, library, stats)
	runner := learning.NewRunner(learnCfg, database, engine, sessStore, kstore, library)

	return &app{
		cfg:        cfg,
		db:         database,
		library:    library,
		knowledge:  kstore,
		sessions:   sessStore,
		tutorials:  tutStore,
		feedback:   fbStore,
		vectors:    vectors,
		stats:      stats,
		ranker:     ranker,
		controller: controller,
		runner:     runner,
	}, nil
}

func selectorConfig(cfg *config.Config) selector.Config {
	return selector.Config{
		FactConfidence: cfg.Diagnosis.FactConfidence,
		CauseFloor:     cfg.Diagnosis.CauseFloor,
		MinGain:        cfg.Diagnosis.MinGain,
	}
}
