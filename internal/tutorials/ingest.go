package tutorials

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fixloop/fixloop/internal/progress"
	"github.com/fixloop/fixloop/internal/vectordb"
)

// CorpusFile is the on-disk YAML format for one category's tutorials.
type CorpusFile struct {
	Category  string `yaml:"category"`
	Tutorials []struct {
		ID         string   `yaml:"id"`
		Title      string   `yaml:"title"`
		Content    string   `yaml:"content"`
		Keywords   []string `yaml:"keywords"`
		CauseTags  []string `yaml:"causes"`
		Difficulty string   `yaml:"difficulty"`
	} `yaml:"tutorials"`
}

// Ingester loads corpus files into the tutorial store and the vector index.
type Ingester struct {
	store    *Store
	vectors  vectordb.VectorStore
	reporter progress.Reporter
}

// NewIngester creates an ingester. A nil reporter disables progress output.
func NewIngester(store *Store, vectors vectordb.VectorStore, reporter progress.Reporter) *Ingester {
	if reporter == nil {
		reporter = progress.Silent{}
	}
	return &Ingester{store: store, vectors: vectors, reporter: reporter}
}

// IngestFile replaces the category's tutorials with the contents of one
// corpus file. Returns the number of tutorials ingested.
func (g *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading corpus file: %w", err)
	}

	corpus, err := ParseCorpus(data)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Re-ingest replaces the whole category in both stores.
	if err := g.store.DeleteByCategory(ctx, corpus.Category); err != nil {
		return 0, err
	}
	if err := g.vectors.DeleteByCategory(ctx, corpus.Category); err != nil {
		return 0, fmt.Errorf("clearing vector index: %w", err)
	}

	g.reporter.Start(len(corpus.Tutorials))
	defer g.reporter.Finish()

	now := time.Now().UTC()
	for i, entry := range corpus.Tutorials {
		t := Tutorial{
			ID:         entry.ID,
			Category:   corpus.Category,
			Title:      entry.Title,
			Content:    entry.Content,
			Keywords:   entry.Keywords,
			CauseTags:  entry.CauseTags,
			Difficulty: entry.Difficulty,
			Source:     path,
		}
		if err := g.store.Upsert(ctx, t); err != nil {
			return i, err
		}

		doc := vectordb.Document{
			ID:      t.ID,
			Content: t.Title + "\n\n" + t.Content,
			Metadata: vectordb.DocumentMetadata{
				Category:    t.Category,
				Title:       t.Title,
				CauseTags:   t.CauseTags,
				Keywords:    t.Keywords,
				Source:      t.Source,
				Difficulty:  vectordb.Difficulty(t.Difficulty),
				LastUpdated: now,
			},
		}
		if err := g.vectors.AddDocuments(ctx, []vectordb.Document{doc}); err != nil {
			return i, fmt.Errorf("indexing tutorial %s: %w", t.ID, err)
		}

		g.reporter.Update(i+1, t.Title)
	}

	return len(corpus.Tutorials), nil
}

// ParseCorpus decodes and validates a corpus file.
func ParseCorpus(data []byte) (*CorpusFile, error) {
	var corpus CorpusFile
	if err := yaml.Unmarshal(data, &corpus); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	if corpus.Category == "" {
		return nil, fmt.Errorf("corpus file missing category")
	}
	if len(corpus.Tutorials) == 0 {
		return nil, fmt.Errorf("corpus file for %s has no tutorials", corpus.Category)
	}

	seen := make(map[string]bool, len(corpus.Tutorials))
	for i, t := range corpus.Tutorials {
		if t.ID == "" {
			return nil, fmt.Errorf("tutorial %d missing id", i)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate tutorial id %s", t.ID)
		}
		seen[t.ID] = true
		if t.Title == "" || t.Content == "" {
			return nil, fmt.Errorf("tutorial %s missing title or content", t.ID)
		}
		switch t.Difficulty {
		case "", string(vectordb.DifficultyBeginner), string(vectordb.DifficultyIntermediate), string(vectordb.DifficultyAdvanced):
		default:
			return nil, fmt.Errorf("tutorial %s has unknown difficulty %q", t.ID, t.Difficulty)
		}
	}

	return &corpus, nil
}
