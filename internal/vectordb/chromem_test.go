package vectordb

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"
	"time"
)

// mockEmbedder returns deterministic embeddings based on text content.
// It produces a simple hash-based vector for reproducible tests.
type mockEmbedder struct {
	dims int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.deterministicVector(text)
	}
	return results, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

// deterministicVector produces a normalized vector from text.
// Similar texts will produce similar vectors because shared characters contribute
// to the same positions in the vector.
func (m *mockEmbedder) deterministicVector(text string) []float32 {
	vec := make([]float32, m.dims)
	for i, ch := range text {
		idx := (int(ch) + i) % m.dims
		vec[idx] += 1.0
	}
	// Normalize
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	embedder := newMockEmbedder(64)

	store, err := NewChromemStore(embedder)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	docs := []Document{
		{
			ID:      "tut_wifi_restart",
			Content: "Restart your router and modem to clear stale DHCP leases and recover connectivity",
			Metadata: DocumentMetadata{
				Category:    "wifi",
				Title:       "Restarting your router",
				CauseTags:   []string{"router_hang"},
				Keywords:    []string{"restart", "router", "dhcp"},
				Source:      "corpus/wifi.yaml",
				Difficulty:  DifficultyBeginner,
				LastUpdated: time.Now(),
			},
		},
		{
			ID:      "tut_wifi_dns",
			Content: "Change your DNS servers when pages fail to load but the network is connected",
			Metadata: DocumentMetadata{
				Category:    "wifi",
				Title:       "Fixing DNS resolution",
				CauseTags:   []string{"dns_misconfigured"},
				Keywords:    []string{"dns", "resolver"},
				Source:      "corpus/wifi.yaml",
				Difficulty:  DifficultyIntermediate,
				LastUpdated: time.Now(),
			},
		},
		{
			ID:      "tut_printer_queue",
			Content: "Clear a stuck print queue by restarting the spooler service",
			Metadata: DocumentMetadata{
				Category:    "printer",
				Title:       "Clearing the print queue",
				CauseTags:   []string{"spooler_stuck"},
				Keywords:    []string{"spooler", "queue"},
				Source:      "corpus/printer.yaml",
				Difficulty:  DifficultyBeginner,
				LastUpdated: time.Now(),
			},
		},
	}

	if err := store.AddDocuments(ctx, docs); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	if count := store.Count(); count != 3 {
		t.Errorf("Count: got %d, want 3", count)
	}

	results, err := store.Search(ctx, "router restart connectivity", 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search returned no results")
	}
	if len(results) > 2 {
		t.Errorf("Search returned %d results, expected at most 2", len(results))
	}

	for _, r := range results {
		if r.Similarity == 0 {
			t.Error("result has zero similarity")
		}
	}
}

func TestChromemStore_SearchWithCategoryFilter(t *testing.T) {
	ctx := context.Background()
	embedder := newMockEmbedder(64)

	store, err := NewChromemStore(embedder)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	docs := []Document{
		{
			ID:      "t1",
			Content: "Reconnect to your wireless network after forgetting it",
			Metadata: DocumentMetadata{
				Category:   "wifi",
				Title:      "Reconnecting to wifi",
				Difficulty: DifficultyBeginner,
			},
		},
		{
			ID:      "t2",
			Content: "Reconnect your printer to the wireless network",
			Metadata: DocumentMetadata{
				Category:   "printer",
				Title:      "Reconnecting the printer",
				Difficulty: DifficultyBeginner,
			},
		},
	}

	if err := store.AddDocuments(ctx, docs); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	cat := "printer"
	results, err := store.Search(ctx, "reconnect wireless", 10, &SearchFilter{Category: &cat})
	if err != nil {
		t.Fatalf("Search with filter: %v", err)
	}

	if len(results) == 0 {
		t.Fatal("filtered search returned no results")
	}
	for _, r := range results {
		if r.Document.Metadata.Category != "printer" {
			t.Errorf("expected category printer, got %s", r.Document.Metadata.Category)
		}
	}
}

func TestChromemStore_DeleteByCategory(t *testing.T) {
	ctx := context.Background()
	embedder := newMockEmbedder(64)

	store, err := NewChromemStore(embedder)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	docs := []Document{
		{
			ID:      "d1",
			Content: "first tutorial content",
			Metadata: DocumentMetadata{
				Category: "wifi",
				Title:    "first",
			},
		},
		{
			ID:      "d2",
			Content: "second tutorial content",
			Metadata: DocumentMetadata{
				Category: "printer",
				Title:    "second",
			},
		},
	}

	if err := store.AddDocuments(ctx, docs); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	if count := store.Count(); count != 2 {
		t.Fatalf("Count before delete: got %d, want 2", count)
	}

	if err := store.DeleteByCategory(ctx, "wifi"); err != nil {
		t.Fatalf("DeleteByCategory: %v", err)
	}

	if count := store.Count(); count != 1 {
		t.Errorf("Count after delete: got %d, want 1", count)
	}
}

func TestChromemStore_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	embedder := newMockEmbedder(64)

	store, err := NewChromemStore(embedder)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	docs := []Document{
		{
			ID:      "persist1",
			Content: "persistent tutorial about router firmware updates",
			Metadata: DocumentMetadata{
				Category:    "wifi",
				Title:       "Updating router firmware",
				CauseTags:   []string{"firmware_outdated"},
				Keywords:    []string{"firmware", "update"},
				Source:      "corpus/wifi.yaml",
				Difficulty:  DifficultyAdvanced,
				LastUpdated: now,
			},
		},
		{
			ID:      "persist2",
			Content: "persistent tutorial about replacing printer toner",
			Metadata: DocumentMetadata{
				Category:    "printer",
				Title:       "Replacing toner",
				CauseTags:   []string{"toner_empty"},
				Keywords:    []string{"toner"},
				Source:      "corpus/printer.yaml",
				Difficulty:  DifficultyBeginner,
				LastUpdated: now,
			},
		},
	}

	if err := store.AddDocuments(ctx, docs); err != nil {
		t.Fatalf("AddDocuments: %v", err)
	}

	tmpDir, err := os.MkdirTemp("", "chromem-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := store.Persist(ctx, tmpDir); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	store2, err := NewChromemStore(embedder)
	if err != nil {
		t.Fatalf("NewChromemStore for load: %v", err)
	}

	if err := store2.Load(ctx, tmpDir); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if count := store2.Count(); count != 2 {
		t.Errorf("Count after load: got %d, want 2", count)
	}

	results, err := store2.Search(ctx, "firmware toner", 2, nil)
	if err != nil {
		t.Fatalf("Search after load: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search after load returned %d results, want 2", len(results))
	}

	foundWifi, foundPrinter := false, false
	for _, r := range results {
		switch r.Document.ID {
		case "persist1":
			foundWifi = true
			if r.Document.Metadata.Category != "wifi" {
				t.Errorf("persist1: expected category wifi, got %s", r.Document.Metadata.Category)
			}
			if r.Document.Metadata.Difficulty != DifficultyAdvanced {
				t.Errorf("persist1: expected difficulty advanced, got %s", r.Document.Metadata.Difficulty)
			}
			if len(r.Document.Metadata.CauseTags) != 1 || r.Document.Metadata.CauseTags[0] != "firmware_outdated" {
				t.Errorf("persist1: cause tags not preserved: %v", r.Document.Metadata.CauseTags)
			}
		case "persist2":
			foundPrinter = true
			if r.Document.Metadata.Title != "Replacing toner" {
				t.Errorf("persist2: expected title preserved, got %s", r.Document.Metadata.Title)
			}
		}
	}
	if !foundWifi {
		t.Error("wifi tutorial not found after load")
	}
	if !foundPrinter {
		t.Error("printer tutorial not found after load")
	}
}

func TestFormatResults(t *testing.T) {
	results := []SearchResult{
		{
			Document: Document{
				ID:      "r1",
				Content: "Step 1: power-cycle the router.",
				Metadata: DocumentMetadata{
					Category:   "wifi",
					Title:      "Restarting your router",
					CauseTags:  []string{"router_hang"},
					Difficulty: DifficultyBeginner,
				},
			},
			Similarity: 0.9512,
		},
	}

	output := FormatResults(results)
	if output == "" {
		t.Error("FormatResults returned empty string")
	}
	if !strings.Contains(output, "Restarting your router") {
		t.Errorf("expected title in output, got: %s", output)
	}
	if !strings.Contains(output, "0.9512") {
		t.Errorf("expected similarity score in output, got: %s", output)
	}
}

func TestFormatResults_Empty(t *testing.T) {
	output := FormatResults(nil)
	if output != "No results found." {
		t.Errorf("expected 'No results found.', got: %s", output)
	}
}
