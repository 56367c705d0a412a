package tutorials

import (
	"context"
	"testing"

	"github.com/fixloop/fixloop/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Wi-Fi keeps DROPPING, every 5min!")
	want := []string{"wi", "fi", "keeps", "dropping", "every", "5min"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestJaccard(t *testing.T) {
	cases := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"router", "restart"}, []string{"router", "restart"}, 1.0},
		{"half overlap", []string{"router", "restart"}, []string{"router", "dns", "restart", "cache"}, 0.5},
		{"disjoint", []string{"router"}, []string{"toner"}, 0},
		{"empty query", nil, []string{"router"}, 0},
		{"duplicates collapse", []string{"router", "router"}, []string{"router"}, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Jaccard(tc.a, tc.b); got != tc.want {
				t.Errorf("Jaccard(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestStoreUpsertGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tut := Tutorial{
		ID:         "tut_wifi_restart",
		Category:   "wifi",
		Title:      "Restarting your router",
		Content:    "Unplug the router, wait ten seconds, plug it back in.",
		Keywords:   []string{"restart", "router"},
		CauseTags:  []string{"router_hang"},
		Difficulty: "beginner",
		Source:     "corpus/wifi.yaml",
	}
	if err := store.Upsert(ctx, tut); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := store.Get(ctx, "tut_wifi_restart")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for existing tutorial")
	}
	if got.Title != tut.Title || got.Category != "wifi" {
		t.Errorf("Get: got %+v", got)
	}
	if len(got.Keywords) != 2 || got.Keywords[0] != "restart" {
		t.Errorf("keywords not preserved: %v", got.Keywords)
	}
	if len(got.CauseTags) != 1 || got.CauseTags[0] != "router_hang" {
		t.Errorf("cause tags not preserved: %v", got.CauseTags)
	}

	// Upserting the same id replaces the row.
	tut.Title = "Power-cycling your router"
	if err := store.Upsert(ctx, tut); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	got, err = store.Get(ctx, "tut_wifi_restart")
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if got.Title != "Power-cycling your router" {
		t.Errorf("upsert did not replace title: %s", got.Title)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing tutorial, got %+v", got)
	}
}

func TestStoreDeleteByCategory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, tut := range []Tutorial{
		{ID: "w1", Category: "wifi", Title: "a", Content: "c"},
		{ID: "w2", Category: "wifi", Title: "b", Content: "c"},
		{ID: "p1", Category: "printer", Title: "d", Content: "c"},
	} {
		if err := store.Upsert(ctx, tut); err != nil {
			t.Fatalf("Upsert %s: %v", tut.ID, err)
		}
	}

	if err := store.DeleteByCategory(ctx, "wifi"); err != nil {
		t.Fatalf("DeleteByCategory: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count after delete: got %d, want 1", n)
	}
	remaining, err := store.ByCategory(ctx, "printer")
	if err != nil {
		t.Fatalf("ByCategory: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "p1" {
		t.Errorf("printer tutorials affected by wifi delete: %v", remaining)
	}
}

func TestKeywordSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, tut := range []Tutorial{
		{ID: "t_restart", Category: "wifi", Title: "Restart router", Content: "x",
			Keywords: []string{"restart", "router", "power"}},
		{ID: "t_dns", Category: "wifi", Title: "Fix DNS", Content: "x",
			Keywords: []string{"dns", "resolver"}},
		{ID: "t_toner", Category: "printer", Title: "Replace toner", Content: "x",
			Keywords: []string{"restart", "router"}},
	} {
		if err := store.Upsert(ctx, tut); err != nil {
			t.Fatalf("Upsert %s: %v", tut.ID, err)
		}
	}

	matches, err := store.KeywordSearch(ctx, "wifi", []string{"restart", "router"}, 10)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 (zero-score and other-category entries excluded): %v", len(matches), matches)
	}
	if matches[0].Tutorial.ID != "t_restart" {
		t.Errorf("top match: got %s, want t_restart", matches[0].Tutorial.ID)
	}
	// {restart,router} vs {restart,router,power}: 2 shared of 3 total.
	if want := 2.0 / 3.0; matches[0].Score != want {
		t.Errorf("score: got %v, want %v", matches[0].Score, want)
	}
}

func TestKeywordSearchTieBreaksOnID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, tut := range []Tutorial{
		{ID: "t_b", Category: "wifi", Title: "b", Content: "x", Keywords: []string{"router"}},
		{ID: "t_a", Category: "wifi", Title: "a", Content: "x", Keywords: []string{"router"}},
	} {
		if err := store.Upsert(ctx, tut); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	matches, err := store.KeywordSearch(ctx, "wifi", []string{"router"}, 10)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Tutorial.ID != "t_a" || matches[1].Tutorial.ID != "t_b" {
		t.Errorf("tie not broken by id: %s, %s", matches[0].Tutorial.ID, matches[1].Tutorial.ID)
	}
}
