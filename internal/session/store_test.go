package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fixloop/fixloop/internal/belief"
	"github.com/fixloop/fixloop/internal/db"
	"github.com/fixloop/fixloop/internal/knowledge"
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

func sampleSession(id string) *Session {
	return &Session{
		ID:             id,
		Category:       "boot",
		InputText:      "computer will not start",
		Symptoms:       []knowledge.Symptom{"blue_screen", "error_0x007b"},
		KnownFacts:     map[string]float64{"brand": 0.93},
		Status:         StatusQuestioning,
		Belief:         belief.Vector{"cause_a": 0.6, "cause_b": 0.4},
		AskedQuestions: []string{},
	}
}

func TestStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Create(ctx, sampleSession("s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Category != "boot" || got.Status != StatusQuestioning {
		t.Errorf("session: %+v", got)
	}
	if len(got.Symptoms) != 2 {
		t.Errorf("symptoms: %v", got.Symptoms)
	}
	if got.KnownFacts["brand"] != 0.93 {
		t.Errorf("known facts: %v", got.KnownFacts)
	}
	if got.Belief["cause_a"] != 0.6 {
		t.Errorf("belief: %v", got.Belief)
	}
	if got.Resolution != nil {
		t.Errorf("fresh session has resolution: %v", got.Resolution)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestStoreUpdateFinalState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := sampleSession("s1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now().UTC()
	sess.Status = StatusComplete
	sess.FinalCause = "cause_a"
	sess.FinalConf = 0.82
	sess.CompletedAt = &now
	sess.AskedQuestions = []string{"q1", "q2"}
	if err := store.Update(ctx, sess); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusComplete || got.FinalCause != "cause_a" || got.FinalConf != 0.82 {
		t.Errorf("final state: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not persisted")
	}
	if len(got.AskedQuestions) != 2 {
		t.Errorf("asked questions: %v", got.AskedQuestions)
	}

	if err := store.Update(ctx, sampleSession("ghost")); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating missing session: got %v, want ErrNotFound", err)
	}
}

func TestStoreSnapshotsOrdered(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Create(ctx, sampleSession("s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	events := []string{EventInitialized, EventAnswered, EventConfidenceReached}
	for _, ev := range events {
		if err := store.AppendSnapshot(ctx, "s1", belief.Vector{"cause_a": 1}, ev); err != nil {
			t.Fatalf("AppendSnapshot(%s): %v", ev, err)
		}
	}

	snaps, err := store.Snapshots(ctx, "s1")
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	for i, snap := range snaps {
		if snap.Seq != i {
			t.Errorf("snapshot %d: seq %d", i, snap.Seq)
		}
		if snap.TriggerEvent != events[i] {
			t.Errorf("snapshot %d: event %s, want %s", i, snap.TriggerEvent, events[i])
		}
	}
}

func TestStoreResolution(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Create(ctx, sampleSession("s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.SetResolution(ctx, "s1", true); err != nil {
		t.Fatalf("SetResolution: %v", err)
	}
	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Resolution == nil || !*got.Resolution {
		t.Errorf("resolution: %v", got.Resolution)
	}

	if err := store.SetResolution(ctx, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestStoreWithOutcome(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// s1: complete with outcome - included.
	s1 := sampleSession("s1")
	s1.Status = StatusComplete
	if err := store.Create(ctx, s1); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.SetResolution(ctx, "s1", true); err != nil {
		t.Fatalf("SetResolution: %v", err)
	}

	// s2: complete but no outcome - excluded.
	s2 := sampleSession("s2")
	s2.Status = StatusComplete
	if err := store.Create(ctx, s2); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// s3: still questioning - excluded even with an outcome recorded.
	if err := store.Create(ctx, sampleSession("s3")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.SetResolution(ctx, "s3", false); err != nil {
		t.Fatalf("SetResolution: %v", err)
	}

	got, err := store.WithOutcome(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("WithOutcome: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("WithOutcome: %+v", got)
	}

	// A cutoff in the future excludes everything.
	got, err = store.WithOutcome(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("WithOutcome: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("future cutoff returned %d sessions", len(got))
	}
}

func TestStoreInteractionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.Create(ctx, sampleSession("s1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	q := knowledge.Question{ID: "q1", Text: "does it beep"}
	id, err := store.RecordAsked(ctx, "s1", q, 1.52)
	if err != nil {
		t.Fatalf("RecordAsked: %v", err)
	}

	out, err := store.Outstanding(ctx, "s1")
	if err != nil {
		t.Fatalf("Outstanding: %v", err)
	}
	if out == nil || out.QuestionID != "q1" {
		t.Fatalf("outstanding: %+v", out)
	}

	if err := store.RecordAnswer(ctx, id, knowledge.AnswerNo, 1.10, map[string]float64{"cause_a": -0.1}); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	out, err = store.Outstanding(ctx, "s1")
	if err != nil {
		t.Fatalf("Outstanding after answer: %v", err)
	}
	if out != nil {
		t.Errorf("answered question still outstanding: %+v", out)
	}

	turns, err := store.Interactions(ctx, "s1")
	if err != nil {
		t.Fatalf("Interactions: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("got %d interactions, want 1", len(turns))
	}
	in := turns[0]
	if in.Answer == nil || *in.Answer != knowledge.AnswerNo {
		t.Errorf("answer: %+v", in.Answer)
	}
	if in.EntropyBefore != 1.52 || in.EntropyAfter == nil || *in.EntropyAfter != 1.10 {
		t.Errorf("entropy: before %v after %v", in.EntropyBefore, in.EntropyAfter)
	}
	if in.BeliefChange["cause_a"] != -0.1 {
		t.Errorf("belief change: %v", in.BeliefChange)
	}
}
