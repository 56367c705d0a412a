package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/fixloop/fixloop/internal/db"
	"github.com/fixloop/fixloop/internal/feedback"
)

func newTestServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := NewStore(database)
	ctrl := NewController(testConfig(), stubLibrary{testSnapshot(5)}, store, nil, nil, nil)

	r := chi.NewRouter()
	RegisterRoutes(r, ctrl, feedback.NewStore(database))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestStartAndAnswerRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"category": "boot",
		"symptoms": []string{"s1"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status: %d", resp.StatusCode)
	}

	var turn Turn
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decoding turn: %v", err)
	}
	if turn.SessionID == "" || turn.Status != StatusQuestioning || turn.NextQuestion == nil {
		t.Fatalf("start turn: %+v", turn)
	}

	resp2 := postJSON(t, srv.URL+"/api/sessions/"+turn.SessionID+"/answers", map[string]any{
		"question_id": turn.NextQuestion.ID,
		"answer":      "yes",
	})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("answer status: %d", resp2.StatusCode)
	}
	var turn2 Turn
	if err := json.NewDecoder(resp2.Body).Decode(&turn2); err != nil {
		t.Fatalf("decoding turn: %v", err)
	}
	if turn2.Status != StatusQuestioning || turn2.NextQuestion == nil {
		t.Fatalf("answer turn: %+v", turn2)
	}
}

func TestStartRouteValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{"category": "boot"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty input: got %d, want 400", resp.StatusCode)
	}

	resp2 := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"category": "toaster",
		"symptoms": []string{"s1"},
	})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown category: got %d, want 400", resp2.StatusCode)
	}
}

func TestGetSessionRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"category": "boot",
		"symptoms": []string{"s1"},
	})
	defer resp.Body.Close()
	var turn Turn
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decoding turn: %v", err)
	}

	getResp, err := http.Get(srv.URL + "/api/sessions/" + turn.SessionID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %d", getResp.StatusCode)
	}

	var body struct {
		Session      *Session      `json:"session"`
		Snapshots    []Snapshot    `json:"snapshots"`
		Interactions []Interaction `json:"interactions"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Session == nil || body.Session.ID != turn.SessionID {
		t.Fatalf("session body: %+v", body.Session)
	}
	if len(body.Snapshots) == 0 {
		t.Error("no snapshots in audit log")
	}
	if len(body.Interactions) == 0 {
		t.Error("no interactions recorded")
	}

	missing, err := http.Get(srv.URL + "/api/sessions/does-not-exist")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing session: got %d, want 404", missing.StatusCode)
	}
}

func TestFeedbackRoute(t *testing.T) {
	srv, store := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"category": "boot",
		"symptoms": []string{"s1"},
	})
	defer resp.Body.Close()
	var turn Turn
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decoding turn: %v", err)
	}

	fbResp := postJSON(t, srv.URL+"/api/sessions/"+turn.SessionID+"/feedback", map[string]any{
		"tutorial_id": "tut_1",
		"solved":      true,
		"rating":      4.5,
	})
	defer fbResp.Body.Close()
	if fbResp.StatusCode != http.StatusOK {
		t.Fatalf("feedback status: %d", fbResp.StatusCode)
	}

	sess, err := store.Get(context.Background(), turn.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Resolution == nil || !*sess.Resolution {
		t.Errorf("resolution not set: %v", sess.Resolution)
	}

	ghost := postJSON(t, srv.URL+"/api/sessions/ghost/feedback", map[string]any{
		"tutorial_id": "tut_1",
		"solved":      false,
	})
	defer ghost.Body.Close()
	if ghost.StatusCode != http.StatusNotFound {
		t.Errorf("ghost feedback: got %d, want 404", ghost.StatusCode)
	}
}
