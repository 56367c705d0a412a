package learning

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fixloop/fixloop/internal/knowledge"
)

// RegisterRoutes mounts the learning API: manual cycle triggers, candidate
// review, and approval.
func RegisterRoutes(r chi.Router, runner *Runner, store *knowledge.Store, library *knowledge.Library) {
	r.Route("/api/learning", func(r chi.Router) {
		r.Post("/run", handleRun(runner))
		r.Get("/candidates", handleCandidates(store))
		r.Post("/candidates/{id}/approve", handleApprove(runner, store, library))
	})
}

type runRequest struct {
	LookbackDays int `json:"lookback_days"`
}

func handleRun(runner *Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
		}

		report, err := runner.Run(r.Context(), req.LookbackDays)
		if errors.Is(err, ErrRunActive) {
			http.Error(w, `{"error":"a learning run is already active"}`, http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}

func handleCandidates(store *knowledge.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patterns, err := store.PendingPatternCandidates(r.Context())
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		questions, err := store.PendingQuestionCandidates(r.Context())
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if patterns == nil {
			patterns = []knowledge.PatternCandidate{}
		}
		if questions == nil {
			questions = []knowledge.QuestionCandidate{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"patterns":  patterns,
			"questions": questions,
		})
	}
}

type approveRequest struct {
	Kind string `json:"kind"`
}

func handleApprove(runner *Runner, store *knowledge.Store, library *knowledge.Library) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req approveRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
		}

		id := chi.URLParam(r, "id")
		var err error
		switch req.Kind {
		case "pattern":
			err = store.ApprovePatternCandidate(r.Context(), id, runner.cfg.N0)
		case "question":
			err = store.ApproveQuestionCandidate(r.Context(), id)
		case "":
			// Unqualified approvals try both kinds.
			err = store.ApprovePatternCandidate(r.Context(), id, runner.cfg.N0)
			if errors.Is(err, knowledge.ErrCandidateNotFound) {
				err = store.ApproveQuestionCandidate(r.Context(), id)
			}
		default:
			http.Error(w, `{"error":"kind must be pattern or question"}`, http.StatusBadRequest)
			return
		}
		if errors.Is(err, knowledge.ErrCandidateNotFound) {
			http.Error(w, `{"error":"candidate not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		// Newly approved knowledge is invisible until the snapshot swaps.
		if err := library.Rebuild(r.Context()); err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "approved"})
	}
}
