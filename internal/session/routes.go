package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fixloop/fixloop/internal/feedback"
	"github.com/fixloop/fixloop/internal/knowledge"
)

// RegisterRoutes mounts the diagnostic session API.
func RegisterRoutes(r chi.Router, ctrl *Controller, fb *feedback.Store) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", handleStart(ctrl))
		r.Get("/{id}", handleGet(ctrl))
		r.Post("/{id}/answers", handleAnswer(ctrl))
		r.Post("/{id}/feedback", handleFeedback(ctrl, fb))
	})
}

type startRequest struct {
	Category   string             `json:"category"`
	Text       string             `json:"text"`
	ImageRef   string             `json:"image_ref"`
	Symptoms   []string           `json:"symptoms"`
	KnownFacts map[string]float64 `json:"known_facts"`
}

func handleStart(ctrl *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Category == "" {
			http.Error(w, `{"error":"category is required"}`, http.StatusBadRequest)
			return
		}
		if req.Text == "" && len(req.Symptoms) == 0 {
			http.Error(w, `{"error":"text or symptoms are required"}`, http.StatusBadRequest)
			return
		}

		in := StartInput{
			Category:   req.Category,
			Text:       req.Text,
			ImageRef:   req.ImageRef,
			KnownFacts: req.KnownFacts,
		}
		for _, s := range req.Symptoms {
			in.Symptoms = append(in.Symptoms, knowledge.Symptom(s))
		}

		turn, err := ctrl.Start(r.Context(), in)
		if err != nil {
			writeTurnError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(turn)
	}
}

type answerRequest struct {
	QuestionID      string   `json:"question_id"`
	Answer          string   `json:"answer"`
	DerivedSymptoms []string `json:"derived_symptoms"`
}

func handleAnswer(ctrl *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.QuestionID == "" {
			http.Error(w, `{"error":"question_id is required"}`, http.StatusBadRequest)
			return
		}

		in := AnswerInput{
			SessionID:  chi.URLParam(r, "id"),
			QuestionID: req.QuestionID,
			Answer:     knowledge.Answer(req.Answer),
		}
		for _, s := range req.DerivedSymptoms {
			in.DerivedSymptoms = append(in.DerivedSymptoms, knowledge.Symptom(s))
		}

		turn, err := ctrl.Answer(r.Context(), in)
		if err != nil {
			writeTurnError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(turn)
	}
}

func handleGet(ctrl *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, snaps, turns, err := ctrl.Get(r.Context(), id)
		if err != nil {
			writeTurnError(w, err)
			return
		}
		if snaps == nil {
			snaps = []Snapshot{}
		}
		if turns == nil {
			turns = []Interaction{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"session":      sess,
			"snapshots":    snaps,
			"interactions": turns,
		})
	}
}

type feedbackRequest struct {
	TutorialID string   `json:"tutorial_id"`
	Solved     bool     `json:"solved"`
	Rating     *float64 `json:"rating"`
}

func handleFeedback(ctrl *Controller, fb *feedback.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.TutorialID == "" {
			http.Error(w, `{"error":"tutorial_id is required"}`, http.StatusBadRequest)
			return
		}

		id := chi.URLParam(r, "id")
		if err := ctrl.store.SetResolution(r.Context(), id, req.Solved); err != nil {
			writeTurnError(w, err)
			return
		}
		if err := fb.Record(r.Context(), feedback.Feedback{
			SessionID:  id,
			TutorialID: req.TutorialID,
			Solved:     req.Solved,
			Rating:     req.Rating,
		}); err != nil {
			writeTurnError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
	}
}

// writeTurnError maps controller errors onto HTTP statuses. Analyzer
// failures surface as 502 so the caller knows to retry.
func writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrUnknownCategory), errors.Is(err, ErrInvalidAnswer),
		errors.Is(err, ErrQuestionMismatch), errors.Is(err, ErrFinished):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
	case errors.Is(err, ErrAnalysisFailed):
		http.Error(w, `{"error":"`+err.Error()+`","retryable":true}`, http.StatusBadGateway)
	default:
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
	}
}
