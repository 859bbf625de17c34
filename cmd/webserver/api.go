package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"quizmaster"

	"github.com/go-chi/chi/v5"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, quizmaster.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, quizmaster.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, quizmaster.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("API error: %v", err)
	}
	respondJSON(w, code, map[string]string{"error": err.Error()})
}

// quizView omits the answers so a client cannot read them ahead of time.
type quizView struct {
	ID             string                `json:"id"`
	Topic          string                `json:"topic"`
	Difficulty     quizmaster.Difficulty `json:"difficulty"`
	TotalQuestions int                   `json:"total_questions"`
	CreatedAt      time.Time             `json:"created_at"`
}

type questionView struct {
	Position   int                   `json:"position"`
	Text       string                `json:"text"`
	Options    []string              `json:"options"`
	Difficulty quizmaster.Difficulty `json:"difficulty"`
}

type progressView struct {
	Question  *questionView `json:"question,omitempty"`
	Position  int           `json:"position"`
	Total     int           `json:"total"`
	Score     int           `json:"score"`
	Completed bool          `json:"completed"`
}

type answerRequest struct {
	SelectedOption *int `json:"selected_option"`
	Position       *int `json:"position"`
}

func listQuizzesHandler(engine *quizmaster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		quizzes, err := engine.ListQuizzes(r.Context(), limit)
		if err != nil {
			respondError(w, err)
			return
		}
		if quizzes == nil {
			quizzes = []quizmaster.QuizSummary{}
		}
		respondJSON(w, http.StatusOK, quizzes)
	}
}

func createQuizHandler(engine *quizmaster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quizmaster.GenerationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if req.NumQuestions == 0 {
			req.NumQuestions = quizmaster.DefaultQuestions
		}
		quiz, err := engine.CreateQuiz(r.Context(), req)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, quizView{
			ID:             quiz.ID,
			Topic:          quiz.Topic,
			Difficulty:     quiz.Difficulty,
			TotalQuestions: quiz.TotalQuestions(),
			CreatedAt:      quiz.CreatedAt,
		})
	}
}

func statusHandler(engine *quizmaster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := engine.Status(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}

func questionHandler(engine *quizmaster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := engine.CurrentQuestion(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		out := progressView{Position: p.Position, Total: p.Total, Score: p.Score, Completed: p.Completed}
		if p.Question != nil {
			out.Question = &questionView{
				Position:   p.Question.Position,
				Text:       p.Question.Text,
				Options:    p.Question.Options,
				Difficulty: p.Question.Difficulty,
			}
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func answerHandler(engine *quizmaster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body answerRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if body.SelectedOption == nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "selected_option is required"})
			return
		}

		id := chi.URLParam(r, "id")
		var (
			res *quizmaster.AnswerResult
			err error
		)
		if body.Position != nil {
			res, err = engine.AnswerAt(r.Context(), id, *body.Position, *body.SelectedOption)
		} else {
			res, err = engine.Answer(r.Context(), id, *body.SelectedOption)
		}
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

func resultsHandler(engine *quizmaster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := engine.Results(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

func restartHandler(engine *quizmaster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := engine.Restart(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}
		st, err := engine.Status(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}

func recomputeHandler(engine *quizmaster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := engine.RecomputeStatistics(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}

func deleteQuizHandler(engine *quizmaster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.DeleteQuiz(r.Context(), chi.URLParam(r, "id")); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusNoContent, nil)
	}
}
