package quizmaster

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NormalizeRequest trims and checks a generation request. An empty
// difficulty defaults to medium.
func NormalizeRequest(req GenerationRequest) (GenerationRequest, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return req, invalidInput("topic is required")
	}
	req.Difficulty = Difficulty(strings.ToLower(strings.TrimSpace(string(req.Difficulty))))
	if req.Difficulty == "" {
		req.Difficulty = DifficultyMedium
	}
	if !req.Difficulty.Valid() {
		return req, invalidInput("difficulty must be easy, medium or hard")
	}
	if req.NumQuestions < MinQuestions || req.NumQuestions > MaxQuestions {
		return req, invalidInput("number of questions must be between %d and %d", MinQuestions, MaxQuestions)
	}
	return req, nil
}

// FallbackDraft builds the placeholder quiz used whenever generation does
// not yield a usable draft. The first option is always the correct one.
func FallbackDraft(req GenerationRequest) *Draft {
	n := req.NumQuestions
	if n > MaxFallbackQuestions {
		n = MaxFallbackQuestions
	}
	if n < 1 {
		n = 1
	}
	difficulty := req.Difficulty
	if !difficulty.Valid() {
		difficulty = DifficultyMedium
	}

	d := &Draft{
		Topic:      req.Topic,
		Difficulty: string(difficulty),
		Questions:  make([]DraftQuestion, 0, n),
		Fallback:   true,
	}
	for i := 0; i < n; i++ {
		correct := 0
		d.Questions = append(d.Questions, DraftQuestion{
			Question:      fmt.Sprintf("Sample question %d about %s", i+1, req.Topic),
			Options:       []string{"Option A", "Option B", "Option C", "Option D"},
			CorrectAnswer: &correct,
			Explanation:   fmt.Sprintf("This is a sample explanation for question %d", i+1),
			Difficulty:    string(difficulty),
		})
	}
	return d
}

// PrepareDraft checks, dedups and truncates a model draft against the
// request. It returns a *ValidationError when the draft cannot be used.
func PrepareDraft(d *Draft, req GenerationRequest) (*Draft, error) {
	if d != nil {
		if strings.TrimSpace(d.Topic) == "" {
			d.Topic = req.Topic
		}
		if strings.TrimSpace(d.Difficulty) == "" {
			d.Difficulty = string(req.Difficulty)
		}
	}
	if err := CheckDraft(d); err != nil {
		return nil, err
	}
	d.Questions = DedupQuestions(d.Questions)
	if req.NumQuestions > 0 && len(d.Questions) > req.NumQuestions {
		d.Questions = d.Questions[:req.NumQuestions]
	}
	return d, nil
}

// buildQuiz turns a checked draft into a quiz with dense 0-based positions.
func buildQuiz(id string, d *Draft, now time.Time) *Quiz {
	quiz := &Quiz{
		ID:         id,
		Topic:      d.Topic,
		Difficulty: Difficulty(d.Difficulty),
		Questions:  make([]Question, len(d.Questions)),
		CreatedAt:  now,
	}
	for i, dq := range d.Questions {
		options := make([]string, len(dq.Options))
		copy(options, dq.Options)
		quiz.Questions[i] = Question{
			ID:            uuid.NewString(),
			QuizID:        id,
			Position:      i,
			Text:          dq.Question,
			Options:       options,
			CorrectAnswer: *dq.CorrectAnswer,
			Explanation:   dq.Explanation,
			Difficulty:    Difficulty(dq.Difficulty),
		}
	}
	return quiz
}
