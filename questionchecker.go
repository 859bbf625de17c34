package quizmaster

import (
	"fmt"
	"strings"
)

// CheckDraft validates a candidate quiz and normalizes it in place:
// strings are trimmed and a missing per-question difficulty inherits the
// quiz difficulty. It returns a *ValidationError naming the first problem.
func CheckDraft(d *Draft) error {
	if d == nil {
		return &ValidationError{Index: -1, Field: "draft", Reason: "missing"}
	}
	d.Topic = strings.TrimSpace(d.Topic)
	if d.Topic == "" {
		return &ValidationError{Index: -1, Field: "topic", Reason: "required"}
	}
	d.Difficulty = strings.ToLower(strings.TrimSpace(d.Difficulty))
	if !Difficulty(d.Difficulty).Valid() {
		return &ValidationError{Index: -1, Field: "difficulty", Reason: fmt.Sprintf("unknown level %q", d.Difficulty)}
	}
	if len(d.Questions) == 0 {
		return &ValidationError{Index: -1, Field: "questions", Reason: "empty"}
	}
	for i := range d.Questions {
		if err := CheckQuestion(i, &d.Questions[i], Difficulty(d.Difficulty)); err != nil {
			return err
		}
	}
	return nil
}

// CheckQuestion validates a single question candidate.
func CheckQuestion(index int, q *DraftQuestion, quizDifficulty Difficulty) error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return &ValidationError{Index: index, Field: "question", Reason: "required"}
	}
	if len(q.Options) != NumOptions {
		return &ValidationError{Index: index, Field: "options", Reason: fmt.Sprintf("expected %d, got %d", NumOptions, len(q.Options))}
	}
	for i := range q.Options {
		q.Options[i] = strings.TrimSpace(q.Options[i])
		if q.Options[i] == "" {
			return &ValidationError{Index: index, Field: fmt.Sprintf("options[%d]", i), Reason: "empty"}
		}
	}
	if q.CorrectAnswer == nil {
		return &ValidationError{Index: index, Field: "correct_answer", Reason: "required"}
	}
	if *q.CorrectAnswer < 0 || *q.CorrectAnswer >= NumOptions {
		return &ValidationError{Index: index, Field: "correct_answer", Reason: fmt.Sprintf("%d out of range [0,%d]", *q.CorrectAnswer, NumOptions-1)}
	}
	q.Explanation = strings.TrimSpace(q.Explanation)
	q.Difficulty = strings.ToLower(strings.TrimSpace(q.Difficulty))
	if q.Difficulty == "" {
		q.Difficulty = string(quizDifficulty)
	}
	if !Difficulty(q.Difficulty).Valid() {
		return &ValidationError{Index: index, Field: "difficulty", Reason: fmt.Sprintf("unknown level %q", q.Difficulty)}
	}
	return nil
}
