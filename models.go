package quizmaster

import (
	"encoding/json"
	"time"
)

// Difficulty is the requested level of a quiz or question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

const (
	// NumOptions is the number of choices every question carries.
	NumOptions = 4

	MinQuestions     = 1
	MaxQuestions     = 20
	DefaultQuestions = 10
	// MaxFallbackQuestions caps the placeholder quiz used when generation fails.
	MaxFallbackQuestions = 3
)

// Question is a single multiple choice question owned by a quiz.
type Question struct {
	ID            string     `json:"id"`
	QuizID        string     `json:"quiz_id"`
	Position      int        `json:"position"` // 0-based, dense within the quiz
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectAnswer int        `json:"correct_answer"` // 0-based index
	Explanation   string     `json:"explanation"`
	Difficulty    Difficulty `json:"difficulty"`
}

// Quiz is the immutable definition of a generated quiz.
type Quiz struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty"`
	Questions  []Question `json:"questions"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TotalQuestions returns the number of questions in the quiz.
func (q *Quiz) TotalQuestions() int { return len(q.Questions) }

// QuizSummary is a lightweight listing row.
type QuizSummary struct {
	ID             string     `json:"id"`
	Topic          string     `json:"topic"`
	Difficulty     Difficulty `json:"difficulty"`
	TotalQuestions int        `json:"total_questions"`
	CreatedAt      time.Time  `json:"created_at"`
	Completed      bool       `json:"completed"`
	Score          int        `json:"score"`
}

// Session is the mutable progress record of the single attempt at a quiz.
type Session struct {
	ID                   string    `json:"id"`
	QuizID               string    `json:"quiz_id"`
	CurrentScore         int       `json:"current_score"`
	CurrentQuestionIndex int       `json:"current_question_index"`
	IsCompleted          bool      `json:"is_completed"`
	StartedAt            time.Time `json:"started_at"`
	LastActivity         time.Time `json:"last_activity"`
}

// Answer records the response to one question within a session.
type Answer struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	QuestionID     string    `json:"question_id"`
	SelectedOption int       `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
	ScoreChange    int       `json:"score_change"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// Statistics is a projection of a session's answers. It can always be
// rebuilt with ComputeStatistics.
type Statistics struct {
	TotalAnswered int     `json:"total_answered"`
	Correct       int     `json:"correct"`
	Incorrect     int     `json:"incorrect"`
	Percentage    float64 `json:"percentage"`
}

// GenerationRequest describes the quiz a user asked for.
type GenerationRequest struct {
	Topic        string     `json:"topic"`
	Difficulty   Difficulty `json:"difficulty"`
	NumQuestions int        `json:"num_questions"`
}

// Draft is a candidate quiz, either produced by a model or built locally.
type Draft struct {
	Topic      string          `json:"topic"`
	Difficulty string          `json:"difficulty"`
	Questions  []DraftQuestion `json:"questions"`

	// Fallback is set when the draft is the locally built placeholder.
	Fallback bool `json:"-"`
}

// DraftQuestion is an unvalidated question candidate.
type DraftQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer *int     `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Difficulty    string   `json:"difficulty"`
}

// UnmarshalJSON accepts both an options array and the option_a..option_d
// shape some models answer with.
func (dq *DraftQuestion) UnmarshalJSON(data []byte) error {
	type plain DraftQuestion
	var aux struct {
		plain
		Text    string  `json:"text"`
		OptionA *string `json:"option_a"`
		OptionB *string `json:"option_b"`
		OptionC *string `json:"option_c"`
		OptionD *string `json:"option_d"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*dq = DraftQuestion(aux.plain)
	if dq.Question == "" {
		dq.Question = aux.Text
	}
	if len(dq.Options) == 0 {
		for _, o := range []*string{aux.OptionA, aux.OptionB, aux.OptionC, aux.OptionD} {
			if o != nil {
				dq.Options = append(dq.Options, *o)
			}
		}
	}
	return nil
}

// Progress is the view of where a session currently stands.
type Progress struct {
	Question  *Question `json:"question,omitempty"`
	Position  int       `json:"position"`
	Total     int       `json:"total"`
	Score     int       `json:"score"`
	Completed bool      `json:"completed"`
}

// AnswerResult is returned after a submission.
type AnswerResult struct {
	Position      int    `json:"position"`
	Selected      int    `json:"selected_option"`
	Correct       bool   `json:"correct"`
	CorrectAnswer int    `json:"correct_answer"`
	Explanation   string `json:"explanation"`
	Score         int    `json:"updated_score"`
	NextPosition  int    `json:"next_position"`
	Total         int    `json:"total"`
	Completed     bool   `json:"completed"`
	// Duplicate is set when the question had already been answered.
	Duplicate bool `json:"duplicate"`
}

// QuestionResult is one row of the results breakdown.
type QuestionResult struct {
	Position       int      `json:"position"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	SelectedOption int      `json:"selected_option"`
	CorrectAnswer  int      `json:"correct_answer"`
	IsCorrect      bool     `json:"is_correct"`
	Explanation    string   `json:"explanation"`
	SelectedText   string   `json:"selected_text"`
	CorrectText    string   `json:"correct_text"`
}

// Results summarises an attempt.
type Results struct {
	QuizID     string           `json:"quiz_id"`
	Topic      string           `json:"topic"`
	Difficulty Difficulty       `json:"difficulty"`
	Score      int              `json:"score"`
	Total      int              `json:"total"`
	Completed  bool             `json:"completed"`
	Statistics Statistics       `json:"statistics"`
	Breakdown  []QuestionResult `json:"per_question_breakdown"`
}

// Status is the JSON snapshot served to polling clients.
type Status struct {
	QuizID               string     `json:"quiz_id"`
	Topic                string     `json:"topic"`
	Difficulty           Difficulty `json:"difficulty"`
	TotalQuestions       int        `json:"total_questions"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	CurrentScore         int        `json:"current_score"`
	IsCompleted          bool       `json:"is_completed"`
	Statistics           Statistics `json:"statistics"`
}
