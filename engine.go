package quizmaster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Engine drives quiz creation and the answer/restart state machine of each
// quiz's session. Transitions for one quiz run under its Locker key and as
// a single Store.UpdateSession call.
type Engine struct {
	store      Store
	gen        *QuizGenerator
	locker     Locker
	now        func() time.Time
	logDir     string
	genTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker replaces the default in-process KeyedMutex.
func WithLocker(l Locker) Option { return func(e *Engine) { e.locker = l } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithLLMLogDir enables per-quiz generation transcripts in dir.
func WithLLMLogDir(dir string) Option { return func(e *Engine) { e.logDir = dir } }

// WithGenerationTimeout bounds the model call made by CreateQuiz.
func WithGenerationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.genTimeout = d }
}

// NewEngine creates an engine over store. gen may be nil, in which case
// every quiz is the fallback quiz.
func NewEngine(store Store, gen *QuizGenerator, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		gen:        gen,
		locker:     NewKeyedMutex(),
		now:        time.Now,
		genTimeout: 90 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// CreateQuiz generates and stores a quiz. Only an invalid request fails;
// generation problems produce the fallback quiz.
func (e *Engine) CreateQuiz(ctx context.Context, req GenerationRequest) (*Quiz, error) {
	req, err := NormalizeRequest(req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := e.openLogger(id, req)
	defer logger.Close()

	gctx, cancel := context.WithTimeout(ctx, e.genTimeout)
	defer cancel()
	draft := e.gen.Generate(gctx, req, logger)

	return e.persist(ctx, id, draft)
}

// CreateQuizFromDraft stores a draft produced elsewhere. An unusable draft
// is replaced by the fallback quiz for req.
func (e *Engine) CreateQuizFromDraft(ctx context.Context, req GenerationRequest, d *Draft) (*Quiz, error) {
	req, err := NormalizeRequest(req)
	if err != nil {
		return nil, err
	}
	return e.persist(ctx, uuid.NewString(), e.gen.Accept(d, req, nil))
}

func (e *Engine) openLogger(id string, req GenerationRequest) *LLMLogger {
	if e.logDir == "" {
		return nil
	}
	logger, err := NewLLMLogger(e.logDir, id, req)
	if err != nil {
		log.Printf("Failed to create logger for quiz %s: %v", id, err)
		return nil
	}
	return logger
}

func (e *Engine) persist(ctx context.Context, id string, draft *Draft) (*Quiz, error) {
	now := e.now()
	quiz := buildQuiz(id, draft, now)
	sess := &Session{
		ID:           uuid.NewString(),
		QuizID:       id,
		StartedAt:    now,
		LastActivity: now,
	}
	if err := e.store.CreateQuiz(ctx, quiz, sess); err != nil {
		return nil, fmt.Errorf("failed to store quiz: %w", err)
	}
	log.Printf("Created quiz %s on %q with %d questions (fallback=%t)", id, quiz.Topic, len(quiz.Questions), draft.Fallback)
	return quiz, nil
}

// GetQuiz returns a stored quiz.
func (e *Engine) GetQuiz(ctx context.Context, id string) (*Quiz, error) {
	return e.store.GetQuiz(ctx, id)
}

// ListQuizzes returns the newest quizzes first.
func (e *Engine) ListQuizzes(ctx context.Context, limit int) ([]QuizSummary, error) {
	return e.store.ListQuizzes(ctx, limit)
}

// DeleteQuiz removes a quiz with its session, answers and statistics.
func (e *Engine) DeleteQuiz(ctx context.Context, id string) error {
	unlock, err := e.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	return e.store.DeleteQuiz(ctx, id)
}

// CurrentQuestion reports the question at the session cursor, or that the
// quiz is complete.
func (e *Engine) CurrentQuestion(ctx context.Context, id string) (*Progress, error) {
	quiz, err := e.store.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err := e.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	total := len(quiz.Questions)
	p := &Progress{
		Position:  sess.CurrentQuestionIndex,
		Total:     total,
		Score:     sess.CurrentScore,
		Completed: sess.CurrentQuestionIndex >= total,
	}
	if !p.Completed {
		q := quiz.Questions[sess.CurrentQuestionIndex]
		p.Question = &q
	}
	return p, nil
}

// Answer answers the question at the session cursor.
func (e *Engine) Answer(ctx context.Context, id string, selected int) (*AnswerResult, error) {
	return e.submit(ctx, id, -1, selected)
}

// AnswerAt answers the question at position. Submitting again for a
// position the session has already moved past returns the recorded
// outcome with Duplicate set and changes nothing.
func (e *Engine) AnswerAt(ctx context.Context, id string, position, selected int) (*AnswerResult, error) {
	if position < 0 {
		return nil, invalidInput("position %d out of range", position)
	}
	return e.submit(ctx, id, position, selected)
}

func (e *Engine) submit(ctx context.Context, id string, position, selected int) (*AnswerResult, error) {
	if selected < 0 || selected >= NumOptions {
		return nil, invalidInput("selected option %d out of range [0,%d]", selected, NumOptions-1)
	}

	unlock, err := e.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := e.transition(ctx, id, &position, selected)
	if errors.Is(err, ErrConflict) {
		// Another writer recorded this question first; the retry takes
		// the already-answered path for the same position.
		VerboseLog("Answer conflict on quiz %s position %d, retrying as duplicate", id, position)
		res, err = e.transition(ctx, id, &position, selected)
	}
	return res, err
}

func (e *Engine) transition(ctx context.Context, id string, position *int, selected int) (*AnswerResult, error) {
	var res *AnswerResult
	err := e.store.UpdateSession(ctx, id, func(tx SessionTx) error {
		quiz := tx.Quiz()
		sess := tx.Session()
		total := len(quiz.Questions)

		if *position < 0 {
			*position = sess.CurrentQuestionIndex
		}
		pos := *position

		switch {
		case pos < sess.CurrentQuestionIndex:
			if pos >= total {
				return fmt.Errorf("%w: position %d out of range", ErrInvalidInput, pos)
			}
			question := quiz.Questions[pos]
			prev, err := tx.FindAnswer(question.ID)
			if err != nil {
				return err
			}
			if prev == nil {
				return fmt.Errorf("%w: question %d was skipped", ErrInvalidState, pos+1)
			}
			res = answerResult(question, prev, sess, total, true)
			return nil
		case sess.CurrentQuestionIndex >= total:
			return fmt.Errorf("%w: quiz already completed", ErrInvalidState)
		case pos > sess.CurrentQuestionIndex:
			return fmt.Errorf("%w: question %d is not open yet", ErrInvalidInput, pos+1)
		}

		question := quiz.Questions[pos]
		now := e.now()

		prev, err := tx.FindAnswer(question.ID)
		if err != nil {
			return err
		}
		if prev != nil {
			// Already answered: move on without scoring again.
			advance(sess, total, now)
			if err := tx.SaveSession(sess); err != nil {
				return err
			}
			if err := recompute(tx); err != nil {
				return err
			}
			res = answerResult(question, prev, sess, total, true)
			return nil
		}

		a := &Answer{
			ID:             uuid.NewString(),
			SessionID:      sess.ID,
			QuestionID:     question.ID,
			SelectedOption: selected,
			IsCorrect:      selected == question.CorrectAnswer,
			AnsweredAt:     now,
		}
		if a.IsCorrect {
			a.ScoreChange = 1
		}
		if err := tx.InsertAnswer(a); err != nil {
			return err
		}

		sess.CurrentScore += a.ScoreChange
		advance(sess, total, now)
		if err := tx.SaveSession(sess); err != nil {
			return err
		}
		if err := recompute(tx); err != nil {
			return err
		}
		res = answerResult(question, a, sess, total, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func advance(sess *Session, total int, now time.Time) {
	sess.CurrentQuestionIndex++
	sess.IsCompleted = sess.CurrentQuestionIndex >= total
	sess.LastActivity = now
}

func recompute(tx SessionTx) error {
	answers, err := tx.Answers()
	if err != nil {
		return err
	}
	return tx.SaveStatistics(ComputeStatistics(answers))
}

func answerResult(q Question, a *Answer, sess *Session, total int, duplicate bool) *AnswerResult {
	return &AnswerResult{
		Position:      q.Position,
		Selected:      a.SelectedOption,
		Correct:       a.IsCorrect,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
		Score:         sess.CurrentScore,
		NextPosition:  sess.CurrentQuestionIndex,
		Total:         total,
		Completed:     sess.IsCompleted,
		Duplicate:     duplicate,
	}
}

// Restart clears the session's answers, score and position. The quiz
// itself is untouched.
func (e *Engine) Restart(ctx context.Context, id string) error {
	unlock, err := e.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	return e.store.UpdateSession(ctx, id, func(tx SessionTx) error {
		if err := tx.DeleteAnswers(); err != nil {
			return err
		}
		sess := tx.Session()
		sess.CurrentScore = 0
		sess.CurrentQuestionIndex = 0
		sess.IsCompleted = false
		sess.LastActivity = e.now()
		if err := tx.SaveSession(sess); err != nil {
			return err
		}
		return recompute(tx)
	})
}

// RecomputeStatistics rebuilds and stores a session's statistics from its
// answers.
func (e *Engine) RecomputeStatistics(ctx context.Context, id string) (*Statistics, error) {
	unlock, err := e.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var st Statistics
	err = e.store.UpdateSession(ctx, id, func(tx SessionTx) error {
		answers, err := tx.Answers()
		if err != nil {
			return err
		}
		st = ComputeStatistics(answers)
		return tx.SaveStatistics(st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Results returns the score, statistics and per-question breakdown of the
// answers recorded so far.
func (e *Engine) Results(ctx context.Context, id string) (*Results, error) {
	quiz, err := e.store.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err := e.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := e.store.GetStatistics(ctx, id)
	if err != nil {
		return nil, err
	}
	answers, err := e.store.ListAnswers(ctx, id)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		byID[q.ID] = q
	}

	r := &Results{
		QuizID:     quiz.ID,
		Topic:      quiz.Topic,
		Difficulty: quiz.Difficulty,
		Score:      sess.CurrentScore,
		Total:      len(quiz.Questions),
		Completed:  sess.IsCompleted,
		Statistics: *stats,
		Breakdown:  make([]QuestionResult, 0, len(answers)),
	}
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		r.Breakdown = append(r.Breakdown, QuestionResult{
			Position:       q.Position,
			Question:       q.Text,
			Options:        q.Options,
			SelectedOption: a.SelectedOption,
			CorrectAnswer:  q.CorrectAnswer,
			IsCorrect:      a.IsCorrect,
			Explanation:    q.Explanation,
			SelectedText:   q.Options[a.SelectedOption],
			CorrectText:    q.Options[q.CorrectAnswer],
		})
	}
	return r, nil
}

// Status returns the JSON snapshot of a quiz's session.
func (e *Engine) Status(ctx context.Context, id string) (*Status, error) {
	quiz, err := e.store.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err := e.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := e.store.GetStatistics(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Status{
		QuizID:               quiz.ID,
		Topic:                quiz.Topic,
		Difficulty:           quiz.Difficulty,
		TotalQuestions:       len(quiz.Questions),
		CurrentQuestionIndex: sess.CurrentQuestionIndex,
		CurrentScore:         sess.CurrentScore,
		IsCompleted:          sess.IsCompleted,
		Statistics:           *stats,
	}, nil
}
