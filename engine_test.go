package quizmaster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

// fakeGenerator returns a fixed draft, or err when set.
type fakeGenerator struct {
	draft *Draft
	err   error
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, req GenerationRequest, _ *LLMLogger) (*Draft, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.draft, nil
}

func intp(i int) *int { return &i }

// testDraft builds a valid draft whose i-th question has correct[i] as its
// right option.
func testDraft(topic string, correct ...int) *Draft {
	d := &Draft{Topic: topic, Difficulty: "medium"}
	for i, c := range correct {
		d.Questions = append(d.Questions, DraftQuestion{
			Question:      fmt.Sprintf("%s question number %d?", topic, i+1),
			Options:       []string{"w", "x", "y", "z"},
			CorrectAnswer: intp(c),
			Explanation:   fmt.Sprintf("because %d", c),
		})
	}
	return d
}

func newTestEngine(t *testing.T, store Store, draft *Draft) *Engine {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return NewEngine(store, NewQuizGenerator(&fakeGenerator{draft: draft}), WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
}

func mustCreate(t *testing.T, e *Engine, n int) *Quiz {
	t.Helper()
	quiz, err := e.CreateQuiz(context.Background(), GenerationRequest{Topic: "Rivers", Difficulty: DifficultyMedium, NumQuestions: n})
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	return quiz
}

// checkCompletion asserts is_completed tracks the question index.
func checkCompletion(t *testing.T, e *Engine, id string) *Status {
	t.Helper()
	st, err := e.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.IsCompleted != (st.CurrentQuestionIndex == st.TotalQuestions) {
		t.Fatalf("is_completed=%t with index %d of %d", st.IsCompleted, st.CurrentQuestionIndex, st.TotalQuestions)
	}
	if st.CurrentScore < 0 || st.CurrentScore > st.TotalQuestions {
		t.Fatalf("score %d out of range", st.CurrentScore)
	}
	return st
}

func TestCreateThenFirstQuestion(t *testing.T) {
	e := newTestEngine(t, NewMemoryStore(), testDraft("Rivers", 1, 3, 2))
	quiz := mustCreate(t, e, 3)

	if len(quiz.Questions) != 3 {
		t.Fatalf("got %d questions", len(quiz.Questions))
	}
	for i, q := range quiz.Questions {
		if q.Position != i || q.QuizID != quiz.ID || q.ID == "" {
			t.Fatalf("question %d: %+v", i, q)
		}
	}

	p, err := e.CurrentQuestion(context.Background(), quiz.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Completed || p.Position != 0 || p.Question == nil || p.Question.Position != 0 || p.Total != 3 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	checkCompletion(t, e, quiz.ID)
}

func TestCreateRejectsInvalidRequest(t *testing.T) {
	e := newTestEngine(t, NewMemoryStore(), testDraft("Rivers", 0))
	for _, req := range []GenerationRequest{
		{Topic: "  ", NumQuestions: 3},
		{Topic: "x", Difficulty: "brutal", NumQuestions: 3},
		{Topic: "x", NumQuestions: 0},
		{Topic: "x", NumQuestions: 21},
	} {
		if _, err := e.CreateQuiz(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%+v: err = %v, want ErrInvalidInput", req, err)
		}
	}
}

func TestCreateFallsBackOnGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rate limited")}
	e := NewEngine(NewMemoryStore(), NewQuizGenerator(gen))
	quiz, err := e.CreateQuiz(context.Background(), GenerationRequest{Topic: "Moons", NumQuestions: 10})
	if err != nil {
		t.Fatal(err)
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times", gen.calls)
	}
	if len(quiz.Questions) != MaxFallbackQuestions || quiz.Questions[0].Text != "Sample question 1 about Moons" {
		t.Fatalf("unexpected fallback quiz: %+v", quiz)
	}
	if quiz.Difficulty != DifficultyMedium {
		t.Fatalf("difficulty = %q", quiz.Difficulty)
	}
}

func TestScoringScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, NewMemoryStore(), testDraft("Rivers", 1, 3, 2))
	quiz := mustCreate(t, e, 3)

	for i, sel := range []int{1, 0, 2} {
		res, err := e.Answer(ctx, quiz.ID, sel)
		if err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
		if res.Position != i || res.NextPosition != i+1 {
			t.Fatalf("answer %d: %+v", i, res)
		}
		if res.Completed != (i == 2) {
			t.Fatalf("answer %d: completed=%t", i, res.Completed)
		}
		checkCompletion(t, e, quiz.ID)
	}

	st := checkCompletion(t, e, quiz.ID)
	if st.CurrentScore != 2 || !st.IsCompleted {
		t.Fatalf("status: %+v", st)
	}
	if st.Statistics.TotalAnswered != 3 || st.Statistics.Correct != 2 || st.Statistics.Incorrect != 1 {
		t.Fatalf("statistics: %+v", st.Statistics)
	}
	if math.Round(st.Statistics.Percentage*10)/10 != 66.7 {
		t.Fatalf("percentage = %v", st.Statistics.Percentage)
	}

	res, err := e.Results(ctx, quiz.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Breakdown) != 3 || res.Breakdown[1].IsCorrect || res.Breakdown[1].SelectedText != "w" || res.Breakdown[1].CorrectText != "z" {
		t.Fatalf("breakdown: %+v", res.Breakdown)
	}
}

func TestReplayedAnswerCountsOnce(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, NewMemoryStore(), testDraft("Rivers", 1, 3, 2))
	quiz := mustCreate(t, e, 3)

	first, err := e.AnswerAt(ctx, quiz.ID, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.AnswerAt(ctx, quiz.ID, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if first.Duplicate || !second.Duplicate {
		t.Fatalf("duplicate flags: %t %t", first.Duplicate, second.Duplicate)
	}
	if second.Score != 1 || second.NextPosition != 1 || !second.Correct {
		t.Fatalf("replay result: %+v", second)
	}

	// A replay with a different option still reports what was recorded.
	third, err := e.AnswerAt(ctx, quiz.ID, 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if third.Selected != 1 || !third.Correct {
		t.Fatalf("replay changed the answer: %+v", third)
	}

	st := checkCompletion(t, e, quiz.ID)
	if st.CurrentScore != 1 || st.CurrentQuestionIndex != 1 || st.Statistics.TotalAnswered != 1 {
		t.Fatalf("status after replays: %+v", st)
	}

	if _, err := e.AnswerAt(ctx, quiz.ID, 2, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("answering ahead: err = %v", err)
	}
}

func TestAlreadyAnsweredCurrentQuestionAdvances(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(t, store, testDraft("Rivers", 1, 3, 2))
	quiz := mustCreate(t, e, 3)

	// Record an answer for question 0 without moving the cursor.
	err := store.UpdateSession(ctx, quiz.ID, func(tx SessionTx) error {
		return tx.InsertAnswer(&Answer{
			ID:             "seed",
			SessionID:      tx.Session().ID,
			QuestionID:     tx.Quiz().Questions[0].ID,
			SelectedOption: 2,
			AnsweredAt:     time.Now(),
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Answer(ctx, quiz.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Duplicate || res.Correct || res.Selected != 2 || res.NextPosition != 1 {
		t.Fatalf("result: %+v", res)
	}
	st := checkCompletion(t, e, quiz.ID)
	if st.CurrentScore != 0 || st.CurrentQuestionIndex != 1 {
		t.Fatalf("status: %+v", st)
	}
	answers, err := store.ListAnswers(ctx, quiz.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := ComputeStatistics(answers)
	if want.TotalAnswered != 1 || st.Statistics != want {
		t.Fatalf("statistics = %+v, want %+v", st.Statistics, want)
	}
}

func TestAnswerRejectsOutOfRangeOption(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, NewMemoryStore(), testDraft("Rivers", 1, 3, 2))
	quiz := mustCreate(t, e, 3)

	for _, sel := range []int{4, -1} {
		if _, err := e.Answer(ctx, quiz.ID, sel); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("option %d: err = %v", sel, err)
		}
	}
	st := checkCompletion(t, e, quiz.ID)
	if st.CurrentScore != 0 || st.CurrentQuestionIndex != 0 || st.Statistics.TotalAnswered != 0 {
		t.Fatalf("state mutated: %+v", st)
	}
	res, err := e.Results(ctx, quiz.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Breakdown) != 0 {
		t.Fatalf("answers recorded: %+v", res.Breakdown)
	}
}

func TestAnswerAfterCompletion(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, NewMemoryStore(), testDraft("Rivers", 0))
	quiz := mustCreate(t, e, 1)

	if _, err := e.Answer(ctx, quiz.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Answer(ctx, quiz.ID, 0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if _, err := e.Answer(ctx, "missing", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown quiz: err = %v", err)
	}
}

func TestRestartResetsSession(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, NewMemoryStore(), testDraft("Rivers", 1, 3, 2))
	quiz := mustCreate(t, e, 3)

	for _, sel := range []int{1, 3, 0} {
		if _, err := e.Answer(ctx, quiz.ID, sel); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Restart(ctx, quiz.ID); err != nil {
		t.Fatal(err)
	}
	stats, err := e.RecomputeStatistics(ctx, quiz.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *stats != (Statistics{}) {
		t.Fatalf("statistics after restart: %+v", stats)
	}
	st := checkCompletion(t, e, quiz.ID)
	if st.CurrentScore != 0 || st.CurrentQuestionIndex != 0 || st.IsCompleted {
		t.Fatalf("status after restart: %+v", st)
	}

	again, err := e.GetQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Questions) != 3 || again.Questions[0].ID != quiz.Questions[0].ID {
		t.Fatal("restart changed the quiz")
	}
	if _, err := e.Answer(ctx, quiz.ID, 1); err != nil {
		t.Fatalf("answer after restart: %v", err)
	}
}

func TestDeleteQuiz(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, NewMemoryStore(), testDraft("Rivers", 1, 3))
	quiz := mustCreate(t, e, 2)
	if _, err := e.Answer(ctx, quiz.ID, 1); err != nil {
		t.Fatal(err)
	}
	if err := e.DeleteQuiz(ctx, quiz.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.GetQuiz(ctx, quiz.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetQuiz after delete: %v", err)
	}
	if _, err := e.Status(ctx, quiz.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Status after delete: %v", err)
	}
	if err := e.DeleteQuiz(ctx, quiz.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestConcurrentDuplicateSubmits(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, NewMemoryStore(), testDraft("Rivers", 1, 3, 2))
	quiz := mustCreate(t, e, 3)

	var wg sync.WaitGroup
	results := make([]*AnswerResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.AnswerAt(ctx, quiz.ID, 0, 1)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("submit %d: %v", i, errs[i])
		}
		if !results[i].Duplicate {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("%d submissions recorded, want 1", fresh)
	}
	st := checkCompletion(t, e, quiz.ID)
	if st.CurrentScore != 1 || st.CurrentQuestionIndex != 1 {
		t.Fatalf("status: %+v", st)
	}
}

// racingStore makes the first transition lose a race: its insert conflicts
// and another writer's answer for the same question is committed.
type racingStore struct {
	*MemoryStore
	raced bool
}

type conflictTx struct{ SessionTx }

func (conflictTx) InsertAnswer(*Answer) error { return ErrConflict }

func (r *racingStore) UpdateSession(ctx context.Context, quizID string, fn func(tx SessionTx) error) error {
	if r.raced {
		return r.MemoryStore.UpdateSession(ctx, quizID, fn)
	}
	r.raced = true
	lost := r.MemoryStore.UpdateSession(ctx, quizID, func(tx SessionTx) error {
		return fn(conflictTx{tx})
	})
	err := r.MemoryStore.UpdateSession(ctx, quizID, func(tx SessionTx) error {
		sess := tx.Session()
		q := tx.Quiz().Questions[sess.CurrentQuestionIndex]
		if err := tx.InsertAnswer(&Answer{ID: "winner", SessionID: sess.ID, QuestionID: q.ID, SelectedOption: q.CorrectAnswer, IsCorrect: true, ScoreChange: 1}); err != nil {
			return err
		}
		sess.CurrentScore++
		sess.CurrentQuestionIndex++
		sess.IsCompleted = sess.CurrentQuestionIndex >= len(tx.Quiz().Questions)
		return tx.SaveSession(sess)
	})
	if err != nil {
		return err
	}
	return lost
}

func TestConflictIsTreatedAsAlreadyAnswered(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{MemoryStore: NewMemoryStore()}
	e := newTestEngine(t, store, testDraft("Rivers", 1, 3, 2))
	quiz := mustCreate(t, e, 3)

	res, err := e.Answer(ctx, quiz.ID, 0)
	if err != nil {
		t.Fatalf("conflict surfaced: %v", err)
	}
	if !res.Duplicate || res.Position != 0 || !res.Correct || res.Score != 1 {
		t.Fatalf("result: %+v", res)
	}
	st := checkCompletion(t, e, quiz.ID)
	if st.CurrentQuestionIndex != 1 || st.CurrentScore != 1 {
		t.Fatalf("status: %+v", st)
	}
}

func TestCreateQuizFromDraft(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewMemoryStore(), nil)

	quiz, err := e.CreateQuizFromDraft(ctx, GenerationRequest{Topic: "Rivers", NumQuestions: 2}, testDraft("Rivers", 0, 1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(quiz.Questions) != 2 {
		t.Fatalf("got %d questions, want truncation to 2", len(quiz.Questions))
	}

	bad := testDraft("Rivers", 0)
	bad.Questions[0].Options = bad.Questions[0].Options[:3]
	quiz, err = e.CreateQuizFromDraft(ctx, GenerationRequest{Topic: "Rivers", NumQuestions: 5}, bad)
	if err != nil {
		t.Fatal(err)
	}
	if quiz.Questions[0].Text != "Sample question 1 about Rivers" {
		t.Fatalf("expected fallback quiz, got %+v", quiz.Questions[0])
	}

	list, err := e.ListQuizzes(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("ListQuizzes = %d entries", len(list))
	}
}

func TestComputeStatistics(t *testing.T) {
	if st := ComputeStatistics(nil); st != (Statistics{}) {
		t.Fatalf("empty: %+v", st)
	}
	st := ComputeStatistics([]Answer{{IsCorrect: true}, {IsCorrect: false}, {IsCorrect: true}, {IsCorrect: true}})
	if st.TotalAnswered != 4 || st.Correct != 3 || st.Incorrect != 1 || st.Percentage != 75 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestLLMTranscriptWritten(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(NewMemoryStore(), NewQuizGenerator(&fakeGenerator{draft: testDraft("Rivers", 0)}), WithLLMLogDir(dir))
	quiz, err := e.CreateQuiz(context.Background(), GenerationRequest{Topic: "Rivers", NumQuestions: 1})
	if err != nil {
		t.Fatal(err)
	}
	assertFileContains(t, dir+"/"+quiz.ID+".log", "Draft: 1 questions from model")
}
