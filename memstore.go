package quizmaster

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a Store kept in process memory. UpdateSession works on a
// copy of the session state that replaces the original only on success.
type MemoryStore struct {
	mu       sync.RWMutex
	quizzes  map[string]*Quiz
	sessions map[string]*memSession // by quiz ID
}

type memSession struct {
	session Session
	answers []Answer
	stats   Statistics
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes:  make(map[string]*Quiz),
		sessions: make(map[string]*memSession),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateQuiz(_ context.Context, quiz *Quiz, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.quizzes[quiz.ID]; exists {
		return fmt.Errorf("quiz %s: %w", quiz.ID, ErrConflict)
	}
	m.quizzes[quiz.ID] = copyQuiz(quiz)
	m.sessions[quiz.ID] = &memSession{session: *sess}
	return nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, id string) (*Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	return copyQuiz(q), nil
}

func (m *MemoryStore) ListQuizzes(_ context.Context, limit int) ([]QuizSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]QuizSummary, 0, len(m.quizzes))
	for id, q := range m.quizzes {
		s := m.sessions[id]
		out = append(out, QuizSummary{
			ID:             q.ID,
			Topic:          q.Topic,
			Difficulty:     q.Difficulty,
			TotalQuestions: len(q.Questions),
			CreatedAt:      q.CreatedAt,
			Completed:      s.session.IsCompleted,
			Score:          s.session.CurrentScore,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteQuiz(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.quizzes[id]; !ok {
		return fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	delete(m.sessions, id)
	delete(m.quizzes, id)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, quizID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[quizID]
	if !ok {
		return nil, fmt.Errorf("session for quiz %s: %w", quizID, ErrNotFound)
	}
	sess := s.session
	return &sess, nil
}

func (m *MemoryStore) GetStatistics(_ context.Context, quizID string) (*Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[quizID]
	if !ok {
		return nil, fmt.Errorf("statistics for quiz %s: %w", quizID, ErrNotFound)
	}
	st := s.stats
	return &st, nil
}

func (m *MemoryStore) ListAnswers(_ context.Context, quizID string) ([]Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[quizID]
	if !ok {
		return nil, fmt.Errorf("session for quiz %s: %w", quizID, ErrNotFound)
	}
	return sortedAnswers(m.quizzes[quizID], s.answers), nil
}

// UpdateSession holds the store's write lock for the whole of fn.
func (m *MemoryStore) UpdateSession(_ context.Context, quizID string, fn func(tx SessionTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[quizID]
	if !ok {
		return fmt.Errorf("session for quiz %s: %w", quizID, ErrNotFound)
	}
	tx := &memSessionTx{
		quiz: m.quizzes[quizID],
		state: memSession{
			session: s.session,
			answers: append([]Answer(nil), s.answers...),
			stats:   s.stats,
		},
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.sessions[quizID] = &tx.state
	return nil
}

type memSessionTx struct {
	quiz  *Quiz
	state memSession
}

func (t *memSessionTx) Quiz() *Quiz { return t.quiz }

func (t *memSessionTx) Session() *Session {
	sess := t.state.session
	return &sess
}

func (t *memSessionTx) Answers() ([]Answer, error) {
	return sortedAnswers(t.quiz, t.state.answers), nil
}

func (t *memSessionTx) FindAnswer(questionID string) (*Answer, error) {
	for _, a := range t.state.answers {
		if a.QuestionID == questionID {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (t *memSessionTx) InsertAnswer(a *Answer) error {
	for _, existing := range t.state.answers {
		if existing.QuestionID == a.QuestionID {
			return fmt.Errorf("answer for question %s: %w", a.QuestionID, ErrConflict)
		}
	}
	t.state.answers = append(t.state.answers, *a)
	return nil
}

func (t *memSessionTx) DeleteAnswers() error {
	t.state.answers = nil
	return nil
}

func (t *memSessionTx) SaveSession(s *Session) error {
	t.state.session = *s
	return nil
}

func (t *memSessionTx) SaveStatistics(st Statistics) error {
	t.state.stats = st
	return nil
}

func sortedAnswers(quiz *Quiz, answers []Answer) []Answer {
	pos := make(map[string]int, len(quiz.Questions))
	for _, q := range quiz.Questions {
		pos[q.ID] = q.Position
	}
	out := append([]Answer(nil), answers...)
	sort.Slice(out, func(i, j int) bool { return pos[out[i].QuestionID] < pos[out[j].QuestionID] })
	return out
}

func copyQuiz(q *Quiz) *Quiz {
	out := *q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		out.Questions[i] = question
	}
	return &out
}
