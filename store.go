package quizmaster

import "context"

// Store persists quizzes and the session state derived from them.
type Store interface {
	// CreateQuiz atomically stores the quiz, its questions, a fresh
	// session and zeroed statistics. s carries the session identity.
	CreateQuiz(ctx context.Context, quiz *Quiz, s *Session) error
	GetQuiz(ctx context.Context, id string) (*Quiz, error)
	ListQuizzes(ctx context.Context, limit int) ([]QuizSummary, error)
	// DeleteQuiz removes answers, statistics, session, questions and the
	// quiz in one transaction.
	DeleteQuiz(ctx context.Context, id string) error

	GetSession(ctx context.Context, quizID string) (*Session, error)
	GetStatistics(ctx context.Context, quizID string) (*Statistics, error)
	ListAnswers(ctx context.Context, quizID string) ([]Answer, error)

	// UpdateSession runs fn as one atomic unit against the quiz's session.
	// Nothing fn writes is visible unless fn returns nil.
	UpdateSession(ctx context.Context, quizID string, fn func(tx SessionTx) error) error

	Close() error
}

// SessionTx is the view of one session inside UpdateSession.
type SessionTx interface {
	Quiz() *Quiz
	Session() *Session
	Answers() ([]Answer, error)
	// FindAnswer returns nil when the question has no answer yet.
	FindAnswer(questionID string) (*Answer, error)
	// InsertAnswer returns ErrConflict if the question is already answered.
	InsertAnswer(a *Answer) error
	DeleteAnswers() error
	SaveSession(s *Session) error
	SaveStatistics(st Statistics) error
}

// OpenStore opens the store named by driver: "memory", "sqlite" or
// "postgres".
func OpenStore(ctx context.Context, driver, dsn string) (Store, error) {
	if driver == "memory" {
		return NewMemoryStore(), nil
	}
	return OpenDB(ctx, Driver(driver), dsn)
}
