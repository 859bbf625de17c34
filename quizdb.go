package quizmaster

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/mattn/go-sqlite3"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DefaultSQLiteDSN opens quiz.db with immediate write transactions so that
// concurrent answers on the same session serialize.
const DefaultSQLiteDSN = "file:quiz.db?_txlock=immediate&_foreign_keys=on&_busy_timeout=5000"

// SQLStore is a Store backed by SQLite or Postgres.
type SQLStore struct {
	db     *sql.DB
	driver Driver
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenDB opens a database connection and makes sure the schema exists.
func OpenDB(ctx context.Context, driver Driver, dsn string) (*SQLStore, error) {
	var drvName string
	switch driver {
	case DriverSQLite, "sqlite3":
		driver = DriverSQLite
		drvName = "sqlite3"
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
	case DriverPostgres, "pgx":
		driver = DriverPostgres
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/quizmaster?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	tunePool(driver, db)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func tunePool(driver Driver, db *sql.DB) {
	switch driver {
	case DriverSQLite:
		// single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(45 * time.Minute)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}
}

// CreateTables creates the necessary tables if they don't exist.
func (s *SQLStore) CreateTables(ctx context.Context) error {
	queries := schemaSQLite
	if s.driver == DriverPostgres {
		queries = schemaPostgres
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", firstLine(query), err)
		}
	}
	return nil
}

var schemaSQLite = []string{
	`CREATE TABLE IF NOT EXISTS quizzes (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		total_questions INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quizzes_created_at ON quizzes(created_at)`,
	`CREATE TABLE IF NOT EXISTS quiz_questions (
		id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL REFERENCES quizzes(id),
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_answer INTEGER NOT NULL CHECK (correct_answer BETWEEN 0 AND 3),
		explanation TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		UNIQUE (quiz_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_sessions (
		id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL UNIQUE REFERENCES quizzes(id),
		current_score INTEGER NOT NULL DEFAULT 0 CHECK (current_score >= 0),
		current_question_index INTEGER NOT NULL DEFAULT 0,
		is_completed BOOLEAN NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		last_activity DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_answers (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES quiz_sessions(id),
		question_id TEXT NOT NULL REFERENCES quiz_questions(id),
		selected_option INTEGER NOT NULL CHECK (selected_option BETWEEN 0 AND 3),
		is_correct BOOLEAN NOT NULL,
		score_change INTEGER NOT NULL,
		answered_at DATETIME NOT NULL,
		UNIQUE (session_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_statistics (
		session_id TEXT PRIMARY KEY REFERENCES quiz_sessions(id),
		total_answered INTEGER NOT NULL DEFAULT 0,
		correct_answers INTEGER NOT NULL DEFAULT 0,
		incorrect_answers INTEGER NOT NULL DEFAULT 0,
		percentage REAL NOT NULL DEFAULT 0
	)`,
}

var schemaPostgres = []string{
	`CREATE TABLE IF NOT EXISTS quizzes (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		total_questions INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quizzes_created_at ON quizzes(created_at)`,
	`CREATE TABLE IF NOT EXISTS quiz_questions (
		id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL REFERENCES quizzes(id),
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_answer INTEGER NOT NULL CHECK (correct_answer BETWEEN 0 AND 3),
		explanation TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		UNIQUE (quiz_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_sessions (
		id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL UNIQUE REFERENCES quizzes(id),
		current_score INTEGER NOT NULL DEFAULT 0 CHECK (current_score >= 0),
		current_question_index INTEGER NOT NULL DEFAULT 0,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		started_at TIMESTAMPTZ NOT NULL,
		last_activity TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_answers (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES quiz_sessions(id),
		question_id TEXT NOT NULL REFERENCES quiz_questions(id),
		selected_option INTEGER NOT NULL CHECK (selected_option BETWEEN 0 AND 3),
		is_correct BOOLEAN NOT NULL,
		score_change INTEGER NOT NULL,
		answered_at TIMESTAMPTZ NOT NULL,
		UNIQUE (session_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS quiz_statistics (
		session_id TEXT PRIMARY KEY REFERENCES quiz_sessions(id),
		total_answered INTEGER NOT NULL DEFAULT 0,
		correct_answers INTEGER NOT NULL DEFAULT 0,
		incorrect_answers INTEGER NOT NULL DEFAULT 0,
		percentage DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
}

// withTx runs fn in a transaction, committing only when fn returns nil.
func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = fmt.Errorf("failed to commit: %w", e)
		}
	}()
	err = fn(tx)
	return
}

// CreateQuiz stores the quiz, its questions, its session and statistics.
func (s *SQLStore) CreateQuiz(ctx context.Context, quiz *Quiz, sess *Session) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO quizzes (id, topic, difficulty, total_questions, created_at) VALUES ($1, $2, $3, $4, $5)`,
			quiz.ID, quiz.Topic, string(quiz.Difficulty), len(quiz.Questions), quiz.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to create quiz: %w", err)
		}

		for _, q := range quiz.Questions {
			optionsJSON, err := OptionsToJSON(q.Options)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO quiz_questions (id, quiz_id, position, text, options, correct_answer, explanation, difficulty)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				q.ID, quiz.ID, q.Position, q.Text, optionsJSON, q.CorrectAnswer, q.Explanation, string(q.Difficulty),
			)
			if err != nil {
				return fmt.Errorf("failed to create question %d: %w", q.Position, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO quiz_sessions (id, quiz_id, current_score, current_question_index, is_completed, started_at, last_activity)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sess.ID, quiz.ID, sess.CurrentScore, sess.CurrentQuestionIndex, sess.IsCompleted, sess.StartedAt.UTC(), sess.LastActivity.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO quiz_statistics (session_id) VALUES ($1)`, sess.ID)
		if err != nil {
			return fmt.Errorf("failed to create statistics: %w", err)
		}
		return nil
	})
}

// GetQuiz retrieves a quiz with its questions in order.
func (s *SQLStore) GetQuiz(ctx context.Context, id string) (*Quiz, error) {
	return loadQuiz(ctx, s.db, id)
}

func loadQuiz(ctx context.Context, q querier, id string) (*Quiz, error) {
	var quiz Quiz
	var difficulty string
	err := q.QueryRowContext(ctx,
		`SELECT id, topic, difficulty, created_at FROM quizzes WHERE id = $1`, id,
	).Scan(&quiz.ID, &quiz.Topic, &difficulty, &quiz.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	quiz.Difficulty = Difficulty(difficulty)

	rows, err := q.QueryContext(ctx,
		`SELECT id, position, text, options, correct_answer, explanation, difficulty
		 FROM quiz_questions WHERE quiz_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		question := Question{QuizID: id}
		var optionsJSON, qDifficulty string
		if err := rows.Scan(&question.ID, &question.Position, &question.Text, &optionsJSON,
			&question.CorrectAnswer, &question.Explanation, &qDifficulty); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if question.Options, err = JSONToOptions(optionsJSON); err != nil {
			return nil, err
		}
		question.Difficulty = Difficulty(qDifficulty)
		quiz.Questions = append(quiz.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return &quiz, nil
}

// ListQuizzes returns the newest quizzes first. limit <= 0 means all.
func (s *SQLStore) ListQuizzes(ctx context.Context, limit int) ([]QuizSummary, error) {
	query := `SELECT q.id, q.topic, q.difficulty, q.total_questions, q.created_at, s.is_completed, s.current_score
		FROM quizzes q JOIN quiz_sessions s ON s.quiz_id = q.id
		ORDER BY q.created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer rows.Close()

	var out []QuizSummary
	for rows.Next() {
		var qs QuizSummary
		var difficulty string
		if err := rows.Scan(&qs.ID, &qs.Topic, &difficulty, &qs.TotalQuestions, &qs.CreatedAt, &qs.Completed, &qs.Score); err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		qs.Difficulty = Difficulty(difficulty)
		out = append(out, qs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quizzes: %w", err)
	}
	return out, nil
}

// DeleteQuiz removes a quiz and everything it owns.
func (s *SQLStore) DeleteQuiz(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var sessionID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM quiz_sessions WHERE quiz_id = $1`, id).Scan(&sessionID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to find session: %w", err)
		}
		if sessionID != "" {
			steps := []string{
				`DELETE FROM quiz_answers WHERE session_id = $1`,
				`DELETE FROM quiz_statistics WHERE session_id = $1`,
				`DELETE FROM quiz_sessions WHERE id = $1`,
			}
			for _, stmt := range steps {
				if _, err := tx.ExecContext(ctx, stmt, sessionID); err != nil {
					return fmt.Errorf("failed to delete session data: %w", err)
				}
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_questions WHERE quiz_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete questions: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete quiz: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("quiz %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

const sessionColumns = `id, quiz_id, current_score, current_question_index, is_completed, started_at, last_activity`

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.QuizID, &sess.CurrentScore, &sess.CurrentQuestionIndex,
		&sess.IsCompleted, &sess.StartedAt, &sess.LastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

// GetSession retrieves the session of a quiz.
func (s *SQLStore) GetSession(ctx context.Context, quizID string) (*Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM quiz_sessions WHERE quiz_id = $1`, quizID))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("session for quiz %s: %w", quizID, ErrNotFound)
	}
	return sess, err
}

// GetStatistics retrieves the stored statistics of a quiz's session.
func (s *SQLStore) GetStatistics(ctx context.Context, quizID string) (*Statistics, error) {
	var st Statistics
	err := s.db.QueryRowContext(ctx,
		`SELECT st.total_answered, st.correct_answers, st.incorrect_answers, st.percentage
		 FROM quiz_statistics st JOIN quiz_sessions s ON s.id = st.session_id
		 WHERE s.quiz_id = $1`, quizID,
	).Scan(&st.TotalAnswered, &st.Correct, &st.Incorrect, &st.Percentage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("statistics for quiz %s: %w", quizID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return &st, nil
}

// ListAnswers returns a quiz's answers in question order.
func (s *SQLStore) ListAnswers(ctx context.Context, quizID string) ([]Answer, error) {
	return queryAnswers(ctx, s.db,
		`SELECT a.id, a.session_id, a.question_id, a.selected_option, a.is_correct, a.score_change, a.answered_at
		 FROM quiz_answers a
		 JOIN quiz_sessions s ON s.id = a.session_id
		 JOIN quiz_questions q ON q.id = a.question_id
		 WHERE s.quiz_id = $1 ORDER BY q.position`, quizID)
}

func queryAnswers(ctx context.Context, q querier, query string, args ...any) ([]Answer, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	defer rows.Close()

	var out []Answer
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.SelectedOption, &a.IsCorrect, &a.ScoreChange, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answers: %w", err)
	}
	return out, nil
}

// UpdateSession locks the session row for the duration of fn. SQLite gets
// the same effect from the immediate transaction and single connection.
func (s *SQLStore) UpdateSession(ctx context.Context, quizID string, fn func(tx SessionTx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + sessionColumns + ` FROM quiz_sessions WHERE quiz_id = $1`
		if s.driver == DriverPostgres {
			query += ` FOR UPDATE`
		}
		sess, err := scanSession(tx.QueryRowContext(ctx, query, quizID))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("session for quiz %s: %w", quizID, ErrNotFound)
			}
			return err
		}
		quiz, err := loadQuiz(ctx, tx, quizID)
		if err != nil {
			return err
		}
		return fn(&sqlSessionTx{ctx: ctx, tx: tx, quiz: quiz, session: sess})
	})
}

type sqlSessionTx struct {
	ctx     context.Context
	tx      *sql.Tx
	quiz    *Quiz
	session *Session
}

func (t *sqlSessionTx) Quiz() *Quiz       { return t.quiz }
func (t *sqlSessionTx) Session() *Session { return t.session }

func (t *sqlSessionTx) Answers() ([]Answer, error) {
	return queryAnswers(t.ctx, t.tx,
		`SELECT a.id, a.session_id, a.question_id, a.selected_option, a.is_correct, a.score_change, a.answered_at
		 FROM quiz_answers a JOIN quiz_questions q ON q.id = a.question_id
		 WHERE a.session_id = $1 ORDER BY q.position`, t.session.ID)
}

func (t *sqlSessionTx) FindAnswer(questionID string) (*Answer, error) {
	answers, err := queryAnswers(t.ctx, t.tx,
		`SELECT id, session_id, question_id, selected_option, is_correct, score_change, answered_at
		 FROM quiz_answers WHERE session_id = $1 AND question_id = $2`, t.session.ID, questionID)
	if err != nil || len(answers) == 0 {
		return nil, err
	}
	return &answers[0], nil
}

func (t *sqlSessionTx) InsertAnswer(a *Answer) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO quiz_answers (id, session_id, question_id, selected_option, is_correct, score_change, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.SessionID, a.QuestionID, a.SelectedOption, a.IsCorrect, a.ScoreChange, a.AnsweredAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("answer for question %s: %w", a.QuestionID, ErrConflict)
		}
		return fmt.Errorf("failed to record answer: %w", err)
	}
	return nil
}

func (t *sqlSessionTx) DeleteAnswers() error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM quiz_answers WHERE session_id = $1`, t.session.ID); err != nil {
		return fmt.Errorf("failed to delete answers: %w", err)
	}
	return nil
}

func (t *sqlSessionTx) SaveSession(sess *Session) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE quiz_sessions SET current_score = $1, current_question_index = $2, is_completed = $3, last_activity = $4
		 WHERE id = $5`,
		sess.CurrentScore, sess.CurrentQuestionIndex, sess.IsCompleted, sess.LastActivity.UTC(), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	t.session = sess
	return nil
}

func (t *sqlSessionTx) SaveStatistics(st Statistics) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE quiz_statistics SET total_answered = $1, correct_answers = $2, incorrect_answers = $3, percentage = $4
		 WHERE session_id = $5`,
		st.TotalAnswered, st.Correct, st.Incorrect, st.Percentage, t.session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update statistics: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// OptionsToJSON converts an options slice to its stored form.
func OptionsToJSON(options []string) (string, error) {
	data, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("failed to marshal options: %w", err)
	}
	return string(data), nil
}

// JSONToOptions converts stored options back to a slice.
func JSONToOptions(optionsJSON string) ([]string, error) {
	var options []string
	if err := json.Unmarshal([]byte(optionsJSON), &options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return options, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
