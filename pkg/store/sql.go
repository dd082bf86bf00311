// Package store provides SQLite-backed persistence for users, the question
// bank, and durable scores.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quizarena/quizarena/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

var ErrNegativeDelta = errors.New("store: score delta must be non-negative")
var ErrUnknownUser = errors.New("store: unknown user")
var ErrUsernameTaken = errors.New("store: username already taken")

// Store provides database access for all QuizArena entities.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 32),
		password_hash TEXT    NOT NULL DEFAULT '',
		avatar        TEXT    NOT NULL DEFAULT '',
		score         INTEGER NOT NULL DEFAULT 0 CHECK(score >= 0),
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS questions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		prompt         TEXT    NOT NULL CHECK(length(prompt) > 0),
		option1        TEXT    NOT NULL CHECK(length(option1) > 0),
		option2        TEXT    NOT NULL CHECK(length(option2) > 0),
		option3        TEXT    NOT NULL CHECK(length(option3) > 0),
		option4        TEXT    NOT NULL CHECK(length(option4) > 0),
		correct_option INTEGER NOT NULL CHECK(correct_option >= 1 AND correct_option <= 4),
		created_at     TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_questions_prompt ON questions(prompt)",
			},
			ignoreErrors: true,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func (s *Store) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// CreateUser inserts a new user with a zero cumulative score.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash, avatar string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	if existing, err := s.GetUserByUsername(ctx, username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrUsernameTaken
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, avatar) VALUES (?, ?, ?)",
		username, passwordHash, avatar)
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create user id: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByUsername returns a user by name, or (nil, nil) if absent.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, avatar, score, created_at FROM users WHERE username = ?",
		username)
	return scanUser(row)
}

// GetUserByID returns a user by id, or (nil, nil) if absent.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, avatar, score, created_at FROM users WHERE id = ?",
		id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Avatar, &u.Score, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	if u.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: parse user time: %w", err)
	}
	return &u, nil
}

// AddScore adds a non-negative delta to a user's durable cumulative score.
func (s *Store) AddScore(ctx context.Context, userID int64, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET score = score + ? WHERE id = ?", delta, userID)
	if err != nil {
		return fmt.Errorf("store: add score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: add score rows: %w", err)
	}
	if n == 0 {
		return ErrUnknownUser
	}
	return nil
}

// CreateQuestion inserts a question into the bank after validation.
func (s *Store) CreateQuestion(ctx context.Context, q *model.Question) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("store: create question: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO questions (prompt, option1, option2, option3, option4, correct_option) VALUES (?, ?, ?, ?, ?, ?)",
		q.Prompt, q.Options[0], q.Options[1], q.Options[2], q.Options[3], q.Correct)
	if err != nil {
		return fmt.Errorf("store: create question: %w", err)
	}
	if q.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("store: create question id: %w", err)
	}
	return nil
}

// RandomQuestion draws one uniformly random question, or (nil, nil) when
// the bank is empty.
func (s *Store) RandomQuestion(ctx context.Context) (*model.Question, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, prompt, option1, option2, option3, option4, correct_option, created_at FROM questions ORDER BY RANDOM() LIMIT 1")
	return scanQuestion(row)
}

// GetQuestionByPrompt returns a question by exact prompt, or (nil, nil).
func (s *Store) GetQuestionByPrompt(ctx context.Context, prompt string) (*model.Question, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, prompt, option1, option2, option3, option4, correct_option, created_at FROM questions WHERE prompt = ? LIMIT 1",
		prompt)
	return scanQuestion(row)
}

func scanQuestion(row *sql.Row) (*model.Question, error) {
	var q model.Question
	var createdAt string
	err := row.Scan(&q.ID, &q.Prompt, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3], &q.Correct, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan question: %w", err)
	}
	if q.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: parse question time: %w", err)
	}
	return &q, nil
}

// ListQuestions returns the whole bank ordered by id.
func (s *Store) ListQuestions(ctx context.Context) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, prompt, option1, option2, option3, option4, correct_option, created_at FROM questions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var createdAt string
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3], &q.Correct, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan question: %w", err)
		}
		if q.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, fmt.Errorf("store: parse question time: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
