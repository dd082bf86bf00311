package store

import (
	"context"

	"github.com/quizarena/quizarena/pkg/model"
)

// DataStore defines the persistence interface for all QuizArena entities.
// Implementations include the default SQLite store and an in-memory store
// for tests; any other backend can slot in behind the same interface.
type DataStore interface {
	UserReadProvider
	UserWriteProvider
	QuestionReadProvider
	QuestionWriteProvider
	ScoreRecorder

	Close() error
}

// Compile-time checks: both stores implement DataStore.
var _ DataStore = (*Store)(nil)
var _ DataStore = (*MemoryStore)(nil)

type UserReadProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

type UserWriteProvider interface {
	CreateUser(ctx context.Context, username, passwordHash, avatar string) (*model.User, error)
}

type QuestionReadProvider interface {
	// RandomQuestion returns a uniformly random question, or (nil, nil)
	// when the bank is empty. Emptiness is the caller's concern: the
	// server substitutes a fixed fallback question, never an error.
	RandomQuestion(ctx context.Context) (*model.Question, error)
	GetQuestionByPrompt(ctx context.Context, prompt string) (*model.Question, error)
	ListQuestions(ctx context.Context) ([]model.Question, error)
}

type QuestionWriteProvider interface {
	CreateQuestion(ctx context.Context, q *model.Question) error
}

// ScoreRecorder persists final per-player point deltas at match end.
// Implementations must tolerate being the only surviving write of a match:
// a failed write is the caller's to log and swallow, never to surface.
type ScoreRecorder interface {
	AddScore(ctx context.Context, userID int64, delta int64) error
}
