package store

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/quizarena/quizarena/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID     int64
	nextQuestionID int64

	usersByID       map[int64]*model.User
	usersByUsername map[string]*model.User
	questions       []*model.Question

	scoreWrites int // AddScore invocations, observable in tests
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:             now,
		nextUserID:      1,
		nextQuestionID:  1,
		usersByID:       make(map[int64]*model.User),
		usersByUsername: make(map[string]*model.User),
	}
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

// CreateUser inserts a new user with a zero cumulative score.
func (m *MemoryStore) CreateUser(_ context.Context, username, passwordHash, avatar string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByUsername[username]; exists {
		return nil, ErrUsernameTaken
	}

	u := &model.User{
		ID:           m.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		Avatar:       avatar,
		CreatedAt:    m.now(),
	}
	m.nextUserID++
	m.usersByID[u.ID] = u
	m.usersByUsername[u.Username] = u

	cp := *u
	return &cp, nil
}

// GetUserByUsername returns a user by name, or (nil, nil) if absent.
func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usersByUsername[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// GetUserByID returns a user by id, or (nil, nil) if absent.
func (m *MemoryStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.usersByID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// AddScore adds a non-negative delta to a user's cumulative score.
func (m *MemoryStore) AddScore(_ context.Context, userID int64, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usersByID[userID]
	if !ok {
		return ErrUnknownUser
	}
	u.Score += delta
	m.scoreWrites++
	return nil
}

// ScoreWrites returns how many times AddScore has been called.
func (m *MemoryStore) ScoreWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scoreWrites
}

// CreateQuestion inserts a question into the bank after validation.
func (m *MemoryStore) CreateQuestion(_ context.Context, q *model.Question) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("store: create question: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *q
	cp.ID = m.nextQuestionID
	cp.CreatedAt = m.now()
	m.nextQuestionID++
	m.questions = append(m.questions, &cp)
	q.ID = cp.ID
	return nil
}

// RandomQuestion draws one uniformly random question, or (nil, nil) when
// the bank is empty.
func (m *MemoryStore) RandomQuestion(_ context.Context) (*model.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.questions) == 0 {
		return nil, nil
	}
	cp := *m.questions[rand.Intn(len(m.questions))]
	return &cp, nil
}

// GetQuestionByPrompt returns a question by exact prompt, or (nil, nil).
func (m *MemoryStore) GetQuestionByPrompt(_ context.Context, prompt string) (*model.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.questions {
		if q.Prompt == prompt {
			cp := *q
			return &cp, nil
		}
	}
	return nil, nil
}

// ListQuestions returns the whole bank in insertion order.
func (m *MemoryStore) ListQuestions(_ context.Context) ([]model.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Question, 0, len(m.questions))
	for _, q := range m.questions {
		out = append(out, *q)
	}
	return out, nil
}
