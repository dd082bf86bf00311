// Package server implements the QuizArena backend: the WebSocket endpoint
// with its connection registry, the matchmaking queue, the match state
// machines, and the HTTP account API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quizarena/quizarena/pkg/model"
	"github.com/quizarena/quizarena/pkg/store"
	"github.com/quizarena/quizarena/pkg/token"
)

// Config carries the tunables for a server instance.
type Config struct {
	Addr          string
	DBPath        string
	TokenSecret   string
	TokenTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QuestionsFile string
	RoundDeadline time.Duration
	MatchTTL      time.Duration
}

// DefaultConfig returns a config with the defaults the flags advertise.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		DBPath:        "quizarena.db",
		TokenTTL:      24 * time.Hour,
		RoundDeadline: 30 * time.Second,
		MatchTTL:      10 * time.Minute,
	}
}

// Dependencies are the injectable backends. Store is required; Scores is
// optional and defaults to the store itself.
type Dependencies struct {
	Store  store.DataStore
	Scores store.ScoreRecorder
}

// Server ties the transport, the registries, and the storage together.
type Server struct {
	cfg      Config
	store    store.DataStore
	scores   store.ScoreRecorder
	verifier *token.Verifier
	registry *Registry
	queue    *Queue
	matches  *Matches
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server from a config and its backends.
func New(cfg Config, deps Dependencies) *Server {
	scores := deps.Scores
	if scores == nil {
		scores = deps.Store
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		store:    deps.Store,
		scores:   scores,
		verifier: token.NewVerifier([]byte(cfg.TokenSecret)),
		registry: NewRegistry(),
		queue:    NewQueue(),
		matches:  NewMatches(),
		metrics:  NewMetrics(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler returns the HTTP mux serving the WebSocket endpoint, the account
// API, and the operational endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/register", withCORS(s.handleRegister))
	mux.HandleFunc("/api/login", withCORS(s.handleLogin))
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Metrics exposes the counter set, mainly for periodic logging.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Close stops background work tied to the server lifetime.
func (s *Server) Close() {
	s.cancel()
}

// drawQuestion picks a random question from the bank, falling back to the
// built-in question when the bank is empty or the read fails. A match never
// stalls for lack of material.
func (s *Server) drawQuestion() *model.Question {
	q, err := s.store.RandomQuestion(s.ctx)
	if err != nil {
		slog.Error("question draw failed", "err", err)
		return model.FallbackQuestion()
	}
	if q == nil {
		return model.FallbackQuestion()
	}
	return q
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}
