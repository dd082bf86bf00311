package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quizarena/quizarena/pkg/store"
	"github.com/quizarena/quizarena/pkg/version"
)

// Run starts the server with the given config and blocks until SIGINT or
// SIGTERM, then shuts down gracefully.
func Run(cfg Config) error {
	ensureTokenSecret(&cfg)

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("server: open store: %w", err)
	}
	defer st.Close()

	if cfg.QuestionsFile != "" {
		imported, skipped, err := ImportQuestionsFromYAML(context.Background(), st, cfg.QuestionsFile)
		if err != nil {
			return err
		}
		slog.Info("question bank imported", "file", cfg.QuestionsFile, "imported", imported, "skipped", skipped)
	}
	if qs, err := st.ListQuestions(context.Background()); err == nil && len(qs) == 0 {
		slog.Warn("question bank is empty, every round will use the built-in fallback question")
	}

	deps := Dependencies{Store: st}
	if cfg.RedisAddr != "" {
		scores := store.NewRedisScores(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := scores.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("server: connect redis: %w", err)
		}
		defer scores.Close()
		deps.Scores = scores
		slog.Info("recording scores in redis", "addr", cfg.RedisAddr)
	}

	srv := New(cfg, deps)
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	defer close(done)
	srv.Metrics().StartPeriodicLog(60*time.Second, done)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("QuizArena server listening", "addr", cfg.Addr, "version", version.String())
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen: %w", err)
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	srv.Metrics().LogSummary()
	return nil
}

// ensureTokenSecret fills in a random token secret when none was
// configured. Tokens issued under a generated secret do not survive a
// restart, so the generated value is logged once for the operator.
func ensureTokenSecret(cfg *Config) {
	if cfg.TokenSecret != "" {
		return
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	cfg.TokenSecret = hex.EncodeToString(buf)
	slog.Warn("no token secret configured, generated an ephemeral one",
		"secret", cfg.TokenSecret)
}
