package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/quizarena/quizarena/pkg/logging"
	"github.com/quizarena/quizarena/pkg/server"
	"github.com/quizarena/quizarena/pkg/store"
	"github.com/quizarena/quizarena/pkg/version"
)

func main() {
	cfg := server.DefaultConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP/WebSocket bind address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.StringVar(&cfg.TokenSecret, "token-secret", os.Getenv("JWT_SECRET"), "HMAC secret for bearer tokens (defaults to $JWT_SECRET; generated if empty)")
	flag.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "Lifetime of issued bearer tokens")
	flag.StringVar(&cfg.RedisAddr, "redis", "", "Redis address for the shared scoreboard (empty to keep scores in SQLite)")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database number")
	flag.StringVar(&cfg.QuestionsFile, "questions-file", "", "YAML file of questions to import on startup")
	flag.DurationVar(&cfg.RoundDeadline, "round-deadline", cfg.RoundDeadline, "Per-round answer deadline (0 to disable)")
	flag.DurationVar(&cfg.MatchTTL, "match-ttl", cfg.MatchTTL, "Whole-match expiry (0 to disable)")

	exportQuestions := flag.Bool("export-questions", false, "Export the question bank as YAML and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if *exportQuestions {
		st, err := store.New(cfg.DBPath)
		if err != nil {
			slog.Error("open database", "err", err)
			os.Exit(1)
		}
		defer st.Close()

		data, err := server.ExportQuestionsYAML(context.Background(), st)
		if err != nil {
			slog.Error("export questions", "err", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		return
	}

	if err := server.Run(cfg); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
