package server

import (
	"fmt"
	"net/http"
)

// handleMetrics serves the counters in Prometheus text exposition format.
// JSON is available with ?format=json.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()

	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, s.metrics.JSON())
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeGauge := func(name, help string, value int64) {
		fmt.Fprintf(w, "# HELP quizarena_%s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE quizarena_%s gauge\n", name)
		fmt.Fprintf(w, "quizarena_%s %d\n", name, value)
	}
	writeCounter := func(name, help string, value int64) {
		fmt.Fprintf(w, "# HELP quizarena_%s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE quizarena_%s counter\n", name)
		fmt.Fprintf(w, "quizarena_%s %d\n", name, value)
	}

	writeGauge("uptime_seconds", "Seconds since the server started", snap.UptimeSeconds)
	writeGauge("active_connections", "Current live WebSocket connections", snap.ActiveConnections)
	writeGauge("queue_depth", "Connections waiting in the matchmaking queue", snap.QueueDepth)
	writeGauge("active_matches", "Matches currently in progress", int64(s.matches.Count()))

	writeCounter("connections_total", "Lifetime WebSocket connections accepted", snap.TotalConnections)
	writeCounter("auths_success_total", "Successful authentication attempts", snap.SuccessfulAuths)
	writeCounter("auths_failed_total", "Failed authentication attempts", snap.FailedAuths)
	writeCounter("disconnects_total", "Client disconnects", snap.TotalDisconnects)
	writeCounter("matches_started_total", "Matches started", snap.MatchesStarted)
	writeCounter("matches_completed_total", "Matches that ran the full round count", snap.MatchesCompleted)
	writeCounter("matches_abandoned_total", "Matches ended by a participant disconnect", snap.MatchesAbandoned)
	writeCounter("matches_expired_total", "Matches ended by the idle deadline", snap.MatchesExpired)
	writeCounter("rounds_resolved_total", "Rounds resolved", snap.RoundsResolved)
	writeCounter("round_timeouts_total", "Rounds forfeited at the deadline", snap.RoundTimeouts)
	writeCounter("answers_received_total", "Answers accepted", snap.AnswersReceived)
	writeCounter("chat_messages_relayed_total", "Chat messages delivered to opponents", snap.ChatMessagesRelayed)
	writeCounter("score_write_failures_total", "Score persistence failures", snap.ScoreWriteFailures)
	writeCounter("users_registered_total", "Accounts created via the HTTP API", snap.UsersRegistered)
}
