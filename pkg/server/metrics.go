package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime WebSocket connections accepted
	ActiveConnections atomic.Int64 // current live connections
	SuccessfulAuths   atomic.Int64 // successful authentication attempts
	FailedAuths       atomic.Int64 // failed authentication attempts
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)

	// Matchmaking counters
	QueueDepth     atomic.Int64 // current matchmaking queue length
	MatchesStarted atomic.Int64 // matches started

	// Match outcome counters
	MatchesCompleted atomic.Int64 // matches that ran all rounds
	MatchesAbandoned atomic.Int64 // matches ended by a disconnect
	MatchesExpired   atomic.Int64 // matches ended by the idle TTL

	// Round counters
	RoundsResolved  atomic.Int64 // rounds fully resolved
	RoundTimeouts   atomic.Int64 // rounds forfeited at the deadline
	AnswersReceived atomic.Int64 // answers accepted

	// Misc counters
	ChatMessagesRelayed atomic.Int64 // chat messages delivered
	ScoreWriteFailures  atomic.Int64 // score persistence failures (swallowed)
	UsersRegistered     atomic.Int64 // accounts created via the HTTP API
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	SuccessfulAuths   int64 `json:"successful_auths"`
	FailedAuths       int64 `json:"failed_auths"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	QueueDepth     int64 `json:"queue_depth"`
	MatchesStarted int64 `json:"matches_started"`

	MatchesCompleted int64 `json:"matches_completed"`
	MatchesAbandoned int64 `json:"matches_abandoned"`
	MatchesExpired   int64 `json:"matches_expired"`

	RoundsResolved  int64 `json:"rounds_resolved"`
	RoundTimeouts   int64 `json:"round_timeouts"`
	AnswersReceived int64 `json:"answers_received"`

	ChatMessagesRelayed int64 `json:"chat_messages_relayed"`
	ScoreWriteFailures  int64 `json:"score_write_failures"`
	UsersRegistered     int64 `json:"users_registered"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:              uptime.Truncate(time.Second).String(),
		UptimeSeconds:       int64(uptime.Seconds()),
		ActiveConnections:   m.ActiveConnections.Load(),
		TotalConnections:    m.TotalConnections.Load(),
		SuccessfulAuths:     m.SuccessfulAuths.Load(),
		FailedAuths:         m.FailedAuths.Load(),
		TotalDisconnects:    m.TotalDisconnects.Load(),
		QueueDepth:          m.QueueDepth.Load(),
		MatchesStarted:      m.MatchesStarted.Load(),
		MatchesCompleted:    m.MatchesCompleted.Load(),
		MatchesAbandoned:    m.MatchesAbandoned.Load(),
		MatchesExpired:      m.MatchesExpired.Load(),
		RoundsResolved:      m.RoundsResolved.Load(),
		RoundTimeouts:       m.RoundTimeouts.Load(),
		AnswersReceived:     m.AnswersReceived.Load(),
		ChatMessagesRelayed: m.ChatMessagesRelayed.Load(),
		ScoreWriteFailures:  m.ScoreWriteFailures.Load(),
		UsersRegistered:     m.UsersRegistered.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"queue_depth", s.QueueDepth,
		"matches_started", s.MatchesStarted,
		"matches_completed", s.MatchesCompleted,
		"matches_abandoned", s.MatchesAbandoned,
		"rounds_resolved", s.RoundsResolved,
		"chat_msgs", s.ChatMessagesRelayed,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
