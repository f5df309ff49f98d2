// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesLogged   prometheus.Counter
	MessagesIgnored  prometheus.Counter
	ModerationLogged *prometheus.CounterVec // kind=timeout|ban
	DeletionsMarked  prometheus.Counter
	StoreFailures    *prometheus.CounterVec // op
	CommandsHandled  *prometheus.CounterVec // command, outcome
	HelixLookups     *prometheus.CounterVec // result=ok|not_found|error

	// Histograms (seconds)
	CommandDuration prometheus.Observer

	// Gauges
	JoinedChannels prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesLogged = promauto.NewCounter(prometheus.CounterOpts{Name: "ttvlog_messages_logged_total", Help: "Chat messages written to a channel log"})
		MessagesIgnored = promauto.NewCounter(prometheus.CounterOpts{Name: "ttvlog_messages_ignored_total", Help: "Chat messages skipped because the sender is an ignored bot"})
		ModerationLogged = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ttvlog_moderation_events_total", Help: "Timeouts and bans written to a channel log"}, []string{"kind"})
		DeletionsMarked = promauto.NewCounter(prometheus.CounterOpts{Name: "ttvlog_deletions_marked_total", Help: "Log rows flagged as deleted"})
		StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ttvlog_store_failures_total", Help: "Failed storage operations by operation"}, []string{"op"})
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ttvlog_commands_total", Help: "Chat commands handled by command and outcome"}, []string{"command", "outcome"})
		HelixLookups = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ttvlog_helix_lookups_total", Help: "Helix user lookups by result"}, []string{"result"})
		CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ttvlog_command_duration_seconds", Help: "Chat command handling duration seconds", Buckets: prometheus.DefBuckets})
		JoinedChannels = promauto.NewGauge(prometheus.GaugeOpts{Name: "ttvlog_joined_channels", Help: "Channels currently joined on the chat connection"})
	})
}

// IncMessagesLogged counts one logged chat message.
func IncMessagesLogged() {
	if MessagesLogged != nil {
		MessagesLogged.Inc()
	}
}

// IncMessagesIgnored counts one message from an ignored sender.
func IncMessagesIgnored() {
	if MessagesIgnored != nil {
		MessagesIgnored.Inc()
	}
}

// IncModeration counts one logged moderation event of kind.
func IncModeration(kind string) {
	if ModerationLogged != nil {
		ModerationLogged.WithLabelValues(kind).Inc()
	}
}

// AddDeletionsMarked counts rows flagged deleted.
func AddDeletionsMarked(n int64) {
	if DeletionsMarked != nil && n > 0 {
		DeletionsMarked.Add(float64(n))
	}
}

// IncStoreFailure counts a failed storage operation.
func IncStoreFailure(op string) {
	if StoreFailures != nil {
		StoreFailures.WithLabelValues(op).Inc()
	}
}

// IncCommand counts a handled chat command.
func IncCommand(command, outcome string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(command, outcome).Inc()
	}
}

// IncHelixLookup counts a Helix lookup by result (ok, not_found, error).
func IncHelixLookup(result string) {
	if HelixLookups != nil {
		HelixLookups.WithLabelValues(result).Inc()
	}
}

// SetJoinedChannels records how many channels are joined.
func SetJoinedChannels(n int) {
	if JoinedChannels != nil {
		JoinedChannels.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
