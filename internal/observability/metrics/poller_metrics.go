package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	PollOutcomeSuccess = "success"
	PollOutcomeFailure = "failure"
)

const (
	PollSkipInFlight = "in_flight"
	PollSkipLeased   = "leased_elsewhere"
)

const (
	PollReasonDeadlineExceeded     = "deadline_exceeded"
	PollReasonConnectorUnavailable = "connector_unavailable"
	PollReasonUnsupportedProtocol  = "unsupported_protocol"
	PollReasonDBLockTimeout        = "db_lock_timeout"
	PollReasonSerializationFailure = "serialization_failure"
	PollReasonDB                   = "db"
	PollReasonPanic                = "panic"
	PollReasonUnknown              = "unknown"
)

// PollerMetrics captures polling supervisor health.
type PollerMetrics struct {
	polls        *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	pollErrors   *prometheus.CounterVec
	ticksSkipped *prometheus.CounterVec
	workers      prometheus.Gauge
	running      prometheus.Gauge
}

var (
	pollerMetricsOnce sync.Once
	pollerMetrics     *PollerMetrics
)

// Poller returns the singleton poller metrics registry.
func Poller() *PollerMetrics {
	return PollerWithConfig(Config{})
}

// PollerWithConfig returns the singleton poller metrics registry using config labels.
func PollerWithConfig(cfg Config) *PollerMetrics {
	pollerMetricsOnce.Do(func() {
		pollerMetrics = newPollerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pollerMetrics
}

// ResetPollerMetricsForTest resets the poller metrics singleton for tests.
func ResetPollerMetricsForTest() {
	pollerMetricsOnce = sync.Once{}
	pollerMetrics = nil
}

func newPollerMetrics(registerer prometheus.Registerer, cfg Config) *PollerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "printfleet"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "printfleet_poller_polls_total",
		Help:        "Printer status polls by protocol and outcome.",
		ConstLabels: constLabels,
	}, []string{"protocol", "outcome"})
	pollDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "printfleet_poller_poll_duration_seconds",
		Help:        "Latency of one poll including the status write.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		ConstLabels: constLabels,
	}, []string{"protocol"})
	pollErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "printfleet_poller_errors_total",
		Help:        "Poll failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"protocol", "reason"})
	ticksSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "printfleet_poller_ticks_skipped_total",
		Help:        "Ticks dropped because a poll was in flight or leased by another replica.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	workers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "printfleet_poller_workers",
		Help:        "Printers currently supervised.",
		ConstLabels: constLabels,
	})
	running := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "printfleet_poller_running",
		Help:        "1 while the supervisor is running.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(polls, pollDuration, pollErrors, ticksSkipped, workers, running)

	return &PollerMetrics{
		polls:        polls,
		pollDuration: pollDuration,
		pollErrors:   pollErrors,
		ticksSkipped: ticksSkipped,
		workers:      workers,
		running:      running,
	}
}

// ObservePoll records one finished poll.
func (m *PollerMetrics) ObservePoll(protocol string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := PollOutcomeSuccess
	if err != nil {
		outcome = PollOutcomeFailure
	}
	m.polls.WithLabelValues(protocol, outcome).Inc()
	m.pollDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

// IncPollError increments the error counter with an already classified reason.
func (m *PollerMetrics) IncPollError(protocol, reason string) {
	if m == nil {
		return
	}
	if strings.TrimSpace(reason) == "" {
		reason = PollReasonUnknown
	}
	m.pollErrors.WithLabelValues(protocol, reason).Inc()
}

func (m *PollerMetrics) IncTickSkipped(reason string) {
	if m == nil {
		return
	}
	m.ticksSkipped.WithLabelValues(reason).Inc()
}

func (m *PollerMetrics) SetWorkers(n int) {
	if m == nil {
		return
	}
	m.workers.Set(float64(n))
}

func (m *PollerMetrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}

// ClassifyPollReason maps storage and context errors to low-cardinality reasons.
// Connector specific errors are classified by the caller.
func ClassifyPollReason(err error) string {
	if err == nil {
		return PollReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return PollReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return PollReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return PollReasonSerializationFailure
	}
	if isDBError(err) {
		return PollReasonDB
	}
	return PollReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
