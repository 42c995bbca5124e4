package postgresengine

import (
	"context"
	"time"

	"github.com/AntonStoeckl/deposit-pooling-go/pooling"
)

// Logger interface for SQL query logging, operational metrics, warnings, and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector interface for collecting Registry performance and operational metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// SpanContext represents an active tracing span that can be finished and updated with attributes.
type SpanContext = pooling.SpanContext

// TracingCollector interface for collecting distributed tracing information from Registry operations.
// This interface follows the same dependency-free pattern as MetricsCollector, allowing users to integrate
// with any tracing backend (OpenTelemetry, Jaeger, Zipkin, etc.) by implementing this interface.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

// ContextualLogger interface for context-aware logging with automatic trace correlation.
// This interface follows the same dependency-free pattern as MetricsCollector and TracingCollector,
// allowing users to integrate with any logging backend (OpenTelemetry, structured loggers, etc.)
// that supports context-based correlation and automatic trace/span ID inclusion.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// Option defines a functional option for configuring a Registry.
type Option func(*Registry) error

// WithGroupTableName sets the table name for the group records.
func WithGroupTableName(tableName string) Option {
	return func(r *Registry) error {
		if tableName == "" {
			return pooling.ErrEmptyTableNameSupplied
		}

		r.groupTableName = tableName

		return nil
	}
}

// WithMemberTableName sets the table name for the group member records.
func WithMemberTableName(tableName string) Option {
	return func(r *Registry) error {
		if tableName == "" {
			return pooling.ErrEmptyTableNameSupplied
		}

		r.memberTableName = tableName

		return nil
	}
}

// WithLedgerTableName sets the table name for the deposit ledger.
func WithLedgerTableName(tableName string) Option {
	return func(r *Registry) error {
		if tableName == "" {
			return pooling.ErrEmptyTableNameSupplied
		}

		r.ledgerTableName = tableName

		return nil
	}
}

// WithMinDepositUnit sets the global deposit granularity: contributions below
// this amount are rejected with pooling.ErrInvalidAmount. The default is 1,
// which only excludes non-positive amounts.
func WithMinDepositUnit(minDepositUnit pooling.AmountInt64) Option {
	return func(r *Registry) error {
		if minDepositUnit <= 0 {
			return pooling.ErrInvalidMinDepositUnit
		}

		r.minDepositUnit = minDepositUnit

		return nil
	}
}

// WithContributionObserver sets the observer that receives one notification
// per successful deposit, after the transaction has committed.
func WithContributionObserver(observer pooling.ContributionObserver) Option {
	return func(r *Registry) error {
		r.observer = observer
		return nil
	}
}

// WithLogger sets the logger for the Registry.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Deposits recorded, groups registered, durations (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger Logger) Option {
	return func(r *Registry) error {
		r.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Registry.
// The metrics collector will receive performance and operational metrics including
// deposit/query durations, accepted and rejected deposit counts, and database errors.
func WithMetrics(collector MetricsCollector) Option {
	return func(r *Registry) error {
		r.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Registry.
// The tracing collector will receive distributed tracing information including
// span creation for deposit/query operations, context propagation, and error tracking.
func WithTracing(collector TracingCollector) Option {
	return func(r *Registry) error {
		r.tracingCollector = collector
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Registry.
// The contextual logger will receive log messages with context information including
// automatic trace/span correlation when tracing is enabled, enabling unified observability.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(r *Registry) error {
		r.contextualLogger = logger
		return nil
	}
}
