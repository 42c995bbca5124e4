package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/deposit-pooling-go/pooling"
)

const (
	metricDepositDuration  = "pooling_deposit_duration_seconds"
	metricRegisterDuration = "pooling_register_group_duration_seconds"
	metricQueryDuration    = "pooling_query_duration_seconds"
	metricDepositsRecorded = "pooling_deposits_recorded_total"
	metricDepositsRejected = "pooling_deposits_rejected_total"
	metricGroupsRegistered = "pooling_groups_registered_total"
	metricGroupsReady      = "pooling_groups_ready_total"
	metricDatabaseErrors   = "pooling_database_errors_total"

	spanNameAddDeposit    = "pooling.add_deposit"
	spanNameRegisterGroup = "pooling.register_group"

	spanAttrOperation = "operation"
	spanAttrErrorType = "error_type"
	labelStatus       = "status"
	labelReason       = "reason"

	statusSuccess = "success"
	statusError   = "error"
	statusReject  = "rejected"

	errorTypeDatabase    = "database"
	errorTypeTransaction = "transaction"

	reasonInvalidWithdrawer      = "invalid_withdrawer"
	reasonInvalidAmount          = "invalid_amount"
	reasonNotAMember             = "not_a_member"
	reasonAlreadyCollected       = "already_collected"
	reasonAmountExceedsRemaining = "amount_exceeds_remaining"
	reasonArithmeticOverflow     = "arithmetic_overflow"
	reasonGroupNotFound          = "group_not_found"
	reasonUnknown                = "unknown"
)

// logQueryWithDuration logs SQL queries with execution time at debug level if a logger is configured.
func (r *Registry) logQueryWithDuration(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {
	switch {
	case r.contextualLogger != nil:
		r.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, r.toMilliseconds(duration), logAttrQuery, sqlQuery)
	case r.logger != nil:
		r.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, r.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (r *Registry) logOperation(ctx context.Context, action string, args ...any) {
	switch {
	case r.contextualLogger != nil:
		r.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	case r.logger != nil:
		r.logger.Info(logMsgOperation+action, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (r *Registry) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	switch {
	case r.contextualLogger != nil:
		r.contextualLogger.ErrorContext(ctx, message, allArgs...)
	case r.logger != nil:
		r.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (r *Registry) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// rejectDeposit records one rejected contribution: rejection counter with a
// reason label, span status, and an info-level log line. Rejections are
// expected outcomes, not database errors, and are reported separately.
func (r *Registry) rejectDeposit(ctx context.Context, span SpanContext, groupID uuid.UUID, err error) {
	reason := rejectionReason(err)

	if r.metricsCollector != nil {
		labels := map[string]string{
			spanAttrOperation: logActionAddDeposit,
			labelStatus:       statusReject,
			labelReason:       reason,
		}

		if contextualCollector, ok := r.metricsCollector.(pooling.ContextualMetricsCollector); ok {
			contextualCollector.IncrementCounterContext(ctx, metricDepositsRejected, labels)
		} else {
			r.metricsCollector.IncrementCounter(metricDepositsRejected, labels)
		}
	}

	r.finishTraceSpan(span, statusReject, map[string]string{labelReason: reason})

	r.logOperation(ctx, logMsgDepositRejected,
		logAttrGroupID, groupID.String(),
		logAttrReason, reason)
}

// recordErrorMetricsContext records error metrics with context if the collector supports it.
func (r *Registry) recordErrorMetricsContext(ctx context.Context, operation, errorType string) {
	if r.metricsCollector != nil {
		labels := map[string]string{
			spanAttrOperation: operation,
			labelStatus:       statusError,
			spanAttrErrorType: errorType,
		}

		if contextualCollector, ok := r.metricsCollector.(pooling.ContextualMetricsCollector); ok {
			contextualCollector.IncrementCounterContext(ctx, metricDatabaseErrors, labels)
		} else {
			r.metricsCollector.IncrementCounter(metricDatabaseErrors, labels)
		}
	}
}

// recordDurationMetricsContext records duration metrics with context if the collector supports it.
func (r *Registry) recordDurationMetricsContext(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	operation, status string,
) {
	if r.metricsCollector != nil {
		labels := map[string]string{
			spanAttrOperation: operation,
			labelStatus:       status,
		}

		if contextualCollector, ok := r.metricsCollector.(pooling.ContextualMetricsCollector); ok {
			contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
		} else {
			r.metricsCollector.RecordDuration(metricName, duration, labels)
		}
	}
}

// incrementCounterContext increments a counter metric with context if the collector supports it.
func (r *Registry) incrementCounterContext(ctx context.Context, metricName string, operation, status string) {
	if r.metricsCollector != nil {
		labels := map[string]string{
			spanAttrOperation: operation,
			labelStatus:       status,
		}

		if contextualCollector, ok := r.metricsCollector.(pooling.ContextualMetricsCollector); ok {
			contextualCollector.IncrementCounterContext(ctx, metricName, labels)
		} else {
			r.metricsCollector.IncrementCounter(metricName, labels)
		}
	}
}

// startTraceSpan starts a tracing span if the tracing collector is configured.
func (r *Registry) startTraceSpan(
	ctx context.Context,
	operation string,
	attrs map[string]string,
) (context.Context, SpanContext) {
	if r.tracingCollector != nil {
		return r.tracingCollector.StartSpan(ctx, operation, attrs)
	}

	return ctx, nil
}

// finishTraceSpan finishes a tracing span if the tracing collector is configured.
func (r *Registry) finishTraceSpan(spanCtx SpanContext, status string, attrs map[string]string) {
	if r.tracingCollector != nil && spanCtx != nil {
		r.tracingCollector.FinishSpan(spanCtx, status, attrs)
	}
}

// notifyObserver delivers the notification to the configured observer, absorbing observer panics.
// The deposit is already committed at this point; a broken observer must not
// turn a recorded deposit into a reported failure.
func (r *Registry) notifyObserver(ctx context.Context, notification pooling.ContributionRecorded) {
	if r.observer == nil {
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			if r.logger != nil {
				r.logger.Warn(logMsgObserverPanicked, logAttrError, fmt.Sprintf("%v", recovered))
			}
		}
	}()

	r.observer.ContributionRecorded(ctx, notification)
}

// isRejectionError reports whether the error is one of the admission-check rejections.
func isRejectionError(err error) bool {
	return errors.Is(err, pooling.ErrInvalidWithdrawer) ||
		errors.Is(err, pooling.ErrInvalidAmount) ||
		errors.Is(err, pooling.ErrNotAMember) ||
		errors.Is(err, pooling.ErrAlreadyCollected) ||
		errors.Is(err, pooling.ErrAmountExceedsRemaining) ||
		errors.Is(err, pooling.ErrArithmeticOverflow) ||
		errors.Is(err, pooling.ErrGroupNotFound)
}

// rejectionReason maps an admission-check error to its metric label value.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, pooling.ErrInvalidWithdrawer):
		return reasonInvalidWithdrawer
	case errors.Is(err, pooling.ErrInvalidAmount):
		return reasonInvalidAmount
	case errors.Is(err, pooling.ErrNotAMember):
		return reasonNotAMember
	case errors.Is(err, pooling.ErrAlreadyCollected):
		return reasonAlreadyCollected
	case errors.Is(err, pooling.ErrAmountExceedsRemaining):
		return reasonAmountExceedsRemaining
	case errors.Is(err, pooling.ErrArithmeticOverflow):
		return reasonArithmeticOverflow
	case errors.Is(err, pooling.ErrGroupNotFound):
		return reasonGroupNotFound
	default:
		return reasonUnknown
	}
}

// errorTypeFor maps infrastructure errors to a coarse error type label.
func errorTypeFor(err error) string {
	switch {
	case errors.Is(err, pooling.ErrBeginningTxFailed), errors.Is(err, pooling.ErrCommittingTxFailed):
		return errorTypeTransaction
	default:
		return errorTypeDatabase
	}
}
