package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/AntonStoeckl/deposit-pooling-go/pooling"
	postgresengine "github.com/AntonStoeckl/deposit-pooling-go/pooling/postgresengine"
	. "github.com/AntonStoeckl/deposit-pooling-go/test"
	"github.com/AntonStoeckl/deposit-pooling-go/testutil/postgresengine/helper"
)

func Test_AddDeposit_RecordsSuccessMetrics_AndFinishesTheSpan(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metricsSpy := helper.NewMetricsCollectorSpy(true)
	tracingSpy := helper.NewTracingCollectorSpy(true)
	registry, connPool := setupRegistry(t, postgresengine.WithMetrics(metricsSpy), postgresengine.WithTracing(tracingSpy))
	defer connPool.Close()

	members := GivenGroupMembers(t, 2)
	group := GivenRegisteredGroup(t, registry, members, 100)

	// act
	_, err := registry.AddDeposit(ctxWithTimeout, group.ID, members[0], members[0], 40)

	// assert
	assert.NoError(t, err, "error in adding the deposit")
	assert.True(t, metricsSpy.HasDurationRecord("pooling_deposit_duration_seconds"))
	assert.True(t, metricsSpy.HasCounterRecord("pooling_deposits_recorded_total", map[string]string{
		"operation": "add_deposit",
		"status":    "success",
	}))
	assert.Equal(t, 0, metricsSpy.CountCounterRecords("pooling_deposits_rejected_total"))
	assert.Equal(t, 0, metricsSpy.CountCounterRecords("pooling_groups_ready_total"),
		"a partial deposit must not count the group as ready")
	assert.True(t, tracingSpy.HasFinishedSpan("pooling.add_deposit", "success"))
}

func Test_AddDeposit_RecordsGroupReadyMetric_WhenTheTargetIsReached(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metricsSpy := helper.NewMetricsCollectorSpy(true)
	registry, connPool := setupRegistry(t, postgresengine.WithMetrics(metricsSpy))
	defer connPool.Close()

	members := GivenGroupMembers(t, 2)
	group := GivenRegisteredGroup(t, registry, members, 100)

	// act
	_, firstErr := registry.AddDeposit(ctxWithTimeout, group.ID, members[0], members[0], 60)
	_, secondErr := registry.AddDeposit(ctxWithTimeout, group.ID, members[1], members[1], 40)

	// assert
	assert.NoError(t, firstErr, "error in adding the first deposit")
	assert.NoError(t, secondErr, "error in adding the second deposit")
	assert.Equal(t, 2, metricsSpy.CountCounterRecords("pooling_deposits_recorded_total"))
	assert.Equal(t, 1, metricsSpy.CountCounterRecords("pooling_groups_ready_total"),
		"only the deposit that completes the target counts the group as ready")
}

func Test_AddDeposit_RecordsRejectionMetrics_WithTheReasonLabel(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metricsSpy := helper.NewMetricsCollectorSpy(true)
	tracingSpy := helper.NewTracingCollectorSpy(true)
	registry, connPool := setupRegistry(t, postgresengine.WithMetrics(metricsSpy), postgresengine.WithTracing(tracingSpy))
	defer connPool.Close()

	members := GivenGroupMembers(t, 2)
	group := GivenRegisteredGroup(t, registry, members, 100)
	stranger := GivenUniqueIdentity(t)

	// act
	_, err := registry.AddDeposit(ctxWithTimeout, group.ID, stranger, stranger, 40)

	// assert
	assert.ErrorIs(t, err, ErrNotAMember)
	assert.True(t, metricsSpy.HasCounterRecord("pooling_deposits_rejected_total", map[string]string{
		"operation": "add_deposit",
		"status":    "rejected",
		"reason":    "not_a_member",
	}))
	assert.Equal(t, 0, metricsSpy.CountCounterRecords("pooling_deposits_recorded_total"),
		"a rejected deposit must not count as recorded")
	assert.False(t, metricsSpy.HasDurationRecord("pooling_deposit_duration_seconds"))
	assert.True(t, tracingSpy.HasFinishedSpan("pooling.add_deposit", "rejected"))

	for _, span := range tracingSpy.GetSpanRecords() {
		if span.Name == "pooling.add_deposit" {
			assert.Equal(t, "not_a_member", span.FinishAttrs["reason"])
		}
	}
}

func Test_RegisterGroup_RecordsMetrics_AndFinishesTheSpan(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metricsSpy := helper.NewMetricsCollectorSpy(true)
	tracingSpy := helper.NewTracingCollectorSpy(true)
	registry, connPool := setupRegistry(t, postgresengine.WithMetrics(metricsSpy), postgresengine.WithTracing(tracingSpy))
	defer connPool.Close()

	// act
	group, err := registry.RegisterGroup(ctxWithTimeout, GivenGroupMembers(t, 3), 500)

	// assert
	assert.NoError(t, err, "error in registering the group")
	assert.True(t, metricsSpy.HasDurationRecord("pooling_register_group_duration_seconds"))
	assert.True(t, metricsSpy.HasCounterRecord("pooling_groups_registered_total", map[string]string{
		"operation": "register_group",
		"status":    "success",
	}))
	assert.True(t, tracingSpy.HasFinishedSpan("pooling.register_group", "success"))

	spans := tracingSpy.GetSpanRecords()
	assert.Len(t, spans, 1)
	assert.Equal(t, group.ID.String(), spans[0].FinishAttrs["group_id"])
}

func Test_Queries_RecordQueryDurationMetrics(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metricsSpy := helper.NewMetricsCollectorSpy(true)
	registry, connPool := setupRegistry(t, postgresengine.WithMetrics(metricsSpy))
	defer connPool.Close()

	members := GivenGroupMembers(t, 2)
	group := GivenRegisteredGroup(t, registry, members, 100)
	GivenDepositWasRecorded(t, registry, group.ID, members[0], members[0], 40)
	metricsSpy.Reset()

	// act
	_, getGroupErr := registry.GetGroup(ctxWithTimeout, group.ID)
	_, balanceErr := registry.CollectorBalance(ctxWithTimeout, registry.CollectorID())

	// assert
	assert.NoError(t, getGroupErr, "error in getting the group")
	assert.NoError(t, balanceErr, "error in querying the collector balance")
	assert.True(t, metricsSpy.HasDurationRecord("pooling_query_duration_seconds"))
}

func Test_AddDeposit_PrefersTheContextualLogger_OverThePlainLogger(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	contextualLoggerSpy := helper.NewContextualLoggerSpy(true)
	registry, connPool := setupRegistry(t, postgresengine.WithContextualLogger(contextualLoggerSpy))
	defer connPool.Close()

	members := GivenGroupMembers(t, 2)
	group := GivenRegisteredGroup(t, registry, members, 100)
	contextualLoggerSpy.Reset()

	// act
	_, err := registry.AddDeposit(ctxWithTimeout, group.ID, members[0], members[0], 40)

	// assert
	assert.NoError(t, err, "error in adding the deposit")
	assert.True(t, contextualLoggerSpy.HasLogRecord("info", "registry operation: deposit recorded"))
	assert.Greater(t, contextualLoggerSpy.CountLogRecords("debug"), 0,
		"sql execution should be logged at debug level")
}

func Test_AddDeposit_LogsTheRejection_AtInfoLevel(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	contextualLoggerSpy := helper.NewContextualLoggerSpy(true)
	registry, connPool := setupRegistry(t, postgresengine.WithContextualLogger(contextualLoggerSpy))
	defer connPool.Close()

	members := GivenGroupMembers(t, 2)
	group := GivenRegisteredGroup(t, registry, members, 100)
	contextualLoggerSpy.Reset()

	// act
	_, err := registry.AddDeposit(ctxWithTimeout, group.ID, members[0], members[0], -5)

	// assert
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.True(t, contextualLoggerSpy.HasLogRecord("info", "registry operation: deposit rejected"))
	assert.Equal(t, 0, contextualLoggerSpy.CountLogRecords("error"),
		"an admission rejection is an expected outcome, not an error")
}
