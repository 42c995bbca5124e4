package test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/deposit-pooling-go/pooling"
	"github.com/AntonStoeckl/deposit-pooling-go/pooling/postgresengine"
)

func GivenUniqueIdentity(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	assert.NoError(t, err, "error in arranging test data")

	return id
}

func GivenGroupMembers(t testing.TB, howMany int) []uuid.UUID {
	members := make([]uuid.UUID, 0, howMany)

	for i := 0; i < howMany; i++ {
		members = append(members, GivenUniqueIdentity(t))
	}

	return members
}

func GivenRegisteredGroup(
	t testing.TB,
	registry *postgresengine.Registry,
	members []uuid.UUID,
	targetAmount pooling.AmountInt64,
) pooling.Group {

	group, err := registry.RegisterGroup(context.Background(), members, targetAmount)
	assert.NoError(t, err, "error in arranging test data")

	return group
}

func GivenDepositWasRecorded(
	t testing.TB,
	registry *postgresengine.Registry,
	groupID uuid.UUID,
	withdrawerID uuid.UUID,
	contributorID uuid.UUID,
	amount pooling.AmountInt64,
) pooling.ContributionRecorded {

	notification, err := registry.AddDeposit(context.Background(), groupID, withdrawerID, contributorID, amount)
	assert.NoError(t, err, "error in arranging test data")

	return notification
}

// RecordingContributionObserver captures every notification it receives so
// tests can assert on delivery order and payloads.
type RecordingContributionObserver struct {
	mu            sync.Mutex
	notifications []pooling.ContributionRecorded
}

func NewRecordingContributionObserver() *RecordingContributionObserver {
	return &RecordingContributionObserver{}
}

func (o *RecordingContributionObserver) ContributionRecorded(_ context.Context, contribution pooling.ContributionRecorded) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.notifications = append(o.notifications, contribution)
}

func (o *RecordingContributionObserver) Notifications() []pooling.ContributionRecorded {
	o.mu.Lock()
	defer o.mu.Unlock()

	captured := make([]pooling.ContributionRecorded, len(o.notifications))
	copy(captured, o.notifications)

	return captured
}

// PanickyContributionObserver always panics, for verifying that observer
// failures never affect the outcome of a deposit.
type PanickyContributionObserver struct{}

func (o PanickyContributionObserver) ContributionRecorded(_ context.Context, _ pooling.ContributionRecorded) {
	panic("observer blew up")
}

// EnsurePoolingSchema creates the registry tables if they do not exist yet.
func EnsurePoolingSchema(t testing.TB, connPool *pgxpool.Pool) {
	ddlStatements := []string{
		`CREATE TABLE IF NOT EXISTS pool_groups (
			group_id uuid PRIMARY KEY,
			group_number bigint NOT NULL,
			target_amount bigint NOT NULL,
			collected_amount bigint NOT NULL DEFAULT 0,
			target_amount_collected boolean NOT NULL DEFAULT false,
			UNIQUE (group_number)
		)`,
		`CREATE TABLE IF NOT EXISTS pool_group_members (
			group_id uuid NOT NULL REFERENCES pool_groups (group_id),
			member_id uuid NOT NULL,
			PRIMARY KEY (group_id, member_id)
		)`,
		`CREATE TABLE IF NOT EXISTS deposit_ledger (
			entry_id bigserial PRIMARY KEY,
			collector_id uuid NOT NULL,
			entity_id uuid NOT NULL,
			sender_id uuid NOT NULL,
			withdrawer_id uuid NOT NULL,
			amount bigint NOT NULL,
			UNIQUE (collector_id, entity_id, sender_id, withdrawer_id)
		)`,
	}

	for _, ddl := range ddlStatements {
		_, err := connPool.Exec(context.Background(), ddl)
		assert.NoError(t, err, "error creating the registry schema")
	}
}

// CleanUpPoolingTables truncates all registry tables between tests.
func CleanUpPoolingTables(t testing.TB, connPool *pgxpool.Pool) {
	_, err := connPool.Exec(
		context.Background(),
		"TRUNCATE TABLE deposit_ledger, pool_group_members, pool_groups RESTART IDENTITY",
	)

	assert.NoError(t, err, "error cleaning up the registry tables")
	fmt.Println("registry tables truncated")
}
