package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"

	. "github.com/AntonStoeckl/deposit-pooling-go/pooling"
	postgresengine "github.com/AntonStoeckl/deposit-pooling-go/pooling/postgresengine"
	. "github.com/AntonStoeckl/deposit-pooling-go/test"
	"github.com/AntonStoeckl/deposit-pooling-go/test/userland/config"
)

// setupRegistryWithReplica wires a primary and a separate replica pool against
// the same test database, so replica routing can be exercised without replica
// lag getting in the way of assertions.
func setupRegistryWithReplica(t testing.TB, options ...postgresengine.Option) (*postgresengine.Registry, *pgxpool.Pool, *pgxpool.Pool) {
	primaryPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
	assert.NoError(t, err, "error connecting to the primary DB pool in test setup")

	replicaPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
	assert.NoError(t, err, "error connecting to the replica DB pool in test setup")

	EnsurePoolingSchema(t, primaryPool)
	CleanUpPoolingTables(t, primaryPool)

	registry, err := postgresengine.NewRegistryFromPGXPoolWithReplica(primaryPool, replicaPool, GivenUniqueIdentity(t), options...)
	assert.NoError(t, err, "creating the registry failed")

	return registry, primaryPool, replicaPool
}

func Test_ConsistencyRouting_DefaultsToStrongConsistency(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	registry, primaryPool, replicaPool := setupRegistryWithReplica(t)
	defer primaryPool.Close()
	defer replicaPool.Close()

	// arrange
	members := GivenGroupMembers(t, 2)
	group := GivenRegisteredGroup(t, registry, members, 100)
	GivenDepositWasRecorded(t, registry, group.ID, members[0], members[0], 40)

	// act - no consistency level on the context defaults to the primary
	loaded, err := registry.GetGroup(ctxWithTimeout, group.ID)

	// assert - read-after-write consistency holds without any opt-in
	assert.NoError(t, err, "error in getting the group")
	assert.Equal(t, AmountInt64(40), loaded.CollectedAmount)
}

func Test_ConsistencyRouting_EventualConsistency_RoutesQueriesToTheReplica(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	registry, primaryPool, replicaPool := setupRegistryWithReplica(t)
	defer primaryPool.Close()
	defer replicaPool.Close()

	// arrange
	members := GivenGroupMembers(t, 2)
	group := GivenRegisteredGroup(t, registry, members, 100)
	GivenDepositWasRecorded(t, registry, group.ID, members[0], members[0], 40)

	// act
	strongGroup, strongErr := registry.GetGroup(WithStrongConsistency(ctxWithTimeout), group.ID)
	eventualGroup, eventualErr := registry.GetGroup(WithEventualConsistency(ctxWithTimeout), group.ID)
	eventualBalance, balanceErr := registry.CollectorBalance(WithEventualConsistency(ctxWithTimeout), registry.CollectorID())

	// assert - both pools point at the same database, so both routes must agree
	assert.NoError(t, strongErr, "error in the strongly consistent read")
	assert.NoError(t, eventualErr, "error in the eventually consistent read")
	assert.NoError(t, balanceErr, "error in the eventually consistent balance query")
	assert.Equal(t, strongGroup.CollectedAmount, eventualGroup.CollectedAmount)
	assert.Equal(t, AmountInt64(40), eventualBalance)
}

func Test_ConsistencyRouting_DepositsAlwaysExecuteOnThePrimary(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	registry, primaryPool, replicaPool := setupRegistryWithReplica(t)
	defer primaryPool.Close()
	defer replicaPool.Close()

	// arrange
	members := GivenGroupMembers(t, 2)
	group := GivenRegisteredGroup(t, registry, members, 100)

	// act - an eventual-consistency context must not move the write path
	notification, depositErr := registry.AddDeposit(
		WithEventualConsistency(ctxWithTimeout), group.ID, members[0], members[0], 100)

	// assert - the deposit committed on the primary and a strong read sees it
	assert.NoError(t, depositErr, "error in adding the deposit")
	assert.True(t, notification.TargetAmountCollected)

	loaded, err := registry.GetGroup(WithStrongConsistency(ctxWithTimeout), group.ID)
	assert.NoError(t, err, "error in getting the group")
	assert.Equal(t, AmountInt64(100), loaded.CollectedAmount)
	assert.True(t, loaded.TargetAmountCollected)
}
