// Command pooling-demo walks through the lifecycle of one deposit group:
// registration, a few contributions, a couple of rejected attempts, and the
// queries a client would run against the registry and the deposit ledger.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AntonStoeckl/deposit-pooling-go/example/shared/config"
	"github.com/AntonStoeckl/deposit-pooling-go/example/shared/shell"
	"github.com/AntonStoeckl/deposit-pooling-go/pooling"
	"github.com/AntonStoeckl/deposit-pooling-go/pooling/postgresengine"
)

var schemaDDL = []string{
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

// printingObserver forwards each notification the way an audit sink or
// message broker client would: as its serialized payload.
type printingObserver struct{}

func (printingObserver) ContributionRecorded(_ context.Context, c pooling.ContributionRecorded) {
	payload, err := c.PayloadToJSON()
	if err != nil {
		fmt.Println("  -> notification could not be serialized:", err)
		return
	}

	fmt.Printf("  -> notification: %s\n", payload)
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	settings := config.Load()

	connPool, err := pgxpool.NewWithConfig(ctx, config.PostgresPGXPoolConfig(settings))
	if err != nil {
		log.Fatal("Failed to connect to Postgres, error: ", err)
	}
	defer connPool.Close()

	for _, ddl := range schemaDDL {
		if _, ddlErr := connPool.Exec(ctx, ddl); ddlErr != nil {
			log.Fatal("Failed to create the registry schema, error: ", ddlErr)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	collectorID := uuid.New()

	registry, err := postgresengine.NewRegistryFromPGXPool(
		connPool,
		collectorID,
		postgresengine.WithMinDepositUnit(pooling.AmountInt64(settings.MinDepositUnit)),
		postgresengine.WithLogger(logger),
		postgresengine.WithContributionObserver(printingObserver{}),
	)
	if err != nil {
		log.Fatal("Failed to create the registry, error: ", err)
	}

	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()
	withdrawer := uuid.New()

	var group pooling.Group

	registerErr := shell.RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		var innerErr error
		group, innerErr = registry.RegisterGroup(ctx, []uuid.UUID{alice, bob, carol}, 1000)
		return innerErr
	})
	if registerErr != nil {
		log.Fatal("Failed to register the group, error: ", registerErr)
	}

	fmt.Printf("registered group %s (number %d) with target 1000\n", group.ID, group.Number)

	fmt.Println("\nalice contributes 400:")
	mustDeposit(ctx, registry, group.ID, withdrawer, alice, 400)

	fmt.Println("\nbob contributes 350:")
	mustDeposit(ctx, registry, group.ID, withdrawer, bob, 350)

	fmt.Println("\na stranger tries to contribute 100:")
	if _, depositErr := registry.AddDeposit(ctx, group.ID, withdrawer, uuid.New(), 100); depositErr != nil {
		fmt.Println("  rejected:", depositErr)
	}

	fmt.Println("\ncarol tries to contribute 300 (only 250 left):")
	if _, depositErr := registry.AddDeposit(ctx, group.ID, withdrawer, carol, 300); depositErr != nil {
		fmt.Println("  rejected:", depositErr)
	}

	fmt.Println("\ncarol contributes the remaining 250:")
	mustDeposit(ctx, registry, group.ID, withdrawer, carol, 250)

	fmt.Println("\nbob tries to contribute 1 to the ready group:")
	if _, depositErr := registry.AddDeposit(ctx, group.ID, withdrawer, bob, 1); depositErr != nil {
		fmt.Println("  rejected:", depositErr)
	}

	loaded, err := registry.GetGroup(ctx, group.ID)
	if err != nil {
		log.Fatal("Failed to query the group, error: ", err)
	}
	fmt.Printf("\ngroup state: collected %d of %d, target reached: %t\n",
		loaded.CollectedAmount, loaded.TargetAmount, loaded.TargetAmountCollected)

	entry, err := registry.GetLedgerEntry(ctx, collectorID, group.ID, alice, withdrawer)
	if err != nil {
		log.Fatal("Failed to query the ledger entry, error: ", err)
	}
	fmt.Printf("alice's ledger entry: %d\n", entry.Amount)

	filter := pooling.BuildLedgerFilter().
		Matching().
		AnyEntityOf(group.ID).
		Finalize()

	entries, err := registry.QueryLedger(ctx, filter)
	if err != nil {
		log.Fatal("Failed to query the ledger, error: ", err)
	}
	fmt.Printf("ledger entries for the group: %d\n", len(entries))

	balance, err := registry.CollectorBalance(ctx, collectorID)
	if err != nil {
		log.Fatal("Failed to query the collector balance, error: ", err)
	}
	fmt.Printf("collector balance: %d\n", balance)
}

func mustDeposit(
	ctx context.Context,
	registry *postgresengine.Registry,
	groupID uuid.UUID,
	withdrawerID uuid.UUID,
	contributorID uuid.UUID,
	amount pooling.AmountInt64,
) {
	if _, err := registry.AddDeposit(ctx, groupID, withdrawerID, contributorID, amount); err != nil {
		log.Fatal("Failed to add the deposit, error: ", err)
	}
}
