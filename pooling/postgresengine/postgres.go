package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/deposit-pooling-go/pooling"
	"github.com/AntonStoeckl/deposit-pooling-go/pooling/postgresengine/internal/adapters"
)

const (
	defaultGroupTableName  = "pool_groups"
	defaultMemberTableName = "pool_group_members"
	defaultLedgerTableName = "deposit_ledger"
	defaultMinDepositUnit  = pooling.AmountInt64(1)

	logMsgBuildQueryFailed      = "failed to build sql query"
	logMsgDBQueryFailed         = "database query execution failed"
	logMsgDBExecFailed          = "database execution failed"
	logMsgBeginTxFailed         = "failed to begin database transaction"
	logMsgCommitTxFailed        = "failed to commit database transaction"
	logMsgRollbackTxFailed      = "failed to roll back database transaction"
	logMsgCloseRowsFailed       = "failed to close database rows"
	logMsgScanRowFailed         = "failed to scan database row"
	logMsgRowsAffectedFailed    = "failed to get rows affected count"
	logMsgDepositRejected       = "deposit rejected"
	logMsgDepositRecorded       = "deposit recorded"
	logMsgGroupRegistered       = "group registered"
	logMsgQueryCompleted        = "query completed"
	logMsgConcurrencyConflict   = "concurrency conflict detected"
	logMsgObserverPanicked      = "contribution observer panicked"
	logMsgLedgerUpdated         = "deposit ledger entry updated"
	logMsgSQLExecuted           = "executed sql for: "
	logMsgOperation             = "registry operation: "
	logAttrError                = "error"
	logAttrQuery                = "query"
	logAttrGroupID              = "group_id"
	logAttrGroupNumber          = "group_number"
	logAttrSenderID             = "sender_id"
	logAttrWithdrawerID         = "withdrawer_id"
	logAttrAmount               = "amount"
	logAttrCollectedAmount      = "collected_amount"
	logAttrCumulativeAmount     = "cumulative_amount"
	logAttrTargetReached        = "target_reached"
	logAttrEntryCount           = "entry_count"
	logAttrDurationMS           = "duration_ms"
	logAttrReason               = "reason"
	logActionAddDeposit         = "add_deposit"
	logActionRegisterGroup      = "register_group"
	logActionGetGroup           = "get_group"
	logActionGetLedgerEntry     = "get_ledger_entry"
	logActionQueryLedger        = "query_ledger"
	logActionCollectorBalance   = "collector_balance"
	colGroupID                  = "group_id"
	colGroupNumber              = "group_number"
	colTargetAmount             = "target_amount"
	colCollectedAmount          = "collected_amount"
	colTargetAmountCollected    = "target_amount_collected"
	colMemberID                 = "member_id"
	colEntryID                  = "entry_id"
	colCollectorID              = "collector_id"
	colEntityID                 = "entity_id"
	colSenderID                 = "sender_id"
	colWithdrawerID             = "withdrawer_id"
	colAmount                   = "amount"
	ledgerConflictTargetColumns = colCollectorID + ", " + colEntityID + ", " + colSenderID + ", " + colWithdrawerID
	dialectPostgres             = "postgres"
	castTextSuffix              = "::text"
	aliasMaxGroupNumber         = "max_group_number"
)

type (
	sqlQueryString    = string
	rowsAffectedInt64 = int64
	queryDuration     = time.Duration
)

// Registry is the PostgreSQL-backed group pool registry and deposit ledger.
//
// It owns the group records, enforces the contribution admission rules and
// appends accepted contributions to the append-only deposit ledger. Group
// update and ledger append for one deposit share a single database
// transaction, so every deposit is applied all-or-nothing.
//
// The registry records itself as the collector identity of every ledger
// entry it appends; the ledger tables are never written by anything else.
type Registry struct {
	db               adapters.DBAdapter
	collectorID      uuid.UUID
	groupTableName   string
	memberTableName  string
	ledgerTableName  string
	minDepositUnit   pooling.AmountInt64
	observer         pooling.ContributionObserver
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// NewRegistryFromPGXPool creates a new Registry using a pgx pool with optional configuration.
func NewRegistryFromPGXPool(db *pgxpool.Pool, collectorID uuid.UUID, options ...Option) (*Registry, error) {
	if db == nil {
		return nil, pooling.ErrNilDatabaseConnection
	}

	return newRegistry(adapters.NewPGXAdapter(db), collectorID, options...)
}

// NewRegistryFromPGXPoolWithReplica creates a new Registry using a primary pgx pool
// and a replica pool for eventually consistent query operations.
func NewRegistryFromPGXPoolWithReplica(db *pgxpool.Pool, replica *pgxpool.Pool, collectorID uuid.UUID, options ...Option) (*Registry, error) {
	if db == nil || replica == nil {
		return nil, pooling.ErrNilDatabaseConnection
	}

	return newRegistry(adapters.NewPGXAdapterWithReplica(db, replica), collectorID, options...)
}

// NewRegistryFromSQLDB creates a new Registry using a sql.DB with optional configuration.
func NewRegistryFromSQLDB(db *sql.DB, collectorID uuid.UUID, options ...Option) (*Registry, error) {
	if db == nil {
		return nil, pooling.ErrNilDatabaseConnection
	}

	return newRegistry(adapters.NewSQLAdapter(db), collectorID, options...)
}

// NewRegistryFromSQLX creates a new Registry using a sqlx.DB with optional configuration.
func NewRegistryFromSQLX(db *sqlx.DB, collectorID uuid.UUID, options ...Option) (*Registry, error) {
	if db == nil {
		return nil, pooling.ErrNilDatabaseConnection
	}

	return newRegistry(adapters.NewSQLXAdapter(db), collectorID, options...)
}

func newRegistry(db adapters.DBAdapter, collectorID uuid.UUID, options ...Option) (*Registry, error) {
	if collectorID == uuid.Nil {
		return nil, pooling.ErrInvalidCollectorIdentity
	}

	registry := &Registry{
		db:              db,
		collectorID:     collectorID,
		groupTableName:  defaultGroupTableName,
		memberTableName: defaultMemberTableName,
		ledgerTableName: defaultLedgerTableName,
		minDepositUnit:  defaultMinDepositUnit,
	}

	for _, option := range options {
		if err := option(registry); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// CollectorID returns the identity this registry records as the collector of every ledger entry.
func (r *Registry) CollectorID() uuid.UUID {
	return r.collectorID
}

// MinDepositUnit returns the configured global deposit granularity.
func (r *Registry) MinDepositUnit() pooling.AmountInt64 {
	return r.minDepositUnit
}

// RegisterGroup creates a new group with the given member set and target
// amount and returns the stored group record.
//
// The group id is derived deterministically from the registry's collector
// identity and the next group sequence number. Concurrent registrations can
// collide on the sequence number; the losing call fails with
// pooling.ErrConcurrencyConflict and can simply be retried.
func (r *Registry) RegisterGroup(
	ctx context.Context,
	members []uuid.UUID,
	targetAmount pooling.AmountInt64,
) (pooling.Group, error) {

	var empty pooling.Group

	start := time.Now()
	spanCtx, span := r.startTraceSpan(ctx, spanNameRegisterGroup, map[string]string{
		spanAttrOperation: logActionRegisterGroup,
	})

	group, err := r.registerGroupInTx(spanCtx, members, targetAmount)
	duration := time.Since(start)

	if err != nil {
		r.finishTraceSpan(span, statusError, nil)
		r.recordErrorMetricsContext(spanCtx, logActionRegisterGroup, errorTypeFor(err))

		return empty, err
	}

	r.finishTraceSpan(span, statusSuccess, map[string]string{logAttrGroupID: group.ID.String()})
	r.recordDurationMetricsContext(spanCtx, metricRegisterDuration, duration, logActionRegisterGroup, statusSuccess)
	r.incrementCounterContext(spanCtx, metricGroupsRegistered, logActionRegisterGroup, statusSuccess)

	r.logOperation(spanCtx, logMsgGroupRegistered,
		logAttrGroupID, group.ID.String(),
		logAttrGroupNumber, group.Number,
		logAttrDurationMS, r.toMilliseconds(duration))

	return group, nil
}

func (r *Registry) registerGroupInTx(
	ctx context.Context,
	members []uuid.UUID,
	targetAmount pooling.AmountInt64,
) (pooling.Group, error) {

	var empty pooling.Group

	tx, beginErr := r.db.BeginTx(ctx)
	if beginErr != nil {
		r.logError(ctx, logMsgBeginTxFailed, beginErr)
		return empty, errors.Join(pooling.ErrBeginningTxFailed, beginErr)
	}
	defer r.rollbackTx(ctx, tx)

	nextNumber, numberErr := r.queryNextGroupNumber(ctx, tx)
	if numberErr != nil {
		return empty, numberErr
	}

	groupID := pooling.GroupIDFromNumber(r.collectorID, nextNumber)

	group, buildErr := pooling.BuildGroup(groupID, nextNumber, members, targetAmount, 0)
	if buildErr != nil {
		return empty, buildErr
	}

	if insertErr := r.insertGroup(ctx, tx, group); insertErr != nil {
		return empty, insertErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		r.logError(ctx, logMsgCommitTxFailed, commitErr)
		return empty, errors.Join(pooling.ErrCommittingTxFailed, commitErr)
	}

	return group, nil
}

// AddDeposit validates and records one contribution to a group.
//
// The admission checks run in a fixed fail-fast order (invalid withdrawer,
// invalid amount, membership, ready state, remaining room); the first failing
// check aborts the call with its sentinel error and no state change. On
// success the group's collected amount is increased, the matching deposit
// ledger entry is created or incremented inside the same transaction, and a
// pooling.ContributionRecorded notification is returned and delivered to the
// configured observer.
func (r *Registry) AddDeposit(
	ctx context.Context,
	groupID uuid.UUID,
	withdrawerID uuid.UUID,
	contributorID uuid.UUID,
	amount pooling.AmountInt64,
) (pooling.ContributionRecorded, error) {

	var empty pooling.ContributionRecorded

	start := time.Now()
	spanCtx, span := r.startTraceSpan(ctx, spanNameAddDeposit, map[string]string{
		spanAttrOperation: logActionAddDeposit,
		logAttrGroupID:    groupID.String(),
	})

	if inputErr := pooling.ValidateDepositInput(withdrawerID, amount, r.minDepositUnit); inputErr != nil {
		r.rejectDeposit(spanCtx, span, groupID, inputErr)
		return empty, inputErr
	}

	notification, err := r.addDepositInTx(spanCtx, groupID, withdrawerID, contributorID, amount)
	duration := time.Since(start)

	if err != nil {
		if isRejectionError(err) {
			r.rejectDeposit(spanCtx, span, groupID, err)
		} else {
			r.finishTraceSpan(span, statusError, nil)
			r.recordErrorMetricsContext(spanCtx, logActionAddDeposit, errorTypeFor(err))
		}

		return empty, err
	}

	r.finishTraceSpan(span, statusSuccess, map[string]string{
		logAttrCollectedAmount: fmt.Sprintf("%d", notification.NewCollectedAmount),
	})
	r.recordDurationMetricsContext(spanCtx, metricDepositDuration, duration, logActionAddDeposit, statusSuccess)
	r.incrementCounterContext(spanCtx, metricDepositsRecorded, logActionAddDeposit, statusSuccess)

	if notification.TargetAmountCollected {
		r.incrementCounterContext(spanCtx, metricGroupsReady, logActionAddDeposit, statusSuccess)
	}

	r.logOperation(spanCtx, logMsgDepositRecorded,
		logAttrGroupID, groupID.String(),
		logAttrSenderID, contributorID.String(),
		logAttrWithdrawerID, withdrawerID.String(),
		logAttrAmount, amount,
		logAttrCollectedAmount, notification.NewCollectedAmount,
		logAttrTargetReached, notification.TargetAmountCollected,
		logAttrDurationMS, r.toMilliseconds(duration))

	r.notifyObserver(spanCtx, notification)

	return notification, nil
}

func (r *Registry) addDepositInTx(
	ctx context.Context,
	groupID uuid.UUID,
	withdrawerID uuid.UUID,
	contributorID uuid.UUID,
	amount pooling.AmountInt64,
) (pooling.ContributionRecorded, error) {

	var empty pooling.ContributionRecorded

	tx, beginErr := r.db.BeginTx(ctx)
	if beginErr != nil {
		r.logError(ctx, logMsgBeginTxFailed, beginErr)
		return empty, errors.Join(pooling.ErrBeginningTxFailed, beginErr)
	}
	defer r.rollbackTx(ctx, tx)

	group, loadErr := r.loadGroupForUpdate(ctx, tx, groupID)
	if loadErr != nil {
		return empty, loadErr
	}

	if validationErr := group.ValidateContribution(withdrawerID, contributorID, amount, r.minDepositUnit); validationErr != nil {
		return empty, validationErr
	}

	updatedGroup, recordErr := group.RecordContribution(amount)
	if recordErr != nil {
		return empty, recordErr
	}

	if updateErr := r.updateGroupCollectedAmount(ctx, tx, group, updatedGroup); updateErr != nil {
		return empty, updateErr
	}

	cumulativeAmount, appendErr := r.appendLedgerEntry(ctx, tx, groupID, contributorID, withdrawerID, amount)
	if appendErr != nil {
		return empty, appendErr
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		r.logError(ctx, logMsgCommitTxFailed, commitErr)
		return empty, errors.Join(pooling.ErrCommittingTxFailed, commitErr)
	}

	r.logOperation(ctx, logMsgLedgerUpdated, logAttrCumulativeAmount, cumulativeAmount)

	return pooling.ContributionRecorded{
		GroupID:               groupID,
		Sender:                contributorID,
		Withdrawer:            withdrawerID,
		Amount:                amount,
		NewCollectedAmount:    updatedGroup.CollectedAmount,
		TargetAmountCollected: updatedGroup.TargetAmountCollected,
		OccurredAt:            time.Now().UTC(),
	}, nil
}

// GetGroup returns the group record for the given id, including its member set.
func (r *Registry) GetGroup(ctx context.Context, groupID uuid.UUID) (pooling.Group, error) {
	var empty pooling.Group

	sqlQuery, buildErr := r.buildSelectGroupQuery(groupID, false)
	if buildErr != nil {
		return empty, buildErr
	}

	rows, duration, queryErr := r.executeQuery(ctx, sqlQuery, logActionGetGroup)
	if queryErr != nil {
		return empty, errors.Join(pooling.ErrQueryingGroupFailed, queryErr)
	}
	defer r.closeRows(rows)

	groupRow, found, scanErr := r.scanGroupRow(rows)
	if scanErr != nil {
		return empty, scanErr
	}

	if !found {
		return empty, pooling.ErrGroupNotFound
	}

	members, membersErr := r.queryGroupMembers(ctx, nil, groupID)
	if membersErr != nil {
		return empty, membersErr
	}

	group, buildGroupErr := pooling.BuildGroup(groupRow.id, groupRow.number, members, groupRow.targetAmount, groupRow.collectedAmount)
	if buildGroupErr != nil {
		return empty, buildGroupErr
	}

	r.logOperation(ctx, logMsgQueryCompleted,
		logAttrGroupID, groupID.String(),
		logAttrDurationMS, r.toMilliseconds(duration))

	return group, nil
}

// GetLedgerEntry returns the cumulative ledger entry for one exact
// (collector, entity, sender, withdrawer) key tuple.
func (r *Registry) GetLedgerEntry(
	ctx context.Context,
	collectorID uuid.UUID,
	entityID uuid.UUID,
	senderID uuid.UUID,
	withdrawerID uuid.UUID,
) (pooling.LedgerEntry, error) {

	var empty pooling.LedgerEntry

	// A zero identity would vanish from the filter and degrade the lookup
	// to a partial-key match returning some other tuple's amount.
	if keyErr := pooling.ValidateLedgerKey(collectorID, entityID, senderID, withdrawerID); keyErr != nil {
		return empty, keyErr
	}

	filter := pooling.BuildLedgerFilter().
		Matching().
		AnyCollectorOf(collectorID).
		AndAnyEntityOf(entityID).
		AndAnySenderOf(senderID).
		AndAnyWithdrawerOf(withdrawerID).
		Finalize()

	entries, queryErr := r.QueryLedger(ctx, filter)
	if queryErr != nil {
		return empty, queryErr
	}

	if len(entries) == 0 {
		return empty, pooling.ErrLedgerEntryNotFound
	}

	return entries[0], nil
}

// QueryLedger returns the deposit ledger entries matching the given filter, ordered by entry id.
func (r *Registry) QueryLedger(ctx context.Context, filter pooling.LedgerFilter) (pooling.LedgerEntries, error) {
	var empty pooling.LedgerEntries

	sqlQuery, buildErr := r.buildSelectLedgerQuery(filter)
	if buildErr != nil {
		return empty, buildErr
	}

	rows, duration, queryErr := r.executeQuery(ctx, sqlQuery, logActionQueryLedger)
	if queryErr != nil {
		return empty, errors.Join(pooling.ErrQueryingLedgerFailed, queryErr)
	}
	defer r.closeRows(rows)

	entries, scanErr := r.scanLedgerRows(rows)
	if scanErr != nil {
		return empty, scanErr
	}

	r.logOperation(ctx, logMsgQueryCompleted,
		logAttrEntryCount, len(entries),
		logAttrDurationMS, r.toMilliseconds(duration))

	return entries, nil
}

// CollectorBalance returns the sum of all ledger amounts currently held by
// the given collector, pending ready-state consumption.
func (r *Registry) CollectorBalance(ctx context.Context, collectorID uuid.UUID) (pooling.AmountInt64, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(r.ledgerTableName).
		Select(goqu.COALESCE(goqu.SUM(colAmount), 0)).
		Where(goqu.Ex{colCollectorID: collectorID.String()})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		r.logError(context.Background(), logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(pooling.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, duration, queryErr := r.executeQuery(ctx, sqlQuery, logActionCollectorBalance)
	if queryErr != nil {
		return 0, errors.Join(pooling.ErrQueryingLedgerFailed, queryErr)
	}
	defer r.closeRows(rows)

	var balance pooling.AmountInt64

	if rows.Next() {
		if scanErr := rows.Scan(&balance); scanErr != nil {
			r.logError(ctx, logMsgScanRowFailed, scanErr)
			return 0, errors.Join(pooling.ErrScanningDBRowFailed, scanErr)
		}
	}

	r.logOperation(ctx, logMsgQueryCompleted,
		logAttrAmount, balance,
		logAttrDurationMS, r.toMilliseconds(duration))

	return balance, nil
}

/***** transaction step helpers *****/

// loadGroupForUpdate locks and loads the group row plus its member set inside the transaction.
// The row lock serializes concurrent deposits to the same group, so the
// remaining-room check always runs against current state.
func (r *Registry) loadGroupForUpdate(ctx context.Context, tx adapters.DBTx, groupID uuid.UUID) (pooling.Group, error) {
	var empty pooling.Group

	sqlQuery, buildErr := r.buildSelectGroupQuery(groupID, true)
	if buildErr != nil {
		return empty, buildErr
	}

	rows, queryErr := tx.Query(ctx, sqlQuery)
	if queryErr != nil {
		r.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return empty, errors.Join(pooling.ErrQueryingGroupFailed, queryErr)
	}

	groupRow, found, scanErr := r.scanGroupRow(rows)
	r.closeRows(rows)

	if scanErr != nil {
		return empty, scanErr
	}

	if !found {
		return empty, pooling.ErrGroupNotFound
	}

	members, membersErr := r.queryGroupMembers(ctx, tx, groupID)
	if membersErr != nil {
		return empty, membersErr
	}

	return pooling.BuildGroup(groupRow.id, groupRow.number, members, groupRow.targetAmount, groupRow.collectedAmount)
}

// updateGroupCollectedAmount persists the new collected amount, guarded by the
// previous collected amount so a lost row lock can never double-apply.
func (r *Registry) updateGroupCollectedAmount(
	ctx context.Context,
	tx adapters.DBTx,
	previous pooling.Group,
	updated pooling.Group,
) error {

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(r.groupTableName).
		Set(goqu.Record{
			colCollectedAmount:       updated.CollectedAmount,
			colTargetAmountCollected: updated.TargetAmountCollected,
		}).
		Where(goqu.Ex{
			colGroupID:         previous.ID.String(),
			colCollectedAmount: previous.CollectedAmount,
		})

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		r.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return errors.Join(pooling.ErrBuildingQueryFailed, toSQLErr)
	}

	result, execErr := tx.Exec(ctx, sqlQuery)
	if execErr != nil {
		r.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(pooling.ErrRecordingDepositFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		r.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		return errors.Join(pooling.ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	if rowsAffected != 1 {
		r.logOperation(ctx, logMsgConcurrencyConflict,
			logAttrGroupID, previous.ID.String(),
			logAttrCollectedAmount, previous.CollectedAmount)

		return pooling.ErrConcurrencyConflict
	}

	return nil
}

// appendLedgerEntry creates or increments the ledger entry for the key tuple
// and returns the new cumulative amount for that tuple.
func (r *Registry) appendLedgerEntry(
	ctx context.Context,
	tx adapters.DBTx,
	entityID uuid.UUID,
	senderID uuid.UUID,
	withdrawerID uuid.UUID,
	amount pooling.AmountInt64,
) (pooling.AmountInt64, error) {

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(r.ledgerTableName).
		Cols(colCollectorID, colEntityID, colSenderID, colWithdrawerID, colAmount).
		Vals(goqu.Vals{
			r.collectorID.String(),
			entityID.String(),
			senderID.String(),
			withdrawerID.String(),
			amount,
		}).
		OnConflict(goqu.DoUpdate(
			ledgerConflictTargetColumns,
			goqu.Record{colAmount: goqu.L(fmt.Sprintf("%s.%s + excluded.%s", r.ledgerTableName, colAmount, colAmount))},
		)).
		Returning(goqu.C(colAmount))

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		r.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(pooling.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := tx.Query(ctx, sqlQuery)
	if queryErr != nil {
		r.logError(ctx, logMsgDBExecFailed, queryErr, logAttrQuery, sqlQuery)
		return 0, errors.Join(pooling.ErrRecordingDepositFailed, queryErr)
	}
	defer r.closeRows(rows)

	var cumulativeAmount pooling.AmountInt64

	if !rows.Next() {
		return 0, pooling.ErrRecordingDepositFailed
	}

	if scanErr := rows.Scan(&cumulativeAmount); scanErr != nil {
		r.logError(ctx, logMsgScanRowFailed, scanErr)
		return 0, errors.Join(pooling.ErrScanningDBRowFailed, scanErr)
	}

	return cumulativeAmount, nil
}

func (r *Registry) queryNextGroupNumber(ctx context.Context, tx adapters.DBTx) (pooling.GroupNumberInt64, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(r.groupTableName).
		Select(goqu.COALESCE(goqu.MAX(colGroupNumber), 0).As(aliasMaxGroupNumber))

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		r.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return 0, errors.Join(pooling.ErrBuildingQueryFailed, toSQLErr)
	}

	rows, queryErr := tx.Query(ctx, sqlQuery)
	if queryErr != nil {
		r.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return 0, errors.Join(pooling.ErrRegisteringGroupFailed, queryErr)
	}
	defer r.closeRows(rows)

	var maxGroupNumber pooling.GroupNumberInt64

	if rows.Next() {
		if scanErr := rows.Scan(&maxGroupNumber); scanErr != nil {
			r.logError(ctx, logMsgScanRowFailed, scanErr)
			return 0, errors.Join(pooling.ErrScanningDBRowFailed, scanErr)
		}
	}

	return maxGroupNumber + 1, nil
}

func (r *Registry) insertGroup(ctx context.Context, tx adapters.DBTx, group pooling.Group) error {
	builder := goqu.Dialect(dialectPostgres)

	groupStmt := builder.
		Insert(r.groupTableName).
		Cols(colGroupID, colGroupNumber, colTargetAmount, colCollectedAmount, colTargetAmountCollected).
		Vals(goqu.Vals{
			group.ID.String(),
			group.Number,
			group.TargetAmount,
			group.CollectedAmount,
			group.TargetAmountCollected,
		})

	memberVals := make([][]interface{}, 0, len(group.Members))
	for _, memberID := range group.Members {
		memberVals = append(memberVals, goqu.Vals{group.ID.String(), memberID.String()})
	}

	memberStmt := builder.
		Insert(r.memberTableName).
		Cols(colGroupID, colMemberID).
		Vals(memberVals...)

	groupQuery, _, groupSQLErr := groupStmt.ToSQL()
	if groupSQLErr != nil {
		r.logError(ctx, logMsgBuildQueryFailed, groupSQLErr)
		return errors.Join(pooling.ErrBuildingQueryFailed, groupSQLErr)
	}

	memberQuery, _, memberSQLErr := memberStmt.ToSQL()
	if memberSQLErr != nil {
		r.logError(ctx, logMsgBuildQueryFailed, memberSQLErr)
		return errors.Join(pooling.ErrBuildingQueryFailed, memberSQLErr)
	}

	for _, sqlQuery := range []sqlQueryString{groupQuery, memberQuery} {
		if _, execErr := tx.Exec(ctx, sqlQuery); execErr != nil {
			r.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)

			// A duplicate group number means another registration won the race.
			return errors.Join(pooling.ErrRegisteringGroupFailed, pooling.ErrConcurrencyConflict, execErr)
		}
	}

	return nil
}

/***** query building and scanning *****/

type groupRow struct {
	id              uuid.UUID
	number          pooling.GroupNumberInt64
	targetAmount    pooling.AmountInt64
	collectedAmount pooling.AmountInt64
	targetCollected bool
}

func (r *Registry) buildSelectGroupQuery(groupID uuid.UUID, forUpdate bool) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(r.groupTableName).
		Select(
			goqu.L(colGroupID+castTextSuffix),
			goqu.C(colGroupNumber),
			goqu.C(colTargetAmount),
			goqu.C(colCollectedAmount),
			goqu.C(colTargetAmountCollected),
		).
		Where(goqu.Ex{colGroupID: groupID.String()})

	if forUpdate {
		selectStmt = selectStmt.ForUpdate(exp.Wait)
	}

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		r.logError(context.Background(), logMsgBuildQueryFailed, toSQLErr)
		return "", errors.Join(pooling.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// scanGroupRow scans at most one group row; found is false when the result set was empty.
func (r *Registry) scanGroupRow(rows adapters.DBRows) (groupRow, bool, error) {
	var row groupRow
	var idText string

	if !rows.Next() {
		return row, false, nil
	}

	if scanErr := rows.Scan(&idText, &row.number, &row.targetAmount, &row.collectedAmount, &row.targetCollected); scanErr != nil {
		r.logError(context.Background(), logMsgScanRowFailed, scanErr)
		return row, false, errors.Join(pooling.ErrScanningDBRowFailed, scanErr)
	}

	id, parseErr := uuid.Parse(idText)
	if parseErr != nil {
		return row, false, errors.Join(pooling.ErrScanningDBRowFailed, parseErr)
	}

	row.id = id

	return row, true, nil
}

// queryGroupMembers loads the member set, inside the given transaction when tx is not nil.
func (r *Registry) queryGroupMembers(ctx context.Context, tx adapters.DBTx, groupID uuid.UUID) ([]uuid.UUID, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(r.memberTableName).
		Select(goqu.L(colMemberID + castTextSuffix)).
		Where(goqu.Ex{colGroupID: groupID.String()}).
		Order(goqu.I(colMemberID).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		r.logError(ctx, logMsgBuildQueryFailed, toSQLErr)
		return nil, errors.Join(pooling.ErrBuildingQueryFailed, toSQLErr)
	}

	var rows adapters.DBRows
	var queryErr error

	if tx != nil {
		rows, queryErr = tx.Query(ctx, sqlQuery)
	} else {
		rows, queryErr = r.db.Query(ctx, sqlQuery)
	}

	if queryErr != nil {
		r.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(pooling.ErrQueryingGroupFailed, queryErr)
	}
	defer r.closeRows(rows)

	members := make([]uuid.UUID, 0)

	for rows.Next() {
		var memberText string

		if scanErr := rows.Scan(&memberText); scanErr != nil {
			r.logError(ctx, logMsgScanRowFailed, scanErr)
			return nil, errors.Join(pooling.ErrScanningDBRowFailed, scanErr)
		}

		memberID, parseErr := uuid.Parse(memberText)
		if parseErr != nil {
			return nil, errors.Join(pooling.ErrScanningDBRowFailed, parseErr)
		}

		members = append(members, memberID)
	}

	return members, nil
}

func (r *Registry) buildSelectLedgerQuery(filter pooling.LedgerFilter) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(r.ledgerTableName).
		Select(
			goqu.L(colCollectorID+castTextSuffix),
			goqu.L(colEntityID+castTextSuffix),
			goqu.L(colSenderID+castTextSuffix),
			goqu.L(colWithdrawerID+castTextSuffix),
			goqu.C(colAmount),
		).
		Order(goqu.I(colEntryID).Asc())

	selectStmt = r.addLedgerWhereClause(filter, selectStmt)

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		r.logError(context.Background(), logMsgBuildQueryFailed, toSQLErr)
		return "", errors.Join(pooling.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// addLedgerWhereClause narrows the ledger query per filter dimension.
// Identities within one dimension combine with OR (rendered as IN),
// the dimensions themselves combine with AND.
func (r *Registry) addLedgerWhereClause(filter pooling.LedgerFilter, selectStmt *goqu.SelectDataset) *goqu.SelectDataset {
	dimensionExpressions := make([]goqu.Expression, 0)

	if collectors := filter.Collectors(); len(collectors) > 0 {
		dimensionExpressions = append(dimensionExpressions, goqu.Ex{colCollectorID: identityStrings(collectors)})
	}

	if entities := filter.Entities(); len(entities) > 0 {
		dimensionExpressions = append(dimensionExpressions, goqu.Ex{colEntityID: identityStrings(entities)})
	}

	if senders := filter.Senders(); len(senders) > 0 {
		dimensionExpressions = append(dimensionExpressions, goqu.Ex{colSenderID: identityStrings(senders)})
	}

	if withdrawers := filter.Withdrawers(); len(withdrawers) > 0 {
		dimensionExpressions = append(dimensionExpressions, goqu.Ex{colWithdrawerID: identityStrings(withdrawers)})
	}

	if len(dimensionExpressions) == 0 {
		return selectStmt
	}

	return selectStmt.Where(goqu.And(dimensionExpressions...))
}

func (r *Registry) scanLedgerRows(rows adapters.DBRows) (pooling.LedgerEntries, error) {
	entries := make(pooling.LedgerEntries, 0)

	for rows.Next() {
		var collectorText, entityText, senderText, withdrawerText string
		var amount pooling.AmountInt64

		if scanErr := rows.Scan(&collectorText, &entityText, &senderText, &withdrawerText, &amount); scanErr != nil {
			r.logError(context.Background(), logMsgScanRowFailed, scanErr)
			return nil, errors.Join(pooling.ErrScanningDBRowFailed, scanErr)
		}

		entry, buildErr := buildLedgerEntryFromTexts(collectorText, entityText, senderText, withdrawerText, amount)
		if buildErr != nil {
			return nil, buildErr
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func buildLedgerEntryFromTexts(
	collectorText string,
	entityText string,
	senderText string,
	withdrawerText string,
	amount pooling.AmountInt64,
) (pooling.LedgerEntry, error) {

	var empty pooling.LedgerEntry
	ids := make([]uuid.UUID, 0, 4)

	for _, text := range []string{collectorText, entityText, senderText, withdrawerText} {
		id, parseErr := uuid.Parse(text)
		if parseErr != nil {
			return empty, errors.Join(pooling.ErrScanningDBRowFailed, parseErr)
		}

		ids = append(ids, id)
	}

	return pooling.BuildLedgerEntry(ids[0], ids[1], ids[2], ids[3], amount)
}

// executeQuery executes the SQL query on the adapter and returns rows with timing information.
func (r *Registry) executeQuery(ctx context.Context, sqlQuery string, action string) (
	adapters.DBRows,
	queryDuration,
	error,
) {

	start := time.Now()
	rows, queryErr := r.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	r.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if queryErr != nil {
		r.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		r.recordErrorMetricsContext(ctx, action, errorTypeDatabase)

		return nil, duration, queryErr
	}

	r.recordDurationMetricsContext(ctx, metricQueryDuration, duration, action, statusSuccess)

	return rows, duration, nil
}

// closeRows safely closes database rows and logs any errors.
func (r *Registry) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if r.logger != nil {
			r.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// rollbackTx rolls the transaction back; harmless after a successful commit.
func (r *Registry) rollbackTx(ctx context.Context, tx adapters.DBTx) {
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
		if r.logger != nil {
			r.logger.Warn(logMsgRollbackTxFailed, logAttrError, rollbackErr.Error())
		}
	}
}

func identityStrings(ids []uuid.UUID) []string {
	texts := make([]string, 0, len(ids))
	for _, id := range ids {
		texts = append(texts, id.String())
	}

	return texts
}
