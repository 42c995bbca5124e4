package pooling

import (
	"errors"
	"math"
)

// AmountInt64 is a type alias for int64, representing a monetary value in the smallest integral unit.
type AmountInt64 = int64

// Contribution admission errors, one per fail-fast check of the validation chain.
var ErrInvalidWithdrawer = errors.New("withdrawer must not be the zero identity")
var ErrInvalidAmount = errors.New("amount must be positive and at least the minimal deposit unit")
var ErrNotAMember = errors.New("contributor is not a member of the group")
var ErrAlreadyCollected = errors.New("group has already collected its target amount")
var ErrAmountExceedsRemaining = errors.New("amount exceeds the remaining room of the group")
var ErrArithmeticOverflow = errors.New("amount addition would overflow")

// Lookup and infrastructure errors shared by the engine implementations.
var ErrGroupNotFound = errors.New("no group exists for the given group id")
var ErrLedgerEntryNotFound = errors.New("no ledger entry exists for the given key")
var ErrInvalidLedgerKey = errors.New("ledger key identities must not be the zero identity")
var ErrNilDatabaseConnection = errors.New("nil database connection supplied")
var ErrInvalidCollectorIdentity = errors.New("collector identity must not be the zero identity")
var ErrEmptyTableNameSupplied = errors.New("empty table name supplied")
var ErrInvalidMinDepositUnit = errors.New("minimal deposit unit must be positive")
var ErrNoMembersSupplied = errors.New("a group needs at least one member")
var ErrInvalidTargetAmount = errors.New("target amount must be positive")
var ErrBuildingQueryFailed = errors.New("building the sql query failed")
var ErrBeginningTxFailed = errors.New("beginning the database transaction failed")
var ErrCommittingTxFailed = errors.New("committing the database transaction failed")
var ErrQueryingGroupFailed = errors.New("querying the group failed")
var ErrQueryingLedgerFailed = errors.New("querying the deposit ledger failed")
var ErrRecordingDepositFailed = errors.New("recording the deposit failed")
var ErrRegisteringGroupFailed = errors.New("registering the group failed")
var ErrScanningDBRowFailed = errors.New("failed to scan database row")
var ErrGettingRowsAffectedFailed = errors.New("failed to get rows affected count")
var ErrConcurrencyConflict = errors.New("concurrency error, no rows were affected")

// AddAmounts adds two amounts with an overflow check.
//
// It is the only addition used for collected amounts and ledger totals, since
// both carry monetary semantics and must never wrap around silently.
func AddAmounts(a AmountInt64, b AmountInt64) (AmountInt64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrArithmeticOverflow
	}

	if b < 0 && a < math.MinInt64-b {
		return 0, ErrArithmeticOverflow
	}

	return a + b, nil
}
