package pooling

import (
	"github.com/google/uuid"
)

// LedgerEntries is an alias type for a slice of LedgerEntry
type LedgerEntries = []LedgerEntry

// LedgerEntry is one logical record of the append-only deposit ledger.
//
// It accumulates the total amount a sender has contributed to one entity
// under one collector, for the benefit of one withdrawer. Entries are only
// ever created or incremented, never removed or decremented.
//
// While its properties are exported, it should only be constructed with the
// BuildLedgerEntry factory method or read back from an engine query.
type LedgerEntry struct {
	Collector  uuid.UUID
	EntityID   uuid.UUID
	Sender     uuid.UUID
	Withdrawer uuid.UUID
	Amount     AmountInt64
}

// ValidateLedgerKey rejects ledger key tuples containing the zero identity.
//
// A zero identity in any key dimension can never address a stored entry, so
// both entry construction and exact-key lookups must fail instead of
// silently matching something else.
func ValidateLedgerKey(
	collectorID uuid.UUID,
	entityID uuid.UUID,
	senderID uuid.UUID,
	withdrawerID uuid.UUID,
) error {

	if collectorID == uuid.Nil {
		return ErrInvalidCollectorIdentity
	}

	if entityID == uuid.Nil || senderID == uuid.Nil {
		return ErrInvalidLedgerKey
	}

	if withdrawerID == uuid.Nil {
		return ErrInvalidWithdrawer
	}

	return nil
}

// BuildLedgerEntry is a factory method for LedgerEntry.
//
// It rejects zero identities in the key tuple and non-positive initial
// amounts, since an entry only comes into existence through an accepted
// contribution.
func BuildLedgerEntry(
	collectorID uuid.UUID,
	entityID uuid.UUID,
	senderID uuid.UUID,
	withdrawerID uuid.UUID,
	amount AmountInt64,
) (LedgerEntry, error) {

	if keyErr := ValidateLedgerKey(collectorID, entityID, senderID, withdrawerID); keyErr != nil {
		return LedgerEntry{}, keyErr
	}

	if amount <= 0 {
		return LedgerEntry{}, ErrInvalidAmount
	}

	return LedgerEntry{
		Collector:  collectorID,
		EntityID:   entityID,
		Sender:     senderID,
		Withdrawer: withdrawerID,
		Amount:     amount,
	}, nil
}

// Accumulate returns a copy of the entry with the amount added to its
// cumulative total. Only positive amounts are accepted and the addition is
// overflow-checked, which keeps the accumulation strictly monotonic.
func (e LedgerEntry) Accumulate(amount AmountInt64) (LedgerEntry, error) {
	if amount <= 0 {
		return LedgerEntry{}, ErrInvalidAmount
	}

	newAmount, addErr := AddAmounts(e.Amount, amount)
	if addErr != nil {
		return LedgerEntry{}, addErr
	}

	e.Amount = newAmount

	return e, nil
}
