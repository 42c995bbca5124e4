package pooling

import (
	"slices"
	"strconv"

	"github.com/google/uuid"
)

// GroupNumberInt64 is a type alias for int64, representing the monotonic sequence number a registry assigns to a group.
type GroupNumberInt64 = int64

// Group is the pooled-funding unit owned by a registry.
//
// It is a value type: the mutating operation RecordContribution returns an
// updated copy instead of modifying the receiver. The member set is fixed at
// group creation and CollectedAmount is monotonically non-decreasing while
// the group is open.
//
// Invariants, maintained by BuildGroup and RecordContribution:
//   - 0 <= CollectedAmount <= TargetAmount
//   - TargetAmountCollected == (CollectedAmount == TargetAmount)
type Group struct {
	ID                    uuid.UUID
	Number                GroupNumberInt64
	Members               []uuid.UUID
	TargetAmount          AmountInt64
	CollectedAmount       AmountInt64
	TargetAmountCollected bool
}

// BuildGroup is a factory method for Group.
//
// It rejects input that would violate the group invariants, so a Group that
// exists was valid at construction time.
func BuildGroup(
	id uuid.UUID,
	number GroupNumberInt64,
	members []uuid.UUID,
	targetAmount AmountInt64,
	collectedAmount AmountInt64,
) (Group, error) {

	if targetAmount <= 0 {
		return Group{}, ErrInvalidTargetAmount
	}

	if collectedAmount < 0 || collectedAmount > targetAmount {
		return Group{}, ErrInvalidAmount
	}

	sanitizedMembers := sanitizeIdentities(members)
	if len(sanitizedMembers) == 0 {
		return Group{}, ErrNoMembersSupplied
	}

	return Group{
		ID:                    id,
		Number:                number,
		Members:               sanitizedMembers,
		TargetAmount:          targetAmount,
		CollectedAmount:       collectedAmount,
		TargetAmountCollected: collectedAmount == targetAmount,
	}, nil
}

// GroupIDFromNumber derives the deterministic group id for a collector identity and a group sequence number.
// The same (collector, number) pair always maps to the same id.
func GroupIDFromNumber(collectorID uuid.UUID, number GroupNumberInt64) uuid.UUID {
	return uuid.NewSHA1(collectorID, []byte(strconv.FormatInt(number, 10)))
}

// HasMember reports whether the given identity belongs to the group's member set.
func (g Group) HasMember(contributorID uuid.UUID) bool {
	return slices.Contains(g.Members, contributorID)
}

// RemainingRoom returns how much more the group can collect before reaching its target amount.
func (g Group) RemainingRoom() AmountInt64 {
	return g.TargetAmount - g.CollectedAmount
}

// ValidateContribution runs the full admission chain for a contribution and
// returns the first failing check as a sentinel error, or nil if the
// contribution is acceptable.
//
// The checks run in a fixed order:
//  1. withdrawer must not be the zero identity -> ErrInvalidWithdrawer
//  2. amount must be strictly positive -> ErrInvalidAmount
//  3. amount must be at least minDepositUnit -> ErrInvalidAmount
//  4. contributor must be a group member -> ErrNotAMember
//  5. the group must still be open -> ErrAlreadyCollected
//  6. amount must fit into the remaining room -> ErrAmountExceedsRemaining
func (g Group) ValidateContribution(
	withdrawerID uuid.UUID,
	contributorID uuid.UUID,
	amount AmountInt64,
	minDepositUnit AmountInt64,
) error {

	if err := ValidateDepositInput(withdrawerID, amount, minDepositUnit); err != nil {
		return err
	}

	if !g.HasMember(contributorID) {
		return ErrNotAMember
	}

	if g.TargetAmountCollected {
		return ErrAlreadyCollected
	}

	if amount > g.RemainingRoom() {
		return ErrAmountExceedsRemaining
	}

	return nil
}

// ValidateDepositInput runs the group-independent admission checks (1-3 of the
// chain documented on ValidateContribution). Engines use it to reject garbage
// input before touching any group state.
func ValidateDepositInput(withdrawerID uuid.UUID, amount AmountInt64, minDepositUnit AmountInt64) error {
	if withdrawerID == uuid.Nil {
		return ErrInvalidWithdrawer
	}

	if amount <= 0 {
		return ErrInvalidAmount
	}

	if amount < minDepositUnit {
		return ErrInvalidAmount
	}

	return nil
}

// RecordContribution returns a copy of the group with the amount added to
// CollectedAmount. When the new collected amount equals the target amount the
// ready flag is set; that transition is one-way.
//
// The caller must have validated the contribution first; RecordContribution
// still refuses amounts that would break the group invariants so a skipped
// validation can never corrupt state.
func (g Group) RecordContribution(amount AmountInt64) (Group, error) {
	if amount <= 0 {
		return Group{}, ErrInvalidAmount
	}

	if g.TargetAmountCollected {
		return Group{}, ErrAlreadyCollected
	}

	if amount > g.RemainingRoom() {
		return Group{}, ErrAmountExceedsRemaining
	}

	newCollectedAmount, addErr := AddAmounts(g.CollectedAmount, amount)
	if addErr != nil {
		return Group{}, addErr
	}

	g.CollectedAmount = newCollectedAmount

	if g.CollectedAmount == g.TargetAmount {
		g.TargetAmountCollected = true
	}

	return g, nil
}

// sanitizeIdentities removes zero identities and duplicates and returns the identities sorted.
func sanitizeIdentities(identities []uuid.UUID) []uuid.UUID {
	sanitized := slices.Clone(identities)
	sanitized = slices.DeleteFunc(
		sanitized,
		func(id uuid.UUID) bool {
			return id == uuid.Nil
		})
	slices.SortFunc(sanitized, compareIdentities)
	sanitized = slices.Compact(sanitized)
	sanitized = slices.Clip(sanitized)

	return sanitized
}

func compareIdentities(a uuid.UUID, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}

			return 1
		}
	}

	return 0
}
