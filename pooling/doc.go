// Package pooling provides core abstractions and types for collective,
// target-amount deposit pooling.
//
// A Group is a pooled-funding unit with a fixed target amount and a fixed
// member set. Independent contributors fund the group until the target amount
// is reached, at which point the group transitions to its terminal ready
// state. Every accepted contribution is also appended to a deposit ledger,
// an append-only record keyed by (collector, entity, sender, withdrawer)
// that accumulates per-sender totals and is never decremented.
//
// This package defines the pure pooling state machine, the error taxonomy for
// rejected contributions, the ledger filter builder used by engine queries,
// and the common observability interfaces.
//
// Key types:
//   - Group: the pooling state machine (membership, amount bounds, ready state)
//   - LedgerEntry: cumulative-amount record for one ledger key tuple
//   - ContributionRecorded: notification emitted once per accepted contribution
//   - LedgerFilter: criteria for querying ledger entries
//
// Common usage pattern:
//
//	filter := BuildLedgerFilter().
//		Matching().
//		AnyEntityOf(groupID).
//		AndAnySenderOf(contributorID).
//		Finalize()
//
//	entries, err := registry.QueryLedger(ctx, filter)
//	if err != nil {
//		// handle error
//	}
package pooling
