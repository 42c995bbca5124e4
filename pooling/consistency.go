package pooling

import "context"

// ConsistencyLevel defines the consistency requirements for registry query operations.
type ConsistencyLevel int

const (
	// StrongConsistency requires reads from the primary database to ensure
	// read-after-write consistency. This is the default for registry
	// operations so a caller that just recorded a deposit immediately sees
	// the updated group and ledger state.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reads from replica databases, trading
	// consistency for performance. Suitable for pure query operations such
	// as balance dashboards that can tolerate slightly stale data.
	//
	// Deposits always execute on the primary regardless of this setting;
	// the remaining-room check must never run against stale values.
	EventualConsistency
)

// contextKey is a private type to prevent context key collisions.
type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "pooling.consistency_level"

// WithStrongConsistency returns a context that signals registry queries
// should use the primary database for strong consistency guarantees.
//
// Example usage:
//
//	ctx = pooling.WithStrongConsistency(ctx)
//	group, err := registry.GetGroup(ctx, groupID)
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that signals registry queries
// may use replica databases, trading consistency for performance and reduced
// primary database load.
//
// Example usage:
//
//	ctx = pooling.WithEventualConsistency(ctx)
//	balance, err := registry.CollectorBalance(ctx, collectorID)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context.
// If no consistency level is set, it returns StrongConsistency as the safe
// default for monetary bookkeeping.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String provides a string representation of ConsistencyLevel for logging and debugging.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
