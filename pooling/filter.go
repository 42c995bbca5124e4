package pooling

import (
	"slices"

	"github.com/google/uuid"
)

/***** LedgerFilter *****/

// LedgerFilter defines criteria for querying deposit ledger entries.
//
// Each dimension narrows the result to entries whose key matches ANY of the
// given identities; the dimensions themselves combine with AND. An empty
// dimension does not narrow the result.
type LedgerFilter struct {
	collectors  []uuid.UUID
	entities    []uuid.UUID
	senders     []uuid.UUID
	withdrawers []uuid.UUID
}

func (f LedgerFilter) Collectors() []uuid.UUID {
	return f.collectors
}

func (f LedgerFilter) Entities() []uuid.UUID {
	return f.entities
}

func (f LedgerFilter) Senders() []uuid.UUID {
	return f.senders
}

func (f LedgerFilter) Withdrawers() []uuid.UUID {
	return f.withdrawers
}

// IsEmpty reports whether the filter narrows nothing, i.e. matches every ledger entry.
func (f LedgerFilter) IsEmpty() bool {
	return len(f.collectors) == 0 && len(f.entities) == 0 && len(f.senders) == 0 && len(f.withdrawers) == 0
}

/***** LedgerFilterBuilder *****/

// LedgerFilterBuilder builds a generic ledger filter to be used in DB type-specific engine implementations
// to build queries for the specific query language, e.g.: Postgres, Mysql, ...
// It is designed with the idea to only allow "useful" filter combinations over the ledger key tuple:
//
//   - empty filter (every entry)
//   - (collector)
//   - (entity)
//   - (collector AND entity)
//   - (entity AND sender)
//   - (collector AND entity AND sender AND withdrawer) -> one exact key
//   - any of the above with multiple identities per dimension (OR within the dimension)
type LedgerFilterBuilder interface {
	// Matching starts defining filter dimensions.
	Matching() EmptyLedgerFilterBuilder

	// MatchingAnyEntry directly creates an empty LedgerFilter.
	MatchingAnyEntry() LedgerFilter
}

type EmptyLedgerFilterBuilder interface {
	// AnyCollectorOf adds one or multiple collector identities to the filter.
	//
	// It sanitizes the input:
	//	- removing zero identities
	//	- sorting the identities
	//	- removing duplicate identities
	AnyCollectorOf(collectorID uuid.UUID, collectorIDs ...uuid.UUID) CompletableLedgerFilterBuilder

	// AnyEntityOf adds one or multiple entity identifiers to the filter, sanitizing the input like AnyCollectorOf.
	AnyEntityOf(entityID uuid.UUID, entityIDs ...uuid.UUID) CompletableLedgerFilterBuilder

	// AnySenderOf adds one or multiple sender identities to the filter, sanitizing the input like AnyCollectorOf.
	AnySenderOf(senderID uuid.UUID, senderIDs ...uuid.UUID) CompletableLedgerFilterBuilder

	// AnyWithdrawerOf adds one or multiple withdrawer identities to the filter, sanitizing the input like AnyCollectorOf.
	AnyWithdrawerOf(withdrawerID uuid.UUID, withdrawerIDs ...uuid.UUID) CompletableLedgerFilterBuilder
}

type CompletableLedgerFilterBuilder interface {
	// AndAnyCollectorOf adds one or multiple collector identities to the filter, sanitized like the Any* methods.
	AndAnyCollectorOf(collectorID uuid.UUID, collectorIDs ...uuid.UUID) CompletableLedgerFilterBuilder

	// AndAnyEntityOf adds one or multiple entity identifiers to the filter, sanitized like the Any* methods.
	AndAnyEntityOf(entityID uuid.UUID, entityIDs ...uuid.UUID) CompletableLedgerFilterBuilder

	// AndAnySenderOf adds one or multiple sender identities to the filter, sanitized like the Any* methods.
	AndAnySenderOf(senderID uuid.UUID, senderIDs ...uuid.UUID) CompletableLedgerFilterBuilder

	// AndAnyWithdrawerOf adds one or multiple withdrawer identities to the filter, sanitized like the Any* methods.
	AndAnyWithdrawerOf(withdrawerID uuid.UUID, withdrawerIDs ...uuid.UUID) CompletableLedgerFilterBuilder

	// Finalize returns the LedgerFilter once at least one dimension has at least one identity.
	Finalize() LedgerFilter
}

// ledgerFilterBuilder implements all the interfaces of LedgerFilterBuilder
type ledgerFilterBuilder struct {
	filter LedgerFilter
}

// BuildLedgerFilter creates a LedgerFilterBuilder which must eventually be finalized with Finalize() or MatchingAnyEntry().
func BuildLedgerFilter() LedgerFilterBuilder {
	return ledgerFilterBuilder{}
}

// Matching starts defining filter dimensions.
func (fb ledgerFilterBuilder) Matching() EmptyLedgerFilterBuilder {
	return fb
}

// MatchingAnyEntry directly creates an empty LedgerFilter.
func (fb ledgerFilterBuilder) MatchingAnyEntry() LedgerFilter {
	return fb.filter
}

// AnyCollectorOf adds one or multiple collector identities to the filter.
func (fb ledgerFilterBuilder) AnyCollectorOf(collectorID uuid.UUID, collectorIDs ...uuid.UUID) CompletableLedgerFilterBuilder {
	fb.filter.collectors = append(fb.filter.collectors, sanitizeFilterIdentities(collectorID, collectorIDs...)...)

	return fb
}

// AndAnyCollectorOf adds one or multiple collector identities to the filter.
func (fb ledgerFilterBuilder) AndAnyCollectorOf(collectorID uuid.UUID, collectorIDs ...uuid.UUID) CompletableLedgerFilterBuilder {
	return fb.AnyCollectorOf(collectorID, collectorIDs...)
}

// AnyEntityOf adds one or multiple entity identifiers to the filter.
func (fb ledgerFilterBuilder) AnyEntityOf(entityID uuid.UUID, entityIDs ...uuid.UUID) CompletableLedgerFilterBuilder {
	fb.filter.entities = append(fb.filter.entities, sanitizeFilterIdentities(entityID, entityIDs...)...)

	return fb
}

// AndAnyEntityOf adds one or multiple entity identifiers to the filter.
func (fb ledgerFilterBuilder) AndAnyEntityOf(entityID uuid.UUID, entityIDs ...uuid.UUID) CompletableLedgerFilterBuilder {
	return fb.AnyEntityOf(entityID, entityIDs...)
}

// AnySenderOf adds one or multiple sender identities to the filter.
func (fb ledgerFilterBuilder) AnySenderOf(senderID uuid.UUID, senderIDs ...uuid.UUID) CompletableLedgerFilterBuilder {
	fb.filter.senders = append(fb.filter.senders, sanitizeFilterIdentities(senderID, senderIDs...)...)

	return fb
}

// AndAnySenderOf adds one or multiple sender identities to the filter.
func (fb ledgerFilterBuilder) AndAnySenderOf(senderID uuid.UUID, senderIDs ...uuid.UUID) CompletableLedgerFilterBuilder {
	return fb.AnySenderOf(senderID, senderIDs...)
}

// AnyWithdrawerOf adds one or multiple withdrawer identities to the filter.
func (fb ledgerFilterBuilder) AnyWithdrawerOf(withdrawerID uuid.UUID, withdrawerIDs ...uuid.UUID) CompletableLedgerFilterBuilder {
	fb.filter.withdrawers = append(fb.filter.withdrawers, sanitizeFilterIdentities(withdrawerID, withdrawerIDs...)...)

	return fb
}

// AndAnyWithdrawerOf adds one or multiple withdrawer identities to the filter.
func (fb ledgerFilterBuilder) AndAnyWithdrawerOf(withdrawerID uuid.UUID, withdrawerIDs ...uuid.UUID) CompletableLedgerFilterBuilder {
	return fb.AnyWithdrawerOf(withdrawerID, withdrawerIDs...)
}

// Finalize returns the LedgerFilter once at least one dimension has at least one identity.
func (fb ledgerFilterBuilder) Finalize() LedgerFilter {
	return fb.filter
}

// sanitizeFilterIdentities removes zero identities and duplicates and returns the identities sorted.
func sanitizeFilterIdentities(identity uuid.UUID, identities ...uuid.UUID) []uuid.UUID {
	allIdentities := append([]uuid.UUID{identity}, identities...)
	allIdentities = slices.DeleteFunc(
		allIdentities,
		func(id uuid.UUID) bool {
			return id == uuid.Nil
		})
	slices.SortFunc(allIdentities, compareIdentities)
	allIdentities = slices.Compact(allIdentities)
	allIdentities = slices.Clip(allIdentities)

	return allIdentities
}
