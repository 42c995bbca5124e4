// Package postgresengine provides the PostgreSQL implementation of the group
// pool registry and its deposit ledger.
//
// The Registry owns the group records, enforces membership and amount-bound
// rules, advances each group's collection state and appends every accepted
// contribution to the deposit ledger. Group update and ledger append happen
// inside one database transaction, so a rejected or failed deposit leaves no
// trace anywhere.
//
// It supports multiple database connection types (pgxpool.Pool, sql.DB,
// sqlx.DB) through an internal adapter layer, and is configured with
// functional options for table names, the minimal deposit unit, logging,
// metrics, tracing and contribution observers.
package postgresengine
