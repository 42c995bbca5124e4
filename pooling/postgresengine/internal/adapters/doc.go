// Package adapters provide database adapter implementations for the PostgreSQL pooling registry.
//
// This package implements the adapter pattern to support multiple PostgreSQL database libraries:
// pgxpool.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, allowing the registry to work seamlessly with any
// supported database connection type.
//
// Besides plain query execution the adapters expose transactions, since every
// deposit runs validation, group update and ledger append inside one
// all-or-nothing database transaction.
package adapters
