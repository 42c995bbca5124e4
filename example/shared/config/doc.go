// Package config provides database and application configuration helpers
// for the example: collective deposit pooling towards a target amount.
//
// The database DSN and the minimal deposit unit are read from the
// environment so the demo can run against any Postgres instance without
// code changes.
package config
