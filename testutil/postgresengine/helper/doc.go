// Package helper provides observability test doubles for registry tests:
// spies for metrics, tracing, and contextual logging that capture every call
// so tests can assert on the instrumentation of deposits and registrations.
package helper
