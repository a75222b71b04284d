// Package postgres implements the engine's repositories on PostgreSQL
// through database/sql and lib/pq. Every enrollment write is a single
// conditional UPDATE; a lost race surfaces as domain.ErrStaleEnrollment.
package postgres
