// Package memory provides in-process implementations of the engine's
// repositories. They honour the same compare-and-set contracts as the
// Postgres implementations and back the "memory" storage driver and the
// service tests.
package memory
