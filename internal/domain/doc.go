// Package domain defines the core types of the sequence execution engine:
// sequence definitions, per-contact enrollments, and delivery events.
//
// Types in this package are value objects. They carry no database handles and
// no HTTP concerns, and are shared by handlers, services, and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation and pure query methods are allowed
//   - Constants and enums belong here
package domain
