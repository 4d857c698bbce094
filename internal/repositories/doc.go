// Package repositories implements SQLite persistence for the development record service.
//
// Each repository handles CRUD operations with atomic sequence generation for stable ordering.
// Records support soft deletes via deleted_at timestamps and deleted rows are excluded from queries by default.
//
// Key Implementations:
//   - [UserEntryRepository] : view-history records, unique per (user, entry, object type)
//   - [SessionRepository] : ks values accepted by the service and the user each one belongs to
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
