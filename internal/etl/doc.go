// Package etl implements the file-ingestion pipeline: extraction of raw
// rows from CSV/XLSX files, transformation into validated transaction
// records, and orchestration of the per-file load cycle.
//
// The package has no direct database dependency. Persistence goes
// through the Store interface, implemented by internal/store on top of
// PostgreSQL. This keeps the row-level logic (header aliasing, type
// coercion, derived calendar fields, in-batch deduplication) testable
// without a running database.
//
// Data-quality faults never escape as errors: each input row resolves
// to a tagged outcome — accepted, rejected with a reason code, or
// duplicate. Only structural faults (unreadable file, missing required
// columns, empty input, database failures) surface as errors, and the
// orchestrator records them and moves on to the next file.
package etl
