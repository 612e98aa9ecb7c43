// Package storage persists subtask records as one document per period and
// keeps the operation audit log.
//
// Drivers:
//   - "memory": process-local, for tests and dry runs
//   - "file":   JSON documents under a directory (data/tarefas_YYYY_MM.json)
//   - "github": the same documents in a GitHub repository (Contents API)
//   - "sqlite": documents in a SQLite table (modernc.org/sqlite)
//
// Every driver implements optimistic concurrency: SavePeriod takes the version
// returned by LoadPeriod and fails with a *ConflictError if the stored
// document changed in between.
package storage
