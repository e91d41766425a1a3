// Package sqlite provides a SQLite implementation of the docgraph stores.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database serves every store:
//
//   - DocumentStore and ChunkStore: documents, chunks and their embeddings
//   - EntityStore: entities, aliases, mentions and relationships
//   - SchedulerStore: scheduled task state and run history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Embeddings
//
// Embeddings are stored as little-endian float32 blobs and scored in Go
// by the search service.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
