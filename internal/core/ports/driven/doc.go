// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - FileStorage: Raw document bytes
//   - TextExtractor: Bytes to plain text, per file type
//   - DocumentStore, ChunkStore, EntityStore: Relational persistence
//   - JobBroker: Durable job queue
//   - SchedulerStore: Scheduled task state
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingProvider: Without it, deterministic mock embeddings are used.
//   - LLMService: Without it, entity extraction runs offline heuristics.
//   - GraphMirror: Without it, the knowledge graph lives only in the datastore.
//   - TokenCounter: Without it, tokens are estimated from character counts.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
