// Package store provides the core commit-log model and collaborator contracts.
//
// # Overview
//
// This package defines the fundamental types and interfaces for a SQL-backed
// commit log:
//   - Commit: an immutable, durable batch of events appended to a stream
//   - CommitAttempt: the not-yet-durable candidate submitted by a caller
//   - Snapshot: a point-in-time compaction marker for a stream
//   - StreamHead: a derived view of streams that are due for snapshotting
//
// # Design Philosophy
//
// Clean Architecture: Core types are database-agnostic. Everything specific
// to SQL execution lives in the sqlstore package and its dialect packages.
//
// Immutability: Commits are value objects. A CommitAttempt has no checkpoint
// until the database assigns one; a Commit is never updated after insert.
//
// Pluggable collaborators: serialization, stream-id hashing and connection
// acquisition are interfaces so the engine stays free of wire formats and
// driver lifetimes.
//
// # Error Taxonomy
//
// Callers branch on typed conditions, not on message text:
//   - ErrDuplicateCommit: a retry of an already-durable commit (recoverable)
//   - ErrConcurrency: another writer won the same commit-sequence slot
//   - ErrStorageUnavailable: the database could not be reached
//   - ErrDisposed: the engine was already closed
//   - ErrInvalidArgument: bad input rejected before any database call
//
// Any other storage failure is reported as a *StorageError wrapping the
// driver's error. Vendor errors are classified exactly once, at the statement
// boundary; nothing above it inspects driver error types again.
package store
