package store

// Snapshot is a point-in-time compaction marker: the materialized state of a
// stream as of StreamRevision. Multiple snapshots may exist per stream; only
// the latest one at or below a requested revision is ever relevant.
// Snapshots are created explicitly, never mutated, and purged with the stream.
type Snapshot struct {
	BucketID string
	StreamID string

	// StreamRevision is the revision this snapshot covers up to.
	StreamRevision int

	// Payload is the snapshotted state, encoded by the configured Serializer.
	Payload interface{}
}

// StreamHead is a derived view, never stored: a stream whose distance between
// the newest commit and the newest snapshot exceeds a threshold. It feeds a
// snapshot-scheduling collaborator.
type StreamHead struct {
	BucketID string
	StreamID string

	// HeadRevision is the stream's highest committed revision.
	HeadRevision int

	// SnapshotRevision is the highest snapshotted revision, zero if none.
	SnapshotRevision int
}
