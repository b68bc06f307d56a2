package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventMessage is one opaque domain event carried inside a commit.
// Headers travel alongside the body so per-event metadata survives
// serialization round trips.
type EventMessage struct {
	// Headers contains per-event metadata.
	Headers map[string]interface{}

	// Body is the event payload. The engine never inspects it; the
	// configured EventSerializer owns its encoding.
	Body interface{}
}

// Commit is an immutable, durable batch of events appended to a stream.
// Commits are totally ordered across the whole store by CheckpointToken,
// which is assigned by the database at insert time and never client-supplied.
type Commit struct {
	// BucketID is the tenant/partition the stream lives in.
	BucketID string

	// StreamID is the caller-supplied stream identifier. The hashed storage
	// key is an implementation detail of the persistence layer and is not
	// surfaced here.
	StreamID string

	// StreamRevision is the revision of the last event included in this commit.
	StreamRevision int

	// CommitID is the idempotency token for this commit.
	CommitID uuid.UUID

	// CommitSequence is the 1-based ordinal of this commit within its stream.
	CommitSequence int

	// CommitStamp is the UTC instant the commit was persisted.
	CommitStamp time.Time

	// CheckpointToken is the store-wide, strictly increasing position
	// assigned by the database. It is the only safe global ordering key.
	CheckpointToken int64

	// Headers contains commit-level metadata.
	Headers map[string]interface{}

	// Events is the ordered list of events in this commit.
	Events []EventMessage
}

// CommitAttempt is the mutable, not-yet-durable candidate submitted by a
// caller. It carries the same fields as Commit minus the checkpoint, which
// only exists once the database has accepted the insert. A rejected attempt
// produces no Commit and no checkpoint advancement.
type CommitAttempt struct {
	BucketID       string
	StreamID       string
	StreamRevision int
	CommitID       uuid.UUID
	CommitSequence int
	CommitStamp    time.Time
	Headers        map[string]interface{}
	Events         []EventMessage
}

// Validate rejects attempts that must never reach the database.
func (a *CommitAttempt) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil commit attempt", ErrInvalidArgument)
	}
	if a.BucketID == "" {
		return fmt.Errorf("%w: bucket id is empty", ErrInvalidArgument)
	}
	if a.StreamID == "" {
		return fmt.Errorf("%w: stream id is empty", ErrInvalidArgument)
	}
	if a.CommitID == uuid.Nil {
		return fmt.Errorf("%w: commit id is zero", ErrInvalidArgument)
	}
	if a.CommitSequence <= 0 {
		return fmt.Errorf("%w: commit sequence %d is not positive", ErrInvalidArgument, a.CommitSequence)
	}
	if a.StreamRevision <= 0 {
		return fmt.Errorf("%w: stream revision %d is not positive", ErrInvalidArgument, a.StreamRevision)
	}
	if len(a.Events) == 0 {
		return fmt.Errorf("%w: attempt carries no events", ErrInvalidArgument)
	}
	return nil
}
