package store

import (
	"context"
	"database/sql"
)

// Serializer encodes and decodes single values, such as commit headers and
// snapshot payloads.
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}

// CommitMeta carries the already-decoded identity of a commit to the event
// serializer, so event decoding can vary per stream or per bucket if needed.
type CommitMeta struct {
	BucketID       string
	StreamID       string
	CommitSequence int
}

// EventSerializer encodes and decodes the event list of a commit as a single
// payload column.
type EventSerializer interface {
	SerializeEvents(events []EventMessage) ([]byte, error)
	DeserializeEvents(data []byte, meta CommitMeta) ([]EventMessage, error)
}

// StreamIDHasher maps a caller-supplied stream id onto the fixed-width key
// actually stored and indexed. Implementations must be deterministic and
// produce values no longer than 40 characters.
type StreamIDHasher interface {
	Hash(streamID string) string
}

// ConnectionFactory yields database connections for the engine. Every
// operation acquires a dedicated connection and returns it when done, so a
// factory backed by *sql.DB gets pool reuse for free.
type ConnectionFactory interface {
	Open(ctx context.Context) (*sql.Conn, error)
}

// DBConnectionFactory adapts a *sql.DB into a ConnectionFactory.
type DBConnectionFactory struct {
	DB *sql.DB
}

func (f *DBConnectionFactory) Open(ctx context.Context) (*sql.Conn, error) {
	return f.DB.Conn(ctx)
}

// CommitObserver receives commits pushed during a catch-up replay.
// OnNext returning an error stops the replay; OnError or OnCompleted is then
// invoked exactly once to terminate the observation.
type CommitObserver interface {
	OnNext(ctx context.Context, commit *Commit) error
	OnError(err error)
	OnCompleted()
}
