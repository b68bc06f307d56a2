package sqlstore

import (
	"context"
	"database/sql"
	"time"
)

// Parameter names shared by every dialect's statement text. Statement text
// references them as @Name tokens (or :Name for Oracle); the binder resolves
// only the tokens actually present in a given statement.
const (
	ParamBucketID           = "BucketId"
	ParamStreamID           = "StreamId"
	ParamStreamIDOriginal   = "StreamIdOriginal"
	ParamStreamRevision     = "StreamRevision"
	ParamMaxStreamRevision  = "MaxStreamRevision"
	ParamItems              = "Items"
	ParamCommitID           = "CommitId"
	ParamCommitSequence     = "CommitSequence"
	ParamCommitStamp        = "CommitStamp"
	ParamCommitStampStart   = "CommitStampStart"
	ParamCommitStampEnd     = "CommitStampEnd"
	ParamCheckpointNumber   = "CheckpointNumber"
	ParamToCheckpointNumber = "ToCheckpointNumber"
	ParamHeaders            = "Headers"
	ParamPayload            = "Payload"
	ParamThreshold          = "Threshold"
	ParamLimit              = "Limit"
	ParamSkip               = "Skip"
)

// Column positions in every commit-returning result set. All dialects select
// the same columns in the same order so row decoding stays vendor-neutral.
const (
	colBucketID = iota
	colStreamID
	colStreamIDOriginal
	colStreamRevision
	colCommitID
	colCommitSequence
	colCommitStamp
	colCheckpointNumber
	colHeaders
	colPayload
)

// Column positions in the streams-requiring-snapshots result set.
const (
	headColBucketID = iota
	headColStreamID
	headColStreamIDOriginal
	headColHeadRevision
	headColSnapshotRevision
)

// Column positions in the snapshot result set.
const (
	snapColBucketID = iota
	snapColStreamID
	snapColStreamRevision
	snapColPayload
)

// BindStyle describes how a driver expects statement parameters.
type BindStyle int

const (
	// BindNamedAt keeps @Name tokens in the text and passes sql.Named
	// arguments. Used by SQL Server and SQLite.
	BindNamedAt BindStyle = iota

	// BindNamedColon keeps :Name tokens and passes sql.Named arguments.
	// Used by Oracle.
	BindNamedColon

	// BindDollar rewrites tokens to $1..$n, one ordinal per distinct name.
	// Used by PostgreSQL.
	BindDollar

	// BindQuestion rewrites every token occurrence to ?, repeating the
	// value per occurrence. Used by MySQL and Firebird.
	BindQuestion
)

// Statements is the full set of SQL text a dialect must supply. Every entry
// is a complete vendor-specific statement; nothing is rewritten at run time
// beyond parameter binding.
type Statements struct {
	InitializeStorage string
	PurgeStorage      string
	PurgeBucket       string
	Drop              string
	DeleteStream      string

	PersistCommit   string
	DuplicateCommit string

	GetCommitsFromStartingRevision      string
	GetCommitsFromInstant               string
	GetCommitsFromToInstant             string
	GetCommitsFromCheckpoint            string
	GetCommitsFromToCheckpoint          string
	GetCommitsFromBucketAndCheckpoint   string
	GetCommitsFromToBucketAndCheckpoint string

	GetSnapshot                  string
	AppendSnapshotToCommit       string
	GetStreamsRequiringSnapshots string
}

// Dialect abstracts one SQL vendor: its statement text, parameter binding
// convention, value coercions, transaction defaults and duplicate-key
// classification. Implementations live in the dialects subpackages.
type Dialect interface {
	// Name identifies the vendor, e.g. "postgres".
	Name() string

	// Statements returns the vendor's statement set.
	Statements() Statements

	// BindStyle returns the driver's parameter convention.
	BindStyle() BindStyle

	// CoalesceParameterValue coerces a parameter value into the shape the
	// driver stores, e.g. UUIDs to raw bytes or timestamps to ticks.
	CoalesceParameterValue(v interface{}) interface{}

	// ToTime decodes a CommitStamp column value back into a UTC instant.
	ToTime(v interface{}) (time.Time, error)

	// IsDuplicate reports whether err is the vendor's unique-constraint
	// violation. This is the only place driver error types are inspected.
	IsDuplicate(err error) bool

	// OpenTransaction starts the vendor's preferred explicit transaction,
	// or returns (nil, nil) to run in autocommit mode.
	OpenTransaction(ctx context.Context, conn *sql.Conn) (*sql.Tx, error)

	// NewStatement builds a statement bound to the scope. Vendors whose
	// scripts batch multiple statements per string return a delimited
	// statement here.
	NewStatement(scope *Scope) Statement
}

// NextPage advances a statement's parameters so re-executing its query
// produces the page after last. The paged cursor invokes it at each page
// boundary with the final record of the page just consumed.
type NextPage func(p ParamSetter, last Row)

// NopNextPage is the delegate for queries that page purely by the Skip
// parameter, which the cursor rebinds on its own.
func NopNextPage(ParamSetter, Row) {}

// ParamSetter is the parameter-mutation surface a NextPage delegate sees.
type ParamSetter interface {
	SetParameter(name string, value interface{})
}

// Row is one decoded result record, index-addressed in statement column
// order. Values carry whatever raw type the driver produced.
type Row []interface{}

// Rows is a forward-only cursor over result records.
type Rows interface {
	Next() bool
	Record() Row
	Err() error
	Close() error
}

// Executor is the subset of database/sql shared by *sql.Conn and *sql.Tx
// that statements execute against.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Statement is a parameterized SQL command bound to an open scope.
// Parameters are set by name; only tokens present in the executed text are
// bound, so a statement may carry more parameters than any one query uses.
type Statement interface {
	ParamSetter

	// ExecuteNonQuery runs a data-modification statement and returns the
	// affected row count. Unique-constraint violations surface as
	// store.ErrUniqueKeyViolation.
	ExecuteNonQuery(ctx context.Context, query string) (int64, error)

	// ExecuteWithoutExceptions runs a statement and suppresses any failure,
	// returning the affected count on success and zero otherwise.
	ExecuteWithoutExceptions(ctx context.Context, query string) int64

	// ExecuteScalar runs a statement returning a single integer value.
	ExecuteScalar(ctx context.Context, query string) (int64, error)

	// ExecuteQuery runs a query without paging. The returned Rows owns the
	// statement's scope; closing it releases the connection.
	ExecuteQuery(ctx context.Context, query string) (Rows, error)

	// ExecutePagedQuery runs a query re-executed page by page, advancing
	// parameters through next at each boundary.
	ExecutePagedQuery(ctx context.Context, query string, pageSize int, next NextPage) (Rows, error)
}
