// Package sqlite provides the SQLite dialect, used for embedded storage and
// file-backed integration testing.
package sqlite

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/commitstore/sqlstore"
	"github.com/getpup/commitstore/sqlstore/dialects/common"
)

const initializeStorage = `
CREATE TABLE IF NOT EXISTS Commits
(
    BucketId varchar(40) NOT NULL,
    StreamId char(40) NOT NULL,
    StreamIdOriginal varchar(1000) NOT NULL,
    StreamRevision int NOT NULL CHECK (StreamRevision > 0),
    Items int NOT NULL CHECK (Items > 0),
    CommitId char(36) NOT NULL,
    CommitSequence int NOT NULL CHECK (CommitSequence > 0),
    CommitStamp text NOT NULL,
    CheckpointNumber integer PRIMARY KEY AUTOINCREMENT,
    Headers blob,
    Payload blob NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS IX_Commits_CommitSequence ON Commits (BucketId, StreamId, CommitSequence);
CREATE UNIQUE INDEX IF NOT EXISTS IX_Commits_CommitId ON Commits (BucketId, StreamId, CommitId);
CREATE UNIQUE INDEX IF NOT EXISTS IX_Commits_Revisions ON Commits (BucketId, StreamId, StreamRevision, Items);
CREATE INDEX IF NOT EXISTS IX_Commits_Stamp ON Commits (CommitStamp);
CREATE TABLE IF NOT EXISTS Snapshots
(
    BucketId varchar(40) NOT NULL,
    StreamId char(40) NOT NULL,
    StreamRevision int NOT NULL CHECK (StreamRevision > 0),
    Payload blob NOT NULL,
    PRIMARY KEY (BucketId, StreamId, StreamRevision)
);`

// dateTimeFormat is lexicographically ordered, so range predicates over the
// text column compare correctly.
const dateTimeFormat = "2006-01-02 15:04:05.000000000"

// Dialect is the SQLite dialect. Timestamps are stored as fixed-width text
// and UUIDs as their canonical string form; duplicates are recognized from
// the constraint message.
type Dialect struct {
	common.Dialect
	statements sqlstore.Statements
}

// New creates the SQLite dialect.
func New() *Dialect {
	statements := common.DefaultStatements()
	statements.InitializeStorage = initializeStorage
	return &Dialect{statements: statements}
}

// Name implements sqlstore.Dialect.
func (*Dialect) Name() string { return "sqlite" }

// Statements implements sqlstore.Dialect.
func (d *Dialect) Statements() sqlstore.Statements { return d.statements }

// BindStyle implements sqlstore.Dialect.
func (*Dialect) BindStyle() sqlstore.BindStyle { return sqlstore.BindNamedAt }

// CoalesceParameterValue implements sqlstore.Dialect.
func (*Dialect) CoalesceParameterValue(v interface{}) interface{} {
	switch value := v.(type) {
	case uuid.UUID:
		return value.String()
	case time.Time:
		return value.UTC().Format(dateTimeFormat)
	default:
		return v
	}
}

// ToTime implements sqlstore.Dialect.
func (*Dialect) ToTime(v interface{}) (time.Time, error) {
	switch value := v.(type) {
	case string:
		return common.ParseTime(value)
	case []byte:
		return common.ParseTime(string(value))
	case time.Time:
		return value.UTC(), nil
	default:
		return common.Dialect{}.ToTime(v)
	}
}

// IsDuplicate implements sqlstore.Dialect.
func (*Dialect) IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	// "UNIQUE constraint failed" on current SQLite, "is not unique" on older
	// releases. Other constraint classes are not duplicates.
	message := strings.ToUpper(err.Error())
	return strings.Contains(message, "UNIQUE") ||
		strings.Contains(message, "DUPLICATE")
}

// NewStatement implements sqlstore.Dialect.
func (d *Dialect) NewStatement(scope *sqlstore.Scope) sqlstore.Statement {
	return sqlstore.NewDelimitedStatement(d, scope)
}
