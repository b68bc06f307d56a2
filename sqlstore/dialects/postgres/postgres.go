// Package postgres provides the PostgreSQL dialect.
package postgres

import (
	"errors"
	"strings"

	"github.com/lib/pq"

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
    CommitId uuid NOT NULL,
    CommitSequence int NOT NULL CHECK (CommitSequence > 0),
    CommitStamp timestamp NOT NULL,
    CheckpointNumber bigserial NOT NULL,
    Headers bytea,
    Payload bytea NOT NULL,
    CONSTRAINT PK_Commits PRIMARY KEY (CheckpointNumber)
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
    Payload bytea NOT NULL,
    CONSTRAINT PK_Snapshots PRIMARY KEY (BucketId, StreamId, StreamRevision)
);`

// Dialect is the PostgreSQL dialect. Checkpoints come from a bigserial
// through INSERT .. RETURNING; duplicates are recognized by SQLSTATE 23505.
type Dialect struct {
	common.Dialect
	statements sqlstore.Statements
}

// New creates the PostgreSQL dialect.
func New() *Dialect {
	statements := common.DefaultStatements()
	statements.InitializeStorage = initializeStorage
	return &Dialect{statements: statements}
}

// Name implements sqlstore.Dialect.
func (*Dialect) Name() string { return "postgres" }

// Statements implements sqlstore.Dialect.
func (d *Dialect) Statements() sqlstore.Statements { return d.statements }

// BindStyle implements sqlstore.Dialect.
func (*Dialect) BindStyle() sqlstore.BindStyle { return sqlstore.BindDollar }

// IsDuplicate implements sqlstore.Dialect.
func (*Dialect) IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	message := err.Error()
	return strings.Contains(message, "duplicate key") || strings.Contains(message, "unique constraint")
}

// NewStatement implements sqlstore.Dialect.
func (d *Dialect) NewStatement(scope *sqlstore.Scope) sqlstore.Statement {
	return sqlstore.NewDelimitedStatement(d, scope)
}
