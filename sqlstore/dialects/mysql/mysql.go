// Package mysql provides the MySQL dialect.
package mysql

import (
	"errors"
	"fmt"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"
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
    StreamRevision int NOT NULL,
    Items int NOT NULL,
    CommitId binary(16) NOT NULL,
    CommitSequence int NOT NULL,
    CommitStamp bigint NOT NULL,
    CheckpointNumber bigint AUTO_INCREMENT,
    Headers blob,
    Payload mediumblob NOT NULL,
    PRIMARY KEY (CheckpointNumber),
    UNIQUE KEY IX_Commits_CommitSequence (BucketId, StreamId, CommitSequence),
    UNIQUE KEY IX_Commits_CommitId (BucketId, StreamId, CommitId),
    UNIQUE KEY IX_Commits_Revisions (BucketId, StreamId, StreamRevision, Items),
    KEY IX_Commits_Stamp (CommitStamp)
) ENGINE=InnoDB;
CREATE TABLE IF NOT EXISTS Snapshots
(
    BucketId varchar(40) NOT NULL,
    StreamId char(40) NOT NULL,
    StreamRevision int NOT NULL,
    Payload mediumblob NOT NULL,
    PRIMARY KEY (BucketId, StreamId, StreamRevision)
) ENGINE=InnoDB;`

// MySQL has no RETURNING; the insert pairs with LAST_INSERT_ID() on the
// same connection.
const persistCommit = `
INSERT INTO Commits
  ( BucketId, StreamId, StreamIdOriginal, CommitId, CommitSequence, StreamRevision, Items, CommitStamp, Headers, Payload )
VALUES ( @BucketId, @StreamId, @StreamIdOriginal, @CommitId, @CommitSequence, @StreamRevision, @Items, @CommitStamp, @Headers, @Payload );
SELECT LAST_INSERT_ID()`

// The epoch offset between year 1 and the Unix epoch, in 100ns ticks.
// Timestamps are stored as ticks so their precision survives every MySQL
// version identically.
const epochTicks = 621355968000000000

// Dialect is the MySQL dialect. UUIDs are stored as raw bytes and
// timestamps as 100ns ticks in a bigint column; duplicates are recognized
// by error 1062.
type Dialect struct {
	common.Dialect
	statements sqlstore.Statements
}

// New creates the MySQL dialect.
func New() *Dialect {
	statements := common.DefaultStatements()
	statements.InitializeStorage = initializeStorage
	statements.PersistCommit = persistCommit
	return &Dialect{statements: statements}
}

// Name implements sqlstore.Dialect.
func (*Dialect) Name() string { return "mysql" }

// Statements implements sqlstore.Dialect.
func (d *Dialect) Statements() sqlstore.Statements { return d.statements }

// BindStyle implements sqlstore.Dialect.
func (*Dialect) BindStyle() sqlstore.BindStyle { return sqlstore.BindQuestion }

// CoalesceParameterValue implements sqlstore.Dialect.
func (*Dialect) CoalesceParameterValue(v interface{}) interface{} {
	switch value := v.(type) {
	case uuid.UUID:
		raw := [16]byte(value)
		return raw[:]
	case time.Time:
		return ToTicks(value)
	default:
		return v
	}
}

// ToTime implements sqlstore.Dialect.
func (*Dialect) ToTime(v interface{}) (time.Time, error) {
	switch value := v.(type) {
	case int64:
		return FromTicks(value), nil
	case time.Time:
		return value.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot read %T as timestamp", v)
	}
}

// IsDuplicate implements sqlstore.Dialect.
func (*Dialect) IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *driver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062 // ER_DUP_ENTRY
	}
	return strings.Contains(err.Error(), "Duplicate entry")
}

// NewStatement implements sqlstore.Dialect.
func (d *Dialect) NewStatement(scope *sqlstore.Scope) sqlstore.Statement {
	return sqlstore.NewDelimitedStatement(d, scope)
}

// ToTicks converts an instant to 100ns ticks since year 1.
func ToTicks(t time.Time) int64 {
	return t.UTC().UnixNano()/100 + epochTicks
}

// FromTicks converts 100ns ticks since year 1 back to a UTC instant.
func FromTicks(ticks int64) time.Time {
	return time.Unix(0, (ticks-epochTicks)*100).UTC()
}
