// Package mssql provides the SQL Server dialect.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	driver "github.com/microsoft/go-mssqldb"

	"github.com/getpup/commitstore/sqlstore"
	"github.com/getpup/commitstore/sqlstore/dialects/common"
)

const commitColumns = "BucketId, StreamId, StreamIdOriginal, StreamRevision, CommitId, CommitSequence, CommitStamp, CheckpointNumber, Headers, Payload"

const initializeStorage = `
IF OBJECT_ID('Commits', 'U') IS NULL
CREATE TABLE Commits
(
    BucketId varchar(40) NOT NULL,
    StreamId char(40) NOT NULL,
    StreamIdOriginal nvarchar(1000) NOT NULL,
    StreamRevision int NOT NULL CHECK (StreamRevision > 0),
    Items int NOT NULL CHECK (Items > 0),
    CommitId uniqueidentifier NOT NULL,
    CommitSequence int NOT NULL CHECK (CommitSequence > 0),
    CommitStamp datetime2 NOT NULL,
    CheckpointNumber bigint IDENTITY(1,1) NOT NULL,
    Headers varbinary(max) NULL,
    Payload varbinary(max) NOT NULL,
    CONSTRAINT PK_Commits PRIMARY KEY (CheckpointNumber)
);
IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'IX_Commits_CommitSequence')
CREATE UNIQUE INDEX IX_Commits_CommitSequence ON Commits (BucketId, StreamId, CommitSequence);
IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'IX_Commits_CommitId')
CREATE UNIQUE INDEX IX_Commits_CommitId ON Commits (BucketId, StreamId, CommitId);
IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'IX_Commits_Revisions')
CREATE UNIQUE INDEX IX_Commits_Revisions ON Commits (BucketId, StreamId, StreamRevision, Items);
IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = 'IX_Commits_Stamp')
CREATE INDEX IX_Commits_Stamp ON Commits (CommitStamp);
IF OBJECT_ID('Snapshots', 'U') IS NULL
CREATE TABLE Snapshots
(
    BucketId varchar(40) NOT NULL,
    StreamId char(40) NOT NULL,
    StreamRevision int NOT NULL CHECK (StreamRevision > 0),
    Payload varbinary(max) NOT NULL,
    CONSTRAINT PK_Snapshots PRIMARY KEY (BucketId, StreamId, StreamRevision)
)`

// Dialect is the SQL Server dialect. Every operation runs in an explicit
// read-committed transaction; the checkpoint comes back through an OUTPUT
// clause; duplicates are recognized by errors 2601 and 2627.
type Dialect struct {
	common.Dialect
	statements sqlstore.Statements
}

// New creates the SQL Server dialect.
func New() *Dialect {
	return &Dialect{statements: buildStatements()}
}

func buildStatements() sqlstore.Statements {
	// T-SQL batches run through a single statement, so the common
	// multi-statement scripts work unsplit; only the paging and insert
	// syntax differ.
	statements := common.DefaultStatements()
	statements.InitializeStorage = initializeStorage

	statements.Drop = `
IF OBJECT_ID('Snapshots', 'U') IS NOT NULL DROP TABLE Snapshots;
IF OBJECT_ID('Commits', 'U') IS NOT NULL DROP TABLE Commits`

	statements.PersistCommit = `
INSERT INTO Commits
  ( BucketId, StreamId, StreamIdOriginal, CommitId, CommitSequence, StreamRevision, Items, CommitStamp, Headers, Payload )
OUTPUT INSERTED.CheckpointNumber
VALUES ( @BucketId, @StreamId, @StreamIdOriginal, @CommitId, @CommitSequence, @StreamRevision, @Items, @CommitStamp, @Headers, @Payload )`

	statements.GetCommitsFromStartingRevision = `
SELECT TOP (@Limit) ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND StreamId = @StreamId
   AND StreamRevision >= @StreamRevision
   AND (StreamRevision - Items) < @MaxStreamRevision
   AND CommitSequence > @CommitSequence
 ORDER BY CommitSequence`

	statements.GetCommitsFromInstant = `
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CommitStamp >= @CommitStamp
 ORDER BY CommitStamp, StreamId, CommitSequence
OFFSET @Skip ROWS FETCH NEXT @Limit ROWS ONLY`

	statements.GetCommitsFromToInstant = `
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CommitStamp >= @CommitStampStart
   AND CommitStamp < @CommitStampEnd
 ORDER BY CommitStamp, StreamId, CommitSequence
OFFSET @Skip ROWS FETCH NEXT @Limit ROWS ONLY`

	statements.GetCommitsFromCheckpoint = `
SELECT TOP (@Limit) ` + commitColumns + `
  FROM Commits
 WHERE CheckpointNumber > @CheckpointNumber
 ORDER BY CheckpointNumber`

	statements.GetCommitsFromToCheckpoint = `
SELECT TOP (@Limit) ` + commitColumns + `
  FROM Commits
 WHERE CheckpointNumber > @CheckpointNumber
   AND CheckpointNumber <= @ToCheckpointNumber
 ORDER BY CheckpointNumber`

	statements.GetCommitsFromBucketAndCheckpoint = `
SELECT TOP (@Limit) ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CheckpointNumber > @CheckpointNumber
 ORDER BY CheckpointNumber`

	statements.GetCommitsFromToBucketAndCheckpoint = `
SELECT TOP (@Limit) ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CheckpointNumber > @CheckpointNumber
   AND CheckpointNumber <= @ToCheckpointNumber
 ORDER BY CheckpointNumber`

	statements.GetSnapshot = `
SELECT TOP 1 BucketId, StreamId, StreamRevision, Payload
  FROM Snapshots
 WHERE BucketId = @BucketId
   AND StreamId = @StreamId
   AND StreamRevision <= @StreamRevision
 ORDER BY StreamRevision DESC`

	statements.GetStreamsRequiringSnapshots = `
SELECT TOP (@Limit) C.BucketId, C.StreamId, C.StreamIdOriginal, MAX(C.StreamRevision) AS StreamRevision, MAX(COALESCE(S.StreamRevision, 0)) AS SnapshotRevision
  FROM Commits AS C
  LEFT OUTER JOIN Snapshots AS S
    ON S.BucketId = C.BucketId
   AND S.StreamId = C.StreamId
   AND C.StreamRevision >= S.StreamRevision
 WHERE C.BucketId = @BucketId
   AND C.StreamId > @StreamId
 GROUP BY C.BucketId, C.StreamId, C.StreamIdOriginal
HAVING MAX(C.StreamRevision) >= MAX(COALESCE(S.StreamRevision, 0)) + @Threshold
 ORDER BY C.StreamId`

	return statements
}

// Name implements sqlstore.Dialect.
func (*Dialect) Name() string { return "mssql" }

// Statements implements sqlstore.Dialect.
func (d *Dialect) Statements() sqlstore.Statements { return d.statements }

// BindStyle implements sqlstore.Dialect.
func (*Dialect) BindStyle() sqlstore.BindStyle { return sqlstore.BindNamedAt }

// OpenTransaction implements sqlstore.Dialect.
func (*Dialect) OpenTransaction(ctx context.Context, conn *sql.Conn) (*sql.Tx, error) {
	return conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// IsDuplicate implements sqlstore.Dialect.
func (*Dialect) IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var mssqlErr driver.Error
	if errors.As(err, &mssqlErr) {
		return mssqlErr.Number == 2601 || mssqlErr.Number == 2627
	}
	message := err.Error()
	return strings.Contains(message, "Cannot insert duplicate key") ||
		strings.Contains(message, "duplicate key row")
}

// NewStatement implements sqlstore.Dialect.
func (d *Dialect) NewStatement(scope *sqlstore.Scope) sqlstore.Statement {
	return sqlstore.NewCommonStatement(d, scope)
}
