// Package firebird provides the Firebird dialect (server version 3 or
// later, for identity column support). It carries the statement text and
// value coercions only; wire a Firebird driver through the connection
// factory.
package firebird

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/commitstore/sqlstore"
	"github.com/getpup/commitstore/sqlstore/dialects/common"
)

const commitColumns = "BucketId, StreamId, StreamIdOriginal, StreamRevision, CommitId, CommitSequence, CommitStamp, CheckpointNumber, Headers, Payload"

// Firebird has no IF NOT EXISTS for tables; re-initialization relies on the
// engine suppressing already-exists errors.
const initializeStorage = `
CREATE TABLE Commits
(
    BucketId varchar(40) NOT NULL,
    StreamId char(40) NOT NULL,
    StreamIdOriginal varchar(1000) NOT NULL,
    StreamRevision int NOT NULL CHECK (StreamRevision > 0),
    Items int NOT NULL CHECK (Items > 0),
    CommitId char(16) character set octets NOT NULL,
    CommitSequence int NOT NULL CHECK (CommitSequence > 0),
    CommitStamp timestamp NOT NULL,
    CheckpointNumber bigint GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    Headers blob,
    Payload blob NOT NULL
);
CREATE UNIQUE INDEX IX_Commits_CommitSequence ON Commits (BucketId, StreamId, CommitSequence);
CREATE UNIQUE INDEX IX_Commits_CommitId ON Commits (BucketId, StreamId, CommitId);
CREATE UNIQUE INDEX IX_Commits_Revisions ON Commits (BucketId, StreamId, StreamRevision, Items);
CREATE INDEX IX_Commits_Stamp ON Commits (CommitStamp);
CREATE TABLE Snapshots
(
    BucketId varchar(40) NOT NULL,
    StreamId char(40) NOT NULL,
    StreamRevision int NOT NULL CHECK (StreamRevision > 0),
    Payload blob NOT NULL,
    CONSTRAINT PK_Snapshots PRIMARY KEY (BucketId, StreamId, StreamRevision)
)`

// Dialect is the Firebird dialect. Row limits use FIRST and SKIP;
// checkpoints come from an identity column through RETURNING; duplicates
// are recognized from the constraint-violation message.
type Dialect struct {
	common.Dialect
	statements sqlstore.Statements
}

// New creates the Firebird dialect.
func New() *Dialect {
	return &Dialect{statements: buildStatements()}
}

func buildStatements() sqlstore.Statements {
	return sqlstore.Statements{
		InitializeStorage: initializeStorage,

		PurgeStorage: `
DELETE FROM Commits;
DELETE FROM Snapshots`,

		PurgeBucket: `
DELETE FROM Commits WHERE BucketId = @BucketId;
DELETE FROM Snapshots WHERE BucketId = @BucketId`,

		Drop: `
DROP TABLE Snapshots;
DROP TABLE Commits`,

		DeleteStream: `
DELETE FROM Commits WHERE BucketId = @BucketId AND StreamId = @StreamId;
DELETE FROM Snapshots WHERE BucketId = @BucketId AND StreamId = @StreamId`,

		PersistCommit: `
INSERT INTO Commits
  ( BucketId, StreamId, StreamIdOriginal, CommitId, CommitSequence, StreamRevision, Items, CommitStamp, Headers, Payload )
VALUES ( @BucketId, @StreamId, @StreamIdOriginal, @CommitId, @CommitSequence, @StreamRevision, @Items, @CommitStamp, @Headers, @Payload )
RETURNING CheckpointNumber`,

		DuplicateCommit: `
SELECT COUNT(*)
  FROM Commits
 WHERE BucketId = @BucketId
   AND StreamId = @StreamId
   AND CommitId = @CommitId
   AND CommitSequence = @CommitSequence`,

		GetCommitsFromStartingRevision: `
SELECT FIRST @Limit ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND StreamId = @StreamId
   AND StreamRevision >= @StreamRevision
   AND (StreamRevision - Items) < @MaxStreamRevision
   AND CommitSequence > @CommitSequence
 ORDER BY CommitSequence`,

		GetCommitsFromInstant: `
SELECT FIRST @Limit SKIP @Skip ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CommitStamp >= @CommitStamp
 ORDER BY CommitStamp, StreamId, CommitSequence`,

		GetCommitsFromToInstant: `
SELECT FIRST @Limit SKIP @Skip ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CommitStamp >= @CommitStampStart
   AND CommitStamp < @CommitStampEnd
 ORDER BY CommitStamp, StreamId, CommitSequence`,

		GetCommitsFromCheckpoint: `
SELECT FIRST @Limit ` + commitColumns + `
  FROM Commits
 WHERE CheckpointNumber > @CheckpointNumber
 ORDER BY CheckpointNumber`,

		GetCommitsFromToCheckpoint: `
SELECT FIRST @Limit ` + commitColumns + `
  FROM Commits
 WHERE CheckpointNumber > @CheckpointNumber
   AND CheckpointNumber <= @ToCheckpointNumber
 ORDER BY CheckpointNumber`,

		GetCommitsFromBucketAndCheckpoint: `
SELECT FIRST @Limit ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CheckpointNumber > @CheckpointNumber
 ORDER BY CheckpointNumber`,

		GetCommitsFromToBucketAndCheckpoint: `
SELECT FIRST @Limit ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CheckpointNumber > @CheckpointNumber
   AND CheckpointNumber <= @ToCheckpointNumber
 ORDER BY CheckpointNumber`,

		GetSnapshot: `
SELECT FIRST 1 BucketId, StreamId, StreamRevision, Payload
  FROM Snapshots
 WHERE BucketId = @BucketId
   AND StreamId = @StreamId
   AND StreamRevision <= @StreamRevision
 ORDER BY StreamRevision DESC`,

		AppendSnapshotToCommit: `
INSERT INTO Snapshots
  ( BucketId, StreamId, StreamRevision, Payload )
SELECT @BucketId, @StreamId, @StreamRevision, @Payload FROM rdb$database
 WHERE EXISTS
       ( SELECT 1 FROM Commits
          WHERE BucketId = @BucketId AND StreamId = @StreamId AND (StreamRevision - Items) <= @StreamRevision )
   AND NOT EXISTS
       ( SELECT 1 FROM Snapshots
          WHERE BucketId = @BucketId AND StreamId = @StreamId AND StreamRevision = @StreamRevision )`,

		GetStreamsRequiringSnapshots: `
SELECT FIRST @Limit C.BucketId, C.StreamId, C.StreamIdOriginal, MAX(C.StreamRevision) AS StreamRevision, MAX(COALESCE(S.StreamRevision, 0)) AS SnapshotRevision
  FROM Commits C
  LEFT OUTER JOIN Snapshots S
    ON S.BucketId = C.BucketId
   AND S.StreamId = C.StreamId
   AND C.StreamRevision >= S.StreamRevision
 WHERE C.BucketId = @BucketId
   AND C.StreamId > @StreamId
 GROUP BY C.BucketId, C.StreamId, C.StreamIdOriginal
HAVING MAX(C.StreamRevision) >= MAX(COALESCE(S.StreamRevision, 0)) + @Threshold
 ORDER BY C.StreamId`,
	}
}

// Name implements sqlstore.Dialect.
func (*Dialect) Name() string { return "firebird" }

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
		return value.UTC()
	default:
		return v
	}
}

// IsDuplicate implements sqlstore.Dialect.
func (*Dialect) IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique") || strings.Contains(message, "duplicate")
}

// NewStatement implements sqlstore.Dialect.
func (d *Dialect) NewStatement(scope *sqlstore.Scope) sqlstore.Statement {
	return sqlstore.NewDelimitedStatement(d, scope)
}
