// Package oracle provides the Oracle dialect. It carries the statement text
// and value coercions only; wire any ODPI-compatible driver through the
// connection factory.
package oracle

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/commitstore/sqlstore"
	"github.com/getpup/commitstore/sqlstore/dialects/common"
)

const commitColumns = "BucketId, StreamId, StreamIdOriginal, StreamRevision, CommitId, CommitSequence, CommitStamp, CheckpointNumber, Headers, Payload"

// Oracle has no IF NOT EXISTS; re-initialization relies on the engine
// suppressing already-exists errors.
const initializeStorage = `
CREATE TABLE Commits
(
    BucketId varchar2(40) NOT NULL,
    StreamId char(40) NOT NULL,
    StreamIdOriginal varchar2(1000) NOT NULL,
    StreamRevision number(10) NOT NULL,
    Items number(10) NOT NULL,
    CommitId raw(16) NOT NULL,
    CommitSequence number(10) NOT NULL,
    CommitStamp timestamp NOT NULL,
    CheckpointNumber number(19) NOT NULL,
    Headers blob,
    Payload blob NOT NULL,
    CONSTRAINT PK_Commits PRIMARY KEY (CheckpointNumber)
);
CREATE SEQUENCE COMMITS_SEQ START WITH 1 INCREMENT BY 1;
CREATE UNIQUE INDEX IX_Commits_CommitSequence ON Commits (BucketId, StreamId, CommitSequence);
CREATE UNIQUE INDEX IX_Commits_CommitId ON Commits (BucketId, StreamId, CommitId);
CREATE UNIQUE INDEX IX_Commits_Revisions ON Commits (BucketId, StreamId, StreamRevision, Items);
CREATE INDEX IX_Commits_Stamp ON Commits (CommitStamp);
CREATE TABLE Snapshots
(
    BucketId varchar2(40) NOT NULL,
    StreamId char(40) NOT NULL,
    StreamRevision number(10) NOT NULL,
    Payload blob NOT NULL,
    CONSTRAINT PK_Snapshots PRIMARY KEY (BucketId, StreamId, StreamRevision)
)`

// Dialect is the Oracle dialect. Checkpoints come from a sequence read back
// with CURRVAL on the same connection; ROWNUM wrappers stand in for LIMIT
// and OFFSET; duplicates are recognized by ORA-00001.
type Dialect struct {
	common.Dialect
	statements sqlstore.Statements
}

// New creates the Oracle dialect.
func New() *Dialect {
	return &Dialect{statements: buildStatements()}
}

// limited wraps an ordered query so the row limit applies after ordering.
func limited(query string) string {
	return "SELECT * FROM (" + query + ") WHERE ROWNUM <= :Limit"
}

// paged wraps an ordered query with the two-level ROWNUM idiom so both the
// skip and the limit apply after ordering.
func paged(query string) string {
	return "SELECT " + commitColumns + " FROM (SELECT q.*, ROWNUM rnum FROM (" +
		query + ") q WHERE ROWNUM <= :Skip + :Limit) WHERE rnum > :Skip"
}

func buildStatements() sqlstore.Statements {
	return sqlstore.Statements{
		InitializeStorage: initializeStorage,

		PurgeStorage: `
DELETE FROM Commits;
DELETE FROM Snapshots`,

		PurgeBucket: `
DELETE FROM Commits WHERE BucketId = :BucketId;
DELETE FROM Snapshots WHERE BucketId = :BucketId`,

		Drop: `
DROP TABLE Snapshots;
DROP TABLE Commits;
DROP SEQUENCE COMMITS_SEQ`,

		DeleteStream: `
DELETE FROM Commits WHERE BucketId = :BucketId AND StreamId = :StreamId;
DELETE FROM Snapshots WHERE BucketId = :BucketId AND StreamId = :StreamId`,

		PersistCommit: `
INSERT INTO Commits
  ( CheckpointNumber, BucketId, StreamId, StreamIdOriginal, CommitId, CommitSequence, StreamRevision, Items, CommitStamp, Headers, Payload )
VALUES ( COMMITS_SEQ.NEXTVAL, :BucketId, :StreamId, :StreamIdOriginal, :CommitId, :CommitSequence, :StreamRevision, :Items, :CommitStamp, :Headers, :Payload );
SELECT COMMITS_SEQ.CURRVAL FROM DUAL`,

		DuplicateCommit: `
SELECT COUNT(*)
  FROM Commits
 WHERE BucketId = :BucketId
   AND StreamId = :StreamId
   AND CommitId = :CommitId
   AND CommitSequence = :CommitSequence`,

		GetCommitsFromStartingRevision: limited(`
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = :BucketId
   AND StreamId = :StreamId
   AND StreamRevision >= :StreamRevision
   AND (StreamRevision - Items) < :MaxStreamRevision
   AND CommitSequence > :CommitSequence
 ORDER BY CommitSequence`),

		GetCommitsFromInstant: paged(`
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = :BucketId
   AND CommitStamp >= :CommitStamp
 ORDER BY CommitStamp, StreamId, CommitSequence`),

		GetCommitsFromToInstant: paged(`
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = :BucketId
   AND CommitStamp >= :CommitStampStart
   AND CommitStamp < :CommitStampEnd
 ORDER BY CommitStamp, StreamId, CommitSequence`),

		GetCommitsFromCheckpoint: limited(`
SELECT ` + commitColumns + `
  FROM Commits
 WHERE CheckpointNumber > :CheckpointNumber
 ORDER BY CheckpointNumber`),

		GetCommitsFromToCheckpoint: limited(`
SELECT ` + commitColumns + `
  FROM Commits
 WHERE CheckpointNumber > :CheckpointNumber
   AND CheckpointNumber <= :ToCheckpointNumber
 ORDER BY CheckpointNumber`),

		GetCommitsFromBucketAndCheckpoint: limited(`
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = :BucketId
   AND CheckpointNumber > :CheckpointNumber
 ORDER BY CheckpointNumber`),

		GetCommitsFromToBucketAndCheckpoint: limited(`
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = :BucketId
   AND CheckpointNumber > :CheckpointNumber
   AND CheckpointNumber <= :ToCheckpointNumber
 ORDER BY CheckpointNumber`),

		GetSnapshot: `
SELECT * FROM (
SELECT BucketId, StreamId, StreamRevision, Payload
  FROM Snapshots
 WHERE BucketId = :BucketId
   AND StreamId = :StreamId
   AND StreamRevision <= :StreamRevision
 ORDER BY StreamRevision DESC
) WHERE ROWNUM <= 1`,

		AppendSnapshotToCommit: `
INSERT INTO Snapshots
  ( BucketId, StreamId, StreamRevision, Payload )
SELECT :BucketId, :StreamId, :StreamRevision, :Payload FROM DUAL
 WHERE EXISTS
       ( SELECT 1 FROM Commits
          WHERE BucketId = :BucketId AND StreamId = :StreamId AND (StreamRevision - Items) <= :StreamRevision )
   AND NOT EXISTS
       ( SELECT 1 FROM Snapshots
          WHERE BucketId = :BucketId AND StreamId = :StreamId AND StreamRevision = :StreamRevision )`,

		GetStreamsRequiringSnapshots: `
SELECT * FROM (
SELECT C.BucketId, C.StreamId, C.StreamIdOriginal, MAX(C.StreamRevision) AS StreamRevision, MAX(COALESCE(S.StreamRevision, 0)) AS SnapshotRevision
  FROM Commits C
  LEFT OUTER JOIN Snapshots S
    ON S.BucketId = C.BucketId
   AND S.StreamId = C.StreamId
   AND C.StreamRevision >= S.StreamRevision
 WHERE C.BucketId = :BucketId
   AND C.StreamId > :StreamId
 GROUP BY C.BucketId, C.StreamId, C.StreamIdOriginal
HAVING MAX(C.StreamRevision) >= MAX(COALESCE(S.StreamRevision, 0)) + :Threshold
 ORDER BY C.StreamId
) WHERE ROWNUM <= :Limit`,
	}
}

// Name implements sqlstore.Dialect.
func (*Dialect) Name() string { return "oracle" }

// Statements implements sqlstore.Dialect.
func (d *Dialect) Statements() sqlstore.Statements { return d.statements }

// BindStyle implements sqlstore.Dialect.
func (*Dialect) BindStyle() sqlstore.BindStyle { return sqlstore.BindNamedColon }

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
	return err != nil && strings.Contains(err.Error(), "ORA-00001")
}

// NewStatement implements sqlstore.Dialect.
func (d *Dialect) NewStatement(scope *sqlstore.Scope) sqlstore.Statement {
	return sqlstore.NewDelimitedStatement(d, scope)
}
