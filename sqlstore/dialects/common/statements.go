package common

import (
	"github.com/getpup/commitstore/sqlstore"
)

// commitColumns is the canonical select list shared by every commit query.
// Row decoding addresses columns by position, so the order is fixed.
const commitColumns = "BucketId, StreamId, StreamIdOriginal, StreamRevision, CommitId, CommitSequence, CommitStamp, CheckpointNumber, Headers, Payload"

// DefaultStatements returns the statement set shared by the LIMIT/OFFSET
// family of vendors (PostgreSQL, MySQL, SQLite). It carries no schema
// script; every vendor supplies its own DDL.
func DefaultStatements() sqlstore.Statements {
	return sqlstore.Statements{
		PurgeStorage: `
DELETE FROM Commits;
DELETE FROM Snapshots;`,

		PurgeBucket: `
DELETE FROM Commits WHERE BucketId = @BucketId;
DELETE FROM Snapshots WHERE BucketId = @BucketId;`,

		Drop: `
DROP TABLE IF EXISTS Snapshots;
DROP TABLE IF EXISTS Commits;`,

		DeleteStream: `
DELETE FROM Commits WHERE BucketId = @BucketId AND StreamId = @StreamId;
DELETE FROM Snapshots WHERE BucketId = @BucketId AND StreamId = @StreamId;`,

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
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND StreamId = @StreamId
   AND StreamRevision >= @StreamRevision
   AND (StreamRevision - Items) < @MaxStreamRevision
   AND CommitSequence > @CommitSequence
 ORDER BY CommitSequence
 LIMIT @Limit`,

		GetCommitsFromInstant: `
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CommitStamp >= @CommitStamp
 ORDER BY CommitStamp, StreamId, CommitSequence
 LIMIT @Limit OFFSET @Skip`,

		GetCommitsFromToInstant: `
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CommitStamp >= @CommitStampStart
   AND CommitStamp < @CommitStampEnd
 ORDER BY CommitStamp, StreamId, CommitSequence
 LIMIT @Limit OFFSET @Skip`,

		GetCommitsFromCheckpoint: `
SELECT ` + commitColumns + `
  FROM Commits
 WHERE CheckpointNumber > @CheckpointNumber
 ORDER BY CheckpointNumber
 LIMIT @Limit`,

		GetCommitsFromToCheckpoint: `
SELECT ` + commitColumns + `
  FROM Commits
 WHERE CheckpointNumber > @CheckpointNumber
   AND CheckpointNumber <= @ToCheckpointNumber
 ORDER BY CheckpointNumber
 LIMIT @Limit`,

		GetCommitsFromBucketAndCheckpoint: `
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CheckpointNumber > @CheckpointNumber
 ORDER BY CheckpointNumber
 LIMIT @Limit`,

		GetCommitsFromToBucketAndCheckpoint: `
SELECT ` + commitColumns + `
  FROM Commits
 WHERE BucketId = @BucketId
   AND CheckpointNumber > @CheckpointNumber
   AND CheckpointNumber <= @ToCheckpointNumber
 ORDER BY CheckpointNumber
 LIMIT @Limit`,

		GetSnapshot: `
SELECT BucketId, StreamId, StreamRevision, Payload
  FROM Snapshots
 WHERE BucketId = @BucketId
   AND StreamId = @StreamId
   AND StreamRevision <= @StreamRevision
 ORDER BY StreamRevision DESC
 LIMIT 1`,

		AppendSnapshotToCommit: `
INSERT INTO Snapshots
  ( BucketId, StreamId, StreamRevision, Payload )
SELECT @BucketId, @StreamId, @StreamRevision, @Payload
 WHERE EXISTS
       ( SELECT 1 FROM Commits
          WHERE BucketId = @BucketId AND StreamId = @StreamId AND (StreamRevision - Items) <= @StreamRevision )
   AND NOT EXISTS
       ( SELECT 1 FROM Snapshots
          WHERE BucketId = @BucketId AND StreamId = @StreamId AND StreamRevision = @StreamRevision )`,

		GetStreamsRequiringSnapshots: `
SELECT C.BucketId, C.StreamId, C.StreamIdOriginal, MAX(C.StreamRevision) AS StreamRevision, MAX(COALESCE(S.StreamRevision, 0)) AS SnapshotRevision
  FROM Commits AS C
  LEFT OUTER JOIN Snapshots AS S
    ON S.BucketId = C.BucketId
   AND S.StreamId = C.StreamId
   AND C.StreamRevision >= S.StreamRevision
 WHERE C.BucketId = @BucketId
   AND C.StreamId > @StreamId
 GROUP BY C.BucketId, C.StreamId, C.StreamIdOriginal
HAVING MAX(C.StreamRevision) >= MAX(COALESCE(S.StreamRevision, 0)) + @Threshold
 ORDER BY C.StreamId
 LIMIT @Limit`,
	}
}
