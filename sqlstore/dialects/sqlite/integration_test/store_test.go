// Package integration_test contains integration tests for the commit store
// over SQLite (which is embedded).
//
// Run with: go test -tags=integration ./sqlstore/dialects/sqlite/integration_test/...
//
//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/getpup/commitstore/serialize"
	"github.com/getpup/commitstore/sqlstore"
	"github.com/getpup/commitstore/sqlstore/dialects/sqlite"
	"github.com/getpup/commitstore/store"
)

func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Create a temporary database file
	dbFile := fmt.Sprintf("/tmp/commitstore_test_%d.db", time.Now().UnixNano())
	t.Cleanup(func() {
		os.Remove(dbFile)
	})

	db, err := sql.Open("sqlite", dbFile)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;")
	if err != nil {
		t.Fatalf("Failed to configure database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	return db
}

func newTestEngine(t *testing.T, db *sql.DB, config sqlstore.Config) *sqlstore.Engine {
	t.Helper()

	engine, err := sqlstore.NewEngine(
		&store.DBConnectionFactory{DB: db},
		sqlite.New(),
		serialize.JSON{},
		serialize.JSONEvents{},
		config,
	)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	if err := engine.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize storage: %v", err)
	}
	return engine
}

// newAttempt builds a commit attempt with one event per revision step.
func newAttempt(bucketID, streamID string, sequence, revision, items int) *store.CommitAttempt {
	events := make([]store.EventMessage, items)
	for i := range events {
		events[i] = store.EventMessage{
			Body: map[string]interface{}{"revision": revision - items + i + 1},
		}
	}
	return &store.CommitAttempt{
		BucketID:       bucketID,
		StreamID:       streamID,
		StreamRevision: revision,
		CommitID:       uuid.New(),
		CommitSequence: sequence,
		Headers:        map[string]interface{}{"origin": "integration"},
		Events:         events,
	}
}

func mustCommit(t *testing.T, engine *sqlstore.Engine, attempt *store.CommitAttempt) *store.Commit {
	t.Helper()
	commit, err := engine.Commit(context.Background(), attempt)
	if err != nil {
		t.Fatalf("Failed to commit %s/%s seq %d: %v", attempt.BucketID, attempt.StreamID, attempt.CommitSequence, err)
	}
	return commit
}

func TestCommitAndReadRoundTrip(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())
	ctx := context.Background()

	for seq := 1; seq <= 3; seq++ {
		mustCommit(t, engine, newAttempt("default", "order-42", seq, seq, 1))
	}

	commits, err := engine.GetFrom(ctx, "default", "order-42", 0, 0)
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	all, err := commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}

	if len(all) != 3 {
		t.Fatalf("Expected 3 commits, got %d", len(all))
	}
	for i, commit := range all {
		if commit.CommitSequence != i+1 {
			t.Errorf("Commit %d: expected sequence %d, got %d", i, i+1, commit.CommitSequence)
		}
		if commit.StreamID != "order-42" {
			t.Errorf("Commit %d: expected the original stream id, got %q", i, commit.StreamID)
		}
		if commit.Headers["origin"] != "integration" {
			t.Errorf("Commit %d: headers did not round trip: %v", i, commit.Headers)
		}
		if len(commit.Events) != 1 {
			t.Errorf("Commit %d: expected 1 event, got %d", i, len(commit.Events))
		}
		if commit.CommitStamp.IsZero() {
			t.Errorf("Commit %d: stamp did not round trip", i)
		}
	}
}

func TestCheckpointTokensAreMonotonic(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())
	ctx := context.Background()

	var assigned []int64
	for seq := 1; seq <= 3; seq++ {
		assigned = append(assigned, mustCommit(t, engine, newAttempt("default", "order-a", seq, seq, 1)).CheckpointToken)
		assigned = append(assigned, mustCommit(t, engine, newAttempt("default", "order-b", seq, seq, 1)).CheckpointToken)
	}
	for i := 1; i < len(assigned); i++ {
		if assigned[i] <= assigned[i-1] {
			t.Fatalf("Checkpoint tokens not increasing: %v", assigned)
		}
	}

	commits, err := engine.GetFromCheckpoint(ctx, 0)
	if err != nil {
		t.Fatalf("Failed to read from checkpoint: %v", err)
	}
	all, err := commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	if len(all) != len(assigned) {
		t.Fatalf("Expected %d commits, got %d", len(assigned), len(all))
	}
	for i, commit := range all {
		if commit.CheckpointToken != assigned[i] {
			t.Errorf("Commit %d: expected checkpoint %d, got %d", i, assigned[i], commit.CheckpointToken)
		}
	}

	// Resuming past a checkpoint yields only what follows it.
	tail, err := engine.GetFromCheckpoint(ctx, assigned[3])
	if err != nil {
		t.Fatalf("Failed to resume from checkpoint: %v", err)
	}
	rest, err := tail.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("Expected 2 commits after checkpoint %d, got %d", assigned[3], len(rest))
	}
}

func TestDuplicateCommitDetection(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())

	attempt := newAttempt("default", "order-42", 1, 1, 1)
	mustCommit(t, engine, attempt)

	// Retrying the identical attempt is a duplicate, not a conflict.
	_, err := engine.Commit(context.Background(), attempt)
	if !errors.Is(err, store.ErrDuplicateCommit) {
		t.Fatalf("Expected ErrDuplicateCommit, got %v", err)
	}
}

func TestConcurrentWriteDetection(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())

	mustCommit(t, engine, newAttempt("default", "order-42", 1, 1, 1))

	// A different writer claiming the same commit sequence loses the race.
	racing := newAttempt("default", "order-42", 1, 1, 1)
	_, err := engine.Commit(context.Background(), racing)
	if !errors.Is(err, store.ErrConcurrency) {
		t.Fatalf("Expected ErrConcurrency, got %v", err)
	}

	// The stream is untouched; the next sequence still goes through.
	mustCommit(t, engine, newAttempt("default", "order-42", 2, 2, 1))
}

func TestRevisionRangeRead(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())
	ctx := context.Background()

	// Three commits of two events each: revisions (1,2), (3,4), (5,6).
	mustCommit(t, engine, newAttempt("default", "order-42", 1, 2, 2))
	mustCommit(t, engine, newAttempt("default", "order-42", 2, 4, 2))
	mustCommit(t, engine, newAttempt("default", "order-42", 3, 6, 2))

	commits, err := engine.GetFrom(ctx, "default", "order-42", 3, 4)
	if err != nil {
		t.Fatalf("Failed to read revision range: %v", err)
	}
	all, err := commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}

	if len(all) != 1 {
		t.Fatalf("Expected the one commit overlapping [3,4], got %d", len(all))
	}
	if all[0].CommitSequence != 2 {
		t.Errorf("Expected commit sequence 2, got %d", all[0].CommitSequence)
	}

	// A commit straddling the lower bound is still included.
	commits, err = engine.GetFrom(ctx, "default", "order-42", 4, 0)
	if err != nil {
		t.Fatalf("Failed to read open range: %v", err)
	}
	all, err = commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 commits at or above revision 4, got %d", len(all))
	}
}

func TestStreamReadPagesAcrossBoundary(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	config := sqlstore.DefaultConfig()
	config.PageSize = 2
	engine := newTestEngine(t, db, config)
	ctx := context.Background()

	for seq := 1; seq <= 5; seq++ {
		mustCommit(t, engine, newAttempt("default", "order-42", seq, seq, 1))
	}

	commits, err := engine.GetFrom(ctx, "default", "order-42", 0, 0)
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	all, err := commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}

	if len(all) != 5 {
		t.Fatalf("Expected 5 commits across page boundaries, got %d", len(all))
	}
	for i, commit := range all {
		if commit.CommitSequence != i+1 {
			t.Errorf("Commit %d: expected sequence %d, got %d", i, i+1, commit.CommitSequence)
		}
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())
	ctx := context.Background()

	for seq := 1; seq <= 3; seq++ {
		mustCommit(t, engine, newAttempt("default", "order-42", seq, seq, 1))
	}

	snapshot := &store.Snapshot{
		BucketID:       "default",
		StreamID:       "order-42",
		StreamRevision: 3,
		Payload:        map[string]interface{}{"balance": 100},
	}

	added, err := engine.AddSnapshot(ctx, snapshot)
	if err != nil {
		t.Fatalf("Failed to add snapshot: %v", err)
	}
	if !added {
		t.Fatal("Expected the snapshot to be accepted")
	}

	// Same revision again is rejected without error.
	added, err = engine.AddSnapshot(ctx, snapshot)
	if err != nil {
		t.Fatalf("Unexpected error on repeated snapshot: %v", err)
	}
	if added {
		t.Error("Expected the repeated snapshot to be rejected")
	}

	// A stream with no commits accepts nothing.
	added, err = engine.AddSnapshot(ctx, &store.Snapshot{
		BucketID:       "default",
		StreamID:       "order-none",
		StreamRevision: 1,
		Payload:        map[string]interface{}{},
	})
	if err != nil {
		t.Fatalf("Unexpected error on empty-stream snapshot: %v", err)
	}
	if added {
		t.Error("Expected the empty-stream snapshot to be rejected")
	}

	got, err := engine.GetSnapshot(ctx, "default", "order-42", 0)
	if err != nil {
		t.Fatalf("Failed to get snapshot: %v", err)
	}
	if got == nil || got.StreamRevision != 3 {
		t.Fatalf("Expected snapshot at revision 3, got %#v", got)
	}
	if got.StreamID != "order-42" {
		t.Errorf("Expected the original stream id, got %q", got.StreamID)
	}

	// No snapshot exists at or below revision 2.
	got, err = engine.GetSnapshot(ctx, "default", "order-42", 2)
	if err != nil {
		t.Fatalf("Failed to get snapshot: %v", err)
	}
	if got != nil {
		t.Errorf("Expected no snapshot at revision 2, got %#v", got)
	}
}

func TestStreamsToSnapshot(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	config := sqlstore.DefaultConfig()
	config.PageSize = 2
	engine := newTestEngine(t, db, config)
	ctx := context.Background()

	// Three streams run 5 revisions ahead, one is freshly snapshotted.
	for _, streamID := range []string{"order-a", "order-b", "order-c", "order-d"} {
		for seq := 1; seq <= 5; seq++ {
			mustCommit(t, engine, newAttempt("default", streamID, seq, seq, 1))
		}
	}
	added, err := engine.AddSnapshot(ctx, &store.Snapshot{
		BucketID:       "default",
		StreamID:       "order-d",
		StreamRevision: 5,
		Payload:        map[string]interface{}{},
	})
	if err != nil || !added {
		t.Fatalf("Failed to snapshot order-d: added=%v err=%v", added, err)
	}

	heads, err := engine.GetStreamsToSnapshot(ctx, "default", 3)
	if err != nil {
		t.Fatalf("Failed to list streams to snapshot: %v", err)
	}
	all, err := heads.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}

	// More results than one page proves the listing pages correctly.
	if len(all) != 3 {
		t.Fatalf("Expected 3 streams past the threshold, got %d", len(all))
	}
	if len(all) <= config.PageSize {
		t.Fatalf("Expected the listing to span pages, got %d heads with page size %d", len(all), config.PageSize)
	}
	seen := map[string]*store.StreamHead{}
	for _, head := range all {
		seen[head.StreamID] = head
	}
	if _, ok := seen["order-d"]; ok {
		t.Error("order-d is freshly snapshotted and must not be listed")
	}
	for _, streamID := range []string{"order-a", "order-b", "order-c"} {
		head, ok := seen[streamID]
		if !ok {
			t.Errorf("Expected %s to be listed", streamID)
			continue
		}
		if head.HeadRevision != 5 {
			t.Errorf("%s: expected head revision 5, got %d", streamID, head.HeadRevision)
		}
		if head.SnapshotRevision != 0 {
			t.Errorf("%s: expected no snapshot revision, got %d", streamID, head.SnapshotRevision)
		}
	}
}

func TestBucketIsolation(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())
	ctx := context.Background()

	// The same stream id lives independently in two buckets.
	mustCommit(t, engine, newAttempt("tenant-a", "order-42", 1, 1, 1))
	mustCommit(t, engine, newAttempt("tenant-b", "order-42", 1, 1, 1))

	if err := engine.PurgeBucket(ctx, "tenant-a"); err != nil {
		t.Fatalf("Failed to purge bucket: %v", err)
	}

	commits, err := engine.GetFrom(ctx, "tenant-a", "order-42", 0, 0)
	if err != nil {
		t.Fatalf("Failed to read purged bucket: %v", err)
	}
	all, err := commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected the purged bucket to be empty, got %d commits", len(all))
	}

	commits, err = engine.GetFrom(ctx, "tenant-b", "order-42", 0, 0)
	if err != nil {
		t.Fatalf("Failed to read surviving bucket: %v", err)
	}
	all, err = commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected the other bucket to survive, got %d commits", len(all))
	}
}

func TestDeleteStream(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())
	ctx := context.Background()

	mustCommit(t, engine, newAttempt("default", "order-a", 1, 1, 1))
	mustCommit(t, engine, newAttempt("default", "order-b", 1, 1, 1))

	if err := engine.DeleteStream(ctx, "default", "order-a"); err != nil {
		t.Fatalf("Failed to delete stream: %v", err)
	}

	commits, err := engine.GetFrom(ctx, "default", "order-a", 0, 0)
	if err != nil {
		t.Fatalf("Failed to read deleted stream: %v", err)
	}
	all, err := commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected the deleted stream to be empty, got %d commits", len(all))
	}

	commits, err = engine.GetFrom(ctx, "default", "order-b", 0, 0)
	if err != nil {
		t.Fatalf("Failed to read surviving stream: %v", err)
	}
	all, err = commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected the other stream to survive, got %d commits", len(all))
	}
}

func TestInstantRead(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for seq := 1; seq <= 3; seq++ {
		attempt := newAttempt("default", "order-42", seq, seq, 1)
		attempt.CommitStamp = base.Add(time.Duration(seq) * time.Minute)
		mustCommit(t, engine, attempt)
	}

	commits, err := engine.GetFromInstant(ctx, "default", base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Failed to read from instant: %v", err)
	}
	all, err := commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 commits at or after the instant, got %d", len(all))
	}

	commits, err = engine.GetFromToInstant(ctx, "default", base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Failed to read instant range: %v", err)
	}
	all, err = commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	// The range is half-open; the commit at the end instant is excluded.
	if len(all) != 1 {
		t.Fatalf("Expected 1 commit in the half-open range, got %d", len(all))
	}
	if all[0].CommitSequence != 1 {
		t.Errorf("Expected the first commit, got sequence %d", all[0].CommitSequence)
	}
}

func TestStreamObserverReplay(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	engine := newTestEngine(t, db, sqlstore.DefaultConfig())
	ctx := context.Background()

	for seq := 1; seq <= 3; seq++ {
		mustCommit(t, engine, newAttempt("default", "order-42", seq, seq, 1))
	}

	observer := &recordingObserver{}
	if err := engine.StreamBucketFromCheckpoint(ctx, "default", 0, observer); err != nil {
		t.Fatalf("Failed to replay: %v", err)
	}
	if len(observer.commits) != 3 {
		t.Errorf("Expected 3 commits replayed, got %d", len(observer.commits))
	}
	if !observer.completed {
		t.Error("Expected the observer to be completed")
	}
}

type recordingObserver struct {
	commits   []*store.Commit
	completed bool
}

func (o *recordingObserver) OnNext(_ context.Context, commit *store.Commit) error {
	o.commits = append(o.commits, commit)
	return nil
}

func (o *recordingObserver) OnError(error) {}
func (o *recordingObserver) OnCompleted()  { o.completed = true }

func TestInitializeIsIdempotentAcrossEngines(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	first := newTestEngine(t, db, sqlstore.DefaultConfig())
	mustCommit(t, first, newAttempt("default", "order-42", 1, 1, 1))

	// A second engine re-runs the schema script against existing tables.
	second := newTestEngine(t, db, sqlstore.DefaultConfig())

	commits, err := second.GetFrom(context.Background(), "default", "order-42", 0, 0)
	if err != nil {
		t.Fatalf("Failed to read through the second engine: %v", err)
	}
	all, err := commits.All()
	if err != nil {
		t.Fatalf("Failed to drain cursor: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected the earlier commit to be visible, got %d", len(all))
	}
}
