package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/getpup/commitstore/store"
)

// Config contains configuration for the engine.
// Configuration is immutable after construction.
type Config struct {
	// PageSize is the number of records fetched per round trip on queries.
	// Zero disables paging and fetches result sets in a single query.
	PageSize int

	// TxPolicy controls how operations relate to database transactions.
	TxPolicy TxPolicy

	// CommandTimeout bounds each write operation. Zero means no bound
	// beyond the caller's context. Query cursors are bounded only by the
	// caller's context since they outlive the call that opened them.
	CommandTimeout time.Duration

	// Logger receives diagnostic output. Nil disables logging.
	Logger store.Logger

	// Hasher maps caller stream ids onto the indexed 40-character key.
	// Nil selects the SHA-1 hasher.
	Hasher store.StreamIDHasher
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: 512,
	}
}

// Engine is the SQL-backed commit log. One engine serves any number of
// concurrent operations; every operation acquires its own connection scope
// from the factory and releases it when done.
type Engine struct {
	factory    store.ConnectionFactory
	dialect    Dialect
	serializer store.Serializer
	events     store.EventSerializer
	config     Config
	logger     store.Logger
	hasher     validatedHasher

	initialized atomic.Int32
	disposed    atomic.Bool
}

// NewEngine creates an engine over the given connection factory and dialect.
func NewEngine(factory store.ConnectionFactory, dialect Dialect, serializer store.Serializer, events store.EventSerializer, config Config) (*Engine, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: connection factory is nil", store.ErrInvalidArgument)
	}
	if dialect == nil {
		return nil, fmt.Errorf("%w: dialect is nil", store.ErrInvalidArgument)
	}
	if serializer == nil {
		return nil, fmt.Errorf("%w: serializer is nil", store.ErrInvalidArgument)
	}
	if events == nil {
		return nil, fmt.Errorf("%w: event serializer is nil", store.ErrInvalidArgument)
	}
	if config.PageSize < 0 {
		return nil, fmt.Errorf("%w: page size %d is negative", store.ErrInvalidArgument, config.PageSize)
	}

	logger := config.Logger
	if logger == nil {
		logger = store.NoOpLogger{}
	}
	hasher := config.Hasher
	if hasher == nil {
		hasher = SHA1StreamIDHasher{}
	}

	return &Engine{
		factory:    factory,
		dialect:    dialect,
		serializer: serializer,
		events:     events,
		config:     config,
		logger:     logger,
		hasher:     validatedHasher{inner: hasher},
	}, nil
}

// Initialize creates the storage schema. It runs at most once per engine and
// tolerates schema objects that already exist.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if e.initialized.Add(1) > 1 {
		return nil
	}
	e.logger.Info(ctx, "initializing storage", "dialect", e.dialect.Name())

	ctx, cancel := e.commandContext(ctx)
	defer cancel()

	scope, err := e.openScope(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	stmt := e.dialect.NewStatement(scope)
	stmt.ExecuteWithoutExceptions(ctx, e.dialect.Statements().InitializeStorage)
	return scope.Commit()
}

// Commit durably appends the attempt to its stream and returns the resulting
// commit, carrying the database-assigned checkpoint token.
//
// A unique-key violation is disambiguated with a follow-up probe: a row
// already holding this attempt's commit id means the attempt is a retry and
// ErrDuplicateCommit is returned; otherwise another writer claimed the same
// commit sequence first and ErrConcurrency is returned. Either way nothing
// was written and the checkpoint sequence is untouched.
func (e *Engine) Commit(ctx context.Context, attempt *store.CommitAttempt) (*store.Commit, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if err := attempt.Validate(); err != nil {
		return nil, err
	}
	hashed, err := e.hasher.hash(attempt.StreamID)
	if err != nil {
		return nil, err
	}

	headers, err := e.serializer.Serialize(attempt.Headers)
	if err != nil {
		return nil, fmt.Errorf("serialize headers: %w", err)
	}
	payload, err := e.events.SerializeEvents(attempt.Events)
	if err != nil {
		return nil, fmt.Errorf("serialize events: %w", err)
	}
	stamp := attempt.CommitStamp.UTC()
	if attempt.CommitStamp.IsZero() {
		stamp = time.Now().UTC()
	}

	ctx, cancel := e.commandContext(ctx)
	defer cancel()

	scope, err := e.openScope(ctx)
	if err != nil {
		return nil, err
	}

	stmt := e.dialect.NewStatement(scope)
	stmt.SetParameter(ParamBucketID, attempt.BucketID)
	stmt.SetParameter(ParamStreamID, hashed)
	stmt.SetParameter(ParamStreamIDOriginal, attempt.StreamID)
	stmt.SetParameter(ParamCommitID, attempt.CommitID)
	stmt.SetParameter(ParamCommitSequence, attempt.CommitSequence)
	stmt.SetParameter(ParamStreamRevision, attempt.StreamRevision)
	stmt.SetParameter(ParamItems, len(attempt.Events))
	stmt.SetParameter(ParamCommitStamp, stamp)
	stmt.SetParameter(ParamHeaders, headers)
	stmt.SetParameter(ParamPayload, payload)

	checkpoint, err := stmt.ExecuteScalar(ctx, e.dialect.Statements().PersistCommit)
	if err != nil {
		_ = scope.Close()
		if errors.Is(err, store.ErrUniqueKeyViolation) {
			e.logger.Debug(ctx, "unique key violation on commit",
				"bucket", attempt.BucketID, "stream", attempt.StreamID,
				"commitSequence", attempt.CommitSequence)
			return nil, e.detectDuplicate(ctx, attempt, hashed)
		}
		if errors.Is(err, store.ErrStorageUnavailable) {
			return nil, err
		}
		return nil, store.NewStorageError("persist commit", err)
	}
	if err := scope.Commit(); err != nil {
		_ = scope.Close()
		return nil, store.NewStorageError("persist commit", err)
	}
	_ = scope.Close()

	e.logger.Debug(ctx, "commit persisted",
		"bucket", attempt.BucketID, "stream", attempt.StreamID,
		"commitSequence", attempt.CommitSequence, "checkpoint", checkpoint)

	return &store.Commit{
		BucketID:        attempt.BucketID,
		StreamID:        attempt.StreamID,
		StreamRevision:  attempt.StreamRevision,
		CommitID:        attempt.CommitID,
		CommitSequence:  attempt.CommitSequence,
		CommitStamp:     stamp,
		CheckpointToken: checkpoint,
		Headers:         attempt.Headers,
		Events:          attempt.Events,
	}, nil
}

// detectDuplicate distinguishes a retried commit from a lost write race.
// It runs on a fresh scope because the vendor may have poisoned the
// transaction the violation occurred in.
func (e *Engine) detectDuplicate(ctx context.Context, attempt *store.CommitAttempt, hashed string) error {
	scope, err := e.openScope(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	stmt := e.dialect.NewStatement(scope)
	stmt.SetParameter(ParamBucketID, attempt.BucketID)
	stmt.SetParameter(ParamStreamID, hashed)
	stmt.SetParameter(ParamCommitID, attempt.CommitID)
	stmt.SetParameter(ParamCommitSequence, attempt.CommitSequence)

	count, err := stmt.ExecuteScalar(ctx, e.dialect.Statements().DuplicateCommit)
	if err != nil {
		if errors.Is(err, store.ErrStorageUnavailable) {
			return err
		}
		// The probe could not decide; report the race and let the caller
		// reload and retry.
		e.logger.Error(ctx, "duplicate probe failed", "error", err)
		return store.ErrConcurrency
	}
	_ = scope.Commit()
	if count > 0 {
		return store.ErrDuplicateCommit
	}
	return store.ErrConcurrency
}

// GetFrom returns the commits of one stream whose events overlap the
// revision range [minRevision, maxRevision], ordered by commit sequence.
// maxRevision of zero or less means no upper bound.
func (e *Engine) GetFrom(ctx context.Context, bucketID, streamID string, minRevision, maxRevision int) (*Commits, error) {
	if bucketID == "" {
		return nil, fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}
	hashed, err := e.hasher.hash(streamID)
	if err != nil {
		return nil, err
	}
	if minRevision < 1 {
		minRevision = 1
	}
	if maxRevision <= 0 {
		maxRevision = math.MaxInt32
	}

	return e.queryCommits(ctx, e.dialect.Statements().GetCommitsFromStartingRevision,
		func(p ParamSetter, last Row) {
			p.SetParameter(ParamCommitSequence, last[colCommitSequence])
		},
		func(stmt Statement) {
			stmt.SetParameter(ParamBucketID, bucketID)
			stmt.SetParameter(ParamStreamID, hashed)
			stmt.SetParameter(ParamStreamRevision, minRevision)
			stmt.SetParameter(ParamMaxStreamRevision, maxRevision)
			stmt.SetParameter(ParamCommitSequence, 0)
		})
}

// GetFromCheckpoint returns every commit in every bucket persisted after the
// given checkpoint token, in checkpoint order.
func (e *Engine) GetFromCheckpoint(ctx context.Context, checkpoint int64) (*Commits, error) {
	return e.queryCommits(ctx, e.dialect.Statements().GetCommitsFromCheckpoint,
		e.checkpointNextPage,
		func(stmt Statement) {
			stmt.SetParameter(ParamCheckpointNumber, checkpoint)
		})
}

// GetFromToCheckpoint returns every commit persisted after from and at or
// before to, in checkpoint order. A to of zero or less means no upper bound.
func (e *Engine) GetFromToCheckpoint(ctx context.Context, from, to int64) (*Commits, error) {
	if to <= 0 {
		to = math.MaxInt64
	}
	return e.queryCommits(ctx, e.dialect.Statements().GetCommitsFromToCheckpoint,
		e.checkpointNextPage,
		func(stmt Statement) {
			stmt.SetParameter(ParamCheckpointNumber, from)
			stmt.SetParameter(ParamToCheckpointNumber, to)
		})
}

// GetBucketFromCheckpoint returns one bucket's commits persisted after the
// given checkpoint token, in checkpoint order.
func (e *Engine) GetBucketFromCheckpoint(ctx context.Context, bucketID string, checkpoint int64) (*Commits, error) {
	if bucketID == "" {
		return nil, fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}
	return e.queryCommits(ctx, e.dialect.Statements().GetCommitsFromBucketAndCheckpoint,
		e.checkpointNextPage,
		func(stmt Statement) {
			stmt.SetParameter(ParamBucketID, bucketID)
			stmt.SetParameter(ParamCheckpointNumber, checkpoint)
		})
}

// GetBucketFromToCheckpoint returns one bucket's commits persisted after
// from and at or before to, in checkpoint order.
func (e *Engine) GetBucketFromToCheckpoint(ctx context.Context, bucketID string, from, to int64) (*Commits, error) {
	if bucketID == "" {
		return nil, fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}
	if to <= 0 {
		to = math.MaxInt64
	}
	return e.queryCommits(ctx, e.dialect.Statements().GetCommitsFromToBucketAndCheckpoint,
		e.checkpointNextPage,
		func(stmt Statement) {
			stmt.SetParameter(ParamBucketID, bucketID)
			stmt.SetParameter(ParamCheckpointNumber, from)
			stmt.SetParameter(ParamToCheckpointNumber, to)
		})
}

// GetFromInstant returns one bucket's commits persisted at or after the
// given instant. Instants are truncated to whole seconds before comparison.
func (e *Engine) GetFromInstant(ctx context.Context, bucketID string, start time.Time) (*Commits, error) {
	if bucketID == "" {
		return nil, fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}
	return e.queryCommits(ctx, e.dialect.Statements().GetCommitsFromInstant,
		NopNextPage,
		func(stmt Statement) {
			stmt.SetParameter(ParamBucketID, bucketID)
			stmt.SetParameter(ParamCommitStamp, clampInstant(start))
		})
}

// GetFromToInstant returns one bucket's commits persisted within
// [start, end), both truncated to whole seconds.
func (e *Engine) GetFromToInstant(ctx context.Context, bucketID string, start, end time.Time) (*Commits, error) {
	if bucketID == "" {
		return nil, fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}
	return e.queryCommits(ctx, e.dialect.Statements().GetCommitsFromToInstant,
		NopNextPage,
		func(stmt Statement) {
			stmt.SetParameter(ParamBucketID, bucketID)
			stmt.SetParameter(ParamCommitStampStart, clampInstant(start))
			stmt.SetParameter(ParamCommitStampEnd, clampInstant(end))
		})
}

// GetSnapshot returns the most recent snapshot of the stream taken at or
// below maxRevision, or nil when the stream has no qualifying snapshot.
// maxRevision of zero or less means the latest snapshot.
func (e *Engine) GetSnapshot(ctx context.Context, bucketID, streamID string, maxRevision int) (*store.Snapshot, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if bucketID == "" {
		return nil, fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}
	hashed, err := e.hasher.hash(streamID)
	if err != nil {
		return nil, err
	}
	if maxRevision <= 0 {
		maxRevision = math.MaxInt32
	}

	scope, err := e.openScope(ctx)
	if err != nil {
		return nil, err
	}

	stmt := e.dialect.NewStatement(scope)
	stmt.SetParameter(ParamBucketID, bucketID)
	stmt.SetParameter(ParamStreamID, hashed)
	stmt.SetParameter(ParamStreamRevision, maxRevision)

	rows, err := stmt.ExecuteQuery(ctx, e.dialect.Statements().GetSnapshot)
	if err != nil {
		_ = scope.Close()
		return nil, store.NewStorageError("get snapshot", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, store.NewStorageError("get snapshot", err)
		}
		return nil, nil
	}
	snapshot, err := e.snapshotFromRecord(rows.Record(), streamID)
	if err != nil {
		return nil, store.NewStorageError("get snapshot", err)
	}
	return snapshot, nil
}

// AddSnapshot records a snapshot of the stream at its revision. It reports
// true when the snapshot was stored and false when it was rejected: the
// guarded insert refuses revisions no commit covers and revisions already
// snapshotted, so retries are harmless.
func (e *Engine) AddSnapshot(ctx context.Context, snapshot *store.Snapshot) (bool, error) {
	if err := e.checkOpen(); err != nil {
		return false, err
	}
	if snapshot == nil {
		return false, fmt.Errorf("%w: nil snapshot", store.ErrInvalidArgument)
	}
	if snapshot.BucketID == "" {
		return false, fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}
	if snapshot.StreamRevision <= 0 {
		return false, fmt.Errorf("%w: stream revision %d is not positive", store.ErrInvalidArgument, snapshot.StreamRevision)
	}
	hashed, err := e.hasher.hash(snapshot.StreamID)
	if err != nil {
		return false, err
	}
	payload, err := e.serializer.Serialize(snapshot.Payload)
	if err != nil {
		return false, fmt.Errorf("serialize snapshot payload: %w", err)
	}

	ctx, cancel := e.commandContext(ctx)
	defer cancel()

	scope, err := e.openScope(ctx)
	if err != nil {
		return false, err
	}
	defer scope.Close()

	stmt := e.dialect.NewStatement(scope)
	stmt.SetParameter(ParamBucketID, snapshot.BucketID)
	stmt.SetParameter(ParamStreamID, hashed)
	stmt.SetParameter(ParamStreamRevision, snapshot.StreamRevision)
	stmt.SetParameter(ParamPayload, payload)

	if stmt.ExecuteWithoutExceptions(ctx, e.dialect.Statements().AppendSnapshotToCommit) == 0 {
		return false, nil
	}
	if err := scope.Commit(); err != nil {
		return false, store.NewStorageError("add snapshot", err)
	}
	return true, nil
}

// GetStreamsToSnapshot returns the streams in a bucket whose head revision
// is at least threshold revisions past their newest snapshot, ordered by
// hashed stream id.
func (e *Engine) GetStreamsToSnapshot(ctx context.Context, bucketID string, threshold int) (*StreamHeads, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if bucketID == "" {
		return nil, fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}

	scope, err := e.openScope(ctx)
	if err != nil {
		return nil, err
	}

	stmt := e.dialect.NewStatement(scope)
	stmt.SetParameter(ParamBucketID, bucketID)
	stmt.SetParameter(ParamThreshold, threshold)
	stmt.SetParameter(ParamStreamID, "")
	stmt.SetParameter(ParamLimit, e.limit())
	stmt.SetParameter(ParamSkip, 0)

	rows, err := stmt.ExecutePagedQuery(ctx, e.dialect.Statements().GetStreamsRequiringSnapshots,
		e.config.PageSize,
		func(p ParamSetter, last Row) {
			p.SetParameter(ParamStreamID, last[headColStreamID])
		})
	if err != nil {
		_ = scope.Close()
		return nil, store.NewStorageError("get streams to snapshot", err)
	}
	return &StreamHeads{rows: rows}, nil
}

// Purge deletes every commit and snapshot in every bucket. The schema stays.
func (e *Engine) Purge(ctx context.Context) error {
	return e.execute(ctx, "purge", e.dialect.Statements().PurgeStorage, nil)
}

// PurgeBucket deletes every commit and snapshot in one bucket.
func (e *Engine) PurgeBucket(ctx context.Context, bucketID string) error {
	if bucketID == "" {
		return fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}
	return e.execute(ctx, "purge bucket", e.dialect.Statements().PurgeBucket, func(stmt Statement) {
		stmt.SetParameter(ParamBucketID, bucketID)
	})
}

// DeleteStream deletes one stream's commits and snapshots.
func (e *Engine) DeleteStream(ctx context.Context, bucketID, streamID string) error {
	if bucketID == "" {
		return fmt.Errorf("%w: bucket id is empty", store.ErrInvalidArgument)
	}
	hashed, err := e.hasher.hash(streamID)
	if err != nil {
		return err
	}
	return e.execute(ctx, "delete stream", e.dialect.Statements().DeleteStream, func(stmt Statement) {
		stmt.SetParameter(ParamBucketID, bucketID)
		stmt.SetParameter(ParamStreamID, hashed)
	})
}

// Drop removes the storage schema entirely.
func (e *Engine) Drop(ctx context.Context) error {
	return e.execute(ctx, "drop", e.dialect.Statements().Drop, nil)
}

// Close marks the engine disposed. Every subsequent operation fails with
// ErrDisposed. The underlying database handle belongs to the connection
// factory's owner and is not touched.
func (e *Engine) Close() error {
	if e.disposed.Swap(true) {
		return nil
	}
	e.logger.Info(context.Background(), "engine closed", "dialect", e.dialect.Name())
	return nil
}

// IsClosed reports whether Close has been called.
func (e *Engine) IsClosed() bool {
	return e.disposed.Load()
}

func (e *Engine) checkOpen() error {
	if e.disposed.Load() {
		return store.ErrDisposed
	}
	return nil
}

func (e *Engine) openScope(ctx context.Context) (*Scope, error) {
	return openScope(ctx, e.factory, e.dialect, e.config.TxPolicy, e.logger)
}

func (e *Engine) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.CommandTimeout > 0 {
		return context.WithTimeout(ctx, e.config.CommandTimeout)
	}
	return ctx, func() {}
}

// limit is the per-page fetch bound. With paging disabled the queries still
// carry a limit parameter, bound high enough to be a no-op.
func (e *Engine) limit() int {
	if e.config.PageSize > 0 {
		return e.config.PageSize
	}
	return math.MaxInt32
}

func (e *Engine) checkpointNextPage(p ParamSetter, last Row) {
	p.SetParameter(ParamCheckpointNumber, last[colCheckpointNumber])
}

// queryCommits runs one of the commit queries through a paged cursor that
// owns its own connection scope.
func (e *Engine) queryCommits(ctx context.Context, query string, next NextPage, bind func(Statement)) (*Commits, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	scope, err := e.openScope(ctx)
	if err != nil {
		return nil, err
	}

	stmt := e.dialect.NewStatement(scope)
	bind(stmt)
	stmt.SetParameter(ParamLimit, e.limit())
	stmt.SetParameter(ParamSkip, 0)

	rows, err := stmt.ExecutePagedQuery(ctx, query, e.config.PageSize, next)
	if err != nil {
		_ = scope.Close()
		return nil, store.NewStorageError("query commits", err)
	}
	return &Commits{rows: rows, decode: e.commitFromRecord}, nil
}

// execute runs a single data-modification operation on its own scope.
func (e *Engine) execute(ctx context.Context, op, query string, bind func(Statement)) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	ctx, cancel := e.commandContext(ctx)
	defer cancel()

	scope, err := e.openScope(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	stmt := e.dialect.NewStatement(scope)
	if bind != nil {
		bind(stmt)
	}
	if _, err := stmt.ExecuteNonQuery(ctx, query); err != nil {
		return store.NewStorageError(op, err)
	}
	return scope.Commit()
}

// clampInstant normalizes a range bound: instants are compared at whole
// second granularity, and anything before the Unix epoch means "from the
// beginning".
func clampInstant(t time.Time) time.Time {
	t = t.UTC().Truncate(time.Second)
	if t.Before(time.Unix(0, 0)) {
		return time.Unix(0, 0).UTC()
	}
	return t
}
