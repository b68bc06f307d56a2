package sqlstore

import (
	"context"

	"github.com/getpup/commitstore/store"
)

// StreamFromCheckpoint replays every commit after the checkpoint token to
// the observer in checkpoint order. The replay stops at the first observer
// or storage error; the observer always receives a terminal OnError or
// OnCompleted call.
func (e *Engine) StreamFromCheckpoint(ctx context.Context, checkpoint int64, observer store.CommitObserver) error {
	commits, err := e.GetFromCheckpoint(ctx, checkpoint)
	if err != nil {
		observer.OnError(err)
		return err
	}
	return e.push(ctx, commits, observer)
}

// StreamBucketFromCheckpoint replays one bucket's commits after the
// checkpoint token to the observer in checkpoint order.
func (e *Engine) StreamBucketFromCheckpoint(ctx context.Context, bucketID string, checkpoint int64, observer store.CommitObserver) error {
	commits, err := e.GetBucketFromCheckpoint(ctx, bucketID, checkpoint)
	if err != nil {
		observer.OnError(err)
		return err
	}
	return e.push(ctx, commits, observer)
}

func (e *Engine) push(ctx context.Context, commits *Commits, observer store.CommitObserver) error {
	defer commits.Close()

	for commits.Next() {
		if err := ctx.Err(); err != nil {
			observer.OnError(err)
			return err
		}
		if err := observer.OnNext(ctx, commits.Commit()); err != nil {
			observer.OnError(err)
			return err
		}
	}
	if err := commits.Err(); err != nil {
		observer.OnError(err)
		return err
	}
	observer.OnCompleted()
	return nil
}
