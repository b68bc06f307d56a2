package sqlstore

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/getpup/commitstore/store"
)

// Raw scan values arrive as whatever type the driver chose. These helpers
// normalize the handful of shapes seen across the supported drivers.

func asString(v interface{}) (string, error) {
	switch value := v.(type) {
	case string:
		return value, nil
	case []byte:
		return string(value), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("cannot read %T as string", v)
	}
}

func asInt64(v interface{}) (int64, error) {
	switch value := v.(type) {
	case int64:
		return value, nil
	case int32:
		return int64(value), nil
	case int:
		return int64(value), nil
	case uint64:
		return int64(value), nil
	case float64:
		return int64(value), nil
	case []byte:
		return strconv.ParseInt(string(value), 10, 64)
	case string:
		return strconv.ParseInt(value, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot read %T as integer", v)
	}
}

func asInt(v interface{}) (int, error) {
	value, err := asInt64(v)
	return int(value), err
}

func asUUID(v interface{}) (uuid.UUID, error) {
	switch value := v.(type) {
	case []byte:
		if len(value) == 16 {
			return uuid.FromBytes(value)
		}
		return uuid.Parse(string(value))
	case string:
		return uuid.Parse(value)
	default:
		return uuid.Nil, fmt.Errorf("cannot read %T as uuid", v)
	}
}

func asBytes(v interface{}) ([]byte, error) {
	switch value := v.(type) {
	case []byte:
		return value, nil
	case string:
		return []byte(value), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("cannot read %T as bytes", v)
	}
}

// commitFromRecord decodes one row of the canonical commit column order.
func (e *Engine) commitFromRecord(record Row) (*store.Commit, error) {
	if len(record) <= colPayload {
		return nil, fmt.Errorf("commit record has %d columns, want %d", len(record), colPayload+1)
	}

	bucketID, err := asString(record[colBucketID])
	if err != nil {
		return nil, fmt.Errorf("decode bucket id: %w", err)
	}
	streamID, err := asString(record[colStreamIDOriginal])
	if err != nil {
		return nil, fmt.Errorf("decode stream id: %w", err)
	}
	streamRevision, err := asInt(record[colStreamRevision])
	if err != nil {
		return nil, fmt.Errorf("decode stream revision: %w", err)
	}
	commitID, err := asUUID(record[colCommitID])
	if err != nil {
		return nil, fmt.Errorf("decode commit id: %w", err)
	}
	commitSequence, err := asInt(record[colCommitSequence])
	if err != nil {
		return nil, fmt.Errorf("decode commit sequence: %w", err)
	}
	commitStamp, err := e.dialect.ToTime(record[colCommitStamp])
	if err != nil {
		return nil, fmt.Errorf("decode commit stamp: %w", err)
	}
	checkpoint, err := asInt64(record[colCheckpointNumber])
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}

	headerData, err := asBytes(record[colHeaders])
	if err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	var headers map[string]interface{}
	if len(headerData) > 0 {
		if err := e.serializer.Deserialize(headerData, &headers); err != nil {
			return nil, fmt.Errorf("deserialize headers: %w", err)
		}
	}

	payload, err := asBytes(record[colPayload])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	events, err := e.events.DeserializeEvents(payload, store.CommitMeta{
		BucketID:       bucketID,
		StreamID:       streamID,
		CommitSequence: commitSequence,
	})
	if err != nil {
		return nil, fmt.Errorf("deserialize events: %w", err)
	}

	return &store.Commit{
		BucketID:        bucketID,
		StreamID:        streamID,
		StreamRevision:  streamRevision,
		CommitID:        commitID,
		CommitSequence:  commitSequence,
		CommitStamp:     commitStamp,
		CheckpointToken: checkpoint,
		Headers:         headers,
		Events:          events,
	}, nil
}

// snapshotFromRecord decodes one row of the snapshot column order.
func (e *Engine) snapshotFromRecord(record Row, streamID string) (*store.Snapshot, error) {
	if len(record) <= snapColPayload {
		return nil, fmt.Errorf("snapshot record has %d columns, want %d", len(record), snapColPayload+1)
	}

	bucketID, err := asString(record[snapColBucketID])
	if err != nil {
		return nil, fmt.Errorf("decode bucket id: %w", err)
	}
	streamRevision, err := asInt(record[snapColStreamRevision])
	if err != nil {
		return nil, fmt.Errorf("decode stream revision: %w", err)
	}
	data, err := asBytes(record[snapColPayload])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	var payload interface{}
	if len(data) > 0 {
		if err := e.serializer.Deserialize(data, &payload); err != nil {
			return nil, fmt.Errorf("deserialize payload: %w", err)
		}
	}

	// The table only holds the hashed stream id; the caller's original id
	// is echoed back instead.
	return &store.Snapshot{
		BucketID:       bucketID,
		StreamID:       streamID,
		StreamRevision: streamRevision,
		Payload:        payload,
	}, nil
}

// streamHeadFromRecord decodes one row of the streams-requiring-snapshots
// column order.
func streamHeadFromRecord(record Row) (*store.StreamHead, error) {
	if len(record) <= headColSnapshotRevision {
		return nil, fmt.Errorf("stream head record has %d columns, want %d", len(record), headColSnapshotRevision+1)
	}

	bucketID, err := asString(record[headColBucketID])
	if err != nil {
		return nil, fmt.Errorf("decode bucket id: %w", err)
	}
	streamID, err := asString(record[headColStreamIDOriginal])
	if err != nil {
		return nil, fmt.Errorf("decode stream id: %w", err)
	}
	headRevision, err := asInt(record[headColHeadRevision])
	if err != nil {
		return nil, fmt.Errorf("decode head revision: %w", err)
	}
	snapshotRevision, err := asInt(record[headColSnapshotRevision])
	if err != nil {
		return nil, fmt.Errorf("decode snapshot revision: %w", err)
	}

	return &store.StreamHead{
		BucketID:         bucketID,
		StreamID:         streamID,
		HeadRevision:     headRevision,
		SnapshotRevision: snapshotRevision,
	}, nil
}
