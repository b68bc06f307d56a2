package common_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/getpup/commitstore/sqlstore/dialects/common"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 30, 45, 123456789, time.UTC)

	cases := []string{
		"2024-05-01T12:30:45.123456789Z",
		"2024-05-01 12:30:45.123456789+00:00",
		"2024-05-01T12:30:45.123456789",
		"2024-05-01 12:30:45.123456789",
	}
	for _, input := range cases {
		got, err := common.ParseTime(input)
		if err != nil {
			t.Errorf("ParseTime(%q) failed: %v", input, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTime(%q) = %v, want %v", input, got, want)
		}
	}

	whole, err := common.ParseTime("2024-05-01 12:30:45")
	if err != nil {
		t.Fatalf("ParseTime failed: %v", err)
	}
	if !whole.Equal(want.Truncate(time.Second)) {
		t.Errorf("unexpected instant: %v", whole)
	}

	if _, err := common.ParseTime("yesterday"); err == nil {
		t.Error("expected error for unparseable input")
	}
}

func TestCoalesceParameterValue(t *testing.T) {
	d := common.Dialect{}

	id := uuid.New()
	if got := d.CoalesceParameterValue(id); got != id.String() {
		t.Errorf("expected canonical uuid string, got %#v", got)
	}

	local := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	coalesced, ok := d.CoalesceParameterValue(local).(time.Time)
	if !ok || coalesced.Location() != time.UTC {
		t.Errorf("expected UTC instant, got %#v", coalesced)
	}

	if got := d.CoalesceParameterValue(42); got != 42 {
		t.Errorf("expected passthrough, got %#v", got)
	}
}

func TestToTime(t *testing.T) {
	d := common.Dialect{}
	want := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)

	got, err := d.ToTime(want)
	if err != nil || !got.Equal(want) {
		t.Errorf("ToTime(time.Time) = %v, %v", got, err)
	}

	got, err = d.ToTime("2024-05-01 12:30:45")
	if err != nil || !got.Equal(want) {
		t.Errorf("ToTime(string) = %v, %v", got, err)
	}

	got, err = d.ToTime([]byte("2024-05-01 12:30:45"))
	if err != nil || !got.Equal(want) {
		t.Errorf("ToTime([]byte) = %v, %v", got, err)
	}

	if _, err := d.ToTime(3.14); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestDefaultStatements(t *testing.T) {
	statements := common.DefaultStatements()

	// A commit covers revisions (StreamRevision - Items, StreamRevision];
	// range reads must include commits that straddle the requested bounds.
	if !strings.Contains(statements.GetCommitsFromStartingRevision, "(StreamRevision - Items) < @MaxStreamRevision") {
		t.Error("revision range query must compare against the commit's first event revision")
	}

	// Snapshots are only accepted at revisions some commit actually covers,
	// and never twice for the same revision.
	if !strings.Contains(statements.AppendSnapshotToCommit, "WHERE EXISTS") ||
		!strings.Contains(statements.AppendSnapshotToCommit, "NOT EXISTS") {
		t.Error("snapshot insert must be guarded")
	}

	// Snapshot candidate listing pages by hashed stream id.
	if !strings.Contains(statements.GetStreamsRequiringSnapshots, "C.StreamId > @StreamId") {
		t.Error("stream listing must support resuming past the last stream id")
	}
	if !strings.Contains(statements.GetStreamsRequiringSnapshots, "ORDER BY C.StreamId") {
		t.Error("stream listing must be ordered for paging to resume correctly")
	}

	if !strings.Contains(statements.PersistCommit, "RETURNING CheckpointNumber") {
		t.Error("insert must return the assigned checkpoint")
	}
	if !strings.Contains(statements.GetSnapshot, "ORDER BY StreamRevision DESC") {
		t.Error("snapshot lookup must prefer the newest qualifying snapshot")
	}
}
