// Package sqlstore implements the commit-log engine over database/sql.
//
// # Overview
//
// The engine persists commits into two tables, Commits and Snapshots, and
// reads them back through paged, forward-only cursors. All vendor-specific
// behavior lives behind the Dialect interface; the engine itself never
// emits SQL text or inspects driver errors.
//
// # Statement Layer
//
// Statement text is written once per dialect with named @Name tokens. The
// statement layer resolves only the tokens present in a given text, so one
// parameter set can serve several statements. Vendors whose scripts batch
// multiple statements per string execute through DelimitedStatement.
//
// # Paging
//
// Queries fetch PageSize records per round trip. Stream and checkpoint
// queries page by advancing their predicate parameters past the last record
// seen; time-range queries page by offset. Either way the cursor hides the
// round trips and presents one uninterrupted sequence.
//
// # Commit Disambiguation
//
// A rejected insert is classified by a follow-up probe: if a row already
// carries the attempt's commit id the attempt was a retry, otherwise another
// writer won the commit-sequence slot. See Engine.Commit.
package sqlstore
