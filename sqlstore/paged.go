package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/getpup/commitstore/store"
)

// pagedRows is a forward-only cursor that transparently re-executes its
// query page by page. The underlying statement keeps its parameters between
// executions; at each page boundary the cursor rebinds Skip to the absolute
// position consumed so far and lets the NextPage delegate advance whatever
// predicate parameters the query pages by.
//
// Closing the cursor completes the read scope and releases its connection.
type pagedRows struct {
	ctx      context.Context
	stmt     *CommonStatement
	query    string
	next     NextPage
	pageSize int

	rows     *sql.Rows
	colCount int
	current  Row
	position int
	err      error
	closed   bool
}

func newPagedRows(ctx context.Context, stmt *CommonStatement, query string, pageSize int, next NextPage) *pagedRows {
	if next == nil {
		next = NopNextPage
	}
	return &pagedRows{
		ctx:      ctx,
		stmt:     stmt,
		query:    query,
		next:     next,
		pageSize: pageSize,
	}
}

// Next implements Rows.
func (c *pagedRows) Next() bool {
	if c.closed || c.err != nil {
		return false
	}

	if c.pageSize > 0 && c.position >= c.pageSize {
		c.stmt.SetParameter(ParamSkip, c.position)
		c.next(c.stmt, c.current)
	}

	if c.rows == nil && !c.openNextPage() {
		return false
	}

	if c.rows.Next() {
		return c.capture()
	}
	if err := c.rows.Err(); err != nil {
		c.err = err
		return false
	}

	if c.pageSize <= 0 {
		return false
	}
	if !c.pageCompletelyEnumerated() {
		// A short page means the result set is exhausted.
		return false
	}

	// The page filled exactly; one more round trip decides whether more
	// records exist.
	c.stmt.logger.Debug(c.ctx, "page boundary reached", "position", c.position)
	if err := c.rows.Close(); err != nil {
		c.err = err
		return false
	}
	c.rows = nil
	if !c.openNextPage() {
		return false
	}
	if c.rows.Next() {
		return c.capture()
	}
	c.err = c.rows.Err()
	return false
}

// Record implements Rows.
func (c *pagedRows) Record() Row {
	return c.current
}

// Err implements Rows.
func (c *pagedRows) Err() error {
	return c.err
}

// Close implements Rows. Queries do not modify state, so the scope is
// completed rather than rolled back; an enclosing transaction, if any,
// decides its own fate.
func (c *pagedRows) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.current = nil

	var first error
	if c.rows != nil {
		first = c.rows.Close()
		c.rows = nil
	}
	if err := c.stmt.scope.Commit(); err != nil && first == nil {
		first = err
	}
	if err := c.stmt.scope.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func (c *pagedRows) pageCompletelyEnumerated() bool {
	return c.position > 0 && c.position%c.pageSize == 0
}

func (c *pagedRows) openNextPage() bool {
	rows, err := c.stmt.runQuery(c.ctx, c.query)
	if err != nil {
		c.err = err
		return false
	}
	c.rows = rows
	if c.colCount == 0 {
		cols, err := rows.Columns()
		if err != nil {
			c.err = fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
			return false
		}
		c.colCount = len(cols)
	}
	return true
}

// capture scans the current record into an index-addressed Row of raw
// driver values.
func (c *pagedRows) capture() bool {
	record := make(Row, c.colCount)
	targets := make([]interface{}, c.colCount)
	for i := range record {
		targets[i] = &record[i]
	}
	if err := c.rows.Scan(targets...); err != nil {
		c.err = err
		return false
	}
	c.current = record
	c.position++
	return true
}
