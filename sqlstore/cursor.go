package sqlstore

import (
	"github.com/getpup/commitstore/store"
)

// Commits is a forward-only cursor over decoded commits. It owns the
// connection scope of the query that produced it; callers must Close it.
type Commits struct {
	rows    Rows
	decode  func(Row) (*store.Commit, error)
	current *store.Commit
	err     error
}

// Next advances to the next commit, fetching further pages as needed.
func (c *Commits) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}
	commit, err := c.decode(c.rows.Record())
	if err != nil {
		c.err = err
		return false
	}
	c.current = commit
	return true
}

// Commit returns the commit produced by the last successful Next.
func (c *Commits) Commit() *store.Commit {
	return c.current
}

// Err returns the first error encountered while iterating.
func (c *Commits) Err() error {
	return c.err
}

// Close releases the cursor's connection scope.
func (c *Commits) Close() error {
	return c.rows.Close()
}

// All drains the cursor into a slice and closes it.
func (c *Commits) All() ([]*store.Commit, error) {
	defer c.Close()
	var commits []*store.Commit
	for c.Next() {
		commits = append(commits, c.Commit())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return commits, nil
}

// StreamHeads is a forward-only cursor over streams due for snapshotting.
type StreamHeads struct {
	rows    Rows
	current *store.StreamHead
	err     error
}

// Next advances to the next stream head.
func (s *StreamHeads) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.rows.Next() {
		s.err = s.rows.Err()
		return false
	}
	head, err := streamHeadFromRecord(s.rows.Record())
	if err != nil {
		s.err = err
		return false
	}
	s.current = head
	return true
}

// StreamHead returns the head produced by the last successful Next.
func (s *StreamHeads) StreamHead() *store.StreamHead {
	return s.current
}

// Err returns the first error encountered while iterating.
func (s *StreamHeads) Err() error {
	return s.err
}

// Close releases the cursor's connection scope.
func (s *StreamHeads) Close() error {
	return s.rows.Close()
}

// All drains the cursor into a slice and closes it.
func (s *StreamHeads) All() ([]*store.StreamHead, error) {
	defer s.Close()
	var heads []*store.StreamHead
	for s.Next() {
		heads = append(heads, s.StreamHead())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return heads, nil
}
