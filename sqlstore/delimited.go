package sqlstore

import (
	"context"
	"strings"
)

// DelimitedStatement handles dialects whose scripts batch several statements
// into one string separated by semicolons, executing each in order on the
// same scope. Queries are always single statements and go through the
// embedded behavior unchanged.
type DelimitedStatement struct {
	*CommonStatement
}

// NewDelimitedStatement builds a statement that splits semicolon-delimited
// batches before execution.
func NewDelimitedStatement(dialect Dialect, scope *Scope) *DelimitedStatement {
	return &DelimitedStatement{CommonStatement: NewCommonStatement(dialect, scope)}
}

// ExecuteNonQuery runs each delimited statement in order and sums the
// affected row counts. The first failure stops the batch.
func (s *DelimitedStatement) ExecuteNonQuery(ctx context.Context, query string) (int64, error) {
	var total int64
	for _, part := range splitStatements(query) {
		affected, err := s.CommonStatement.ExecuteNonQuery(ctx, part)
		if err != nil {
			return total, err
		}
		total += affected
	}
	return total, nil
}

// ExecuteWithoutExceptions runs the batch, suppressing any failure.
func (s *DelimitedStatement) ExecuteWithoutExceptions(ctx context.Context, query string) int64 {
	affected, err := s.ExecuteNonQuery(ctx, query)
	if err != nil {
		s.logger.Debug(ctx, "statement failure suppressed", "error", err)
		return 0
	}
	return affected
}

// ExecuteScalar runs all leading statements as commands and reads the scalar
// from the final one. Dialects without RETURNING use this to pair an insert
// with a follow-up value query.
func (s *DelimitedStatement) ExecuteScalar(ctx context.Context, query string) (int64, error) {
	parts := splitStatements(query)
	for _, part := range parts[:len(parts)-1] {
		if _, err := s.CommonStatement.ExecuteNonQuery(ctx, part); err != nil {
			return 0, err
		}
	}
	return s.CommonStatement.ExecuteScalar(ctx, parts[len(parts)-1])
}

// splitStatements breaks a semicolon-delimited batch into its statements,
// dropping empty trailing fragments. Statement text never embeds literal
// semicolons, so a plain split is sufficient.
func splitStatements(query string) []string {
	var parts []string
	for _, part := range strings.Split(query, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		parts = []string{""}
	}
	return parts
}
