package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"

	"github.com/getpup/commitstore/store"
)

var (
	atToken    = regexp.MustCompile(`@[A-Za-z]\w*`)
	colonToken = regexp.MustCompile(`:[A-Za-z]\w*`)
)

// CommonStatement executes single-statement SQL text against a scope,
// resolving named parameter tokens into the dialect's binding convention.
type CommonStatement struct {
	dialect Dialect
	scope   *Scope
	logger  store.Logger
	params  map[string]interface{}
}

// NewCommonStatement builds a statement for dialects whose scripts contain
// one statement per string.
func NewCommonStatement(dialect Dialect, scope *Scope) *CommonStatement {
	return &CommonStatement{
		dialect: dialect,
		scope:   scope,
		logger:  scope.logger,
		params:  make(map[string]interface{}),
	}
}

// SetParameter sets or replaces a named parameter. The last value set wins.
func (s *CommonStatement) SetParameter(name string, value interface{}) {
	s.params[name] = value
}

// buildQuery resolves the parameter tokens present in query into driver
// arguments. Parameters set on the statement but absent from the text are
// ignored; tokens with no corresponding parameter are an error.
func (s *CommonStatement) buildQuery(query string) (string, []interface{}, error) {
	style := s.dialect.BindStyle()
	token := atToken
	if style == BindNamedColon {
		token = colonToken
	}

	var args []interface{}
	var missing string

	switch style {
	case BindNamedAt, BindNamedColon:
		seen := make(map[string]bool)
		for _, tok := range token.FindAllString(query, -1) {
			name := tok[1:]
			if seen[name] {
				continue
			}
			seen[name] = true
			value, ok := s.params[name]
			if !ok {
				return "", nil, fmt.Errorf("statement parameter %q is not set", name)
			}
			args = append(args, sql.Named(name, s.dialect.CoalesceParameterValue(value)))
		}
		return query, args, nil

	case BindDollar:
		ordinals := make(map[string]int)
		rewritten := token.ReplaceAllStringFunc(query, func(tok string) string {
			name := tok[1:]
			n, ok := ordinals[name]
			if !ok {
				value, set := s.params[name]
				if !set {
					missing = name
					return tok
				}
				n = len(ordinals) + 1
				ordinals[name] = n
				args = append(args, s.dialect.CoalesceParameterValue(value))
			}
			return "$" + strconv.Itoa(n)
		})
		if missing != "" {
			return "", nil, fmt.Errorf("statement parameter %q is not set", missing)
		}
		return rewritten, args, nil

	default: // BindQuestion
		rewritten := token.ReplaceAllStringFunc(query, func(tok string) string {
			name := tok[1:]
			value, set := s.params[name]
			if !set {
				missing = name
				return tok
			}
			args = append(args, s.dialect.CoalesceParameterValue(value))
			return "?"
		})
		if missing != "" {
			return "", nil, fmt.Errorf("statement parameter %q is not set", missing)
		}
		return rewritten, args, nil
	}
}

// ExecuteNonQuery implements Statement.
func (s *CommonStatement) ExecuteNonQuery(ctx context.Context, query string) (int64, error) {
	rewritten, args, err := s.buildQuery(query)
	if err != nil {
		return 0, err
	}
	result, err := s.scope.Executor().ExecContext(ctx, rewritten, args...)
	if err != nil {
		return 0, s.classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		// Some drivers cannot report affected rows; the statement
		// itself succeeded.
		return 0, nil
	}
	return affected, nil
}

// ExecuteWithoutExceptions implements Statement.
func (s *CommonStatement) ExecuteWithoutExceptions(ctx context.Context, query string) int64 {
	affected, err := s.ExecuteNonQuery(ctx, query)
	if err != nil {
		s.logger.Debug(ctx, "statement failure suppressed", "error", err)
		return 0
	}
	return affected
}

// ExecuteScalar implements Statement.
func (s *CommonStatement) ExecuteScalar(ctx context.Context, query string) (int64, error) {
	rewritten, args, err := s.buildQuery(query)
	if err != nil {
		return 0, err
	}
	var value int64
	if err := s.scope.Executor().QueryRowContext(ctx, rewritten, args...).Scan(&value); err != nil {
		return 0, s.classify(err)
	}
	return value, nil
}

// ExecuteQuery implements Statement.
func (s *CommonStatement) ExecuteQuery(ctx context.Context, query string) (Rows, error) {
	return s.ExecutePagedQuery(ctx, query, 0, NopNextPage)
}

// ExecutePagedQuery implements Statement.
func (s *CommonStatement) ExecutePagedQuery(ctx context.Context, query string, pageSize int, next NextPage) (Rows, error) {
	return newPagedRows(ctx, s, query, pageSize, next), nil
}

// runQuery executes the query text with the currently bound parameters.
// The paged cursor calls it once per page.
func (s *CommonStatement) runQuery(ctx context.Context, query string) (*sql.Rows, error) {
	rewritten, args, err := s.buildQuery(query)
	if err != nil {
		return nil, err
	}
	rows, err := s.scope.Executor().QueryContext(ctx, rewritten, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}
	return rows, nil
}

// classify maps driver errors onto the store's error taxonomy exactly once.
func (s *CommonStatement) classify(err error) error {
	if s.dialect.IsDuplicate(err) {
		return fmt.Errorf("%w: %v", store.ErrUniqueKeyViolation, err)
	}
	return err
}
