package sqlstore

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/getpup/commitstore/store"
)

// bindDialect is a minimal dialect for exercising the statement layer.
type bindDialect struct {
	style BindStyle
}

func (bindDialect) Name() string                                  { return "test" }
func (bindDialect) Statements() Statements                        { return Statements{} }
func (d bindDialect) BindStyle() BindStyle                        { return d.style }
func (bindDialect) CoalesceParameterValue(v interface{}) interface{} { return v }
func (bindDialect) IsDuplicate(err error) bool                    { return false }

func (bindDialect) ToTime(v interface{}) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), nil
	}
	return time.Time{}, nil
}

func (bindDialect) OpenTransaction(context.Context, *sql.Conn) (*sql.Tx, error) {
	return nil, nil
}

func (d bindDialect) NewStatement(scope *Scope) Statement {
	return NewCommonStatement(d, scope)
}

func newBindStatement(style BindStyle) *CommonStatement {
	return NewCommonStatement(bindDialect{style: style}, &Scope{logger: store.NoOpLogger{}})
}

func TestBuildQueryQuestion(t *testing.T) {
	stmt := newBindStatement(BindQuestion)
	stmt.SetParameter("A", 1)
	stmt.SetParameter("B", "two")

	rewritten, args, err := stmt.buildQuery("SELECT * FROM T WHERE A = @A AND B = @B AND A2 = @A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rewritten != "SELECT * FROM T WHERE A = ? AND B = ? AND A2 = ?" {
		t.Errorf("unexpected rewrite: %q", rewritten)
	}
	// Repeated tokens repeat their value.
	if !reflect.DeepEqual(args, []interface{}{1, "two", 1}) {
		t.Errorf("unexpected args: %#v", args)
	}
}

func TestBuildQueryDollar(t *testing.T) {
	stmt := newBindStatement(BindDollar)
	stmt.SetParameter("A", 1)
	stmt.SetParameter("B", "two")

	rewritten, args, err := stmt.buildQuery("SELECT * FROM T WHERE A = @A AND B = @B AND A2 = @A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rewritten != "SELECT * FROM T WHERE A = $1 AND B = $2 AND A2 = $1" {
		t.Errorf("unexpected rewrite: %q", rewritten)
	}
	// Repeated tokens share one ordinal, so each value appears once.
	if !reflect.DeepEqual(args, []interface{}{1, "two"}) {
		t.Errorf("unexpected args: %#v", args)
	}
}

func TestBuildQueryNamedAt(t *testing.T) {
	stmt := newBindStatement(BindNamedAt)
	stmt.SetParameter("A", 1)
	stmt.SetParameter("B", "two")

	query := "SELECT * FROM T WHERE A = @A AND B = @B AND A2 = @A"
	rewritten, args, err := stmt.buildQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rewritten != query {
		t.Errorf("named binding must keep the text unchanged, got %q", rewritten)
	}
	want := []interface{}{sql.Named("A", 1), sql.Named("B", "two")}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("unexpected args: %#v", args)
	}
}

func TestBuildQueryNamedColon(t *testing.T) {
	stmt := newBindStatement(BindNamedColon)
	stmt.SetParameter("A", 1)

	query := "SELECT * FROM T WHERE A = :A"
	rewritten, args, err := stmt.buildQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rewritten != query {
		t.Errorf("named binding must keep the text unchanged, got %q", rewritten)
	}
	if !reflect.DeepEqual(args, []interface{}{sql.Named("A", 1)}) {
		t.Errorf("unexpected args: %#v", args)
	}
}

func TestBuildQueryIgnoresUnusedParameters(t *testing.T) {
	stmt := newBindStatement(BindQuestion)
	stmt.SetParameter("A", 1)
	stmt.SetParameter("Skip", 100) // not referenced by the text

	_, args, err := stmt.buildQuery("SELECT * FROM T WHERE A = @A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(args, []interface{}{1}) {
		t.Errorf("unexpected args: %#v", args)
	}
}

func TestBuildQueryMissingParameter(t *testing.T) {
	stmt := newBindStatement(BindQuestion)

	if _, _, err := stmt.buildQuery("SELECT * FROM T WHERE A = @A"); err == nil {
		t.Fatal("expected error for unset parameter")
	}
}

func TestSetParameterLastWins(t *testing.T) {
	stmt := newBindStatement(BindQuestion)
	stmt.SetParameter("A", 1)
	stmt.SetParameter("A", 2)

	_, args, err := stmt.buildQuery("SELECT * FROM T WHERE A = @A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(args, []interface{}{2}) {
		t.Errorf("unexpected args: %#v", args)
	}
}

func TestSplitStatements(t *testing.T) {
	parts := splitStatements("DELETE FROM Commits;\nDELETE FROM Snapshots;")
	want := []string{"DELETE FROM Commits", "DELETE FROM Snapshots"}
	if !reflect.DeepEqual(parts, want) {
		t.Errorf("unexpected parts: %#v", parts)
	}

	single := splitStatements("SELECT 1")
	if !reflect.DeepEqual(single, []string{"SELECT 1"}) {
		t.Errorf("unexpected parts: %#v", single)
	}
}
