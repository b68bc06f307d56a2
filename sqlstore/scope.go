package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/getpup/commitstore/store"
)

// TxPolicy controls how each operation relates to database transactions.
type TxPolicy int

const (
	// TxNone lets the dialect decide: most vendors run queries and single
	// inserts in autocommit mode, while vendors that need an explicit
	// read-committed transaction open one per operation.
	TxNone TxPolicy = iota

	// TxSuppress never opens a transaction, overriding the dialect.
	TxSuppress

	// TxEnlist joins a caller-provided *sql.Tx carried on the context via
	// WithTx. The caller owns commit and rollback.
	TxEnlist
)

type txContextKey struct{}

// WithTx attaches a caller-owned transaction to the context for engines
// configured with TxEnlist.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext returns the transaction attached by WithTx, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx, ok
}

// Scope pairs one connection with its optional transaction for the duration
// of a single operation. A scope over an enlisted transaction owns neither
// the transaction nor a connection, so Commit and Close are no-ops there.
type Scope struct {
	conn   *sql.Conn
	tx     *sql.Tx
	ownsTx bool
	done   bool
	logger store.Logger
}

// openScope acquires a connection from the factory and opens a transaction
// according to the policy. An open failure is always classified as storage
// unavailability.
func openScope(ctx context.Context, factory store.ConnectionFactory, dialect Dialect, policy TxPolicy, logger store.Logger) (*Scope, error) {
	if policy == TxEnlist {
		if tx, ok := TxFromContext(ctx); ok {
			return &Scope{tx: tx, logger: logger}, nil
		}
		// No ambient transaction to join; fall through to the dialect
		// default.
	}

	conn, err := factory.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open connection: %v", store.ErrStorageUnavailable, err)
	}

	var tx *sql.Tx
	if policy != TxSuppress {
		tx, err = dialect.OpenTransaction(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: begin transaction: %v", store.ErrStorageUnavailable, err)
		}
	}
	return &Scope{conn: conn, tx: tx, ownsTx: tx != nil, logger: logger}, nil
}

// Executor returns the surface statements execute against: the transaction
// when one is open, the bare connection otherwise.
func (s *Scope) Executor() Executor {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// Commit commits the owned transaction. Scopes without an owned transaction
// treat Commit as success.
func (s *Scope) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	if !s.ownsTx {
		return nil
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close rolls back an owned transaction that was never committed and
// releases the connection back to the pool.
func (s *Scope) Close() error {
	if s.ownsTx && !s.done {
		s.done = true
		_ = s.tx.Rollback()
	}
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	return conn.Close()
}
