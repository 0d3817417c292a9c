package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is a transaction capability handed out by a TxManager and threaded through the
// repository writes that must share its atomic scope.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxManager begins transactions.
type TxManager interface {
	Begin(ctx context.Context) (Tx, error)
}

// WithinTransaction runs fn inside a new transaction. It commits when fn returns nil.
// Any error from fn (or a panic) rolls the transaction back and fn's error is returned unchanged.
// Begin and commit failures are reported as ErrTransactionFailed.
func WithinTransaction(ctx context.Context, m TxManager, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTransactionFailed, err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	done = true
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}
	return nil
}

// PgTxManager begins read-committed transactions on a pgx pool.
type PgTxManager struct {
	pool *pgxpool.Pool
}

// NewPgTxManager returns a TxManager backed by pool.
func NewPgTxManager(pool *pgxpool.Pool) *PgTxManager {
	return &PgTxManager{pool: pool}
}

// Begin starts a transaction.
func (m *PgTxManager) Begin(ctx context.Context) (Tx, error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &PgTx{tx: tx}, nil
}

// PgTx is a Postgres transaction.
type PgTx struct {
	tx pgx.Tx
}

func (t *PgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *PgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// QuerierFor returns the querier a Postgres repository should use: the pool when tx is nil,
// the transaction when tx is a *PgTx, and ErrInvalidTransaction otherwise.
func QuerierFor(pool Querier, tx Tx) (Querier, error) {
	if tx == nil {
		return pool, nil
	}
	pg, ok := tx.(*PgTx)
	if !ok || pg.tx == nil {
		return nil, ErrInvalidTransaction
	}
	return pg.tx, nil
}

// NoopTxManager hands out transactions that only record whether they were committed or
// rolled back. In-memory repositories accept them; writes run sequentially without atomicity.
type NoopTxManager struct {
	mu  sync.Mutex
	txs []*NoopTx
}

// NewNoopTxManager returns a NoopTxManager.
func NewNoopTxManager() *NoopTxManager {
	return &NoopTxManager{}
}

// Begin returns a new NoopTx.
func (m *NoopTxManager) Begin(ctx context.Context) (Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &NoopTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

// Last returns the most recently begun transaction, or nil.
func (m *NoopTxManager) Last() *NoopTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) == 0 {
		return nil
	}
	return m.txs[len(m.txs)-1]
}

// NoopTx records its outcome. Once finished, Commit and Rollback are no-ops.
type NoopTx struct {
	mu         sync.Mutex
	committed  bool
	rolledBack bool
}

func (t *NoopTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.rolledBack {
		t.committed = true
	}
	return nil
}

func (t *NoopTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

// Committed reports whether Commit ran before any rollback.
func (t *NoopTx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// RolledBack reports whether Rollback ran before any commit.
func (t *NoopTx) RolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolledBack
}

// CheckMemoryTx is the in-memory counterpart of QuerierFor: nil and *NoopTx are accepted.
func CheckMemoryTx(tx Tx) error {
	if tx == nil {
		return nil
	}
	if _, ok := tx.(*NoopTx); !ok {
		return ErrInvalidTransaction
	}
	return nil
}
