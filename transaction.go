package sqliter

import (
	"context"
	"sync"
	"sync/atomic"
)

// TransactionMode selects how BEGIN acquires locks.
type TransactionMode int

const (
	// TransactionDeferred takes locks on first use.
	TransactionDeferred TransactionMode = iota
	// TransactionImmediate takes the write lock at once.
	TransactionImmediate
	// TransactionExclusive also keeps readers out.
	TransactionExclusive
)

func (m TransactionMode) beginSQL() string {
	switch m {
	case TransactionImmediate:
		return "BEGIN IMMEDIATE"
	case TransactionExclusive:
		return "BEGIN EXCLUSIVE"
	default:
		return "BEGIN"
	}
}

// Transaction is the connection's active transaction. It commits on end only
// if it was marked successful.
type Transaction struct {
	conn       *Connection
	mode       TransactionMode
	successful bool
	finished   atomic.Bool
	mu         sync.Mutex
}

// Mode returns how the transaction was begun.
func (tx *Transaction) Mode() TransactionMode { return tx.mode }

// SetSuccessful marks the transaction to be committed when it ends.
func (tx *Transaction) SetSuccessful() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.finished.Load() {
		return NewError(ErrTransaction, "transaction already finished")
	}
	tx.successful = true
	return nil
}

// Commit marks the transaction successful and ends it.
func (tx *Transaction) Commit() error {
	if err := tx.SetSuccessful(); err != nil {
		return err
	}
	return tx.conn.EndTransaction(context.Background())
}

// Rollback ends the transaction without committing it. Rolling back a
// finished transaction is a no-op.
func (tx *Transaction) Rollback() error {
	tx.mu.Lock()
	if tx.finished.Load() {
		tx.mu.Unlock()
		return nil
	}
	tx.successful = false
	tx.mu.Unlock()
	return tx.conn.EndTransaction(context.Background())
}

// BeginTransaction starts a transaction and makes it the connection's active
// one. Transactions do not nest.
func (c *Connection) BeginTransaction(ctx context.Context, mode TransactionMode) (*Transaction, error) {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	if _, ok := c.registry.GetTransaction(c.id); ok {
		return nil, NewError(ErrTransaction, "cannot begin a transaction while another is active")
	}
	if err := c.Exec(ctx, mode.beginSQL()); err != nil {
		return nil, err
	}

	tx := &Transaction{conn: c, mode: mode}
	// Disposal marks the transaction finished, whether it ended or the
	// connection was closed underneath it.
	ref := NewToken(tx, func(tx *Transaction) { tx.finished.Store(true) })
	if !c.registry.PutTransaction(c.id, ref) {
		if err := c.Exec(context.Background(), "ROLLBACK"); err != nil {
			c.logger.Warn("rollback after failed begin", "error", err)
		}
		return nil, ErrConnectionClosed
	}
	c.logger.Debug("began transaction", "mode", mode.beginSQL())
	return tx, nil
}

// ActiveTransaction returns the connection's active transaction.
func (c *Connection) ActiveTransaction() (*Transaction, bool) {
	return c.registry.GetTransaction(c.id)
}

// SetTransactionSuccessful marks the active transaction to be committed.
func (c *Connection) SetTransactionSuccessful() error {
	tx, ok := c.registry.GetTransaction(c.id)
	if !ok {
		return NewError(ErrTransaction, "no transaction is active")
	}
	return tx.SetSuccessful()
}

// EndTransaction commits the active transaction if it was marked successful
// and rolls it back otherwise. A failed commit is rolled back.
func (c *Connection) EndTransaction(ctx context.Context) error {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	tx, ok := c.registry.GetTransaction(c.id)
	if !ok {
		return NewError(ErrTransaction, "no transaction is active")
	}

	tx.mu.Lock()
	commit := tx.successful
	tx.mu.Unlock()

	var err error
	if commit {
		if err = c.Exec(ctx, "COMMIT"); err != nil {
			if rbErr := c.Exec(context.Background(), "ROLLBACK"); rbErr != nil {
				c.logger.Warn("rollback after failed commit", "error", rbErr)
			}
		}
	} else {
		err = c.Exec(ctx, "ROLLBACK")
	}
	c.registry.RemoveTransaction(c.id)
	c.logger.Debug("ended transaction", "commit", commit, "error", err)
	return err
}

// WithTransaction runs fn in a transaction that commits if fn returns nil.
func (c *Connection) WithTransaction(ctx context.Context, fn func(c *Connection) error) error {
	if _, err := c.BeginTransaction(ctx, TransactionImmediate); err != nil {
		return err
	}
	err := fn(c)
	if err == nil {
		err = c.SetTransactionSuccessful()
	}
	if endErr := c.EndTransaction(ctx); err == nil {
		err = endErr
	}
	return err
}
