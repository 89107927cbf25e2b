package sqliter

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// Connection is one open database connection. Its compiled statements,
// active transaction and configuration live in a Registry under the
// connection's data store id.
//
// A Connection is safe for concurrent use; calls are serialized.
type Connection struct {
	closed     int32
	txMu       sync.Mutex // held across a transaction's begin or end, before mu
	mu         sync.Mutex
	cfg        *Config
	id         int
	registry   *Registry
	db         Conn
	filler     windowFiller
	logger     *slog.Logger
	statements map[*Statement]struct{}

	canceled   atomic.Bool
	cancelable atomic.Bool
}

// WindowRequest selects which rows QueryWindow copies.
type WindowRequest struct {
	// StartPos is the first row to copy.
	StartPos int
	// RequiredPos is a row that must be in the window afterwards if it exists.
	RequiredPos int
	// CountAllRows keeps stepping after the window is full so that
	// FillResult.TotalRows is the full row count.
	CountAllRows bool
}

// Open opens the database at path. The database is configured and migrated
// to the configured version before Open returns.
func Open(path string, opts ...Option) (*Connection, error) {
	cfg := newConfig(path, opts)
	return openConnection(context.Background(), &cfg, true)
}

// openConnection opens cfg. setup applies the settings that only the first
// connection to a database should apply: page size, journal mode and migration.
func openConnection(ctx context.Context, cfg *Config, setup bool) (*Connection, error) {
	reg := cfg.Registry
	id := reg.NextDataID()
	reg.CreateDataStore(id, cfg.StatementCacheSize)

	db, err := cfg.Engine.Open(OpenConfig{
		Path:               cfg.path(),
		Flags:              cfg.openFlags(),
		Label:              cfg.Label,
		Trace:              cfg.Trace,
		Profile:            cfg.Profile,
		LookasideSlotSize:  cfg.LookasideSlotSize,
		LookasideSlotCount: cfg.LookasideSlotCount,
		Logger:             cfg.Logger,
	})
	if err != nil {
		reg.RemoveDataStore(id)
		return nil, err
	}
	reg.PutConnectionPtr(id, db)
	reg.PutDbConfig(id, NewToken(cfg, nil))

	c := &Connection{
		cfg:        cfg,
		id:         id,
		registry:   reg,
		db:         db,
		logger:     cfg.Logger.With("label", cfg.Label, "id", id),
		statements: make(map[*Statement]struct{}),
		filler: windowFiller{
			retry:   defaultBusyRetry,
			logger:  cfg.Logger,
			verbose: cfg.VerboseDataCalls,
		},
	}

	if err := c.configure(ctx, setup); err != nil {
		c.Close()
		return nil, err
	}

	// Set finalizer to ensure connection is closed when garbage collected
	runtime.SetFinalizer(c, (*Connection).Close)

	c.logger.Debug("opened connection", "engine", cfg.Engine.Name(), "path", cfg.path())
	return c, nil
}

func (c *Connection) configure(ctx context.Context, setup bool) error {
	cfg := c.cfg
	if cfg.BusyTimeout > 0 {
		if err := c.db.SetBusyTimeout(cfg.BusyTimeout); err != nil {
			return err
		}
	}
	if cfg.ForeignKeys {
		if err := c.Exec(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return err
		}
	}
	if !setup || cfg.ReadOnly {
		return nil
	}

	if cfg.PageSize > 0 {
		if err := c.Exec(ctx, fmt.Sprintf("PRAGMA page_size = %d", cfg.PageSize)); err != nil {
			return err
		}
	}
	if cfg.JournalMode != "" && !cfg.InMemory {
		mode, err := c.QueryString(ctx, "PRAGMA journal_mode = "+string(cfg.JournalMode))
		if err != nil {
			return err
		}
		if !strings.EqualFold(mode, string(cfg.JournalMode)) {
			c.logger.Warn("journal mode not applied", "requested", cfg.JournalMode, "actual", mode)
		}
	}
	return c.migrate(ctx)
}

// migrate brings the schema to cfg.Version inside one transaction.
func (c *Connection) migrate(ctx context.Context) error {
	want := c.cfg.Version
	if want <= 0 {
		return nil
	}
	have, err := c.Version(ctx)
	if err != nil {
		return err
	}
	switch {
	case have == want:
		return nil
	case have > want:
		return NewError(ErrOpen, fmt.Sprintf("cannot downgrade database from version %d to %d", have, want))
	}

	c.logger.Info("migrating database", "from", have, "to", want)
	return c.WithTransaction(ctx, func(c *Connection) error {
		if have == 0 {
			if c.cfg.Create != nil {
				if err := c.cfg.Create(c); err != nil {
					return err
				}
			}
		} else if c.cfg.Upgrade != nil {
			if err := c.cfg.Upgrade(c, have, want); err != nil {
				return err
			}
		}
		return c.SetVersion(ctx, want)
	})
}

// Close finalizes every statement of the connection, forgets its data store
// and closes the engine connection. Closing twice is a no-op.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for s := range c.statements {
		s.finalizeLocked()
	}
	c.registry.RemoveDataStore(c.id)
	err := c.db.Close()

	runtime.SetFinalizer(c, nil)
	c.logger.Debug("closed connection")
	return err
}

// ID returns the connection's data store id.
func (c *Connection) ID() int { return c.id }

// Label returns the name the connection logs under.
func (c *Connection) Label() string { return c.cfg.Label }

// Registry returns the registry holding the connection's state.
func (c *Connection) Registry() *Registry { return c.registry }

// Config returns the configuration the connection was opened with.
func (c *Connection) Config() (Config, bool) {
	cfg, ok := c.registry.GetDbConfig(c.id)
	if !ok {
		return Config{}, false
	}
	return *cfg, true
}

// CachedStatements returns the SQL of the cached statements, least recently used first.
func (c *Connection) CachedStatements() []string {
	return c.registry.CachedStmts(c.id)
}

// Lookaside reports the engine's lookaside slots in use and their high-water mark.
func (c *Connection) Lookaside() (current, highwater int, err error) {
	if err := c.lock(); err != nil {
		return 0, 0, err
	}
	defer c.mu.Unlock()
	current, highwater = c.db.Lookaside()
	return current, highwater, nil
}

// lock takes c.mu, failing if the connection is closed.
func (c *Connection) lock() error {
	if atomic.LoadInt32(&c.closed) != 0 {
		return ErrConnectionClosed
	}
	c.mu.Lock()
	// Check again after lock acquisition
	if atomic.LoadInt32(&c.closed) != 0 {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	return nil
}

// Cancel interrupts the statement running on the connection and every
// statement after it, until ResetCancel is called. It only has an effect
// on a connection made cancelable with ResetCancel(true).
func (c *Connection) Cancel() {
	c.canceled.Store(true)
}

// ResetCancel clears a pending Cancel and sets whether Cancel can interrupt
// statements from now on.
func (c *Connection) ResetCancel(cancelable bool) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.canceled.Store(false)
	c.cancelable.Store(cancelable)
	c.installProgressHandler()
	return nil
}

func (c *Connection) installProgressHandler() {
	if c.cancelable.Load() {
		c.db.SetProgressHandler(progressSteps, c.canceled.Load)
	} else {
		c.db.SetProgressHandler(0, nil)
	}
}

// watch makes ctx able to interrupt the engine until the returned func is called.
func (c *Connection) watch(ctx context.Context) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	cancelable := c.cancelable.Load()
	c.db.SetProgressHandler(progressSteps, func() bool {
		return (cancelable && c.canceled.Load()) || ctx.Err() != nil
	})
	return c.installProgressHandler
}

// withStmt runs fn on the cached statement for sql with args bound, compiling
// and caching it on a miss. The statement is reset and its bindings cleared
// afterwards. c.mu must be held.
func (c *Connection) withStmt(ctx context.Context, sql string, args []any, fn func(Stmt) error) error {
	if err := ctx.Err(); err != nil {
		return canceledError(err)
	}

	stmt, cached := c.registry.GetStmt(c.id, sql)
	if !cached {
		var err error
		if stmt, err = c.db.Prepare(sql); err != nil {
			return err
		}
	}

	err := bindArgs(stmt, args)
	if err == nil {
		stop := c.watch(ctx)
		err = fn(stmt)
		stop()
	}
	stmt.Reset()
	stmt.ClearBindings()

	if !cached && !c.registry.PutStmt(c.id, sql, stmt) {
		if ferr := c.db.Finalize(stmt); ferr != nil {
			c.logger.Warn("finalize failed", "sql", sql, "error", ferr)
		}
	}
	return err
}

// stepDone runs a statement that must not produce rows.
func (c *Connection) stepDone(ctx context.Context, stmt Stmt) error {
	res, err := c.filler.retry.step(ctx, stmt)
	if err != nil {
		return err
	}
	if res == StepRow {
		return NewError(ErrExec, "Queries can be performed using QueryWindow or the Query methods only")
	}
	return nil
}

// stepRow runs a statement that must produce at least one row.
func (c *Connection) stepRow(ctx context.Context, stmt Stmt) error {
	res, err := c.filler.retry.step(ctx, stmt)
	if err != nil {
		return err
	}
	if res != StepRow || stmt.ColumnCount() < 1 {
		return ErrNoRows
	}
	return nil
}

// Exec runs sql, which must not return rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	return c.withStmt(ctx, sql, args, func(stmt Stmt) error {
		return c.stepDone(ctx, stmt)
	})
}

// ExecChangedRows runs sql and returns how many rows it changed.
func (c *Connection) ExecChangedRows(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := c.lock(); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	var changed int64
	err := c.withStmt(ctx, sql, args, func(stmt Stmt) error {
		if err := c.stepDone(ctx, stmt); err != nil {
			return err
		}
		changed = c.db.Changes()
		return nil
	})
	return changed, err
}

// ExecLastInsertID runs sql and returns the rowid of the row it inserted,
// or -1 if it changed no rows.
func (c *Connection) ExecLastInsertID(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := c.lock(); err != nil {
		return -1, err
	}
	defer c.mu.Unlock()
	id := int64(-1)
	err := c.withStmt(ctx, sql, args, func(stmt Stmt) error {
		if err := c.stepDone(ctx, stmt); err != nil {
			return err
		}
		if c.db.Changes() > 0 {
			id = c.db.LastInsertRowID()
		}
		return nil
	})
	return id, err
}

// QueryInt64 returns the first column of the first row of sql as an integer.
func (c *Connection) QueryInt64(ctx context.Context, sql string, args ...any) (int64, error) {
	if err := c.lock(); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	var v int64
	err := c.withStmt(ctx, sql, args, func(stmt Stmt) error {
		if err := c.stepRow(ctx, stmt); err != nil {
			return err
		}
		v = stmt.ColumnInt64(0)
		return nil
	})
	return v, err
}

// QueryString returns the first column of the first row of sql as text.
// NULL reads as "".
func (c *Connection) QueryString(ctx context.Context, sql string, args ...any) (string, error) {
	if err := c.lock(); err != nil {
		return "", err
	}
	defer c.mu.Unlock()
	var v string
	err := c.withStmt(ctx, sql, args, func(stmt Stmt) error {
		if err := c.stepRow(ctx, stmt); err != nil {
			return err
		}
		if stmt.ColumnType(0) != ColumnNull {
			v = stmt.ColumnText(0)
		}
		return nil
	})
	return v, err
}

// QueryWindow runs sql and copies its rows into w as selected by req.
func (c *Connection) QueryWindow(ctx context.Context, w *ResultWindow, req WindowRequest, sql string, args ...any) (FillResult, error) {
	if err := c.lock(); err != nil {
		return FillResult{}, err
	}
	defer c.mu.Unlock()
	var res FillResult
	err := c.withStmt(ctx, sql, args, func(stmt Stmt) error {
		var err error
		res, err = c.filler.fill(ctx, stmt, w, req.StartPos, req.RequiredPos, req.CountAllRows)
		return err
	})
	return res, err
}

// Version returns the schema version stored in the database.
func (c *Connection) Version(ctx context.Context) (int, error) {
	v, err := c.QueryInt64(ctx, "PRAGMA user_version")
	return int(v), err
}

// SetVersion stores the schema version.
func (c *Connection) SetVersion(ctx context.Context, version int) error {
	return c.Exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
}
