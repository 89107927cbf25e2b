package sqliter

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sync/atomic"
	"time"
)

// Statement is a compiled statement owned by the caller rather than the
// connection's statement cache. It must be closed; closing the connection
// closes it too.
type Statement struct {
	conn   *Connection
	stmt   Stmt
	query  string
	params int
	closed int32
}

// Prepare compiles query into a Statement owned by the caller.
func (c *Connection) Prepare(query string) (*Statement, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	stmt, err := c.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	s := &Statement{
		conn:   c,
		stmt:   stmt,
		query:  query,
		params: stmt.BindParameterCount(),
	}
	c.statements[s] = struct{}{}
	return s, nil
}

// Close finalizes the statement.
func (s *Statement) Close() error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return nil
	}
	if err := s.conn.lock(); err != nil {
		// The connection finalized it on close
		return nil
	}
	defer s.conn.mu.Unlock()
	return s.finalizeLocked()
}

// finalizeLocked finalizes the statement. s.conn.mu must be held.
func (s *Statement) finalizeLocked() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	delete(s.conn.statements, s)
	return s.conn.db.Finalize(s.stmt)
}

// lock takes the connection lock, failing if s or its connection is closed.
func (s *Statement) lock() error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return ErrStatementClosed
	}
	if err := s.conn.lock(); err != nil {
		return err
	}
	if atomic.LoadInt32(&s.closed) != 0 {
		s.conn.mu.Unlock()
		return ErrStatementClosed
	}
	return nil
}

// SQL returns the statement's SQL text.
func (s *Statement) SQL() string { return s.query }

// NumInput returns the number of placeholder parameters.
func (s *Statement) NumInput() int { return s.params }

// ReadOnly reports whether the statement leaves the database unchanged.
func (s *Statement) ReadOnly() bool {
	if err := s.lock(); err != nil {
		return false
	}
	defer s.conn.mu.Unlock()
	return s.stmt.ReadOnly()
}

// ColumnNames returns the names of the result columns.
func (s *Statement) ColumnNames() ([]string, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.conn.mu.Unlock()
	names := make([]string, s.stmt.ColumnCount())
	for i := range names {
		names[i] = s.stmt.ColumnName(i)
	}
	return names, nil
}

// Bind replaces the statement's bound values. Values stay bound across Exec
// and Fill calls until the next Bind.
func (s *Statement) Bind(args ...any) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.conn.mu.Unlock()
	s.stmt.ClearBindings()
	return bindArgs(s.stmt, args)
}

// Exec runs the statement, which must not return rows. Passing args binds
// them first.
func (s *Statement) Exec(ctx context.Context, args ...any) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.conn.mu.Unlock()
	if err := s.bindIfAny(args); err != nil {
		return err
	}

	defer s.stmt.Reset()
	stop := s.conn.watch(ctx)
	defer stop()
	return s.conn.stepDone(ctx, s.stmt)
}

// Fill runs the statement and copies its rows into w as selected by req.
func (s *Statement) Fill(ctx context.Context, w *ResultWindow, req WindowRequest) (FillResult, error) {
	if err := s.lock(); err != nil {
		return FillResult{}, err
	}
	defer s.conn.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return FillResult{}, canceledError(err)
	}

	stop := s.conn.watch(ctx)
	defer stop()
	return s.conn.filler.fill(ctx, s.stmt, w, req.StartPos, req.RequiredPos, req.CountAllRows)
}

func (s *Statement) bindIfAny(args []any) error {
	if len(args) == 0 {
		return nil
	}
	s.stmt.ClearBindings()
	return bindArgs(s.stmt, args)
}

// bindArgs binds args to the statement's parameters in order.
func bindArgs(stmt Stmt, args []any) error {
	if n := stmt.BindParameterCount(); n != len(args) {
		return NewError(ErrBind, fmt.Sprintf("expected %d bind arguments but %d were provided", n, len(args)))
	}

	for i, arg := range args {
		idx := i + 1 // Parameters are 1-indexed

		var err error
		switch v := arg.(type) {
		case nil:
			err = stmt.BindNull(idx)

		case bool:
			var b int64
			if v {
				b = 1
			}
			err = stmt.BindInt64(idx, b)

		case int, int8, int16, int32, int64:
			err = stmt.BindInt64(idx, reflect.ValueOf(v).Int())

		case uint, uint8, uint16, uint32, uint64:
			u := reflect.ValueOf(v).Uint()
			if u > math.MaxInt64 {
				return NewError(ErrBind, fmt.Sprintf("uint64 parameter at index %d overflows int64: %d", i, u))
			}
			err = stmt.BindInt64(idx, int64(u))

		case float32:
			err = stmt.BindDouble(idx, float64(v))

		case float64:
			err = stmt.BindDouble(idx, v)

		case string:
			err = stmt.BindText(idx, v)

		case []byte:
			if v == nil {
				err = stmt.BindNull(idx)
			} else {
				err = stmt.BindBlob(idx, v)
			}

		case time.Time:
			err = stmt.BindText(idx, v.Format(time.RFC3339Nano))

		default:
			return NewError(ErrBind, fmt.Sprintf("unsupported parameter type %T at index %d", v, i))
		}
		if err != nil {
			return err
		}
	}

	return nil
}
