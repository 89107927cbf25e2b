package sqliter

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeCursor replays a fixed result set. Row values are int64, float64,
// string, []byte, nil, or a ColumnType to report an arbitrary type code.
type fakeCursor struct {
	columns int
	rows    [][]any
	pos     int

	// busyBefore[i] is how many busy results precede row i (or done, for
	// i == len(rows)).
	busyBefore map[int]int
	locked     bool
	// failAt makes the step to row failAt fail with failErr.
	failAt  int
	failErr error

	steps  int
	resets int
}

func newFakeCursor(columns int, rows ...[]any) *fakeCursor {
	return &fakeCursor{columns: columns, rows: rows, failAt: -1, busyBefore: map[int]int{}}
}

// intRows returns n rows of two integer columns, i and i*10.
func intRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int64(i), int64(i * 10)}
	}
	return rows
}

func (c *fakeCursor) Step() (StepResult, error) {
	c.steps++
	if n := c.busyBefore[c.pos]; n > 0 {
		c.busyBefore[c.pos] = n - 1
		if c.locked {
			return StepLocked, nil
		}
		return StepBusy, nil
	}
	if c.pos == c.failAt {
		return StepDone, c.failErr
	}
	if c.pos >= len(c.rows) {
		return StepDone, nil
	}
	c.pos++
	return StepRow, nil
}

func (c *fakeCursor) current(col int) any {
	if c.pos == 0 || c.pos > len(c.rows) {
		return nil
	}
	return c.rows[c.pos-1][col]
}

func (c *fakeCursor) ColumnCount() int { return c.columns }

func (c *fakeCursor) ColumnType(col int) ColumnType {
	switch v := c.current(col).(type) {
	case int64:
		return ColumnInteger
	case float64:
		return ColumnFloat
	case string:
		return ColumnText
	case []byte:
		return ColumnBlob
	case ColumnType:
		return v
	default:
		return ColumnNull
	}
}

func (c *fakeCursor) ColumnInt64(col int) int64 {
	v, _ := c.current(col).(int64)
	return v
}

func (c *fakeCursor) ColumnDouble(col int) float64 {
	v, _ := c.current(col).(float64)
	return v
}

func (c *fakeCursor) ColumnText(col int) string {
	v, _ := c.current(col).(string)
	return v
}

func (c *fakeCursor) ColumnBlob(col int) []byte {
	v, _ := c.current(col).([]byte)
	return v
}

func (c *fakeCursor) Reset() {
	c.pos = 0
	c.resets++
}

// fakeStmt is a statement of a fakeConn.
type fakeStmt struct {
	*fakeCursor
	sql   string
	binds map[int]any
}

func (s *fakeStmt) SQL() string { return s.sql }
func (s *fakeStmt) ColumnName(col int) string { return fmt.Sprintf("c%d", col) }
func (s *fakeStmt) BindParameterCount() int { return len(s.binds) }
func (s *fakeStmt) ClearBindings() { clear(s.binds) }
func (s *fakeStmt) ReadOnly() bool { return true }
func (s *fakeStmt) BindNull(idx int) error {
	s.binds[idx] = nil
	return nil
}
func (s *fakeStmt) BindText(idx int, v string) error {
	s.binds[idx] = v
	return nil
}
func (s *fakeStmt) BindInt64(idx int, v int64) error {
	s.binds[idx] = v
	return nil
}
func (s *fakeStmt) BindDouble(idx int, v float64) error {
	s.binds[idx] = v
	return nil
}
func (s *fakeStmt) BindBlob(idx int, v []byte) error {
	s.binds[idx] = v
	return nil
}

// fakeConn records finalized statements.
type fakeConn struct {
	mu        sync.Mutex
	finalized []string
	counts    map[*fakeStmt]int
	failSQL   string
}

func newFakeConn() *fakeConn {
	return &fakeConn{counts: make(map[*fakeStmt]int)}
}

func (c *fakeConn) newStmt(sql string) *fakeStmt {
	return &fakeStmt{fakeCursor: newFakeCursor(0), sql: sql, binds: map[int]any{}}
}

func (c *fakeConn) Prepare(sql string) (Stmt, error) {
	if sql == c.failSQL {
		return nil, compileError(1, "syntax error", sql)
	}
	return c.newStmt(sql), nil
}

func (c *fakeConn) Finalize(s Stmt) error {
	fs, ok := s.(*fakeStmt)
	if !ok {
		return errors.New("foreign statement")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalized = append(c.finalized, fs.sql)
	c.counts[fs]++
	return nil
}

func (c *fakeConn) finalizedSQL() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.finalized...)
}

func (c *fakeConn) finalizeCount(s *fakeStmt) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[s]
}

func (c *fakeConn) Changes() int64 { return 0 }
func (c *fakeConn) LastInsertRowID() int64 { return 0 }
func (c *fakeConn) SetBusyTimeout(time.Duration) error { return nil }
func (c *fakeConn) SetProgressHandler(steps int, poll func() bool) {}
func (c *fakeConn) Lookaside() (int, int) { return 0, 0 }
func (c *fakeConn) Close() error { return nil }

var (
	_ Cursor = (*fakeCursor)(nil)
	_ Stmt   = (*fakeStmt)(nil)
	_ Conn   = (*fakeConn)(nil)
)
