package sqliter

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
)

// NativeEngine drives the system libsqlite3 through purego, without cgo.
// Use NativeAvailable to find out whether the library could be loaded.
type NativeEngine struct{}

// SQLITE_TRANSIENT: SQLite copies bound text and blobs before returning.
const sqliteTransient = ^uintptr(0)

// SQLITE_TRACE_STMT and SQLITE_TRACE_PROFILE
const (
	traceStmt    = 0x01
	traceProfile = 0x02
)

var emptyBytes = []byte{0}

// Name returns "native".
func (NativeEngine) Name() string { return "native" }

// Version returns the loaded library's version, or "" if it is not available.
func (NativeEngine) Version() string {
	if !NativeAvailable() {
		return ""
	}
	return sqlite3Libversion()
}

// Open opens a connection on the system library. Lookaside configuration is
// not applied because sqlite3_db_config is variadic.
func (NativeEngine) Open(cfg OpenConfig) (Conn, error) {
	if !NativeAvailable() {
		return nil, NewError(ErrOpen, GetNativeLibraryError().Error())
	}

	var db uintptr
	rc := int(sqlite3OpenV2(cfg.Path, &db, int32(cfg.Flags), 0))
	if db == 0 {
		return nil, engineError(ErrOpen, rc, "", fmt.Sprintf("could not open database %q", cfg.Path))
	}
	if rc != codeOK {
		if ext := int(sqlite3ExtendedErrcode(db)); ext != 0 {
			rc = ext
		}
		msg := sqlite3Errmsg(db)
		sqlite3CloseV2(db)
		return nil, engineError(ErrOpen, rc, msg, fmt.Sprintf("could not open database %q", cfg.Path))
	}
	sqlite3ExtendedResultCode(db, 1)

	c := &nativeConn{db: db, label: cfg.Label, logger: cfg.Logger}
	c.key = nativeConnKeys.Add(1)

	if c.logger != nil && (cfg.Trace || cfg.Profile) {
		var mask uint32
		if cfg.Trace {
			mask |= traceStmt
		}
		if cfg.Profile {
			mask |= traceProfile
		}
		nativeTracers.Store(c.key, c)
		sqlite3TraceV2(db, mask, nativeTraceCallback(), c.key)
	}
	return c, nil
}

// nativeConn is a sqlite3* from the system library.
type nativeConn struct {
	mu     sync.Mutex
	db     uintptr
	key    uintptr
	label  string
	logger *slog.Logger
	closed bool
}

// Callbacks are allocated once per process and dispatch on a per-connection key.
var (
	nativeConnKeys atomic.Uintptr
	nativeProgress sync.Map // key -> func() bool
	nativeTracers  sync.Map // key -> *nativeConn

	nativeProgressOnce sync.Once
	nativeProgressCb   uintptr
	nativeTraceOnce    sync.Once
	nativeTraceCb      uintptr
)

func nativeProgressCallback() uintptr {
	nativeProgressOnce.Do(func() {
		nativeProgressCb = purego.NewCallback(func(pArg uintptr) int32 {
			val, _ := nativeProgress.Load(pArg)
			if val == nil {
				return 0
			}
			if val.(func() bool)() {
				return 1
			}
			return 0
		})
	})
	return nativeProgressCb
}

func nativeTraceCallback() uintptr {
	nativeTraceOnce.Do(func() {
		nativeTraceCb = purego.NewCallback(func(mask uint32, pCtx, p, x uintptr) int32 {
			val, _ := nativeTracers.Load(pCtx)
			if val == nil {
				return 0
			}
			c := val.(*nativeConn)
			switch mask {
			case traceStmt:
				c.logger.Debug("sqlite trace", "label", c.label, "sql", sqlite3SQL(p))
			case traceProfile:
				elapsed := time.Duration(*(*int64)(unsafe.Pointer(x)))
				c.logger.Debug("sqlite profile", "label", c.label, "sql", sqlite3SQL(p), "elapsed", elapsed)
			}
			return 0
		})
	})
	return nativeTraceCb
}

func (c *nativeConn) lastError(typ ErrorType, rc int) *Error {
	if ext := int(sqlite3ExtendedErrcode(c.db)); ext != 0 && ext&0xff == rc&0xff {
		rc = ext
	}
	return engineError(typ, rc, sqlite3Errmsg(c.db), "")
}

func (c *nativeConn) Prepare(sql string) (Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	var stmt uintptr
	if rc := int(sqlite3PrepareV2(c.db, sql, -1, &stmt, 0)); rc != codeOK {
		e := c.lastError(ErrCompile, rc)
		if rc&0xff == codeInterrupt {
			// The progress handler also runs while parsing
			e.Type = ErrCanceled
			return nil, e
		}
		return nil, compileError(e.Code, sqlite3Errmsg(c.db), sql)
	}
	if stmt == 0 {
		return nil, compileError(codeMisuse, "statement is empty", sql)
	}
	return &nativeStmt{conn: c, stmt: stmt, sql: sql}, nil
}

func (c *nativeConn) Finalize(s Stmt) error {
	ns, ok := s.(*nativeStmt)
	if !ok {
		return NewError(ErrGeneric, fmt.Sprintf("statement %T does not belong to this engine", s))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ns.stmt == 0 {
		return nil
	}
	sqlite3Finalize(ns.stmt)
	ns.stmt = 0
	return nil
}

func (c *nativeConn) Changes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(sqlite3Changes(c.db))
}

func (c *nativeConn) LastInsertRowID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sqlite3LastInsertRowid(c.db)
}

func (c *nativeConn) SetBusyTimeout(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rc := int(sqlite3BusyTimeout(c.db, int32(d/time.Millisecond))); rc != codeOK {
		return c.lastError(ErrOpen, rc)
	}
	return nil
}

func (c *nativeConn) SetProgressHandler(steps int, poll func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if poll == nil || steps <= 0 {
		sqlite3ProgressHandler(c.db, 0, 0, 0)
		nativeProgress.Delete(c.key)
		return
	}
	nativeProgress.Store(c.key, poll)
	sqlite3ProgressHandler(c.db, int32(steps), nativeProgressCallback(), c.key)
}

func (c *nativeConn) Lookaside() (current, highwater int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cur, hi int32
	sqlite3DbStatus(c.db, 0, &cur, &hi, 0) // SQLITE_DBSTATUS_LOOKASIDE_USED
	return int(cur), int(hi)
}

func (c *nativeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	nativeProgress.Delete(c.key)
	nativeTracers.Delete(c.key)
	if rc := int(sqlite3CloseV2(c.db)); rc != codeOK {
		return c.lastError(ErrGeneric, rc)
	}
	return nil
}

// nativeStmt is a sqlite3_stmt* from the system library.
type nativeStmt struct {
	conn *nativeConn
	stmt uintptr
	sql  string
}

func (s *nativeStmt) SQL() string { return s.sql }

func (s *nativeStmt) Step() (StepResult, error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.stmt == 0 {
		return StepDone, ErrStatementClosed
	}
	rc := int(sqlite3Step(s.stmt))
	switch rc & 0xff {
	case codeRow:
		return StepRow, nil
	case codeDone:
		return StepDone, nil
	case codeBusy:
		return StepBusy, nil
	case codeLocked:
		return StepLocked, nil
	default:
		return StepDone, c.lastError(errorTypeForCode(rc), rc)
	}
}

func (s *nativeStmt) ColumnCount() int {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return int(sqlite3ColumnCount(s.stmt))
}

func (s *nativeStmt) ColumnName(col int) string {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return sqlite3ColumnName(s.stmt, int32(col))
}

func (s *nativeStmt) ColumnType(col int) ColumnType {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return ColumnType(sqlite3ColumnType(s.stmt, int32(col)))
}

func (s *nativeStmt) ColumnInt64(col int) int64 {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return sqlite3ColumnInt64(s.stmt, int32(col))
}

func (s *nativeStmt) ColumnDouble(col int) float64 {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return sqlite3ColumnDouble(s.stmt, int32(col))
}

func (s *nativeStmt) ColumnText(col int) string {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	p := sqlite3ColumnText(s.stmt, int32(col))
	n := int(sqlite3ColumnBytes(s.stmt, int32(col)))
	if p == 0 || n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

func (s *nativeStmt) ColumnBlob(col int) []byte {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	p := sqlite3ColumnBlob(s.stmt, int32(col))
	n := int(sqlite3ColumnBytes(s.stmt, int32(col)))
	if p == 0 || n == 0 {
		return []byte{}
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
	return out
}

func (s *nativeStmt) Reset() {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.stmt != 0 {
		sqlite3Reset(s.stmt)
	}
}

func (s *nativeStmt) ClearBindings() {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.stmt != 0 {
		sqlite3ClearBindings(s.stmt)
	}
}

func (s *nativeStmt) ReadOnly() bool {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return sqlite3StmtReadonly(s.stmt) != 0
}

func (s *nativeStmt) BindParameterCount() int {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return int(sqlite3BindParameterCount(s.stmt))
}

func (s *nativeStmt) bindResult(rc int32) error {
	if rc == codeOK {
		return nil
	}
	typ := ErrBind
	if int(rc)&0xff == codeRange {
		typ = ErrRange
	}
	return s.conn.lastError(typ, int(rc))
}

func (s *nativeStmt) BindNull(idx int) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.bindResult(sqlite3BindNull(s.stmt, int32(idx)))
}

func (s *nativeStmt) BindInt64(idx int, v int64) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.bindResult(sqlite3BindInt64(s.stmt, int32(idx), v))
}

func (s *nativeStmt) BindDouble(idx int, v float64) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.bindResult(sqlite3BindDouble(s.stmt, int32(idx), v))
}

func (s *nativeStmt) BindText(idx int, v string) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	b := emptyBytes
	if len(v) > 0 {
		b = []byte(v)
	}
	return s.bindResult(sqlite3BindText(s.stmt, int32(idx), &b[0], int32(len(v)), sqliteTransient))
}

func (s *nativeStmt) BindBlob(idx int, v []byte) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	b := v
	if len(b) == 0 {
		b = emptyBytes
	}
	return s.bindResult(sqlite3BindBlob(s.stmt, int32(idx), &b[0], int32(len(v)), sqliteTransient))
}

var (
	_ Engine = NativeEngine{}
	_ Conn   = (*nativeConn)(nil)
	_ Stmt   = (*nativeStmt)(nil)
)
