package sqliter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"modernc.org/libc"
	"modernc.org/libc/sys/types"
	lib "modernc.org/sqlite/lib"
)

// ModerncEngine runs SQLite through the pure Go translation in modernc.org/sqlite/lib.
// It is the default engine and needs neither cgo nor a system library.
type ModerncEngine struct{}

var moderncInitOnce sync.Once

func moderncInit(tls *libc.TLS) {
	moderncInitOnce.Do(func() {
		lib.Xsqlite3_initialize(tls)
	})
}

// Name returns "modernc".
func (ModerncEngine) Name() string { return "modernc" }

// Version returns the bundled SQLite version.
func (ModerncEngine) Version() string { return lib.SQLITE_VERSION }

// Open opens a connection with sqlite3_open_v2.
func (ModerncEngine) Open(cfg OpenConfig) (_ Conn, err error) {
	tls := libc.NewTLS()
	defer func() {
		if err != nil {
			tls.Close()
		}
	}()
	moderncInit(tls)

	cpath, err := libc.CString(cfg.Path)
	if err != nil {
		return nil, NewError(ErrOpen, fmt.Sprintf("open %q: %v", cfg.Path, err))
	}
	defer libc.Xfree(tls, cpath)

	dbPtr, err := moderncMalloc(tls, types.Size_t(unsafe.Sizeof(uintptr(0))))
	if err != nil {
		return nil, NewError(ErrOpen, fmt.Sprintf("open %q: %v", cfg.Path, err))
	}
	defer libc.Xfree(tls, dbPtr)

	rc := int(lib.Xsqlite3_open_v2(tls, cpath, dbPtr, int32(cfg.Flags), 0))
	db := *(*uintptr)(unsafe.Pointer(dbPtr))
	if db == 0 {
		return nil, engineError(ErrOpen, rc, "", fmt.Sprintf("could not open database %q", cfg.Path))
	}

	c := &moderncConn{tls: tls, db: db, label: cfg.Label, logger: cfg.Logger}
	if rc != codeOK {
		if ext := int(lib.Xsqlite3_extended_errcode(tls, db)); ext != 0 {
			rc = ext
		}
		msg := c.errmsg()
		lib.Xsqlite3_close_v2(tls, db)
		return nil, engineError(ErrOpen, rc, msg, fmt.Sprintf("could not open database %q", cfg.Path))
	}
	lib.Xsqlite3_extended_result_codes(tls, db, 1)

	if cfg.LookasideSlotSize > 0 && cfg.LookasideSlotCount > 0 {
		varArgs := libc.NewVaList(uintptr(0), int32(cfg.LookasideSlotSize), int32(cfg.LookasideSlotCount))
		if varArgs == 0 {
			lib.Xsqlite3_close_v2(tls, db)
			return nil, NewError(ErrOpen, fmt.Sprintf("open %q: cannot allocate memory", cfg.Path))
		}
		rc := int(lib.Xsqlite3_db_config(tls, db, lib.SQLITE_DBCONFIG_LOOKASIDE, varArgs))
		libc.Xfree(tls, varArgs)
		if rc != codeOK {
			msg := c.errmsg()
			lib.Xsqlite3_close_v2(tls, db)
			return nil, engineError(ErrOpen, rc, msg, "cannot set lookaside")
		}
	}

	if c.logger != nil && (cfg.Trace || cfg.Profile) {
		var mask uint32
		if cfg.Trace {
			mask |= lib.SQLITE_TRACE_STMT
		}
		if cfg.Profile {
			mask |= lib.SQLITE_TRACE_PROFILE
		}
		moderncTracers.Store(db, c)
		lib.Xsqlite3_trace_v2(tls, db, mask, cFuncPointer(moderncTraceCallback), db)
	}

	return c, nil
}

// moderncConn is a sqlite3* together with the TLS it must be driven with.
// mu serializes every call that touches tls.
type moderncConn struct {
	mu     sync.Mutex
	tls    *libc.TLS
	db     uintptr
	label  string
	logger *slog.Logger
	closed bool
}

func (c *moderncConn) errmsg() string {
	return libc.GoString(lib.Xsqlite3_errmsg(c.tls, c.db))
}

func (c *moderncConn) lastError(typ ErrorType, rc int) *Error {
	if ext := int(lib.Xsqlite3_extended_errcode(c.tls, c.db)); ext != 0 && ext&0xff == rc&0xff {
		rc = ext
	}
	return engineError(typ, rc, c.errmsg(), "")
}

func (c *moderncConn) Prepare(sql string) (Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}

	csql, err := libc.CString(sql)
	if err != nil {
		return nil, NewError(ErrCompile, err.Error())
	}
	defer libc.Xfree(c.tls, csql)

	stmtPtr, err := moderncMalloc(c.tls, types.Size_t(unsafe.Sizeof(uintptr(0))))
	if err != nil {
		return nil, NewError(ErrCompile, err.Error())
	}
	defer libc.Xfree(c.tls, stmtPtr)

	rc := int(lib.Xsqlite3_prepare_v2(c.tls, c.db, csql, -1, stmtPtr, 0))
	if rc != codeOK {
		e := c.lastError(ErrCompile, rc)
		if rc&0xff == codeInterrupt {
			e.Type = ErrCanceled
			return nil, e
		}
		return nil, compileError(e.Code, c.errmsg(), sql)
	}
	stmt := *(*uintptr)(unsafe.Pointer(stmtPtr))
	if stmt == 0 {
		return nil, compileError(codeMisuse, "statement is empty", sql)
	}
	return &moderncStmt{conn: c, stmt: stmt, sql: sql}, nil
}

func (c *moderncConn) Finalize(s Stmt) error {
	ms, ok := s.(*moderncStmt)
	if !ok {
		return NewError(ErrGeneric, fmt.Sprintf("statement %T does not belong to this engine", s))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ms.stmt == 0 {
		return nil
	}
	// The result of finalize mirrors the last step, which was already reported.
	lib.Xsqlite3_finalize(c.tls, ms.stmt)
	ms.stmt = 0
	return nil
}

func (c *moderncConn) Changes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(lib.Xsqlite3_changes(c.tls, c.db))
}

func (c *moderncConn) LastInsertRowID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lib.Xsqlite3_last_insert_rowid(c.tls, c.db)
}

func (c *moderncConn) SetBusyTimeout(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rc := int(lib.Xsqlite3_busy_timeout(c.tls, c.db, int32(d/time.Millisecond))); rc != codeOK {
		return c.lastError(ErrOpen, rc)
	}
	return nil
}

// Progress and trace callbacks are plain functions; these maps route them
// back to the owning connection by its sqlite3* pointer.
var (
	moderncProgress sync.Map // sqlite3* -> func() bool
	moderncTracers  sync.Map // sqlite3* -> *moderncConn
)

func (c *moderncConn) SetProgressHandler(steps int, poll func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if poll == nil || steps <= 0 {
		lib.Xsqlite3_progress_handler(c.tls, c.db, 0, 0, 0)
		moderncProgress.Delete(c.db)
		return
	}
	moderncProgress.Store(c.db, poll)
	lib.Xsqlite3_progress_handler(c.tls, c.db, int32(steps), cFuncPointer(moderncProgressCallback), c.db)
}

func moderncProgressCallback(tls *libc.TLS, pArg uintptr) int32 {
	val, _ := moderncProgress.Load(pArg)
	if val == nil {
		return 0
	}
	if val.(func() bool)() {
		return 1
	}
	return 0
}

func moderncTraceCallback(tls *libc.TLS, mask uint32, pCtx, p, x uintptr) int32 {
	val, _ := moderncTracers.Load(pCtx)
	if val == nil {
		return 0
	}
	c := val.(*moderncConn)
	switch mask {
	case lib.SQLITE_TRACE_STMT:
		c.logger.Debug("sqlite trace", "label", c.label, "sql", libc.GoString(x))
	case lib.SQLITE_TRACE_PROFILE:
		elapsed := time.Duration(*(*int64)(unsafe.Pointer(x)))
		c.logger.Debug("sqlite profile", "label", c.label,
			"sql", libc.GoString(lib.Xsqlite3_sql(tls, p)), "elapsed", elapsed)
	}
	return 0
}

func (c *moderncConn) Lookaside() (current, highwater int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, err := moderncMalloc(c.tls, 2*types.Size_t(unsafe.Sizeof(int32(0))))
	if err != nil {
		return 0, 0
	}
	defer libc.Xfree(c.tls, p)
	pHigh := p + unsafe.Sizeof(int32(0))
	lib.Xsqlite3_db_status(c.tls, c.db, lib.SQLITE_DBSTATUS_LOOKASIDE_USED, p, pHigh, 0)
	return int(*(*int32)(unsafe.Pointer(p))), int(*(*int32)(unsafe.Pointer(pHigh)))
}

func (c *moderncConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.closeLocked()
}

func (c *moderncConn) closeLocked() error {
	c.closed = true
	moderncProgress.Delete(c.db)
	moderncTracers.Delete(c.db)
	rc := int(lib.Xsqlite3_close_v2(c.tls, c.db))
	var err error
	if rc != codeOK {
		err = c.lastError(ErrGeneric, rc)
	}
	c.tls.Close()
	return err
}

// moderncStmt is a sqlite3_stmt* owned by a moderncConn.
type moderncStmt struct {
	conn *moderncConn
	stmt uintptr
	sql  string
}

func (s *moderncStmt) SQL() string { return s.sql }

func (s *moderncStmt) Step() (StepResult, error) {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.stmt == 0 {
		return StepDone, ErrStatementClosed
	}
	rc := int(lib.Xsqlite3_step(c.tls, s.stmt))
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

func (s *moderncStmt) ColumnCount() int {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return int(lib.Xsqlite3_column_count(s.conn.tls, s.stmt))
}

func (s *moderncStmt) ColumnName(col int) string {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return libc.GoString(lib.Xsqlite3_column_name(s.conn.tls, s.stmt, int32(col)))
}

func (s *moderncStmt) ColumnType(col int) ColumnType {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return ColumnType(lib.Xsqlite3_column_type(s.conn.tls, s.stmt, int32(col)))
}

func (s *moderncStmt) ColumnInt64(col int) int64 {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return lib.Xsqlite3_column_int64(s.conn.tls, s.stmt, int32(col))
}

func (s *moderncStmt) ColumnDouble(col int) float64 {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return lib.Xsqlite3_column_double(s.conn.tls, s.stmt, int32(col))
}

func (s *moderncStmt) ColumnText(col int) string {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	p := lib.Xsqlite3_column_text(s.conn.tls, s.stmt, int32(col))
	n := int(lib.Xsqlite3_column_bytes(s.conn.tls, s.stmt, int32(col)))
	if p == 0 || n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

func (s *moderncStmt) ColumnBlob(col int) []byte {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	p := lib.Xsqlite3_column_blob(s.conn.tls, s.stmt, int32(col))
	n := int(lib.Xsqlite3_column_bytes(s.conn.tls, s.stmt, int32(col)))
	if p == 0 || n == 0 {
		return []byte{}
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
	return out
}

func (s *moderncStmt) Reset() {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.stmt != 0 {
		lib.Xsqlite3_reset(s.conn.tls, s.stmt)
	}
}

func (s *moderncStmt) ClearBindings() {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if s.stmt != 0 {
		lib.Xsqlite3_clear_bindings(s.conn.tls, s.stmt)
	}
}

func (s *moderncStmt) ReadOnly() bool {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return lib.Xsqlite3_stmt_readonly(s.conn.tls, s.stmt) != 0
}

func (s *moderncStmt) BindParameterCount() int {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return int(lib.Xsqlite3_bind_parameter_count(s.conn.tls, s.stmt))
}

func (s *moderncStmt) bindResult(rc int32) error {
	if rc == codeOK {
		return nil
	}
	typ := ErrBind
	if int(rc)&0xff == codeRange {
		typ = ErrRange
	}
	return s.conn.lastError(typ, int(rc))
}

func (s *moderncStmt) BindNull(idx int) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.bindResult(lib.Xsqlite3_bind_null(s.conn.tls, s.stmt, int32(idx)))
}

func (s *moderncStmt) BindInt64(idx int, v int64) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.bindResult(lib.Xsqlite3_bind_int64(s.conn.tls, s.stmt, int32(idx), v))
}

func (s *moderncStmt) BindDouble(idx int, v float64) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.bindResult(lib.Xsqlite3_bind_double(s.conn.tls, s.stmt, int32(idx), v))
}

// SQLite takes ownership of the copied buffer and frees it with libc.Xfree.
var moderncFreeFunc = cFuncPointer(libc.Xfree)

func (s *moderncStmt) BindText(idx int, v string) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	size := types.Size_t(len(v))
	if size == 0 {
		size = 1
	}
	p, err := moderncMalloc(s.conn.tls, size)
	if err != nil {
		return NewError(ErrBind, err.Error())
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(p)), len(v)), v)
	return s.bindResult(lib.Xsqlite3_bind_text(s.conn.tls, s.stmt, int32(idx), p, int32(len(v)), moderncFreeFunc))
}

func (s *moderncStmt) BindBlob(idx int, v []byte) error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	if len(v) == 0 {
		return s.bindResult(lib.Xsqlite3_bind_zeroblob(s.conn.tls, s.stmt, int32(idx), 0))
	}
	p, err := moderncMalloc(s.conn.tls, types.Size_t(len(v)))
	if err != nil {
		return NewError(ErrBind, err.Error())
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(p)), len(v)), v)
	return s.bindResult(lib.Xsqlite3_bind_blob(s.conn.tls, s.stmt, int32(idx), p, int32(len(v)), moderncFreeFunc))
}

func moderncMalloc(tls *libc.TLS, n types.Size_t) (uintptr, error) {
	p := libc.Xmalloc(tls, n)
	if p == 0 {
		return 0, fmt.Errorf("out of memory")
	}
	return p, nil
}

// cFuncPointer converts a function declared at package level to a C function pointer.
// Using it on closures is undefined.
func cFuncPointer[T any](f T) uintptr {
	return *(*uintptr)(unsafe.Pointer(&struct{ f T }{f}))
}

var (
	_ Engine = ModerncEngine{}
	_ Conn   = (*moderncConn)(nil)
	_ Stmt   = (*moderncStmt)(nil)
)
