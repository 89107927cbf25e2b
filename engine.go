package sqliter

import (
	"log/slog"
	"time"
)

// StepResult is the outcome of stepping a statement.
type StepResult int

const (
	// StepRow means the statement produced a row.
	StepRow StepResult = iota
	// StepDone means the statement ran to completion.
	StepDone
	// StepBusy means the database file is locked by another connection.
	StepBusy
	// StepLocked means a table is locked inside a shared cache.
	StepLocked
)

func (r StepResult) String() string {
	switch r {
	case StepRow:
		return "row"
	case StepDone:
		return "done"
	case StepBusy:
		return "busy"
	case StepLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// ColumnType is the storage class the engine reports for a column of the current row.
// The values match SQLite's fundamental datatype codes.
type ColumnType int

const (
	ColumnInteger ColumnType = 1
	ColumnFloat   ColumnType = 2
	ColumnText    ColumnType = 3
	ColumnBlob    ColumnType = 4
	ColumnNull    ColumnType = 5
)

// Open flags understood by every engine. The values match the SQLITE_OPEN_* flags.
const (
	OpenReadOnly  = 0x00000001
	OpenReadWrite = 0x00000002
	OpenCreate    = 0x00000004
	OpenURI       = 0x00000040
	OpenMemory    = 0x00000080
	OpenFullMutex = 0x00010000
)

// OpenConfig describes how an engine should open a connection.
type OpenConfig struct {
	Path  string
	Flags int
	// Label names the connection in trace and profile output.
	Label   string
	Trace   bool
	Profile bool
	// Lookaside is only configured when both values are positive.
	LookasideSlotSize  int
	LookasideSlotCount int
	Logger             *slog.Logger
}

// Engine opens connections to a SQL execution engine.
type Engine interface {
	// Name identifies the engine in logs and NativeInfo.
	Name() string
	// Version reports the engine's library version string, e.g. "3.46.0".
	Version() string
	// Open opens a connection or fails with an ErrOpen error.
	Open(cfg OpenConfig) (Conn, error)
}

// Conn is one open engine connection. Implementations serialize their own calls,
// so a Conn may be finalized from a different goroutine than the one stepping it.
type Conn interface {
	// Prepare compiles sql into a statement, failing with an ErrCompile error.
	Prepare(sql string) (Stmt, error)
	// Finalize releases a statement. It must be called exactly once per prepared statement.
	Finalize(stmt Stmt) error
	// Changes reports the rows modified by the most recent statement.
	Changes() int64
	// LastInsertRowID reports the rowid of the most recent successful insert.
	LastInsertRowID() int64
	SetBusyTimeout(d time.Duration) error
	// SetProgressHandler installs poll to run every steps virtual machine
	// instructions. A poll returning true interrupts the running statement.
	// A nil poll removes the handler.
	SetProgressHandler(steps int, poll func() bool)
	// Lookaside reports the lookaside allocator's current usage.
	Lookaside() (current, highwater int)
	Close() error
}

// Cursor is the read side of a statement, as consumed by FillWindow.
type Cursor interface {
	// Step advances to the next row. A non-nil error is returned only for
	// failures other than busy and locked, which are reported as results.
	Step() (StepResult, error)
	ColumnCount() int
	ColumnType(col int) ColumnType
	ColumnInt64(col int) int64
	ColumnDouble(col int) float64
	ColumnText(col int) string
	ColumnBlob(col int) []byte
	// Reset returns the statement to its initial state, keeping its bindings.
	Reset()
}

// Stmt is a compiled statement. Bind indexes are one-based and column indexes
// are zero-based, as in the SQLite C API.
type Stmt interface {
	Cursor
	SQL() string
	ColumnName(col int) string
	BindParameterCount() int
	BindNull(idx int) error
	BindInt64(idx int, v int64) error
	BindDouble(idx int, v float64) error
	BindText(idx int, v string) error
	BindBlob(idx int, v []byte) error
	ClearBindings()
	// ReadOnly reports whether the statement leaves the database unchanged.
	ReadOnly() bool
}
