package sqliter

import (
	"errors"
	"fmt"
)

// ErrorType represents the different kinds of sqliter errors.
type ErrorType int

const (
	// ErrGeneric is a generic error.
	ErrGeneric ErrorType = iota
	// ErrOpen means a connection could not be opened or configured.
	ErrOpen
	// ErrCompile means SQL text failed to compile. The message carries the SQL.
	ErrCompile
	// ErrBind is a parameter binding error.
	ErrBind
	// ErrExec is a non-busy failure while stepping or executing a statement.
	ErrExec
	// ErrBusyRetryExceeded means the busy/locked retry ceiling was hit.
	ErrBusyRetryExceeded
	// ErrTypeMismatch is an unsupported read coercion, such as a blob read as text.
	ErrTypeMismatch
	// ErrWindowFull means a result window ran out of space.
	ErrWindowFull
	// ErrUnknownColumnType means the engine reported a column type that is not modeled.
	ErrUnknownColumnType
	// ErrRange means a row, column or parameter index is out of range.
	ErrRange
	// ErrCanceled means the statement was interrupted through the cancel flag.
	ErrCanceled
	// ErrTransaction is a transaction error.
	ErrTransaction
	// ErrClosed means the connection or statement was already closed.
	ErrClosed
)

var errorTypeNames = [...]string{
	ErrGeneric:           "generic",
	ErrOpen:              "open",
	ErrCompile:           "compile",
	ErrBind:              "bind",
	ErrExec:              "exec",
	ErrBusyRetryExceeded: "busy retry exceeded",
	ErrTypeMismatch:      "type mismatch",
	ErrWindowFull:        "window full",
	ErrUnknownColumnType: "unknown column type",
	ErrRange:             "range",
	ErrCanceled:          "canceled",
	ErrTransaction:       "transaction",
	ErrClosed:            "closed",
}

// String returns the name of the error type.
func (t ErrorType) String() string {
	if t >= 0 && int(t) < len(errorTypeNames) {
		return errorTypeNames[t]
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}

// Error is a sqliter-specific error type.
type Error struct {
	Type    ErrorType
	Message string
	// Code is the extended SQLite result code, or 0 when the error did not
	// come from the engine.
	Code int
	// SQL is set for compile errors.
	SQL string
	// Err is the underlying cause, if any.
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("sqliter: %s", e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(typ ErrorType, message string) *Error {
	return &Error{
		Type:    typ,
		Message: message,
	}
}

// IsError checks if an error, or any error it wraps, is of a specific type.
func IsError(err error, typ ErrorType) bool {
	var sqlErr *Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.Type == typ
}

// ErrConnectionClosed is returned by operations on a closed connection.
var ErrConnectionClosed = NewError(ErrClosed, "connection is closed")

// ErrStatementClosed is returned by operations on a closed statement.
var ErrStatementClosed = NewError(ErrClosed, "statement is closed")

// ErrNoRows is returned by single-value queries that produce no row.
var ErrNoRows = NewError(ErrExec, "query returned no rows")

// canceledError reports a statement stopped by its context.
func canceledError(err error) *Error {
	return &Error{Type: ErrCanceled, Message: "statement canceled: " + err.Error(), Err: err}
}

// SQLite primary result codes used by this package.
const (
	codeOK         = 0
	codeError      = 1
	codeInternal   = 2
	codePerm       = 3
	codeAbort      = 4
	codeBusy       = 5
	codeLocked     = 6
	codeNoMem      = 7
	codeReadOnly   = 8
	codeInterrupt  = 9
	codeIOErr      = 10
	codeCorrupt    = 11
	codeNotFound   = 12
	codeFull       = 13
	codeCantOpen   = 14
	codeProtocol   = 15
	codeEmpty      = 16
	codeSchema     = 17
	codeTooBig     = 18
	codeConstraint = 19
	codeMismatch   = 20
	codeMisuse     = 21
	codeNoLFS      = 22
	codeAuth       = 23
	codeFormat     = 24
	codeRange      = 25
	codeNotADB     = 26
	codeNotice     = 27
	codeWarning    = 28
	codeRow        = 100
	codeDone       = 101
)

var resultCodeNames = map[int]string{
	codeOK:         "SQLITE_OK",
	codeError:      "SQLITE_ERROR",
	codeInternal:   "SQLITE_INTERNAL",
	codePerm:       "SQLITE_PERM",
	codeAbort:      "SQLITE_ABORT",
	codeBusy:       "SQLITE_BUSY",
	codeLocked:     "SQLITE_LOCKED",
	codeNoMem:      "SQLITE_NOMEM",
	codeReadOnly:   "SQLITE_READONLY",
	codeInterrupt:  "SQLITE_INTERRUPT",
	codeIOErr:      "SQLITE_IOERR",
	codeCorrupt:    "SQLITE_CORRUPT",
	codeNotFound:   "SQLITE_NOTFOUND",
	codeFull:       "SQLITE_FULL",
	codeCantOpen:   "SQLITE_CANTOPEN",
	codeProtocol:   "SQLITE_PROTOCOL",
	codeEmpty:      "SQLITE_EMPTY",
	codeSchema:     "SQLITE_SCHEMA",
	codeTooBig:     "SQLITE_TOOBIG",
	codeConstraint: "SQLITE_CONSTRAINT",
	codeMismatch:   "SQLITE_MISMATCH",
	codeMisuse:     "SQLITE_MISUSE",
	codeNoLFS:      "SQLITE_NOLFS",
	codeAuth:       "SQLITE_AUTH",
	codeFormat:     "SQLITE_FORMAT",
	codeRange:      "SQLITE_RANGE",
	codeNotADB:     "SQLITE_NOTADB",
	codeNotice:     "SQLITE_NOTICE",
	codeWarning:    "SQLITE_WARNING",
	codeRow:        "SQLITE_ROW",
	codeDone:       "SQLITE_DONE",
}

// ResultCodeName returns the symbolic name of a SQLite result code.
// Extended codes are reported by their primary code.
func ResultCodeName(code int) string {
	if name, ok := resultCodeNames[code&0xff]; ok {
		return name
	}
	return fmt.Sprintf("SQLITE_UNKNOWN(%d)", code)
}

// engineError builds an Error from an engine result code and the connection's
// diagnostic text. message, when non-empty, is appended after the engine text.
func engineError(typ ErrorType, code int, engineMsg, message string) *Error {
	text := engineMsg
	if text == "" {
		text = ResultCodeName(code)
	}
	if code != 0 {
		text = fmt.Sprintf("%s (code %d)", text, code)
	}
	if message != "" {
		text = text + ": " + message
	}
	return &Error{Type: typ, Message: text, Code: code}
}

// errorTypeForCode maps a primary result code to the error type surfaced to callers.
func errorTypeForCode(code int) ErrorType {
	switch code & 0xff {
	case codeInterrupt:
		return ErrCanceled
	case codeBusy, codeLocked:
		return ErrBusyRetryExceeded
	case codeRange:
		return ErrRange
	case codeMismatch:
		return ErrTypeMismatch
	case codeCantOpen, codeNotADB, codeCorrupt:
		return ErrOpen
	default:
		return ErrExec
	}
}

// compileError reports SQL that failed to prepare.
func compileError(code int, engineMsg, sql string) *Error {
	err := engineError(ErrCompile, code, engineMsg, "")
	err.Message += ", while compiling: " + sql
	err.SQL = sql
	return err
}
