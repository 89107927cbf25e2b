package sqliter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// NativeLibraryEnv names an environment variable that overrides the
// location of the system SQLite library.
const NativeLibraryEnv = "SQLITER_LIBSQLITE3"

// Library loader
var (
	nativeLibOnce    sync.Once
	nativeLibLoaded  bool
	nativeLibError   error
	nativeLibPath    string
	nativeLibHandler unsafe.Pointer
)

// Dynamically bound SQLite C API. The Go signatures follow purego's
// conversion rules: string <=> char*, *T <=> T*.
var (
	sqlite3Libversion         func() string
	sqlite3OpenV2             func(filename string, ppDb *uintptr, flags int32, zVfs uintptr) int32
	sqlite3CloseV2            func(db uintptr) int32
	sqlite3ExtendedResultCode func(db uintptr, onoff int32) int32
	sqlite3Errmsg             func(db uintptr) string
	sqlite3ExtendedErrcode    func(db uintptr) int32
	sqlite3PrepareV2          func(db uintptr, zSQL string, nByte int32, ppStmt *uintptr, pzTail uintptr) int32
	sqlite3Finalize           func(stmt uintptr) int32
	sqlite3Step               func(stmt uintptr) int32
	sqlite3Reset              func(stmt uintptr) int32
	sqlite3ClearBindings      func(stmt uintptr) int32
	sqlite3SQL                func(stmt uintptr) string
	sqlite3StmtReadonly       func(stmt uintptr) int32
	sqlite3ColumnCount        func(stmt uintptr) int32
	sqlite3ColumnName         func(stmt uintptr, col int32) string
	sqlite3ColumnType         func(stmt uintptr, col int32) int32
	sqlite3ColumnInt64        func(stmt uintptr, col int32) int64
	sqlite3ColumnDouble       func(stmt uintptr, col int32) float64
	sqlite3ColumnText         func(stmt uintptr, col int32) uintptr
	sqlite3ColumnBlob         func(stmt uintptr, col int32) uintptr
	sqlite3ColumnBytes        func(stmt uintptr, col int32) int32
	sqlite3BindParameterCount func(stmt uintptr) int32
	sqlite3BindNull           func(stmt uintptr, idx int32) int32
	sqlite3BindInt64          func(stmt uintptr, idx int32, v int64) int32
	sqlite3BindDouble         func(stmt uintptr, idx int32, v float64) int32
	sqlite3BindText           func(stmt uintptr, idx int32, v *byte, n int32, destructor uintptr) int32
	sqlite3BindBlob           func(stmt uintptr, idx int32, v *byte, n int32, destructor uintptr) int32
	sqlite3Changes            func(db uintptr) int32
	sqlite3LastInsertRowid    func(db uintptr) int64
	sqlite3BusyTimeout        func(db uintptr, ms int32) int32
	sqlite3ProgressHandler    func(db uintptr, nOps int32, xProgress uintptr, pArg uintptr)
	sqlite3TraceV2            func(db uintptr, mask uint32, xCallback uintptr, pCtx uintptr) int32
	sqlite3DbStatus           func(db uintptr, op int32, pCur *int32, pHiwtr *int32, reset int32) int32
)

// NativeAvailable returns true if a system SQLite library could be loaded.
func NativeAvailable() bool {
	loadNativeLibrary()
	return nativeLibLoaded
}

// GetNativeLibraryError returns any error that occurred during native library loading
func GetNativeLibraryError() error {
	loadNativeLibrary()
	return nativeLibError
}

// Attempts to load the system SQLite library
func loadNativeLibrary() {
	nativeLibOnce.Do(func() {
		var handler unsafe.Pointer
		var err error
		for _, path := range nativeLibraryCandidates() {
			handler, err = loadDynamicLibrary(path)
			if err == nil {
				nativeLibPath = path
				break
			}
		}
		if handler == nil {
			if err == nil {
				err = errors.New("no candidate path for this platform")
			}
			nativeLibError = fmt.Errorf("sqlite library not found: %v", err)
			return
		}
		nativeLibHandler = handler

		if err := loadNativeFunctions(); err != nil {
			closeLibrary(nativeLibHandler)
			nativeLibHandler = nil
			nativeLibError = fmt.Errorf("failed to bind sqlite library %s: %v", nativeLibPath, err)
			return
		}

		nativeLibLoaded = true
	})
}

// nativeLibraryCandidates lists the paths to try, in order. Bare library
// names are resolved by the platform loader's own search path.
func nativeLibraryCandidates() []string {
	var candidates []string
	if p := os.Getenv(NativeLibraryEnv); p != "" {
		candidates = append(candidates, p)
	}

	var names, dirs []string
	switch runtime.GOOS {
	case "windows":
		names = []string{"sqlite3.dll", "winsqlite3.dll"}
	case "darwin":
		names = []string{"libsqlite3.dylib", "libsqlite3.0.dylib"}
		dirs = []string{"/usr/lib", "/opt/homebrew/opt/sqlite/lib", "/usr/local/opt/sqlite/lib"}
	case "linux", "freebsd":
		names = []string{"libsqlite3.so.0", "libsqlite3.so"}
		dirs = []string{
			filepath.Join("/usr/lib", runtime.GOARCH+"-linux-gnu"),
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
			"/usr/lib64",
			"/usr/lib",
			"/usr/local/lib",
		}
	default:
		return candidates
	}

	// Executable directory first, then the well known system directories
	if execPath, err := os.Executable(); err == nil {
		dirs = append([]string{filepath.Dir(execPath)}, dirs...)
	}
	for _, dir := range dirs {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				candidates = append(candidates, path)
			}
		}
	}
	return append(candidates, names...)
}

// Bind every C function the native engine uses
func loadNativeFunctions() error {
	bindings := []struct {
		fptr any
		name string
	}{
		{&sqlite3Libversion, "sqlite3_libversion"},
		{&sqlite3OpenV2, "sqlite3_open_v2"},
		{&sqlite3CloseV2, "sqlite3_close_v2"},
		{&sqlite3ExtendedResultCode, "sqlite3_extended_result_codes"},
		{&sqlite3Errmsg, "sqlite3_errmsg"},
		{&sqlite3ExtendedErrcode, "sqlite3_extended_errcode"},
		{&sqlite3PrepareV2, "sqlite3_prepare_v2"},
		{&sqlite3Finalize, "sqlite3_finalize"},
		{&sqlite3Step, "sqlite3_step"},
		{&sqlite3Reset, "sqlite3_reset"},
		{&sqlite3ClearBindings, "sqlite3_clear_bindings"},
		{&sqlite3SQL, "sqlite3_sql"},
		{&sqlite3StmtReadonly, "sqlite3_stmt_readonly"},
		{&sqlite3ColumnCount, "sqlite3_column_count"},
		{&sqlite3ColumnName, "sqlite3_column_name"},
		{&sqlite3ColumnType, "sqlite3_column_type"},
		{&sqlite3ColumnInt64, "sqlite3_column_int64"},
		{&sqlite3ColumnDouble, "sqlite3_column_double"},
		{&sqlite3ColumnText, "sqlite3_column_text"},
		{&sqlite3ColumnBlob, "sqlite3_column_blob"},
		{&sqlite3ColumnBytes, "sqlite3_column_bytes"},
		{&sqlite3BindParameterCount, "sqlite3_bind_parameter_count"},
		{&sqlite3BindNull, "sqlite3_bind_null"},
		{&sqlite3BindInt64, "sqlite3_bind_int64"},
		{&sqlite3BindDouble, "sqlite3_bind_double"},
		{&sqlite3BindText, "sqlite3_bind_text"},
		{&sqlite3BindBlob, "sqlite3_bind_blob"},
		{&sqlite3Changes, "sqlite3_changes"},
		{&sqlite3LastInsertRowid, "sqlite3_last_insert_rowid"},
		{&sqlite3BusyTimeout, "sqlite3_busy_timeout"},
		{&sqlite3ProgressHandler, "sqlite3_progress_handler"},
		{&sqlite3TraceV2, "sqlite3_trace_v2"},
		{&sqlite3DbStatus, "sqlite3_db_status"},
	}

	for _, b := range bindings {
		sym, err := getSymbol(nativeLibHandler, b.name)
		if err != nil {
			return fmt.Errorf("%s: %v", b.name, err)
		}
		purego.RegisterFunc(b.fptr, uintptr(sym))
	}
	return nil
}
