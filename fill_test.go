package sqliter

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

// twoIntRowSize is the window cost of one row of two columns.
const twoIntRowSize = 2*fieldSlotSize + rowSlotSize

func testFiller(limit uint64) *windowFiller {
	return &windowFiller{retry: busyRetry{limit: limit}}
}

func windowLongs(t *testing.T, w *ResultWindow, col int) []int64 {
	t.Helper()
	out := make([]int64, w.NumRows())
	for r := range out {
		v, err := w.Long(r, col)
		if err != nil {
			t.Fatalf("Failed to read row %d: %v", r, err)
		}
		out[r] = v
	}
	return out
}

// TestFillWindowRestart tests that a window restarts at the row that did not fit when the required row would be lost.
func TestFillWindowRestart(t *testing.T) {
	cur := newFakeCursor(2, intRows(5)...)
	w, _ := NewResultWindow(3 * twoIntRowSize)

	res, err := FillWindow(context.Background(), cur, w, 0, 4, true)
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if res.StartPos != 3 || res.TotalRows != 5 {
		t.Errorf("Expected start 3 and 5 rows, got %+v", res)
	}
	if got := windowLongs(t, w, 0); !slices.Equal(got, []int64{3, 4}) {
		t.Errorf("Expected rows [3 4], got %v", got)
	}
	if v, _ := w.Long(1, 1); v != 40 {
		t.Errorf("Expected 40, got %d", v)
	}
	if cur.resets != 1 {
		t.Errorf("Expected cursor reset once, got %d", cur.resets)
	}
}

// TestFillWindowNoRestart tests that a window holding the required row is kept when it fills up.
func TestFillWindowNoRestart(t *testing.T) {
	cur := newFakeCursor(2, intRows(5)...)
	w, _ := NewResultWindow(3 * twoIntRowSize)

	res, err := FillWindow(context.Background(), cur, w, 0, 1, true)
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if res.StartPos != 0 || res.TotalRows != 5 {
		t.Errorf("Expected start 0 and 5 rows, got %+v", res)
	}
	if got := windowLongs(t, w, 0); !slices.Equal(got, []int64{0, 1, 2}) {
		t.Errorf("Expected rows [0 1 2], got %v", got)
	}
}

// TestFillWindowStopsWhenFull tests that without countAllRows stepping ends at the first row that does not fit.
func TestFillWindowStopsWhenFull(t *testing.T) {
	cur := newFakeCursor(2, intRows(10)...)
	w, _ := NewResultWindow(3 * twoIntRowSize)

	res, err := FillWindow(context.Background(), cur, w, 0, 0, false)
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if res.TotalRows != 4 {
		t.Errorf("Expected 4 rows stepped, got %d", res.TotalRows)
	}
	if w.NumRows() != 3 {
		t.Errorf("Expected 3 rows in window, got %d", w.NumRows())
	}
	if cur.steps != 4 {
		t.Errorf("Expected 4 steps, got %d", cur.steps)
	}
}

// TestFillWindowStartPos tests that rows before startPos are counted but not copied.
func TestFillWindowStartPos(t *testing.T) {
	cur := newFakeCursor(2, intRows(5)...)
	w, _ := NewResultWindow(DefaultWindowSize)

	res, err := FillWindow(context.Background(), cur, w, 2, 2, false)
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if res.StartPos != 2 || res.TotalRows != 5 {
		t.Errorf("Expected start 2 and 5 rows, got %+v", res)
	}
	if got := windowLongs(t, w, 0); !slices.Equal(got, []int64{2, 3, 4}) {
		t.Errorf("Expected rows [2 3 4], got %v", got)
	}
}

func TestFillWindowEmpty(t *testing.T) {
	cur := newFakeCursor(3)
	w, _ := NewResultWindow(1024)

	res, err := FillWindow(context.Background(), cur, w, 0, 0, true)
	if err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if res.TotalRows != 0 || w.NumRows() != 0 || w.NumColumns() != 3 {
		t.Errorf("Expected empty window with 3 columns, got %+v, %d rows, %d columns", res, w.NumRows(), w.NumColumns())
	}
}

// TestFillWindowMixedTypes tests that every column type is copied with its storage class.
func TestFillWindowMixedTypes(t *testing.T) {
	cur := newFakeCursor(5, []any{int64(1), 2.5, "three", []byte{4}, nil})
	w, _ := NewResultWindow(1024)

	if _, err := FillWindow(context.Background(), cur, w, 0, 0, false); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	row, err := w.Row(0)
	if err != nil {
		t.Fatalf("Row failed: %v", err)
	}
	want := []FieldSlot{IntegerSlot(1), FloatSlot(2.5), StringSlot("three"), BlobSlot([]byte{4}), NullSlot()}
	for i := range want {
		if row[i].Type != want[i].Type || row[i].Int != want[i].Int ||
			row[i].Float != want[i].Float || !bytes.Equal(row[i].Bytes, want[i].Bytes) {
			t.Errorf("Column %d: expected %+v, got %+v", i, want[i], row[i])
		}
	}
}

// TestFillWindowClearsPrevious tests that a fill replaces whatever the window held before.
func TestFillWindowClearsPrevious(t *testing.T) {
	w, _ := NewResultWindow(1024)
	if _, err := FillWindow(context.Background(), newFakeCursor(2, intRows(4)...), w, 0, 0, false); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	if _, err := FillWindow(context.Background(), newFakeCursor(1, []any{"only"}), w, 0, 0, false); err != nil {
		t.Fatalf("Second fill failed: %v", err)
	}
	if w.NumRows() != 1 || w.NumColumns() != 1 {
		t.Errorf("Expected 1 row of 1 column, got %d rows of %d", w.NumRows(), w.NumColumns())
	}
}

func TestFillWindowErrors(t *testing.T) {
	t.Run("UnknownColumnType", func(t *testing.T) {
		cur := newFakeCursor(2, []any{int64(1), ColumnType(99)})
		w, _ := NewResultWindow(1024)
		_, err := FillWindow(context.Background(), cur, w, 0, 0, false)
		if !IsError(err, ErrUnknownColumnType) {
			t.Fatalf("Expected unknown column type, got %v", err)
		}
		if w.NumRows() != 0 {
			t.Errorf("Expected failed row to be freed, got %d rows", w.NumRows())
		}
		if cur.resets != 1 {
			t.Errorf("Expected cursor reset, got %d resets", cur.resets)
		}
	})

	t.Run("RowTooLarge", func(t *testing.T) {
		cur := newFakeCursor(1, []any{strings.Repeat("x", 20)})
		w, _ := NewResultWindow(30)
		_, err := FillWindow(context.Background(), cur, w, 0, 0, false)
		if !IsError(err, ErrExec) {
			t.Fatalf("Expected exec error for oversized row, got %v", err)
		}
	})

	t.Run("RowTooLargeAfterRestart", func(t *testing.T) {
		cur := newFakeCursor(1, []any{"a"}, []any{strings.Repeat("x", 40)})
		w, _ := NewResultWindow(40)
		_, err := FillWindow(context.Background(), cur, w, 0, 1, false)
		if !IsError(err, ErrExec) {
			t.Fatalf("Expected exec error for oversized row, got %v", err)
		}
	})

	t.Run("StepError", func(t *testing.T) {
		cause := errors.New("disk I/O error")
		cur := newFakeCursor(2, intRows(5)...)
		cur.failAt, cur.failErr = 2, cause
		w, _ := NewResultWindow(1024)
		_, err := FillWindow(context.Background(), cur, w, 0, 0, true)
		if !errors.Is(err, cause) {
			t.Fatalf("Expected step error, got %v", err)
		}
		if cur.resets != 1 {
			t.Errorf("Expected cursor reset, got %d resets", cur.resets)
		}
	})
}

// TestFillWindowBusy tests that busy and locked steps are retried up to the limit.
func TestFillWindowBusy(t *testing.T) {
	t.Run("Transient", func(t *testing.T) {
		cur := newFakeCursor(2, intRows(3)...)
		cur.busyBefore[1] = 3
		w, _ := NewResultWindow(1024)
		res, err := testFiller(5).fill(context.Background(), cur, w, 0, 0, true)
		if err != nil {
			t.Fatalf("Fill failed: %v", err)
		}
		if res.TotalRows != 3 {
			t.Errorf("Expected 3 rows, got %d", res.TotalRows)
		}
		if cur.steps != 4+3 {
			t.Errorf("Expected 7 steps, got %d", cur.steps)
		}
	})

	tests := []struct {
		name   string
		locked bool
		code   int
	}{
		{"Busy", false, codeBusy},
		{"Locked", true, codeLocked},
	}
	for _, tt := range tests {
		t.Run(tt.name+"Exceeded", func(t *testing.T) {
			cur := newFakeCursor(2, intRows(3)...)
			cur.busyBefore[0] = 100
			cur.locked = tt.locked
			w, _ := NewResultWindow(1024)

			_, err := testFiller(3).fill(context.Background(), cur, w, 0, 0, true)
			if !IsError(err, ErrBusyRetryExceeded) {
				t.Fatalf("Expected busy retry error, got %v", err)
			}
			var sqlErr *Error
			if errors.As(err, &sqlErr) && sqlErr.Code != tt.code {
				t.Errorf("Expected code %d, got %d", tt.code, sqlErr.Code)
			}
			if cur.steps != 4 {
				t.Errorf("Expected 4 attempts, got %d", cur.steps)
			}
		})
	}
}

// TestFillWindowCanceled tests that a done context stops busy retries.
func TestFillWindowCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cur := newFakeCursor(2, intRows(3)...)
	cur.busyBefore[0] = 100
	w, _ := NewResultWindow(1024)

	_, err := FillWindow(ctx, cur, w, 0, 0, true)
	if !IsError(err, ErrCanceled) {
		t.Fatalf("Expected canceled error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected error to wrap context.Canceled, got %v", err)
	}
}

// TestFillWindowVerbose tests that verbose fills log restarts and a summary.
func TestFillWindowVerbose(t *testing.T) {
	var buf bytes.Buffer
	f := &windowFiller{
		retry:   defaultBusyRetry,
		logger:  slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		verbose: true,
	}
	w, _ := NewResultWindow(3 * twoIntRowSize)
	if _, err := f.fill(context.Background(), newFakeCursor(2, intRows(5)...), w, 0, 4, true); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"restarting window", "filled window", "totalRows=5"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log to contain %q, got %s", want, out)
		}
	}
}

func TestFillResultPacked(t *testing.T) {
	tests := []FillResult{
		{StartPos: 0, TotalRows: 0},
		{StartPos: 3, TotalRows: 5},
		{StartPos: 1 << 20, TotalRows: 1<<31 + 7},
	}
	for _, r := range tests {
		packed := r.Packed()
		if want := int64(uint64(r.StartPos)<<32 | uint64(r.TotalRows)); packed != want {
			t.Errorf("%+v: expected %#x, got %#x", r, want, packed)
		}
		if got := UnpackFillResult(packed); got != r {
			t.Errorf("Expected %+v, got %+v", r, got)
		}
	}
}
