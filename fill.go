package sqliter

import (
	"context"
	"fmt"
	"log/slog"
)

// FillResult reports where a filled window starts and how many rows the
// cursor produced in total.
type FillResult struct {
	// StartPos is the cursor position of the window's first row.
	StartPos int
	// TotalRows counts the rows stepped over, copied or not.
	TotalRows int
}

// Packed returns StartPos in the high 32 bits and TotalRows in the low 32 bits.
func (r FillResult) Packed() int64 {
	return int64(uint64(uint32(r.StartPos))<<32 | uint64(uint32(r.TotalRows)))
}

// UnpackFillResult reverses FillResult.Packed.
func UnpackFillResult(v int64) FillResult {
	return FillResult{StartPos: int(uint32(uint64(v) >> 32)), TotalRows: int(uint32(v))}
}

type copyStatus int

const (
	copyOK copyStatus = iota
	copyFull
	copyFailed
)

// windowFiller copies cursor rows into a ResultWindow.
type windowFiller struct {
	retry   busyRetry
	logger  *slog.Logger
	verbose bool
}

// FillWindow steps cur from its first row and copies rows from startPos on
// into w, which is cleared first.
//
// If the window overflows before the row at requiredPos was copied, the
// window is cleared and refilled starting at the row that did not fit, so
// that requiredPos is present afterwards whenever it fits at all. Once the
// window is full the remaining rows are only counted when countAllRows is
// set. cur is reset before FillWindow returns.
func FillWindow(ctx context.Context, cur Cursor, w *ResultWindow, startPos, requiredPos int, countAllRows bool) (FillResult, error) {
	f := windowFiller{retry: defaultBusyRetry}
	return f.fill(ctx, cur, w, startPos, requiredPos, countAllRows)
}

func (f *windowFiller) fill(ctx context.Context, cur Cursor, w *ResultWindow, startPos, requiredPos int, countAllRows bool) (FillResult, error) {
	defer cur.Reset()

	w.Clear()
	numColumns := cur.ColumnCount()
	if err := w.SetNumColumns(numColumns); err != nil {
		return FillResult{}, err
	}

	var (
		totalRows  int
		addedRows  int
		windowFull bool
	)
	for !windowFull || countAllRows {
		res, err := f.retry.step(ctx, cur)
		if err != nil {
			return FillResult{}, err
		}
		if res == StepDone {
			break
		}

		// Skip rows before the window and, once full, everything after it
		totalRows++
		if startPos >= totalRows || windowFull {
			continue
		}

		status, err := copyRow(w, cur, numColumns, startPos, addedRows)
		if status == copyFull && addedRows > 0 && startPos+addedRows <= requiredPos {
			// The required row would be lost; restart the window at this row
			w.Clear()
			if err := w.SetNumColumns(numColumns); err != nil {
				return FillResult{}, err
			}
			startPos += addedRows
			addedRows = 0
			if f.verbose {
				f.log().Debug("restarting window", "startPos", startPos, "requiredPos", requiredPos)
			}
			status, err = copyRow(w, cur, numColumns, startPos, addedRows)
		}

		switch status {
		case copyOK:
			addedRows++
		case copyFull:
			if addedRows == 0 {
				return FillResult{}, NewError(ErrExec, fmt.Sprintf(
					"row %d does not fit in an empty window of %d bytes", startPos, w.Capacity()))
			}
			windowFull = true
		case copyFailed:
			return FillResult{}, err
		}
	}

	if f.verbose {
		f.log().Debug("filled window",
			"startPos", startPos, "addedRows", addedRows, "totalRows", totalRows,
			"windowFull", windowFull, "freeSpace", w.FreeSpace())
	}
	return FillResult{StartPos: startPos, TotalRows: totalRows}, nil
}

func (f *windowFiller) log() *slog.Logger {
	if f.logger == nil {
		return discardLogger
	}
	return f.logger
}

// copyRow appends the cursor's current row to w. A row that does not fit or
// fails is freed again, leaving w as it was.
func copyRow(w *ResultWindow, cur Cursor, numColumns, startPos, addedRows int) (copyStatus, error) {
	if err := w.AllocRow(); err != nil {
		return copyFull, err
	}

	row := w.NumRows() - 1
	for col := 0; col < numColumns; col++ {
		var err error
		switch typ := cur.ColumnType(col); typ {
		case ColumnText:
			err = w.PutString(row, col, cur.ColumnText(col))
		case ColumnInteger:
			err = w.PutLong(row, col, cur.ColumnInt64(col))
		case ColumnFloat:
			err = w.PutDouble(row, col, cur.ColumnDouble(col))
		case ColumnBlob:
			err = w.PutBlob(row, col, cur.ColumnBlob(col))
		case ColumnNull:
			err = w.PutNull(row, col)
		default:
			w.FreeLastRow()
			return copyFailed, NewError(ErrUnknownColumnType, fmt.Sprintf(
				"unknown column type %d when filling window row %d, col %d", int(typ), startPos+addedRows, col))
		}
		if err != nil {
			w.FreeLastRow()
			if IsError(err, ErrWindowFull) {
				return copyFull, err
			}
			return copyFailed, err
		}
	}
	return copyOK, nil
}
