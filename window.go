package sqliter

import (
	"fmt"
	"math"
)

// DefaultWindowSize is the capacity used for windows created without an
// explicit size.
const DefaultWindowSize = 2 << 20

// rowSlotSize is what each row's directory entry costs against capacity.
const rowSlotSize = 4

// ResultWindow is a fixed-capacity arena holding a grid of FieldSlots for one
// batch of query results.
//
// Rows are append-only within a generation. AllocRow reserves one zeroed
// slot per column, and string and blob data is appended after it. Data may
// be written to any allocated row, so freeing the last row rewinds the free
// offset only as far as the highest byte a surviving row still uses. A
// ResultWindow is not safe for concurrent use.
type ResultWindow struct {
	data       []byte
	freeOffset int
	rows       []uint32 // start offset of each row's slots
	ends       []uint32 // end of the last byte written for each row
	numColumns int
	pool       *WindowPool
}

// NewResultWindow creates a window able to hold capacity bytes of rows.
func NewResultWindow(capacity int) (*ResultWindow, error) {
	if capacity <= 0 || int64(capacity) > math.MaxUint32 {
		return nil, NewError(ErrRange, fmt.Sprintf("invalid window capacity %d", capacity))
	}
	return &ResultWindow{data: make([]byte, capacity)}, nil
}

// Close releases the window. A window obtained from a WindowPool goes back
// to its pool; it must not be used afterwards.
func (w *ResultWindow) Close() {
	if w.pool != nil {
		w.pool.put(w)
	}
}

// Capacity returns the fixed size of the window in bytes.
func (w *ResultWindow) Capacity() int {
	return len(w.data)
}

// UsedBytes returns the bytes committed to rows and their directory entries.
func (w *ResultWindow) UsedBytes() int {
	return w.freeOffset + len(w.rows)*rowSlotSize
}

// FreeSpace returns the bytes still available.
func (w *ResultWindow) FreeSpace() int {
	return len(w.data) - w.UsedBytes()
}

// NumRows returns the number of rows allocated in the current generation.
func (w *ResultWindow) NumRows() int {
	return len(w.rows)
}

// NumColumns returns the column count of the current generation.
func (w *ResultWindow) NumColumns() int {
	return w.numColumns
}

// Clear empties the window and resets it to zero columns, keeping its capacity.
func (w *ResultWindow) Clear() {
	w.rows = w.rows[:0]
	w.ends = w.ends[:0]
	w.freeOffset = 0
	w.numColumns = 0
}

// SetNumColumns fixes the column count for the current generation. It fails
// once rows exist with a different count.
func (w *ResultWindow) SetNumColumns(n int) error {
	if n < 0 {
		return NewError(ErrRange, fmt.Sprintf("invalid column count %d", n))
	}
	if len(w.rows) > 0 && n != w.numColumns {
		return NewError(ErrGeneric, fmt.Sprintf(
			"cannot change column count from %d to %d with %d rows in the window", w.numColumns, n, len(w.rows)))
	}
	w.numColumns = n
	return nil
}

// AllocRow reserves a row of NULL slots. It fails with ErrWindowFull, leaving
// the window unchanged, when the row does not fit.
func (w *ResultWindow) AllocRow() error {
	size := w.numColumns * fieldSlotSize
	if size+rowSlotSize > w.FreeSpace() {
		return NewError(ErrWindowFull, fmt.Sprintf(
			"window full: row needs %d bytes, %d free", size+rowSlotSize, w.FreeSpace()))
	}
	clear(w.data[w.freeOffset : w.freeOffset+size])
	w.rows = append(w.rows, uint32(w.freeOffset))
	w.freeOffset += size
	w.ends = append(w.ends, uint32(w.freeOffset))
	return nil
}

// FreeLastRow releases the most recently allocated row. Space is reclaimed
// down to the end of the data still referenced by the remaining rows.
func (w *ResultWindow) FreeLastRow() {
	if len(w.rows) == 0 {
		return
	}
	last := len(w.rows) - 1
	w.rows = w.rows[:last]
	w.ends = w.ends[:last]
	w.freeOffset = 0
	for _, end := range w.ends {
		w.freeOffset = max(w.freeOffset, int(end))
	}
}

// slot returns the encoded slot at row, col.
func (w *ResultWindow) slot(row, col int) ([]byte, error) {
	if row < 0 || row >= len(w.rows) || col < 0 || col >= w.numColumns {
		return nil, NewError(ErrRange, fmt.Sprintf(
			"couldn't read row %d, col %d from window with %d rows, %d columns", row, col, len(w.rows), w.numColumns))
	}
	off := int(w.rows[row]) + col*fieldSlotSize
	return w.data[off : off+fieldSlotSize], nil
}

// alloc appends n bytes of cell data for row and returns their offset.
func (w *ResultWindow) alloc(row, n int) (int, error) {
	if n > w.FreeSpace() {
		return 0, NewError(ErrWindowFull, fmt.Sprintf("window full: value needs %d bytes, %d free", n, w.FreeSpace()))
	}
	off := w.freeOffset
	w.freeOffset += n
	w.ends[row] = uint32(w.freeOffset)
	return off, nil
}

// PutNull stores NULL at row, col.
func (w *ResultWindow) PutNull(row, col int) error {
	b, err := w.slot(row, col)
	if err != nil {
		return err
	}
	encodeSlotNull(b)
	return nil
}

// PutLong stores an integer at row, col.
func (w *ResultWindow) PutLong(row, col int, v int64) error {
	b, err := w.slot(row, col)
	if err != nil {
		return err
	}
	encodeSlotInt(b, v)
	return nil
}

// PutDouble stores a float at row, col.
func (w *ResultWindow) PutDouble(row, col int, v float64) error {
	b, err := w.slot(row, col)
	if err != nil {
		return err
	}
	encodeSlotFloat(b, v)
	return nil
}

// PutString stores s at row, col followed by a terminating zero byte.
// On ErrWindowFull the caller must roll back with FreeLastRow.
func (w *ResultWindow) PutString(row, col int, s string) error {
	if _, err := w.slot(row, col); err != nil {
		return err
	}
	off, err := w.alloc(row, len(s)+1)
	if err != nil {
		return err
	}
	copy(w.data[off:], s)
	w.data[off+len(s)] = 0
	b, _ := w.slot(row, col)
	encodeSlotData(b, FieldString, uint32(off), uint32(len(s)+1))
	return nil
}

// PutBlob stores a copy of v at row, col.
// On ErrWindowFull the caller must roll back with FreeLastRow.
func (w *ResultWindow) PutBlob(row, col int, v []byte) error {
	if _, err := w.slot(row, col); err != nil {
		return err
	}
	off, err := w.alloc(row, len(v))
	if err != nil {
		return err
	}
	copy(w.data[off:], v)
	b, _ := w.slot(row, col)
	encodeSlotData(b, FieldBlob, uint32(off), uint32(len(v)))
	return nil
}

// Type returns the type of the cell at row, col. Cells outside the window
// report FieldNull.
func (w *ResultWindow) Type(row, col int) FieldType {
	b, err := w.slot(row, col)
	if err != nil {
		return FieldNull
	}
	return slotType(b)
}

// Slot decodes the cell at row, col. String and blob bytes alias the window
// and are only valid until the window is cleared or written.
func (w *ResultWindow) Slot(row, col int) (FieldSlot, error) {
	b, err := w.slot(row, col)
	if err != nil {
		return FieldSlot{}, err
	}
	return decodeSlot(b, w.data), nil
}

// Row returns a copy of every cell of row.
func (w *ResultWindow) Row(row int) ([]FieldSlot, error) {
	out := make([]FieldSlot, w.numColumns)
	for col := range out {
		s, err := w.Slot(row, col)
		if err != nil {
			return nil, err
		}
		if s.Bytes != nil {
			s.Bytes = append([]byte(nil), s.Bytes...)
		}
		out[col] = s
	}
	return out, nil
}

// Long reads the cell at row, col as an integer.
func (w *ResultWindow) Long(row, col int) (int64, error) {
	s, err := w.Slot(row, col)
	if err != nil {
		return 0, err
	}
	return s.Int64()
}

// Double reads the cell at row, col as a float.
func (w *ResultWindow) Double(row, col int) (float64, error) {
	s, err := w.Slot(row, col)
	if err != nil {
		return 0, err
	}
	return s.Float64()
}

// String reads the cell at row, col as text. NULL reads as "".
func (w *ResultWindow) String(row, col int) (string, error) {
	s, err := w.Slot(row, col)
	if err != nil {
		return "", err
	}
	text, _, err := s.Text()
	return text, err
}

// Blob reads the cell at row, col as bytes. NULL reads as nil.
func (w *ResultWindow) Blob(row, col int) ([]byte, error) {
	s, err := w.Slot(row, col)
	if err != nil {
		return nil, err
	}
	return s.Blob()
}

// IsNull reports whether the cell at row, col is NULL.
func (w *ResultWindow) IsNull(row, col int) bool {
	return w.Type(row, col) == FieldNull
}
