package sqliter

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// FieldType is the type tag of a FieldSlot.
type FieldType uint32

const (
	FieldNull FieldType = iota
	FieldInteger
	FieldFloat
	FieldString
	FieldBlob
)

func (t FieldType) String() string {
	switch t {
	case FieldNull:
		return "NULL"
	case FieldInteger:
		return "INTEGER"
	case FieldFloat:
		return "FLOAT"
	case FieldString:
		return "STRING"
	case FieldBlob:
		return "BLOB"
	default:
		return fmt.Sprintf("FieldType(%d)", uint32(t))
	}
}

// FieldSlot is one typed cell of a ResultWindow.
//
// For FieldString, Bytes holds the text without its terminator; the window
// stores and accounts for one extra terminating byte.
type FieldSlot struct {
	Type  FieldType
	Int   int64
	Float float64
	Bytes []byte
}

// NullSlot returns a NULL cell.
func NullSlot() FieldSlot { return FieldSlot{Type: FieldNull} }

// IntegerSlot returns an INTEGER cell.
func IntegerSlot(v int64) FieldSlot { return FieldSlot{Type: FieldInteger, Int: v} }

// FloatSlot returns a FLOAT cell.
func FloatSlot(v float64) FieldSlot { return FieldSlot{Type: FieldFloat, Float: v} }

// StringSlot returns a STRING cell.
func StringSlot(s string) FieldSlot { return FieldSlot{Type: FieldString, Bytes: []byte(s)} }

// BlobSlot returns a BLOB cell.
func BlobSlot(b []byte) FieldSlot { return FieldSlot{Type: FieldBlob, Bytes: b} }

// Int64 reads the cell as an integer. Floats are truncated toward zero,
// strings are parsed from their leading digits and NULL reads as 0.
func (s FieldSlot) Int64() (int64, error) {
	switch s.Type {
	case FieldInteger:
		return s.Int, nil
	case FieldFloat:
		return floatToInt64(s.Float), nil
	case FieldString:
		return parseIntPrefix(string(s.Bytes)), nil
	case FieldNull:
		return 0, nil
	case FieldBlob:
		return 0, NewError(ErrTypeMismatch, "unable to convert BLOB to long")
	default:
		return 0, unknownFieldType(s.Type)
	}
}

// Float64 reads the cell as a float. Strings are parsed from their leading
// number and NULL reads as 0.
func (s FieldSlot) Float64() (float64, error) {
	switch s.Type {
	case FieldFloat:
		return s.Float, nil
	case FieldInteger:
		return float64(s.Int), nil
	case FieldString:
		return parseFloatPrefix(string(s.Bytes)), nil
	case FieldNull:
		return 0, nil
	case FieldBlob:
		return 0, NewError(ErrTypeMismatch, "unable to convert BLOB to double")
	default:
		return 0, unknownFieldType(s.Type)
	}
}

// Text reads the cell as text. ok is false for NULL.
func (s FieldSlot) Text() (text string, ok bool, err error) {
	switch s.Type {
	case FieldString:
		return string(s.Bytes), true, nil
	case FieldInteger:
		return strconv.FormatInt(s.Int, 10), true, nil
	case FieldFloat:
		return formatFloat(s.Float), true, nil
	case FieldNull:
		return "", false, nil
	case FieldBlob:
		return "", false, NewError(ErrTypeMismatch, "unable to convert BLOB to string")
	default:
		return "", false, unknownFieldType(s.Type)
	}
}

// Blob reads the cell as bytes. Strings are returned without their
// terminator and NULL reads as nil.
func (s FieldSlot) Blob() ([]byte, error) {
	switch s.Type {
	case FieldBlob, FieldString:
		out := make([]byte, len(s.Bytes))
		copy(out, s.Bytes)
		return out, nil
	case FieldNull:
		return nil, nil
	case FieldInteger, FieldFloat:
		return nil, NewError(ErrTypeMismatch, fmt.Sprintf("unable to convert %s to blob", s.Type))
	default:
		return nil, unknownFieldType(s.Type)
	}
}

// String formats the cell for display.
func (s FieldSlot) String() string {
	switch s.Type {
	case FieldNull:
		return "NULL"
	case FieldBlob:
		return fmt.Sprintf("x'%X'", s.Bytes)
	default:
		text, _, _ := s.Text()
		return text
	}
}

func unknownFieldType(t FieldType) error {
	return NewError(ErrUnknownColumnType, fmt.Sprintf("unknown field type %d", uint32(t)))
}

// Encoded slot layout, little endian:
//
//	[0:4]   type tag
//	[4:8]   unused
//	[8:16]  int64, float64 bits, or (offset uint32, size uint32) of the data
const fieldSlotSize = 16

func encodeSlotHeader(b []byte, t FieldType) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(t))
	binary.LittleEndian.PutUint32(b[4:8], 0)
}

func encodeSlotInt(b []byte, v int64) {
	encodeSlotHeader(b, FieldInteger)
	binary.LittleEndian.PutUint64(b[8:16], uint64(v))
}

func encodeSlotFloat(b []byte, v float64) {
	encodeSlotHeader(b, FieldFloat)
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(v))
}

func encodeSlotData(b []byte, t FieldType, offset, size uint32) {
	encodeSlotHeader(b, t)
	binary.LittleEndian.PutUint32(b[8:12], offset)
	binary.LittleEndian.PutUint32(b[12:16], size)
}

func encodeSlotNull(b []byte) {
	clear(b[:fieldSlotSize])
}

func slotType(b []byte) FieldType {
	return FieldType(binary.LittleEndian.Uint32(b[0:4]))
}

// decodeSlot decodes the slot at b. arena is the buffer data offsets refer
// to; the returned Bytes alias it.
func decodeSlot(b, arena []byte) FieldSlot {
	s := FieldSlot{Type: slotType(b)}
	switch s.Type {
	case FieldInteger:
		s.Int = int64(binary.LittleEndian.Uint64(b[8:16]))
	case FieldFloat:
		s.Float = math.Float64frombits(binary.LittleEndian.Uint64(b[8:16]))
	case FieldString, FieldBlob:
		offset := binary.LittleEndian.Uint32(b[8:12])
		size := binary.LittleEndian.Uint32(b[12:16])
		data := arena[offset : offset+size]
		if s.Type == FieldString && size > 0 {
			data = data[:size-1]
		}
		s.Bytes = data
	}
	return s
}
