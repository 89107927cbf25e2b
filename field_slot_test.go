package sqliter

import (
	"bytes"
	"math"
	"testing"
)

func TestFieldSlotCoercion(t *testing.T) {
	t.Run("Int64", func(t *testing.T) {
		tests := []struct {
			name string
			slot FieldSlot
			want int64
		}{
			{"integer", IntegerSlot(42), 42},
			{"float truncates", FloatSlot(-3.99), -3},
			{"float saturates", FloatSlot(1e30), math.MaxInt64},
			{"nan", FloatSlot(math.NaN()), 0},
			{"string", StringSlot("  123abc"), 123},
			{"negative string", StringSlot("-17"), -17},
			{"non-numeric string", StringSlot("abc"), 0},
			{"empty string", StringSlot(""), 0},
			{"huge string", StringSlot("99999999999999999999"), math.MaxInt64},
			{"null", NullSlot(), 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := tt.slot.Int64()
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("Expected %d, got %d", tt.want, got)
				}
			})
		}
	})

	t.Run("Float64", func(t *testing.T) {
		tests := []struct {
			name string
			slot FieldSlot
			want float64
		}{
			{"float", FloatSlot(2.5), 2.5},
			{"integer", IntegerSlot(7), 7},
			{"string", StringSlot("3.25xyz"), 3.25},
			{"exponent", StringSlot("1e3"), 1000},
			{"dangling exponent", StringSlot("2e"), 2},
			{"leading dot", StringSlot(".5"), 0.5},
			{"non-numeric string", StringSlot("x1"), 0},
			{"null", NullSlot(), 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := tt.slot.Float64()
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("Expected %g, got %g", tt.want, got)
				}
			})
		}

		if v, _ := StringSlot("-inf").Float64(); !math.IsInf(v, -1) {
			t.Errorf("Expected -Inf, got %g", v)
		}
	})

	t.Run("Text", func(t *testing.T) {
		tests := []struct {
			name   string
			slot   FieldSlot
			want   string
			wantOK bool
		}{
			{"string", StringSlot("hello"), "hello", true},
			{"integer", IntegerSlot(42), "42", true},
			{"negative integer", IntegerSlot(-5), "-5", true},
			{"float", FloatSlot(3.5), "3.5", true},
			{"float precision", FloatSlot(123456789), "1.23457e+08", true},
			{"small float", FloatSlot(0.0001), "0.0001", true},
			{"null", NullSlot(), "", false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, ok, err := tt.slot.Text()
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if got != tt.want || ok != tt.wantOK {
					t.Errorf("Expected %q, %v, got %q, %v", tt.want, tt.wantOK, got, ok)
				}
			})
		}
	})

	t.Run("Blob", func(t *testing.T) {
		b, err := BlobSlot([]byte{1, 2, 3}).Blob()
		if err != nil || !bytes.Equal(b, []byte{1, 2, 3}) {
			t.Errorf("Expected blob bytes, got %v, %v", b, err)
		}
		b, err = StringSlot("abc").Blob()
		if err != nil || string(b) != "abc" {
			t.Errorf("Expected string bytes without terminator, got %q, %v", b, err)
		}
		b, err = NullSlot().Blob()
		if err != nil || b != nil {
			t.Errorf("Expected nil for NULL, got %v, %v", b, err)
		}
		if _, err := IntegerSlot(1).Blob(); !IsError(err, ErrTypeMismatch) {
			t.Errorf("Expected type mismatch for integer as blob, got %v", err)
		}
	})

	t.Run("BlobMismatch", func(t *testing.T) {
		blob := BlobSlot([]byte{0xff})
		if _, err := blob.Int64(); !IsError(err, ErrTypeMismatch) {
			t.Errorf("Expected type mismatch for Int64, got %v", err)
		}
		if _, err := blob.Float64(); !IsError(err, ErrTypeMismatch) {
			t.Errorf("Expected type mismatch for Float64, got %v", err)
		}
		if _, _, err := blob.Text(); !IsError(err, ErrTypeMismatch) {
			t.Errorf("Expected type mismatch for Text, got %v", err)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		s := FieldSlot{Type: FieldType(9)}
		if _, err := s.Int64(); !IsError(err, ErrUnknownColumnType) {
			t.Errorf("Expected unknown type error, got %v", err)
		}
	})
}

func TestFieldSlotString(t *testing.T) {
	tests := []struct {
		slot FieldSlot
		want string
	}{
		{NullSlot(), "NULL"},
		{IntegerSlot(9), "9"},
		{FloatSlot(0.5), "0.5"},
		{StringSlot("x"), "x"},
		{BlobSlot([]byte{0xde, 0xad}), "x'DEAD'"},
	}
	for _, tt := range tests {
		if got := tt.slot.String(); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.slot.Type, tt.want, got)
		}
	}
}

func TestSlotEncoding(t *testing.T) {
	arena := make([]byte, 64)
	copy(arena[32:], "hi\x00")
	b := make([]byte, fieldSlotSize)

	encodeSlotInt(b, -2)
	if s := decodeSlot(b, arena); s.Type != FieldInteger || s.Int != -2 {
		t.Errorf("Expected integer -2, got %+v", s)
	}

	encodeSlotFloat(b, math.Pi)
	if s := decodeSlot(b, arena); s.Type != FieldFloat || s.Float != math.Pi {
		t.Errorf("Expected pi, got %+v", s)
	}

	encodeSlotData(b, FieldString, 32, 3)
	if s := decodeSlot(b, arena); s.Type != FieldString || string(s.Bytes) != "hi" {
		t.Errorf("Expected string hi, got %+v", s)
	}

	encodeSlotNull(b)
	if slotType(b) != FieldNull {
		t.Errorf("Expected NULL, got %s", slotType(b))
	}
}
