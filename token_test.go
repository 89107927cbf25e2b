package sqliter

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestToken(t *testing.T) {
	t.Run("Dispose", func(t *testing.T) {
		var released []int
		tok := NewToken(7, func(v int) { released = append(released, v) })

		if v, ok := tok.Value(); !ok || v != 7 {
			t.Fatalf("Expected live value 7, got %v, %v", v, ok)
		}
		if !tok.Dispose() {
			t.Fatal("Expected first Dispose to report true")
		}
		if tok.Dispose() {
			t.Error("Expected second Dispose to report false")
		}
		if len(released) != 1 || released[0] != 7 {
			t.Errorf("Expected one release of 7, got %v", released)
		}
		if _, ok := tok.Value(); ok {
			t.Error("Expected Value to fail after Dispose")
		}
	})

	t.Run("Move", func(t *testing.T) {
		var released int
		src := NewToken("stmt", func(string) { released++ })

		dst := src.Move()
		if dst == nil {
			t.Fatal("Expected Move to return a token")
		}
		if src.Live() {
			t.Error("Expected the source to be empty after Move")
		}
		if src.Move() != nil {
			t.Error("Expected a second Move to return nil")
		}
		if src.Dispose() {
			t.Error("Expected Dispose of a moved-from token to do nothing")
		}
		if v, ok := dst.Value(); !ok || v != "stmt" {
			t.Errorf("Expected moved value, got %q, %v", v, ok)
		}
		dst.Dispose()
		if released != 1 {
			t.Errorf("Expected one release, got %d", released)
		}
	})

	t.Run("Nil", func(t *testing.T) {
		var tok *Token[int]
		if tok.Live() || tok.Dispose() || tok.Move() != nil {
			t.Error("Expected a nil token to be empty")
		}
		if _, ok := tok.Value(); ok {
			t.Error("Expected no value from a nil token")
		}
	})

	t.Run("NilRelease", func(t *testing.T) {
		tok := NewToken(1, nil)
		if !tok.Dispose() {
			t.Error("Expected Dispose without a release hook to succeed")
		}
	})
}

// TestTokenDisposeRace tests that racing Dispose calls release exactly once
func TestTokenDisposeRace(t *testing.T) {
	const numGoroutines = 64

	for i := 0; i < 100; i++ {
		var released atomic.Int32
		tok := NewToken(i, func(int) { released.Add(1) })

		var wg sync.WaitGroup
		for g := 0; g < numGoroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tok.Dispose()
			}()
		}
		wg.Wait()

		if n := released.Load(); n != 1 {
			t.Fatalf("Round %d: expected 1 release, got %d", i, n)
		}
	}
}
