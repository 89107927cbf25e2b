package sqliter

import "sync/atomic"

const (
	tokenLive uint32 = iota
	tokenMoved
	tokenDisposed
)

// Token owns one foreign value, such as a compiled statement, until it is
// disposed. Exactly one token owns a value at a time: Move hands ownership
// to a new token and leaves the old one empty. Dispose runs the release
// hook exactly once, no matter how many goroutines race to call it.
type Token[T any] struct {
	value   T
	release func(T)
	state   atomic.Uint32
}

// NewToken wraps value. release may be nil when nothing has to happen on disposal.
func NewToken[T any](value T, release func(T)) *Token[T] {
	return &Token[T]{value: value, release: release}
}

// Value returns the owned value. ok is false once the token was moved or disposed.
func (t *Token[T]) Value() (v T, ok bool) {
	if t == nil || t.state.Load() != tokenLive {
		return v, false
	}
	return t.value, true
}

// Live reports whether the token still owns its value.
func (t *Token[T]) Live() bool {
	return t != nil && t.state.Load() == tokenLive
}

// Move transfers ownership to a new token. It returns nil if t no longer owns anything.
func (t *Token[T]) Move() *Token[T] {
	if t == nil || !t.state.CompareAndSwap(tokenLive, tokenMoved) {
		return nil
	}
	return &Token[T]{value: t.value, release: t.release}
}

// Dispose releases the value. It reports false if the token was already
// moved or disposed, in which case nothing is run.
func (t *Token[T]) Dispose() bool {
	if t == nil || !t.state.CompareAndSwap(tokenLive, tokenDisposed) {
		return false
	}
	if t.release != nil {
		t.release(t.value)
	}
	return true
}
