package sqliter

import (
	"sync"
	"sync/atomic"
)

// maxPooledWindowSize bounds the capacity of windows kept for reuse.
const maxPooledWindowSize = 16 << 20

// WindowPool recycles ResultWindow arenas of the same capacity
type WindowPool struct {
	// Mutex for the per-capacity pool map
	mu sync.Mutex

	// One sync.Pool per window capacity
	pools map[int]*sync.Pool

	// Statistics for monitoring and tuning - uses atomic operations for thread safety
	gets     uint64
	puts     uint64
	misses   uint64
	discards uint64
}

// NewWindowPool creates an empty window pool
func NewWindowPool() *WindowPool {
	return &WindowPool{pools: make(map[int]*sync.Pool)}
}

func (p *WindowPool) poolFor(capacity int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sp, ok := p.pools[capacity]
	if !ok {
		sp = &sync.Pool{
			New: func() interface{} {
				// Allocate a new arena when the pool is empty
				atomic.AddUint64(&p.misses, 1)
				return make([]byte, capacity)
			},
		}
		p.pools[capacity] = sp
	}
	return sp
}

// Get returns an empty window of the given capacity. Close hands it back.
func (p *WindowPool) Get(capacity int) (*ResultWindow, error) {
	if capacity <= 0 || capacity > maxPooledWindowSize {
		// Out of range capacities are never pooled
		w, err := NewResultWindow(capacity)
		if err != nil {
			return nil, err
		}
		atomic.AddUint64(&p.gets, 1)
		atomic.AddUint64(&p.misses, 1)
		w.pool = p
		return w, nil
	}

	atomic.AddUint64(&p.gets, 1)
	data := p.poolFor(capacity).Get().([]byte)
	return &ResultWindow{data: data, pool: p}, nil
}

// put returns a window's arena to the pool
func (p *WindowPool) put(w *ResultWindow) {
	if w.data == nil {
		return
	}
	atomic.AddUint64(&p.puts, 1)

	capacity := len(w.data)
	if capacity > maxPooledWindowSize {
		// Too large to keep around, let the GC have it
		atomic.AddUint64(&p.discards, 1)
	} else {
		p.poolFor(capacity).Put(w.data)
	}

	// Detach the arena so a stale window can't write into a reused one
	w.data = nil
	w.rows = nil
	w.ends = nil
	w.freeOffset = 0
	w.numColumns = 0
	w.pool = nil
}

// Stats returns statistics about the window pool
func (p *WindowPool) Stats() map[string]uint64 {
	return map[string]uint64{
		"gets":     atomic.LoadUint64(&p.gets),
		"puts":     atomic.LoadUint64(&p.puts),
		"misses":   atomic.LoadUint64(&p.misses),
		"discards": atomic.LoadUint64(&p.discards),
	}
}

// Global window pool for shared use
var defaultWindowPool = NewWindowPool()

// AcquireWindow gets a window from the global pool. Close returns it.
func AcquireWindow(capacity int) (*ResultWindow, error) {
	return defaultWindowPool.Get(capacity)
}
