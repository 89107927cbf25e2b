package sqliter

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// dataStore is the per-connection state kept by a Registry.
type dataStore struct {
	id          int
	conn        Conn
	stmts       *StatementCache
	transaction *Token[*Transaction]
	config      *Token[*Config]
}

// Registry is the directory of per-connection state, addressed by data store
// id: the engine connection, its statement cache, and single slots for the
// active transaction and configuration. It also holds an independent map of
// helper objects with its own id space.
//
// Every operation runs under one lock. Operations on an unknown id do
// nothing. Statements that leave a cache, for any reason, are finalized
// through the data store's connection exactly once before the operation
// returns.
type Registry struct {
	mu            sync.Mutex
	stores        map[int]*dataStore
	helpers       map[int]*Token[any]
	lastDataID    int
	lastHelperID  int
	logger        *slog.Logger
	finalizeCount atomic.Int64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for finalize failures.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		stores:  make(map[int]*dataStore),
		helpers: make(map[int]*Token[any]),
		logger:  discardLogger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry atomic.Pointer[Registry]

// DefaultRegistry returns the process-wide registry, creating it on first
// use. Concurrent first calls all get the same instance.
func DefaultRegistry() *Registry {
	if r := defaultRegistry.Load(); r != nil {
		return r
	}
	candidate := NewRegistry()
	if defaultRegistry.CompareAndSwap(nil, candidate) {
		return candidate
	}
	return defaultRegistry.Load()
}

// NextDataID returns a fresh data store id. Ids start at 1 and are never reused.
func (r *Registry) NextDataID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastDataID++
	return r.lastDataID
}

// CreateDataStore allocates the state for id with a statement cache of the
// given capacity. An existing data store with the same id is torn down first.
func (r *Registry) CreateDataStore(id, cacheCapacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.stores[id]; ok {
		r.logger.Warn("data store id reused, removing previous state", "id", id)
		r.teardown(old)
	}
	r.stores[id] = &dataStore{id: id, stmts: NewStatementCache(cacheCapacity)}
}

// RemoveDataStore finalizes every cached statement of id, disposes its
// transaction and config, and forgets it.
func (r *Registry) RemoveDataStore(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok {
		return
	}
	r.teardown(ds)
	delete(r.stores, id)
}

func (r *Registry) teardown(ds *dataStore) {
	for _, ref := range ds.stmts.EvictAll() {
		ref.Dispose()
	}
	ds.transaction.Dispose()
	ds.transaction = nil
	ds.config.Dispose()
	ds.config = nil
}

// HasDataStore reports whether id is registered.
func (r *Registry) HasDataStore(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stores[id]
	return ok
}

// Len returns the number of registered data stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// PutConnectionPtr records the engine connection of id.
func (r *Registry) PutConnectionPtr(id int, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ds, ok := r.stores[id]; ok {
		ds.conn = conn
	}
}

// GetConnectionPtr returns the engine connection of id, or nil if id is
// unknown or has none yet.
func (r *Registry) GetConnectionPtr(id int) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ds, ok := r.stores[id]; ok {
		return ds.conn
	}
	return nil
}

// finalizer returns the release hook for statements of ds. It resolves the
// connection when it runs, which is always under r.mu.
func (r *Registry) finalizer(ds *dataStore) func(Stmt) {
	return func(stmt Stmt) {
		r.finalizeCount.Add(1)
		if ds.conn == nil {
			r.logger.Warn("cannot finalize statement without a connection", "id", ds.id, "sql", stmt.SQL())
			return
		}
		if err := ds.conn.Finalize(stmt); err != nil {
			r.logger.Warn("finalize failed", "id", ds.id, "sql", stmt.SQL(), "error", err)
		}
	}
}

// PutStmt caches stmt for sql in id's statement cache, finalizing whatever
// it displaces. It returns false, leaving stmt to the caller, if id is unknown.
func (r *Registry) PutStmt(id int, sql string, stmt Stmt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok {
		return false
	}
	if ref, ok := ds.stmts.Get(sql); ok {
		if cur, _ := ref.Value(); cur == stmt {
			return true
		}
	}
	for _, ref := range ds.stmts.Put(sql, NewToken(stmt, r.finalizer(ds))) {
		ref.Dispose()
	}
	return true
}

// GetStmt returns the statement cached for sql and marks it most recently used.
func (r *Registry) GetStmt(id int, sql string) (Stmt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok {
		return nil, false
	}
	ref, ok := ds.stmts.Get(sql)
	if !ok {
		return nil, false
	}
	return ref.Value()
}

// HasStmt reports whether sql is cached for id, without changing its recency.
func (r *Registry) HasStmt(id int, sql string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	return ok && ds.stmts.Contains(sql)
}

// RemoveStmt drops and finalizes the statement cached for sql.
func (r *Registry) RemoveStmt(id int, sql string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok {
		return
	}
	if ref, ok := ds.stmts.Remove(sql); ok {
		ref.Dispose()
	}
}

// EvictAllStmts finalizes and drops every statement cached for id.
func (r *Registry) EvictAllStmts(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok {
		return
	}
	for _, ref := range ds.stmts.EvictAll() {
		ref.Dispose()
	}
}

// CachedStmts returns the SQL cached for id, least recently used first.
func (r *Registry) CachedStmts(id int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok {
		return nil
	}
	return ds.stmts.Keys()
}

// Finalized returns how many statements this registry has finalized.
func (r *Registry) Finalized() int64 {
	return r.finalizeCount.Load()
}

// PutTransaction takes ownership of ref as id's active transaction,
// disposing the previous one. It returns false, leaving ref untouched, if id
// is unknown or ref no longer owns a value.
func (r *Registry) PutTransaction(id int, ref *Token[*Transaction]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok || !ref.Live() {
		return false
	}
	old := ds.transaction
	ds.transaction = ref.Move()
	old.Dispose()
	return true
}

// GetTransaction returns id's active transaction.
func (r *Registry) GetTransaction(id int) (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok {
		return nil, false
	}
	return ds.transaction.Value()
}

// RemoveTransaction disposes id's active transaction.
func (r *Registry) RemoveTransaction(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ds, ok := r.stores[id]; ok {
		ds.transaction.Dispose()
		ds.transaction = nil
	}
}

// PutDbConfig takes ownership of ref as id's configuration, disposing the
// previous one. It follows the same rules as PutTransaction.
func (r *Registry) PutDbConfig(id int, ref *Token[*Config]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok || !ref.Live() {
		return false
	}
	old := ds.config
	ds.config = ref.Move()
	old.Dispose()
	return true
}

// GetDbConfig returns id's configuration.
func (r *Registry) GetDbConfig(id int) (*Config, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.stores[id]
	if !ok {
		return nil, false
	}
	return ds.config.Value()
}

// RemoveDbConfig disposes id's configuration.
func (r *Registry) RemoveDbConfig(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ds, ok := r.stores[id]; ok {
		ds.config.Dispose()
		ds.config = nil
	}
}

// NextHelperInfoID returns a fresh helper id. Helper ids are independent of data store ids.
func (r *Registry) NextHelperInfoID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHelperID++
	return r.lastHelperID
}

// PutHelperInfo takes ownership of ref under id, disposing any previous
// value. A nil or empty ref just removes the entry.
func (r *Registry) PutHelperInfo(id int, ref *Token[any]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.helpers[id]; ok {
		old.Dispose()
		delete(r.helpers, id)
	}
	if moved := ref.Move(); moved != nil {
		r.helpers[id] = moved
	}
}

// GetHelperInfo returns the helper value stored under id.
func (r *Registry) GetHelperInfo(id int) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.helpers[id].Value()
}
