package sqliter

import (
	"io"
	"log/slog"
	"time"
)

// JournalMode selects the journal_mode pragma applied when a database is first opened.
type JournalMode string

const (
	JournalWAL    JournalMode = "WAL"
	JournalDelete JournalMode = "DELETE"
)

const (
	// DefaultBusyTimeout is how long the engine waits on a locked database file.
	DefaultBusyTimeout = 2500 * time.Millisecond
	// progressSteps is how many VM instructions pass between cancel checks.
	progressSteps = 4
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Config describes how a database is opened and maintained.
type Config struct {
	// Name is the database path, or a label when InMemory is set.
	Name string
	// Version is the schema version kept in PRAGMA user_version. Zero
	// disables migration.
	Version int
	// Create runs when the database has no schema yet.
	Create func(c *Connection) error
	// Upgrade runs when the stored version is below Version.
	Upgrade func(c *Connection, oldVersion, newVersion int) error

	JournalMode JournalMode
	ForeignKeys bool
	BusyTimeout time.Duration
	// PageSize is applied before the schema is created. Zero keeps the engine default.
	PageSize int

	LookasideSlotSize  int
	LookasideSlotCount int

	StatementCacheSize int
	InMemory           bool
	ReadOnly           bool

	// Label names the connection in logs; it defaults to Name.
	Label   string
	Trace   bool
	Profile bool
	// VerboseDataCalls logs every window fill.
	VerboseDataCalls bool

	Logger   *slog.Logger
	Engine   Engine
	Registry *Registry
}

// Option configures a Config.
type Option func(*Config)

// DefaultConfig returns the configuration used for name before options are applied.
func DefaultConfig(name string) Config {
	return Config{
		Name:               name,
		JournalMode:        JournalWAL,
		BusyTimeout:        DefaultBusyTimeout,
		StatementCacheSize: DefaultStatementCacheSize,
	}
}

func newConfig(name string, opts []Option) Config {
	cfg := DefaultConfig(name)
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Label == "" {
		cfg.Label = cfg.Name
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger
	}
	if cfg.Engine == nil {
		cfg.Engine = ModerncEngine{}
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}
	return cfg
}

// path returns what the engine should open.
func (cfg *Config) path() string {
	if cfg.InMemory {
		if cfg.Name == "" || cfg.Name == ":memory:" {
			return ":memory:"
		}
		// Named in-memory databases are shared between connections of this process
		return "file:" + cfg.Name + "?mode=memory&cache=shared"
	}
	return cfg.Name
}

func (cfg *Config) openFlags() int {
	flags := OpenFullMutex
	if cfg.ReadOnly {
		flags |= OpenReadOnly
	} else {
		flags |= OpenReadWrite | OpenCreate
	}
	if cfg.InMemory && cfg.Name != "" && cfg.Name != ":memory:" {
		flags |= OpenURI | OpenMemory
	}
	return flags
}

// WithVersion sets the schema version and the functions that create or upgrade it.
func WithVersion(version int, create func(*Connection) error, upgrade func(*Connection, int, int) error) Option {
	return func(c *Config) {
		c.Version = version
		c.Create = create
		c.Upgrade = upgrade
	}
}

// WithJournalMode sets the journal mode.
func WithJournalMode(mode JournalMode) Option {
	return func(c *Config) { c.JournalMode = mode }
}

// WithForeignKeys enables foreign key constraints.
func WithForeignKeys(enabled bool) Option {
	return func(c *Config) { c.ForeignKeys = enabled }
}

// WithBusyTimeout sets the engine's busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *Config) { c.BusyTimeout = d }
}

// WithPageSize sets the page size for newly created databases.
func WithPageSize(size int) Option {
	return func(c *Config) { c.PageSize = size }
}

// WithLookaside configures the engine's lookaside allocator.
func WithLookaside(slotSize, slotCount int) Option {
	return func(c *Config) {
		c.LookasideSlotSize = slotSize
		c.LookasideSlotCount = slotCount
	}
}

// WithStatementCacheSize sets how many compiled statements each connection keeps.
func WithStatementCacheSize(n int) Option {
	return func(c *Config) { c.StatementCacheSize = n }
}

// WithInMemory opens an in-memory database.
func WithInMemory() Option {
	return func(c *Config) { c.InMemory = true }
}

// WithReadOnly opens the database read-only.
func WithReadOnly() Option {
	return func(c *Config) { c.ReadOnly = true }
}

// WithLabel names the connection in logs.
func WithLabel(label string) Option {
	return func(c *Config) { c.Label = label }
}

// WithTrace logs every statement the engine runs.
func WithTrace() Option {
	return func(c *Config) { c.Trace = true }
}

// WithProfile logs every statement with its run time.
func WithProfile() Option {
	return func(c *Config) { c.Profile = true }
}

// WithVerboseDataCalls logs every window fill.
func WithVerboseDataCalls() Option {
	return func(c *Config) { c.VerboseDataCalls = true }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithEngine selects the SQL engine. The default is ModerncEngine.
func WithEngine(e Engine) Option {
	return func(c *Config) { c.Engine = e }
}

// WithRegistry selects the registry holding the connection's state.
// The default is DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(c *Config) { c.Registry = r }
}
