package xiaoban

import (
	"log/slog"
	"time"

	"github.com/ashita-ai/xiaoban/internal/config"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all overrides after applying options.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        int
	databaseURL string
	sqlitePath  string
	rulesFile   string
	proactive   *bool
	logger      *slog.Logger
	version     string
	generator   Generator
	clock       func() time.Time
}

// apply writes the config-level overrides into cfg.
func (o resolvedOptions) apply(cfg *config.Config) {
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
		cfg.Store = "postgres"
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
	}
	if o.rulesFile != "" {
		cfg.RulesFile = o.rulesFile
	}
	if o.proactive != nil {
		cfg.ProactiveEnabled = *o.proactive
	}
}

// WithPort overrides the TCP port from config (XIAOBAN_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL selects the Postgres store and overrides DATABASE_URL.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithSQLitePath overrides the SQLite file location (XIAOBAN_SQLITE_PATH).
func WithSQLitePath(path string) Option {
	return func(o *resolvedOptions) { o.sqlitePath = path }
}

// WithRulesFile loads the rule catalogue from a YAML file instead of the
// built-in defaults (XIAOBAN_RULES_FILE).
func WithRulesFile(path string) Option {
	return func(o *resolvedOptions) { o.rulesFile = path }
}

// WithProactive turns the background scheduler on or off, overriding
// XIAOBAN_PROACTIVE_ENABLED. Manual firing works either way.
func WithProactive(enabled bool) Option {
	return func(o *resolvedOptions) { o.proactive = &enabled }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithGenerator replaces the configured text generation backend.
func WithGenerator(g Generator) Option {
	return func(o *resolvedOptions) { o.generator = g }
}

// WithClock replaces time.Now for the engine and the status service.
func WithClock(now func() time.Time) Option {
	return func(o *resolvedOptions) { o.clock = now }
}
