// Package xiaoban is the public entry point for running the xiaoban companion
// backend: status tracking, the proactive messaging engine, Web Push delivery,
// and the HTTP + MCP surfaces.
//
//	app, err := xiaoban.New(
//	    xiaoban.WithVersion(version),
//	    xiaoban.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph keeps a strict no-cycle rule: xiaoban (root) imports
// internal/*, but internal/* never imports xiaoban (root).
package xiaoban

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/xiaoban/api"
	"github.com/ashita-ai/xiaoban/internal/config"
	"github.com/ashita-ai/xiaoban/internal/mcp"
	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/proactive"
	"github.com/ashita-ai/xiaoban/internal/push"
	"github.com/ashita-ai/xiaoban/internal/ratelimit"
	"github.com/ashita-ai/xiaoban/internal/rules"
	"github.com/ashita-ai/xiaoban/internal/server"
	"github.com/ashita-ai/xiaoban/internal/service/llm"
	"github.com/ashita-ai/xiaoban/internal/service/status"
	"github.com/ashita-ai/xiaoban/internal/storage"
	"github.com/ashita-ai/xiaoban/internal/telemetry"
	"github.com/ashita-ai/xiaoban/migrations"
)

// App is the xiaoban server lifecycle. Construct with New(), run with Run().
// One-shot callers (the CLI) may use the accessors and call Close instead.
type App struct {
	cfg          config.Config
	store        storage.Store
	statusSvc    *status.Service
	engine       *proactive.Engine
	broadcaster  *push.Broadcaster
	limiter      ratelimit.Limiter
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
	closeOnce    sync.Once
}

// New loads configuration, opens and migrates the store, and wires every
// subsystem. It does NOT start the scheduler or accept HTTP connections.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	version := o.version
	if version == "" {
		version = "dev"
	}

	ctx := context.Background()

	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:       cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		ServiceName:    cfg.ServiceName,
		Version:        version,
		SampleRatio:    cfg.OTELSampleRatio,
		MetricInterval: cfg.OTELMetricInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Store,
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.DatabaseURL,
	}, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("storage: %w", err)
	}
	fail := func(err error) (*App, error) {
		store.Close(ctx)
		_ = otelShutdown(ctx)
		return nil, err
	}

	migrationFS, err := migrations.For(store.Dialect())
	if err != nil {
		return fail(err)
	}
	if err := store.RunMigrations(ctx, migrationFS); err != nil {
		return fail(fmt.Errorf("migrations: %w", err))
	}

	ruleSet, err := loadRules(cfg, logger)
	if err != nil {
		return fail(err)
	}

	var gen llm.Generator = o.generator
	if o.generator == nil {
		gen = newGenerator(cfg, logger)
	}

	broadcaster, err := newBroadcaster(cfg, store, logger)
	if err != nil {
		return fail(fmt.Errorf("push: %w", err))
	}

	statusSvc := status.New(store, loc, model.DefaultUserID, logger)
	if o.clock != nil {
		statusSvc.WithClock(o.clock)
	}

	// A nil *Broadcaster must not become a non-nil interface value.
	var enginePusher proactive.Pusher
	var serverPusher server.Pusher
	if broadcaster != nil {
		enginePusher = broadcaster
		serverPusher = broadcaster
	}

	engine, err := proactive.New(ctx, proactive.Options{
		Rules:             ruleSet,
		Statuses:          store,
		Generator:         gen,
		Cooldowns:         newCooldownStore(cfg, store, logger),
		Pusher:            enginePusher,
		QueueCapacity:     cfg.PendingCapacity,
		UserID:            model.DefaultUserID,
		PersonaName:       cfg.PersonaName,
		PushTitle:         cfg.PushTitle,
		Location:          loc,
		GenerationTimeout: cfg.GenerationTimeout,
		Clock:             o.clock,
		Logger:            logger,
	})
	if err != nil {
		return fail(fmt.Errorf("proactive: %w", err))
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	mcpSrv := mcp.New(statusSvc, engine, logger, version)

	srvCfg := server.ServerConfig{
		Store:               store,
		StatusSvc:           statusSvc,
		Logger:              logger,
		Engine:              engine,
		Pusher:              serverPusher,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		VAPIDPublicKey:      cfg.VAPIDPublicKey,
		PushTitle:           cfg.PushTitle,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		APIKey:              cfg.APIKey,
		OpenAPISpec:         api.OpenAPISpec,
	}
	logger.Info("xiaoban ready",
		"version", version,
		"store", store.Dialect(),
		"rules", len(ruleSet),
		"push", broadcaster != nil,
		"timezone", loc.String(),
	)

	return &App{
		cfg:          cfg,
		store:        store,
		statusSvc:    statusSvc,
		engine:       engine,
		broadcaster:  broadcaster,
		limiter:      limiter,
		srv:          server.New(srvCfg),
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the proactive scheduler (when enabled) and the HTTP server, then
// blocks until ctx is cancelled or the server fails. It performs a graceful
// shutdown before returning.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.ProactiveEnabled {
		if err := a.engine.Start(ctx, a.cfg.ProactiveInterval); err != nil {
			return fmt.Errorf("proactive: %w", err)
		}
		a.logger.Info("proactive scheduler started", "interval", a.cfg.ProactiveInterval)
	} else {
		a.logger.Info("proactive scheduler: disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	if err := a.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown performs a graceful shutdown in two phases: stop accepting HTTP
// requests and drain in-flight ones, then stop the scheduler and wait for an
// in-flight tick to finish. Resources are released last.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("xiaoban shutting down")

	httpCtx, httpCancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	a.engine.Stop()
	drainCtx, drainCancel := contextWithOptionalTimeout(ctx, a.cfg.ShutdownTimeout)
	drainErr := a.engine.Drain(drainCtx)
	drainCancel()
	if drainErr != nil {
		a.logger.Error("proactive tick did not finish before shutdown", "error", drainErr)
	}

	a.Close(context.Background())
	a.logger.Info("xiaoban stopped")

	if drainErr != nil {
		return fmt.Errorf("proactive drain: %w", drainErr)
	}
	return nil
}

// Close releases the store, rate limiter and telemetry exporters. Run calls
// it through Shutdown; one-shot callers call it directly.
func (a *App) Close(ctx context.Context) {
	a.closeOnce.Do(func() {
		_ = a.limiter.Close()
		a.store.Close(ctx)
		_ = a.otelShutdown(ctx)
	})
}

// Version returns the version string the app was built with.
func (a *App) Version() string { return a.version }

// Engine returns the proactive engine.
func (a *App) Engine() *proactive.Engine { return a.engine }

// Statuses returns the status service shared by HTTP, MCP and the CLI.
func (a *App) Statuses() *status.Service { return a.statusSvc }

// Store returns the underlying store.
func (a *App) Store() storage.Store { return a.store }

// PushEnabled reports whether VAPID keys were configured.
func (a *App) PushEnabled() bool { return a.broadcaster != nil }

// Handler returns the root HTTP handler, for tests.
func (a *App) Handler() http.Handler { return a.srv.Handler() }

func loadRules(cfg config.Config, logger *slog.Logger) ([]rules.Rule, error) {
	if cfg.RulesFile == "" {
		return rules.Default(), nil
	}
	set, err := rules.LoadFile(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	logger.Info("rules loaded", "path", cfg.RulesFile, "count", len(set))
	return set, nil
}

// newGenerator picks the text generation backend.
// Provider selection: "openai", "ollama", "noop", or "auto" (default).
// Auto mode uses OpenAI when a key is set, then Ollama if reachable, else noop.
// With noop every synthesis fails closed, so the engine never fires.
func newGenerator(cfg config.Config, logger *slog.Logger) llm.Generator {
	switch cfg.LLMProvider {
	case "openai":
		logger.Info("llm provider: openai", "model", cfg.OpenAIModel)
		return llm.Traced(llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Temperature), "openai")

	case "ollama":
		logger.Info("llm provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return llm.Traced(llm.NewOllamaGenerator(cfg.OllamaURL, cfg.OllamaModel, cfg.Temperature), "ollama")

	case "noop":
		logger.Info("llm provider: noop (proactive messages disabled)")
		return llm.NoopGenerator{}

	default:
		if cfg.OpenAIAPIKey != "" {
			logger.Info("llm provider: openai (auto-detected)", "model", cfg.OpenAIModel)
			return llm.Traced(llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Temperature), "openai")
		}
		if cfg.OllamaURL != "" && ollamaReachable(cfg.OllamaURL) {
			logger.Info("llm provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
			return llm.Traced(llm.NewOllamaGenerator(cfg.OllamaURL, cfg.OllamaModel, cfg.Temperature), "ollama")
		}
		logger.Warn("no llm provider available, using noop (proactive messages disabled)")
		return llm.NoopGenerator{}
	}
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func newCooldownStore(cfg config.Config, store storage.Store, logger *slog.Logger) proactive.CooldownStore {
	if cfg.CooldownBackend == "store" {
		logger.Info("cooldowns: persisted in store", "store", store.Dialect())
		return proactive.StoreCooldowns{Store: store}
	}
	logger.Info("cooldowns: persisted in file", "path", cfg.CooldownFile)
	return proactive.NewFileCooldownStore(cfg.CooldownFile)
}

// newBroadcaster returns nil when VAPID keys are not configured.
func newBroadcaster(cfg config.Config, store storage.Store, logger *slog.Logger) (*push.Broadcaster, error) {
	if !cfg.PushEnabled() {
		logger.Info("web push: disabled (no VAPID keys)")
		return nil, nil
	}
	vapid, err := push.NewVAPID(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	if err != nil {
		return nil, err
	}
	logger.Info("web push: enabled", "subject", cfg.VAPIDSubject)
	return push.NewBroadcaster(store, push.NewSender(vapid), logger), nil
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
