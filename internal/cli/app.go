package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/aretw0/itinera"
	"github.com/aretw0/itinera/internal/adapters/file"
	redisstore "github.com/aretw0/itinera/internal/adapters/redis"
	"github.com/aretw0/itinera/internal/adapters/sqlite"
	"github.com/aretw0/itinera/internal/config"
	"github.com/aretw0/itinera/internal/tools"
	"github.com/aretw0/itinera/pkg/adapters/mcp"
	"github.com/aretw0/itinera/pkg/adapters/memory"
	"github.com/aretw0/itinera/pkg/adapters/openai"
	redislock "github.com/aretw0/itinera/pkg/adapters/redis"
	"github.com/aretw0/itinera/pkg/bridge"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/observability"
	"github.com/aretw0/itinera/pkg/persistence/middleware"
	"github.com/aretw0/itinera/pkg/ports"
	"github.com/aretw0/itinera/pkg/registry"
	goredis "github.com/redis/go-redis/v9"
)

// ErrNoAPIKey is the model error reported when no OpenAI key is configured.
var ErrNoAPIKey = errors.New("OPENAI_API_KEY is not set")

// App bundles an engine with everything it was built from.
type App struct {
	Config  *config.Config
	Engine  *itinera.Engine
	Tools   *registry.Registry
	Sources []registry.LoadResult
	Metrics *observability.Metrics
	Logger  *slog.Logger

	backend *bridge.Backend
	closers []func() error
}

type appOptions struct {
	model   ports.Model
	logger  *slog.Logger
	debug   bool
	sources []registry.Source
}

// AppOption customizes NewApp.
type AppOption func(*appOptions)

// WithModel replaces the OpenAI gateway, mostly for tests.
func WithModel(m ports.Model) AppOption {
	return func(o *appOptions) { o.model = m }
}

// WithAppLogger overrides the logger derived from the config.
func WithAppLogger(logger *slog.Logger) AppOption {
	return func(o *appOptions) { o.logger = logger }
}

// WithDebugHooks logs every model call, tool call and checkpoint.
func WithDebugHooks(enabled bool) AppOption {
	return func(o *appOptions) { o.debug = enabled }
}

// WithExtraSources adds tool sources after the built-ins and the configured MCP servers.
func WithExtraSources(sources ...registry.Source) AppOption {
	return func(o *appOptions) { o.sources = append(o.sources, sources...) }
}

// NewApp builds the store, model, tool registry, metrics and engine described by cfg.
// Tool sources that fail to load degrade the app instead of failing it.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	o := appOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		logger, err := createLogger(cfg)
		if err != nil {
			return nil, err
		}
		o.logger = logger
	}

	app := &App{Config: cfg, Logger: o.logger}
	ok := false
	defer func() {
		if !ok {
			if app.backend != nil {
				_ = app.backend.Close(context.Background())
			}
			_ = app.closeResources()
		}
	}()

	store, locker, err := app.openStore()
	if err != nil {
		return nil, err
	}
	if store, err = protectStore(store, cfg); err != nil {
		return nil, err
	}

	model := o.model
	if model == nil && strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		// History, tools and health stay available; turns fail as model errors.
		app.Logger.Warn("no model API key configured, turns will fail", "key", "OPENAI_API_KEY")
		model = ports.ModelFunc(func(context.Context, domain.ModelRequest) (domain.Message, error) {
			return domain.Message{}, ErrNoAPIKey
		})
	}
	if model == nil {
		model, err = openai.New(openai.Config{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.Model,
			BaseURL:      cfg.ModelBaseURL,
			SystemPrompt: cfg.SystemPrompt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create model gateway: %w", err)
		}
	}

	sources, err := app.toolSources(o.sources)
	if err != nil {
		return nil, err
	}
	loaded, results := registry.Load(ctx, app.Logger, sources...)
	app.Sources = results
	app.Tools, err = registry.New(loaded, registry.WithTimeout(cfg.ToolTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	app.Metrics = observability.NewMetrics()
	for _, r := range results {
		app.Metrics.SourceLoaded(r.Source, r.Degraded())
	}

	engineOpts := []itinera.Option{
		itinera.WithStore(store),
		itinera.WithTools(app.Tools),
		itinera.WithLogger(app.Logger),
		itinera.WithLifecycleHooks(app.Metrics.Hooks()),
		itinera.WithMaxTurns(cfg.MaxTurns),
		itinera.WithMaxParallelTools(cfg.MaxParallelTools),
		itinera.WithModelTimeout(cfg.ModelTimeout),
	}
	if o.debug {
		engineOpts = append(engineOpts, itinera.WithLifecycleHooks(createDebugHooks(app.Logger)))
	}
	if locker != nil {
		engineOpts = append(engineOpts, itinera.WithLocker(locker))
	}
	if cfg.Concurrency > 0 {
		app.backend = bridge.New(bridge.WithConcurrency(cfg.Concurrency), bridge.WithLogger(app.Logger))
		engineOpts = append(engineOpts, itinera.WithBackend(app.backend))
	}

	app.Engine, err = itinera.New(model, engineOpts...)
	if err != nil {
		return nil, err
	}
	ok = true
	return app, nil
}

// Degraded reports whether any tool source failed to load.
func (a *App) Degraded() bool {
	for _, r := range a.Sources {
		if r.Degraded() {
			return true
		}
	}
	return false
}

// Close drains running turns and then releases the store and tool sources.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Engine != nil {
		errs = append(errs, a.Engine.Close(ctx))
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close(ctx))
	}
	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore() (ports.CheckpointStore, ports.DistributedLocker, error) {
	cfg := a.Config
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewStore(), nil, nil
	case config.StoreFile:
		return file.New(filepath.Join(cfg.StorePath, "threads")), nil, nil
	case config.StoreSQLite:
		store, err := sqlite.New(filepath.Join(cfg.StorePath, "itinera.db"), sqlite.WithLogger(a.Logger))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil, nil
	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := redisstore.NewFromClient(client, redisstore.WithTTL(cfg.RedisTTL))
		a.closers = append(a.closers, store.Close)
		if cfg.RedisLock {
			return store, redislock.NewLocker(client, "itinera:lock:"), nil
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// protectStore applies redaction and then encryption to everything written to store.
func protectStore(store ports.CheckpointStore, cfg *config.Config) (ports.CheckpointStore, error) {
	var mws []middleware.Middleware
	if len(cfg.RedactKeys) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.RedactKeys)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	active, fallback, err := cfg.EncryptionKeys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

func (a *App) toolSources(extra []registry.Source) ([]registry.Source, error) {
	var weather *tools.Weather
	if a.Config.OpenWeatherAPIKey != "" {
		weather = tools.NewWeather(a.Config.OpenWeatherAPIKey)
	}
	sources := []registry.Source{tools.Builtin(weather)}

	if a.Config.MCPServers != "" {
		servers, err := config.LoadMCPServers(a.Config.MCPServers)
		if err != nil {
			return nil, err
		}
		for _, srv := range servers {
			src := mcp.NewSource(srv.Name, mcp.StdioDialer(srv.StdioServer), mcp.WithLogger(a.Logger))
			a.closers = append(a.closers, src.Close)
			sources = append(sources, src)
		}
	}
	return append(sources, extra...), nil
}
