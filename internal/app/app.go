// Package app wires the IQ 360 subsystems into a running server.
//
// New builds the lead book, persona registry, analysis service, storage and
// HTTP handler from the config. Run serves until the context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSessionStore,
// WithAnalysisStore, ...). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/iq360/internal/analysis"
	"github.com/MrWong99/iq360/internal/api"
	"github.com/MrWong99/iq360/internal/config"
	"github.com/MrWong99/iq360/internal/health"
	"github.com/MrWong99/iq360/internal/leads"
	"github.com/MrWong99/iq360/internal/observe"
	"github.com/MrWong99/iq360/internal/persona"
	"github.com/MrWong99/iq360/internal/resilience"
	"github.com/MrWong99/iq360/pkg/memory"
	"github.com/MrWong99/iq360/pkg/memory/postgres"
	"github.com/MrWong99/iq360/pkg/provider/llm"
	"github.com/MrWong99/iq360/pkg/provider/s2s"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// NamedLLM is an LLM provider together with its config name.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds one interface value per provider slot. Nil means the slot
// is not configured. Populated by main via the config registry.
type Providers struct {
	S2S       s2s.Provider
	Vision    NamedLLM
	Text      NamedLLM
	Contracts NamedLLM

	// Fallback providers are tried in order when a slot's primary fails.
	Fallback []NamedLLM
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	level     *slog.LevelVar
	metrics   *observe.Metrics

	book     *leads.Book
	personas *persona.Registry
	sessions memory.SessionStore
	analyses memory.AnalysisStore
	store    *postgres.Store
	analyzer *analysis.Service
	health   *health.Handler
	handler  http.Handler
	server   *http.Server
	watcher  *config.Watcher

	configPath     string
	reloadInterval time.Duration

	mu   sync.Mutex
	addr net.Addr

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithSessionStore injects a transcript store instead of creating one from
// storage.postgres_dsn.
func WithSessionStore(s memory.SessionStore) Option {
	return func(a *App) { a.sessions = s }
}

// WithAnalysisStore injects an analysis store instead of creating one from
// storage.postgres_dsn.
func WithAnalysisStore(s memory.AnalysisStore) Option {
	return func(a *App) { a.analyses = s }
}

// WithLevelVar lets hot reload change the level of the logger built on v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics overrides the default metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLeadBook injects a lead book instead of loading leads_file.
func WithLeadBook(b *leads.Book) Option {
	return func(a *App) { a.book = b }
}

// WithConfigWatch polls path and hot-reloads the log level, personas and
// new leads. A zero interval uses the watcher default.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.reloadInterval = interval
	}
}

// New creates an App by wiring all subsystems together. New performs all
// initialisation synchronously; nothing listens until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initLeads(); err != nil {
		return nil, fmt.Errorf("app: init leads: %w", err)
	}

	var err error
	if a.personas, err = persona.NewRegistry(cfg.Personas...); err != nil {
		return nil, fmt.Errorf("app: init personas: %w", err)
	}

	if err := a.initStorage(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	a.initAnalysis()
	a.initHealth()

	if a.configPath != "" {
		var wopts []config.WatcherOption
		if a.reloadInterval > 0 {
			wopts = append(wopts, config.WithInterval(a.reloadInterval))
		}
		if a.watcher, err = config.NewWatcher(a.configPath, a.reload, wopts...); err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: config watcher: %w", err)
		}
	}

	a.handler = a.routes()
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return a, nil
}

func (a *App) initLeads() error {
	if a.book != nil {
		return nil
	}
	path := a.cfg.LeadsFile
	if path == "" {
		a.book = &leads.Book{}
		return nil
	}
	b, err := leads.LoadFile(path)
	if err != nil {
		return err
	}
	a.book = b
	slog.Info("loaded leads", "path", path, "count", a.book.Len())
	return nil
}

// initStorage connects to PostgreSQL when a DSN is configured and nothing
// was injected.
func (a *App) initStorage(ctx context.Context) error {
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" || (a.sessions != nil && a.analyses != nil) {
		return nil
	}
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	if a.sessions == nil {
		a.sessions = store.Transcripts()
	}
	if a.analyses == nil {
		a.analyses = store.Analyses()
	}
	return nil
}

// initAnalysis builds the analysis service. Without a vision provider the
// analysis routes answer 503.
func (a *App) initAnalysis() {
	vision := a.withFallback("vision", a.providers.Vision)
	if vision == nil {
		slog.Warn("no vision provider configured, analysis disabled")
		return
	}

	cacheOpts := []analysis.CacheOption{}
	if a.analyses != nil {
		cacheOpts = append(cacheOpts, analysis.WithStore(a.analyses))
	}
	opts := []analysis.Option{
		analysis.WithCache(analysis.NewHashCache(cacheOpts...)),
		analysis.WithMetrics(a.metrics),
	}
	if text := a.withFallback("text", a.providers.Text); text != nil {
		opts = append(opts, analysis.WithTextProvider(text))
	}
	if contracts := a.withFallback("contracts", a.providers.Contracts); contracts != nil {
		opts = append(opts, analysis.WithContractProvider(contracts))
	}
	a.analyzer = analysis.NewService(vision, opts...)
}

// withFallback chains primary with the configured fallbacks behind circuit
// breakers. Every backend is metered. It returns nil when primary is unset.
func (a *App) withFallback(slot string, primary NamedLLM) llm.Provider {
	if primary.Provider == nil {
		return nil
	}
	if len(a.providers.Fallback) == 0 {
		return a.metered(slot, primary)
	}
	fb := resilience.NewLLMFallback(resilience.BreakerConfig{
		Name: slot,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("provider circuit changed", "slot", slot, "provider", name, "from", from, "to", to)
		},
	})
	fb.Add(primary.Name, a.metered(slot, primary))
	for _, f := range a.providers.Fallback {
		fb.Add(f.Name, a.metered(slot, f))
	}
	return fb
}

func (a *App) initHealth() {
	a.health = health.New(health.Checker{
		Name: "leads",
		Check: func(context.Context) error {
			if a.cfg.LeadsFile != "" && a.book.Len() == 0 {
				return errors.New("lead book is empty")
			}
			return nil
		},
	})
	if a.store != nil {
		a.health.Add(health.Checker{Name: "postgres", Check: a.store.Ping})
	}
	if a.analyzer == nil {
		a.health.Add(health.Checker{
			Name:     "analysis",
			Optional: true,
			Check:    func(context.Context) error { return errors.New("no vision provider configured") },
		})
	}
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	var analyzer api.Analyzer
	if a.analyzer != nil {
		analyzer = a.analyzer
	}
	api.New(a.book, analyzer, a.personas).Register(mux)
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Book returns the lead book.
func (a *App) Book() *leads.Book { return a.book }

// Personas returns the persona registry.
func (a *App) Personas() *persona.Registry { return a.personas }

// SessionStore returns the transcript store, or nil when none is configured.
func (a *App) SessionStore() memory.SessionStore { return a.sessions }

// Addr returns the address Run is listening on, or nil before Run.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run serves HTTP and, when configured, watches the config file. It blocks
// until ctx is cancelled or the server fails, and returns ctx.Err() on a
// clean stop.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.health.Drain()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	slog.Info("app running",
		"addr", ln.Addr().String(),
		"leads", a.book.Len(),
		"analysis", a.analyzer != nil,
		"postgres", a.store != nil,
	)
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// reload applies the hot-reloadable parts of a changed config.
func (a *App) reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PersonasChanged {
		if err := a.personas.Replace(new.Personas); err != nil {
			slog.Error("persona reload rejected", "err", err)
		} else {
			slog.Info("personas reloaded", "changes", len(d.PersonaChanges))
		}
	}
	if d.LeadsFileChanged && new.LeadsFile != "" {
		ctx := context.Background()
		next, err := leads.LoadFile(new.LeadsFile)
		if err != nil {
			slog.Error("leads reload failed", "path", new.LeadsFile, "err", err)
			return
		}
		n, err := a.book.Merge(ctx, next.List(ctx, leads.ListOptions{}))
		if err != nil {
			slog.Warn("some leads were skipped", "path", new.LeadsFile, "err", err)
		}
		slog.Info("leads merged", "path", new.LeadsFile, "added", n)
	}
}

// Shutdown drains readiness, stops the HTTP server and runs the closers in
// order. If ctx expires first, the remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.health.Drain()
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far after a failed New.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
}
