package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"hype/internal/boost"
	"hype/internal/config"
	"hype/internal/mastodon"
	"hype/internal/observability/metrics"
	"hype/internal/profile"
	"hype/internal/runtime/supervisor"
	"hype/internal/storage"
	"hype/internal/task/scheduler"
	logx "hype/pkg/logx"
)

// scheduleName is the scheduler registration of the boost cycle.
const scheduleName = "boost"

const (
	defaultStoragePath = "./secrets/hype"
	// stopGrace bounds how long Stop waits for an in-flight cycle.
	stopGrace = 20 * time.Second
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	home    *mastodon.Client
	dialer  *mastodon.Dialer
	engine  *boost.Engine
	sched   *scheduler.Service
	metrics *metrics.Collector
	serv    *metrics.Server

	mu        sync.Mutex
	lastCycle *boost.CycleReport
	started   bool
}

type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the HTTP client used for every Mastodon request.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New loads the config and builds every component. Nothing talks to the
// network until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	sc, err := storageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	clientCfg := mastodon.Config{
		UserAgent:      cfg.Client.UserAgent,
		RatePerSec:     cfg.Client.RatePerSec,
		Burst:          cfg.Client.Burst,
		RequestTimeout: cfg.Client.Timeout(),
		HTTPClient:     o.httpClient,
	}
	homeCfg := clientCfg
	homeCfg.Server = cfg.BotAccount.Server
	homeCfg.AccessToken = cfg.BotAccount.AccessToken
	home, err := mastodon.NewClient(homeCfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("bot_account: %w", err)
	}

	dialer := mastodon.NewDialer(mastodon.DialerConfig{
		AppName: cfg.Client.AppName,
		Website: cfg.Client.Website,
		Client:  clientCfg,
	}, store, log.With(logx.String("comp", "dialer")))

	collector := metrics.NewCollector()
	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		home:    home,
		dialer:  dialer,
		sched:   scheduler.New(scheduler.Config{}, log.With(logx.String("comp", "scheduler"))),
		metrics: collector,
	}
	a.engine = boost.NewEngine(timelineDialer{d: dialer}, log.With(logx.String("comp", "boost")), boost.WithObserver(collector))
	a.serv = metrics.NewServer(metricsConfig(cfg), collector, a.health, log.With(logx.String("comp", "metrics")))
	return a, nil
}

// Done is closed once the app's run context ends (Stop or a fatal error).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start logs in, pushes the profile, and schedules the boost cycle (once now,
// then every interval). Login and profile failures are returned as-is.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))

	acct, err := a.home.VerifyCredentials(ctx)
	if err != nil {
		return fmt.Errorf("login to %s: %w", a.home.Host(), err)
	}
	a.log.Info("logged in", logx.String("server", a.home.Host()), logx.String("acct", acct.Acct))

	up := profile.NewUpdater(a.home, cfg.ProfilePrefix, sources(cfg), fields(cfg), a.log.With(logx.String("comp", "profile")))
	if err := up.Update(ctx); err != nil {
		return err
	}

	if err := a.sched.AddSchedule(scheduleName, cfg.ScheduleSpec(), cfg.CycleTimeoutDuration(), scheduler.Options{RunImmediately: true}, a.cycle); err != nil {
		return fmt.Errorf("schedule boost: %w", err)
	}
	a.sched.Start(a.sup.Context())

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if _, err := scheduler.ParseSchedule(c.ScheduleSpec()); err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
		return nil
	})
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	if err := a.serv.Start(a.sup.Context()); err != nil {
		// The bot still works without its metrics endpoint.
		a.log.Warn("metrics endpoint disabled", logx.Err(err))
	}

	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	a.log.Info("app started",
		logx.String("schedule", cfg.ScheduleSpec()),
		logx.Int("sources", len(cfg.SubscribedInstances)),
		logx.Int("filtered", len(cfg.FilteredInstances)),
	)
	return nil
}

// Stop waits up to stopGrace (or ctx) for an in-flight cycle, then releases
// every resource. It is safe to call after a failed Start.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	var errs []error

	graceCtx, cancel := context.WithTimeout(ctx, stopGrace)
	a.sched.Stop(graceCtx)
	cancel()

	a.serv.Stop(ctx)

	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("supervisor: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// MetricsAddr returns the bound metrics address while it is serving.
func (a *App) MetricsAddr() string { return a.serv.Addr() }

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	sc := storage.Config{Driver: "file", Path: defaultStoragePath}
	if cfg.Storage == nil {
		return sc, nil
	}
	if d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d != "" {
		sc.Driver = d
	}
	if p := strings.TrimSpace(cfg.Storage.Path); p != "" {
		sc.Path = p
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	sc.BusyTimeout = busy
	return sc, nil
}

func metricsConfig(cfg *config.Config) metrics.Config {
	m := cfg.Metrics
	// Validate already rejected malformed durations.
	rt, _ := config.ParseDurationField("metrics.read_timeout", m.ReadTimeout)
	wt, _ := config.ParseDurationField("metrics.write_timeout", m.WriteTimeout)
	it, _ := config.ParseDurationField("metrics.idle_timeout", m.IdleTimeout)
	return metrics.Config{
		Enabled:       m.Enabled,
		Addr:          m.MetricsAddr(),
		Token:         m.Token,
		AllowInsecure: m.AllowInsecure,
		Pprof:         m.Pprof,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
		IdleTimeout:   it,
	}
}

func sources(cfg *config.Config) []boost.Source {
	out := make([]boost.Source, 0, len(cfg.SubscribedInstances))
	for _, in := range cfg.SubscribedInstances {
		out = append(out, boost.Source{Name: strings.TrimSpace(in.Name), Limit: in.Limit})
	}
	return out
}

func fields(cfg *config.Config) []mastodon.Field {
	out := make([]mastodon.Field, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		out = append(out, mastodon.Field{Name: f.Name, Value: f.Value})
	}
	return out
}
