// Package wiring registers registrar's own infrastructure (configuration,
// feature flags, tracing) as registry objects, so the CLI resolves them the
// same way any component would.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/registrar/internal/config"
	"github.com/zjrosen/registrar/internal/flags"
	"github.com/zjrosen/registrar/internal/log"
	"github.com/zjrosen/registrar/internal/registry"
	"github.com/zjrosen/registrar/internal/tracing"
)

// Loader reads the current configuration.
type Loader func() (config.Config, error)

// ReloadHook runs after the config file changed and the registry was reset.
type ReloadHook func(ctx context.Context, cfg *config.Config) error

// App holds the contracts the CLI needs on its registry.
type App struct {
	Registry *registry.Registry
	Config   *registry.Contract[*config.Config]
	Flags    *registry.Contract[*flags.Registry]
	Tracing  *registry.Contract[*tracing.Provider]

	mu            sync.Mutex
	registrations []*registry.Registration
	logHook       registry.AddonID
	exclusive     registry.AddonID
}

// Install registers the infrastructure factories on r at normal priority and
// opens contracts for them. Callers may override any of them by registering
// at a higher priority.
func Install(r *registry.Registry, load Loader) (*App, error) {
	if load == nil {
		return nil, errors.New("wiring: nil loader")
	}
	app := &App{Registry: r}

	cfgReg, err := registry.Provide(r, "", registry.PriorityNormal, func(context.Context, string) (*config.Config, error) {
		cfg, err := load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if cfg.Tracing.FilePath == "" {
			cfg.Tracing.FilePath = config.DefaultTracesFilePath()
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return &cfg, nil
	})
	if err != nil {
		return nil, err
	}
	app.registrations = append(app.registrations, cfgReg)

	flagsReg, err := registry.Provide(r, "", registry.PriorityNormal, func(ctx context.Context, _ string) (*flags.Registry, error) {
		cfg, err := registry.Resolve[*config.Config](ctx, r, "")
		if err != nil {
			return nil, err
		}
		return flags.New(cfg.Flags), nil
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.registrations = append(app.registrations, flagsReg)

	tracingReg, err := registry.Provide(r, "", registry.PriorityNormal, func(ctx context.Context, _ string) (*tracing.Provider, error) {
		cfg, err := registry.Resolve[*config.Config](ctx, r, "")
		if err != nil {
			return nil, err
		}
		return tracing.NewProvider(cfg.Tracing)
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.registrations = append(app.registrations, tracingReg)

	app.Config = registry.NewContract[*config.Config](r, "")
	app.Flags = registry.NewContract[*flags.Registry](r, "")
	app.Tracing = registry.NewContract[*tracing.Provider](r, "")

	app.logHook = RegisterReloadHook(r, registry.PriorityFallback, applyLogLevel)

	log.Debug(log.CatRegistry, "infrastructure installed", "registry", r.ID())
	return app, nil
}

// RegisterReloadHook adds hook to the hooks run by Reload.
func RegisterReloadHook(r *registry.Registry, prio registry.Priority, hook ReloadHook) registry.AddonID {
	return registry.RegisterAddon(r, "", prio, hook)
}

// UnregisterReloadHook removes a hook added with RegisterReloadHook.
func UnregisterReloadHook(r *registry.Registry, id registry.AddonID) error {
	return registry.UnregisterAddon[ReloadHook](r, "", id)
}

// applyLogLevel is the built-in reload hook.
func applyLogLevel(_ context.Context, cfg *config.Config) error {
	level, ok := log.ParseLevel(cfg.Log.Level)
	if !ok {
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	log.SetMinLevel(level)
	log.SetEnabled(cfg.Log.Enabled)
	return nil
}

// Start resolves the infrastructure and applies the startup checks the
// configuration asks for.
func (a *App) Start(ctx context.Context) error {
	cfg, err := a.Config.Get(ctx)
	if err != nil {
		return err
	}
	if _, err := a.Tracing.Get(ctx); err != nil {
		return err
	}
	fl, err := a.Flags.Get(ctx)
	if err != nil {
		return err
	}
	a.syncExclusiveFilter(fl)

	if cfg.Registry.ValidateOnStart {
		if missing := a.Registry.UnsatisfiedContracts(); len(missing) > 0 {
			return fmt.Errorf("%d unsatisfied contract(s), first: %s: %w", len(missing), missing[0], registry.ErrFactoryNotRegistered)
		}
	}
	if cfg.Registry.TestContractsOnStart {
		return a.Registry.TestAllContracts(ctx)
	}
	return nil
}

// Reload tears down every object, rebuilds the configuration and runs the
// reload hooks. Hook failures are joined; all hooks run.
func (a *App) Reload(ctx context.Context) error {
	if err := a.Registry.ResetObjects(ctx); err != nil {
		log.ErrorErr(log.CatConfig, "teardown during reload", err)
	}

	cfg, err := a.Config.Get(ctx)
	if err != nil {
		return err
	}
	fl, err := a.Flags.Get(ctx)
	if err != nil {
		return err
	}
	a.syncExclusiveFilter(fl)

	var errs []error
	hooks := registry.GetAddons[ReloadHook](a.Registry, "")
	for _, hook := range hooks {
		if hook.Func == nil {
			continue
		}
		if err := hook.Func(ctx, cfg); err != nil {
			errs = append(errs, err)
		}
	}

	if fl.Enabled(flags.FlagTestContractsOnReload) {
		if err := a.Registry.TestAllContracts(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	log.Info(log.CatConfig, "configuration reloaded", "hooks", len(hooks), "failures", len(errs))
	return errors.Join(errs...)
}

// syncExclusiveFilter installs or removes the KeepHighestPriority filter on
// reload hooks to match the exclusive-reload-hooks flag.
func (a *App) syncExclusiveFilter(fl *flags.Registry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	want := fl.Enabled(flags.FlagExclusiveReloadHooks)
	switch {
	case want && a.exclusive == 0:
		a.exclusive = registry.RegisterAddonFilter(a.Registry, "", registry.PriorityNormal, registry.KeepHighestPriority[ReloadHook]())
	case !want && a.exclusive != 0:
		_ = registry.UnregisterAddonFilter[ReloadHook](a.Registry, "", a.exclusive)
		a.exclusive = 0
	}
}

// Close withdraws everything Install registered. Objects already built stay
// cached until the registry resets.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.Config != nil {
		errs = append(errs, a.Config.Close(), a.Flags.Close(), a.Tracing.Close())
	}
	for _, reg := range a.registrations {
		errs = append(errs, reg.Close())
	}
	a.registrations = nil
	if a.logHook != 0 {
		errs = append(errs, UnregisterReloadHook(a.Registry, a.logHook))
		a.logHook = 0
	}
	if a.exclusive != 0 {
		errs = append(errs, registry.UnregisterAddonFilter[ReloadHook](a.Registry, "", a.exclusive))
		a.exclusive = 0
	}
	return errors.Join(errs...)
}
