// Package app wires the daemon together: config, logging, storage, audio,
// the tool registry, and the scheduler engine, with hot reload fan-out.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/audio"
	"github.com/malcolmhoward/dawn-sub001/internal/config"
	"github.com/malcolmhoward/dawn-sub001/internal/eventbus"
	"github.com/malcolmhoward/dawn-sub001/internal/notify"
	"github.com/malcolmhoward/dawn-sub001/internal/observability/pprof"
	"github.com/malcolmhoward/dawn-sub001/internal/runtime/supervisor"
	"github.com/malcolmhoward/dawn-sub001/internal/scheduler"
	"github.com/malcolmhoward/dawn-sub001/internal/storage"
	"github.com/malcolmhoward/dawn-sub001/internal/tools"
	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    *storage.Store
	registry *tools.Registry
	audio    *audio.Engine
	notifier *notify.Service
	engine   *scheduler.Engine
	janitor  *scheduler.Janitor
	pprof    *pprof.Service
}

// Options carries the host integrations the daemon cannot construct itself.
// Nil fields fall back to no-op implementations.
type Options struct {
	Speaker  notify.Speaker
	Sessions notify.SessionSink
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	settings, err := cfg.Scheduler.Resolve()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	busyTimeout, err := cfg.Storage.BusyTimeoutOrDefault()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	registry := tools.NewRegistry()
	audioEng := audio.NewEngine(cfg.Audio.Enabled, log.With(logx.String("comp", "audio")))
	notifier := notify.NewService(opts.Speaker, opts.Sessions, bus,
		log.With(logx.String("comp", "notify")))

	engine := scheduler.New(store, registry, notifier, audioEng, settings,
		log.With(logx.String("comp", "scheduler")))
	janitor := scheduler.NewJanitor(engine, log.With(logx.String("comp", "janitor")))

	pprofSvc := pprof.New(pprof.Config{
		Enabled: cfg.Debug.Enabled,
		Addr:    cfg.Debug.Addr,
		Token:   cfg.Debug.Token,
	}, log.With(logx.String("comp", "pprof")))

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		registry: registry,
		audio:    audioEng,
		notifier: notifier,
		engine:   engine,
		janitor:  janitor,
		pprof:    pprofSvc,
	}

	// The scheduler is itself a tool, so the model manages events through
	// the same interface as everything else.
	if err := registry.Register(engine.Tool()); err != nil {
		store.Close()
		logSvc.Close()
		return nil, err
	}

	return a, nil
}

// Registry exposes the tool registry so the host can add its tools before
// Start.
func (a *App) Registry() *tools.Registry { return a.registry }

// Scheduler exposes the engine's public API (create, list, dismiss, ...).
func (a *App) Scheduler() *scheduler.Engine { return a.engine }

// Bus exposes the event bus for host subscriptions.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.pprof.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("scheduler.run", func(c context.Context) error {
		return a.engine.Run(c)
	})
	if err := a.janitor.Start(); err != nil {
		return err
	}

	// Debug-level event mirror; components subscribe themselves for real work.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// reloadLoop applies validated config updates to the running services.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the latest config matters.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			for _, s := range sections {
				switch s {
				case "storage":
					a.log.Warn("storage config changed; restart required to take effect")
				case "audio":
					a.log.Warn("audio config changed; restart required to take effect")
				case "debug":
					a.log.Warn("debug config changed; restart required to take effect")
				}
			}

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			// Validator already ran, so Resolve cannot fail here.
			if settings, err := newCfg.Scheduler.Resolve(); err == nil {
				a.engine.Apply(settings)
			}

			fields := append([]logx.Field{
				logx.String("changed", strings.Join(sections, ",")),
			}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("janitor", 2*time.Second, func(context.Context) error { a.janitor.Stop(); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}
