package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

// Janitor deletes terminal events past the retention window on a nightly
// schedule. The engine also sweeps once at startup; this keeps long-running
// daemons from accumulating rows between restarts.
type Janitor struct {
	engine *Engine
	cron   *cron.Cron
	log    logx.Logger
}

func NewJanitor(engine *Engine, log logx.Logger) *Janitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Janitor{
		engine: engine,
		cron:   cron.New(),
		log:    log,
	}
}

// Start registers the nightly sweep and launches the cron runner.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc("30 3 * * *", j.sweep)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) sweep() {
	settings, _ := j.engine.snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := j.engine.store.CleanupOldEvents(ctx, settings.RetentionDays)
	if err != nil {
		j.log.Warn("retention sweep failed", logx.Err(err))
		return
	}
	if deleted > 0 {
		j.log.Info("retention sweep removed old events",
			logx.Int64("deleted", deleted), logx.Int("retention_days", settings.RetentionDays))
	}
}
