package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/storage"
	"github.com/malcolmhoward/dawn-sub001/internal/tools"
	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

const taskRunTimeout = 30 * time.Second

// executeTask runs a scheduled task's tool through the safety gate.
//
// The gate is re-checked at fire time, not just at creation: a tool can be
// disabled or replaced between scheduling and firing, and a stale schedule
// must never become a way to run something the registry would now refuse.
func (e *Engine) executeTask(ctx context.Context, ev storage.ScheduledEvent) error {
	if e.registry == nil {
		return fmt.Errorf("no tool registry")
	}
	if ev.ToolName == "" {
		return fmt.Errorf("task has no tool")
	}

	tool, enabled, err := e.registry.Lookup(ev.ToolName)
	if err != nil {
		return fmt.Errorf("tool %q: %w", ev.ToolName, err)
	}
	if !enabled {
		return fmt.Errorf("tool %q is disabled", ev.ToolName)
	}
	if !tool.Caps.Has(tools.CapSchedulable) {
		return fmt.Errorf("tool %q is not schedulable", ev.ToolName)
	}
	if tool.Caps.Has(tools.CapDangerous) {
		return fmt.Errorf("tool %q requires confirmation and cannot run unattended", ev.ToolName)
	}
	if tool.Run == nil {
		return fmt.Errorf("tool %q has no handler", ev.ToolName)
	}

	runCtx, cancel := context.WithTimeout(ctx, taskRunTimeout)
	defer cancel()

	out, err := tool.Run(runCtx, ev.ToolAction, ev.ToolValue)
	if err != nil {
		return fmt.Errorf("tool %q: %w", ev.ToolName, err)
	}
	e.log.Info("scheduled task executed",
		logx.Int64("id", ev.ID), logx.String("tool", ev.ToolName),
		logx.String("action", ev.ToolAction), logx.String("result", truncate(out, 200)))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
