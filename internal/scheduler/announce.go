package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/malcolmhoward/dawn-sub001/internal/storage"
)

// announcementText builds the spoken phrase for a firing event.
func announcementText(ev storage.ScheduledEvent, loc *time.Location) string {
	switch ev.Type {
	case storage.TypeTimer:
		if ev.Name == "" {
			return "Timer complete!"
		}
		// Avoid "Your pasta timer timer is done!" when the name already says timer.
		if strings.Contains(strings.ToLower(ev.Name), "timer") {
			return fmt.Sprintf("Your %s is done!", ev.Name)
		}
		return fmt.Sprintf("Your %s timer is done!", ev.Name)

	case storage.TypeAlarm:
		return fmt.Sprintf("It's %s. Your alarm is going off.", ev.FireAt.In(loc).Format("03:04 PM"))

	case storage.TypeReminder:
		if ev.Message != "" {
			return "Reminder: " + ev.Message
		}
		return "You have a reminder."

	case storage.TypeTask:
		if ev.ToolName != "" {
			return fmt.Sprintf("Scheduled task complete: %s %s", ev.ToolAction, ev.ToolValue)
		}
		return "Scheduled task complete."
	}
	return ""
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
