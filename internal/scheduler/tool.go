package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/malcolmhoward/dawn-sub001/internal/tools"
)

// UserContext identifies the speaker behind a tool invocation and the
// satellite the request came from, so announcements route back correctly.
type UserContext struct {
	UserID         int64
	SourceUUID     string
	SourceLocation string
}

type userCtxKey struct{}

func WithUser(ctx context.Context, uc UserContext) context.Context {
	return context.WithValue(ctx, userCtxKey{}, uc)
}

func UserFromContext(ctx context.Context) (UserContext, bool) {
	uc, ok := ctx.Value(userCtxKey{}).(UserContext)
	return uc, ok
}

// toolDetails is the JSON payload a model sends to the scheduler tool.
type toolDetails struct {
	Type            string `json:"type,omitempty"`
	Name            string `json:"name,omitempty"`
	Message         string `json:"message,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	FireAt          string `json:"fire_at,omitempty"`
	Recurrence      string `json:"recurrence,omitempty"`
	RecurrenceDays  string `json:"recurrence_days,omitempty"`
	AnnounceAll     bool   `json:"announce_all,omitempty"`
	ToolName        string `json:"tool_name,omitempty"`
	ToolAction      string `json:"tool_action,omitempty"`
	ToolValue       string `json:"tool_value,omitempty"`
	EventID         int64  `json:"event_id,omitempty"`
	SnoozeMinutes   int    `json:"snooze_minutes,omitempty"`
}

// Tool exposes the engine to the model-facing tool registry. action selects
// the operation; value is a JSON object of details (may be empty for
// list/snooze/dismiss).
func (e *Engine) Tool() tools.Tool {
	return tools.Tool{
		Name: "scheduler",
		Run: func(ctx context.Context, action, value string) (string, error) {
			return e.runTool(ctx, action, value)
		},
	}
}

func (e *Engine) runTool(ctx context.Context, action, value string) (string, error) {
	var d toolDetails
	if strings.TrimSpace(value) != "" {
		if err := json.Unmarshal([]byte(value), &d); err != nil {
			return "", fmt.Errorf("invalid details: %w", err)
		}
	}
	uc, _ := UserFromContext(ctx)

	var res Result
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "create":
		res = e.Create(ctx, CreateRequest{
			UserID:          uc.UserID,
			Type:            d.Type,
			Name:            d.Name,
			Message:         d.Message,
			DurationMinutes: d.DurationMinutes,
			FireAt:          d.FireAt,
			Recurrence:      d.Recurrence,
			RecurrenceDays:  d.RecurrenceDays,
			SourceUUID:      uc.SourceUUID,
			SourceLocation:  uc.SourceLocation,
			AnnounceAll:     d.AnnounceAll,
			ToolName:        d.ToolName,
			ToolAction:      d.ToolAction,
			ToolValue:       d.ToolValue,
		})
	case "list":
		res = e.List(ctx, uc.UserID, d.Type)
	case "cancel":
		res = e.Cancel(ctx, uc.UserID, d.EventID, d.Name)
	case "query":
		res = e.Query(ctx, uc.UserID, d.EventID, d.Name)
	case "snooze":
		res = e.SnoozeRinging(ctx, d.SnoozeMinutes)
	case "dismiss":
		res = e.DismissRinging(ctx, d.EventID)
	default:
		return "", fmt.Errorf("unknown action %q: use 'create', 'list', 'cancel', 'query', 'snooze', or 'dismiss'", action)
	}
	return res.Text, nil
}
