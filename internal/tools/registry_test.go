package tools

import (
	"context"
	"errors"
	"testing"
)

func noop(ctx context.Context, action, value string) (string, error) { return "ok", nil }

func TestRegisterAndLookup(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if err := r.Register(Tool{Name: "Lights", Caps: CapSchedulable, Run: noop}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// lookup is case-insensitive
	tool, enabled, err := r.Lookup("lights")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !enabled {
		t.Errorf("tool not enabled by default")
	}
	if !tool.Caps.Has(CapSchedulable) || tool.Caps.Has(CapDangerous) {
		t.Errorf("caps = %b", tool.Caps)
	}

	if _, _, err := r.Lookup("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup(missing) = %v, want ErrNotFound", err)
	}
}

func TestRegisterRejectsDuplicatesAndNil(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if err := r.Register(Tool{Name: "x", Run: noop}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(Tool{Name: "X", Run: noop}); err == nil {
		t.Fatalf("Register accepted duplicate name")
	}
	if err := r.Register(Tool{Name: "y"}); err == nil {
		t.Fatalf("Register accepted nil run func")
	}
	if err := r.Register(Tool{Run: noop}); err == nil {
		t.Fatalf("Register accepted empty name")
	}
}

func TestInvokeHonorsEnabledFlag(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(Tool{Name: "music", Caps: CapSchedulable, Run: noop}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if out, err := r.Invoke(context.Background(), "music", "play", "jazz"); err != nil || out != "ok" {
		t.Fatalf("Invoke = (%q, %v)", out, err)
	}

	r.SetEnabled("music", false)
	if _, err := r.Invoke(context.Background(), "music", "play", "jazz"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Invoke(disabled) = %v, want ErrDisabled", err)
	}
}
