package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("tool not found")
	ErrDisabled = errors.New("tool disabled")
)

// Capability flags a tool declares at registration.
type Capability uint32

const (
	// CapSchedulable marks a tool as invokable by the scheduler.
	CapSchedulable Capability = 1 << iota

	// CapDangerous marks a tool whose actions have physical or destructive
	// side effects. The scheduler refuses dangerous tools outright, even
	// when they are also marked schedulable.
	CapDangerous
)

func (c Capability) Has(f Capability) bool { return c&f != 0 }

// Func executes one tool action. Implementations must respect ctx and
// return a short human-readable outcome.
type Func func(ctx context.Context, action, value string) (string, error)

// Tool is a registered callable.
type Tool struct {
	Name string
	Caps Capability
	Run  Func
}

// Registry holds the daemon's tool set. Registration happens at startup;
// enable/disable can change at runtime (config reload).
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	enabled map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   map[string]Tool{},
		enabled: map[string]bool{},
	}
}

// Register adds a tool, enabled by default. Name matching is case-insensitive.
func (r *Registry) Register(t Tool) error {
	name := canonical(t.Name)
	if name == "" {
		return errors.New("tool name is required")
	}
	if t.Run == nil {
		return fmt.Errorf("tool %q has no run func", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[name]; dup {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[name] = t
	r.enabled[name] = true
	return nil
}

func (r *Registry) SetEnabled(name string, on bool) {
	name = canonical(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; ok {
		r.enabled[name] = on
	}
}

// Lookup returns the tool and whether it is currently enabled.
func (r *Registry) Lookup(name string) (Tool, bool, error) {
	name = canonical(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, false, ErrNotFound
	}
	return t, r.enabled[name], nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Invoke runs an enabled tool by name. It does NOT apply the scheduler's
// safety gate; callers that execute on a schedule must use scheduler gating.
func (r *Registry) Invoke(ctx context.Context, name, action, value string) (string, error) {
	t, enabled, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	if !enabled {
		return "", ErrDisabled
	}
	return t.Run(ctx, action, value)
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
