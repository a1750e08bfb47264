package tool

import (
	"context"
	"fmt"
)

// Executor runs a single capability invocation. The returned map is merged
// into the function call output payload on success; an error resolves the
// call as failed.
type Executor interface {
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

type ExecutorFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return f(ctx, args)
}

// Capability pairs a declared tool schema with its executor.
type Capability struct {
	Tool     Tool
	Executor Executor
}

// Registry maps function names to capabilities. It is read-only after
// construction and safe for concurrent lookups.
type Registry struct {
	caps map[string]Capability
	list []Tool
}

func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		if c.Tool.Name == "" {
			return nil, fmt.Errorf("capability with empty name")
		}
		if c.Executor == nil {
			return nil, fmt.Errorf("capability %q has no executor", c.Tool.Name)
		}
		if _, dup := r.caps[c.Tool.Name]; dup {
			return nil, fmt.Errorf("duplicate capability %q", c.Tool.Name)
		}
		r.caps[c.Tool.Name] = c
		r.list = append(r.list, c.Tool)
	}
	return r, nil
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// Tools returns the declared tool list for the session update.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, len(r.list))
	copy(out, r.list)
	return out
}

func (r *Registry) Len() int {
	return len(r.caps)
}
