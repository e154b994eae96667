// Package tools defines memoryd's tool manifest and dispatch table (spec
// §6): one Tool per external operation, registered into a Registry a
// transport can list and dispatch against. The manifest (name,
// description, input schema) and the dispatch table are generated from
// the same Tool values, so they can never drift apart (spec §9).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentmemory/memoryd/internal/output"
)

// Tool is one external operation memoryd exposes (spec §6).
type Tool interface {
	// Name is the tool's dispatch key (e.g. "record_event", "build_acb").
	Name() string
	// Description is a human-readable summary for the manifest.
	Description() string
	// InputSchema is the JSON Schema for the tool's parameters.
	InputSchema() json.RawMessage
	// Execute runs the tool and returns the response envelope (spec §6,
	// §9 output envelope). Execute itself never returns a Go error for
	// request-level failures — those are encoded in the envelope via
	// output.Error — only for conditions the dispatcher itself should
	// treat as fatal (malformed registration, context cancellation).
	Execute(ctx context.Context, params json.RawMessage) (output.Response, error)
}

// Definition is a tool's manifest entry.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Registry holds every registered tool, keyed by name, generalizing the
// teacher's command registration pattern to the tool-call boundary.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. It panics on a duplicate name, since that is a
// startup-time wiring bug, not a runtime condition.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tool %q already registered", name))
	}
	r.tools[name] = t
	r.order = append(r.order, name)
}

// Get returns a tool by name, or nil if unregistered.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Manifest lists every registered tool's definition in registration
// order, the shape `cmd/memoryd manifest` prints (spec §9).
func (r *Registry) Manifest() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}
	return defs
}

// Dispatch looks up a tool by name and executes it, returning a NotFound
// envelope for an unknown tool rather than a Go error, since an unknown
// tool name is a client request-shape problem, not a process failure.
func (r *Registry) Dispatch(ctx context.Context, name string, params json.RawMessage) output.Response {
	t := r.Get(name)
	if t == nil {
		return output.Response{
			SchemaVersion: "v1",
			Success:       false,
			Error:         fmt.Sprintf("unknown tool: %s", name),
			ErrorCode:     "NotFound",
		}
	}
	resp, err := t.Execute(ctx, params)
	if err != nil {
		return output.Error(err)
	}
	return resp
}
