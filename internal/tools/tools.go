// Package tools holds the functions the task agent may call and the
// executor that contains their failures.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"risi/internal/llm"
)

// Func runs a tool. Returned errors and panics become {"error": ...}.
type Func func(ctx context.Context, args map[string]any) (map[string]any, error)

type Def struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Func        Func
}

// NewDef derives the parameter schema from T and decodes call arguments
// into a T before invoking fn.
func NewDef[T any](name, description string, fn func(ctx context.Context, arg T) (map[string]any, error)) (Def, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return Def{}, fmt.Errorf("schema for %s: %w", name, err)
	}

	return Def{
		Name:        name,
		Description: description,
		Parameters:  schema,
		Func: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var v T
			b, err := json.Marshal(args)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(b, &v); err != nil {
				return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
			}
			return fn(ctx, v)
		},
	}, nil
}

func MustNewDef[T any](name, description string, fn func(ctx context.Context, arg T) (map[string]any, error)) Def {
	d, err := NewDef(name, description, fn)
	if err != nil {
		panic(err)
	}
	return d
}

// Registry maps tool names to definitions. Registering a name twice keeps
// the last definition.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Def
}

func NewRegistry(defs ...Def) *Registry {
	r := &Registry{defs: make(map[string]Def)}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

func (r *Registry) Register(d Def) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[d.Name]; ok {
		log.Debug("Tool replaced", "tool", d.Name)
	}
	r.defs[d.Name] = d
}

func (r *Registry) Lookup(name string) (Def, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Defs returns all definitions sorted by name.
func (r *Registry) Defs() []Def {
	r.mu.RLock()
	out := make([]Def, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Specs returns the declarations handed to a provider.
func (r *Registry) Specs() []llm.ToolSpec {
	defs := r.Defs()
	out := make([]llm.ToolSpec, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

// Executor runs registered tools. Execute never fails: every problem is
// reported as an {"error": message} result the model can read.
type Executor struct {
	reg     *Registry
	timeout time.Duration
}

func NewExecutor(reg *Registry, timeout time.Duration) *Executor {
	return &Executor{reg: reg, timeout: timeout}
}

func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) map[string]any {
	d, ok := e.reg.Lookup(name)
	if !ok {
		log.Warn("Unknown tool", "tool", name)
		return errorResult(fmt.Sprintf("Tool '%s' not found", name))
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.call(ctx, d, args)
	if err != nil {
		log.Warn("Tool failed", "tool", name, "err", err, "took", time.Since(start))
		return errorResult(err.Error())
	}

	log.Info("Tool finished", "tool", name, "took", time.Since(start))
	if res == nil {
		res = map[string]any{}
	}
	return res
}

func (e *Executor) call(ctx context.Context, d Def, args map[string]any) (res map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Tool panicked", "tool", d.Name, "panic", r, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("tool %s panicked: %v", d.Name, r)
		}
	}()

	if args == nil {
		args = map[string]any{}
	}
	return d.Func(ctx, args)
}

func errorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}
