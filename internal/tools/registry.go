package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry maps tool names to descriptors and handlers. Registration
// happens during startup; lookups and invocations are concurrent-safe.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*entry
}

type entry struct {
	descriptor Descriptor
	handler    Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*entry)}
}

// Register adds a tool. A duplicate name is an error, never a silent
// overwrite.
func (r *Registry) Register(descriptor Descriptor, handler Handler) error {
	if descriptor.Name == "" {
		return errors.New("tool name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("tool %q has no handler", descriptor.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[descriptor.Name]; exists {
		return fmt.Errorf("tool %q already registered", descriptor.Name)
	}
	r.tools[descriptor.Name] = &entry{descriptor: descriptor, handler: handler}
	return nil
}

// Get retrieves a descriptor by exact name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	return e.descriptor, true
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke validates args against the tool's input schema and runs the
// handler. Validation failures never reach the handler; handler panics
// and errors are normalized into a *ToolError and never escape.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result map[string]any, terr *ToolError) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, Errf(KindUnknownTool, "unknown tool: %s", name)
	}

	if err := validate(e.descriptor.InputSchema, args); err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			terr = Errf(KindExecutionFailed, "tool %s panicked: %v", name, rec)
		}
	}()

	out, err := e.handler(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return nil, toolErr
		}
		return nil, &ToolError{Kind: KindExecutionFailed, Message: err.Error()}
	}
	return out, nil
}

// validate checks required fields and declared scalar types. Extra
// arguments not covered by the schema pass through untouched.
func validate(schema Schema, args map[string]any) *ToolError {
	for _, f := range schema.Fields {
		value, present := args[f.Name]
		if !present {
			if f.Required {
				return Errf(KindInvalidParams, "missing required argument: %s", f.Name)
			}
			continue
		}
		if !typeMatches(f.Type, value) {
			return Errf(KindInvalidParams, "argument %s: expected %s, got %T", f.Name, f.Type, value)
		}
	}
	return nil
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		// JSON numbers decode as float64; an integer must be whole.
		switch v := value.(type) {
		case float64:
			return v == float64(int64(v))
		case float32:
			return v == float32(int64(v))
		default:
			return isNumber(value)
		}
	default:
		// Unknown declared types are not enforced.
		return true
	}
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}
