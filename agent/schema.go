package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolDefinition is a tool in the backend's function-calling convention.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is the JSON Schema of the argument object.
	Parameters json.RawMessage
}

// SchemaAdapter lists the registry's tools, translates them into
// ToolDefinitions and caches the result. Each input schema is also compiled
// so that arguments can be validated before dispatch.
//
// The cache never expires unless WithTTL is given; Invalidate drops it
// explicitly.
type SchemaAdapter struct {
	reg CapabilityRegistry
	ttl time.Duration
	now func() time.Time
	log *slog.Logger

	mu        sync.Mutex
	valid     bool
	fetchedAt time.Time
	defs      []ToolDefinition
	compiled  map[string]*jsonschema.Schema
}

type SchemaOption func(*SchemaAdapter)

// WithTTL bounds how long a fetched tool list is reused. Zero means forever.
func WithTTL(d time.Duration) SchemaOption {
	return func(a *SchemaAdapter) { a.ttl = d }
}

func WithSchemaLogger(l *slog.Logger) SchemaOption {
	return func(a *SchemaAdapter) { a.log = l }
}

// withClock is used by tests.
func withClock(now func() time.Time) SchemaOption {
	return func(a *SchemaAdapter) { a.now = now }
}

func NewSchemaAdapter(reg CapabilityRegistry, opts ...SchemaOption) *SchemaAdapter {
	a := &SchemaAdapter{
		reg: reg,
		now: time.Now,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tools returns the cached tool definitions, listing the registry on the
// first call and whenever the cache was invalidated or expired.
func (a *SchemaAdapter) Tools(ctx context.Context) ([]ToolDefinition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return append([]ToolDefinition(nil), a.defs...), nil
}

// Invalidate drops the cached tool list.
func (a *SchemaAdapter) Invalidate() {
	a.mu.Lock()
	a.valid = false
	a.defs = nil
	a.compiled = nil
	a.mu.Unlock()
}

// Validate checks decoded arguments against the named tool's input schema.
// Tools without a compiled schema are accepted.
func (a *SchemaAdapter) Validate(ctx context.Context, name string, args any) error {
	a.mu.Lock()
	if err := a.refreshLocked(ctx); err != nil {
		a.mu.Unlock()
		return err
	}
	sch := a.compiled[name]
	a.mu.Unlock()
	if sch == nil {
		return nil
	}
	return sch.Validate(args)
}

func (a *SchemaAdapter) refreshLocked(ctx context.Context) error {
	if a.valid && (a.ttl <= 0 || a.now().Sub(a.fetchedAt) < a.ttl) {
		return nil
	}
	tools, err := a.reg.ListTools(ctx)
	if err != nil {
		return err
	}
	defs := make([]ToolDefinition, 0, len(tools))
	compiled := make(map[string]*jsonschema.Schema, len(tools))
	for _, t := range tools {
		params, err := json.Marshal(t.InputSchema)
		if err != nil {
			return fmt.Errorf("encode input schema for %q: %w", t.Name, err)
		}
		defs = append(defs, ToolDefinition{Name: t.Name, Description: t.Description, Parameters: params})

		sch, err := jsonschema.CompileString(url.PathEscape(t.Name)+".schema.json", string(params))
		if err != nil {
			a.log.WarnContext(ctx, "agent.schema.compile.fail", slog.String("tool", t.Name), slog.String("err", err.Error()))
			continue
		}
		compiled[t.Name] = sch
	}
	a.defs, a.compiled = defs, compiled
	a.valid, a.fetchedAt = true, a.now()
	a.log.DebugContext(ctx, "agent.schema.refresh", slog.Int("tools", len(defs)))
	return nil
}
