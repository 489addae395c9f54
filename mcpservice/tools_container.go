package mcpservice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

// ErrToolNotFound is returned for calls naming an unregistered tool.
var ErrToolNotFound = errors.New("tool not found")

const defaultPageSize = 50

// ToolsContainer is a mutable tool set that serves tools/list and
// tools/call and announces changes to list_changed subscribers.
type ToolsContainer struct {
	mu       sync.RWMutex
	order    []string
	tools    map[string]StaticTool
	pageSize int

	notifier ChangeNotifier
}

var (
	_ ToolsCapability  = (*ToolsContainer)(nil)
	_ ChangeSubscriber = (*ToolsContainer)(nil)
)

// NewToolsContainer registers defs in order. A later definition replaces an
// earlier one of the same name in place.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	c := &ToolsContainer{tools: make(map[string]StaticTool, len(defs)), pageSize: defaultPageSize}
	for _, d := range defs {
		name := d.Descriptor.Name
		if _, dup := c.tools[name]; !dup {
			c.order = append(c.order, name)
		}
		c.tools[name] = d
	}
	return c
}

// SetPageSize sets the tools/list page size. Non-positive values are ignored.
func (c *ToolsContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.pageSize = n
	c.mu.Unlock()
}

// Add registers def unless its name is taken and reports whether it did.
func (c *ToolsContainer) Add(ctx context.Context, def StaticTool) bool {
	c.mu.Lock()
	name := def.Descriptor.Name
	if _, taken := c.tools[name]; taken {
		c.mu.Unlock()
		return false
	}
	c.order = append(c.order, name)
	c.tools[name] = def
	c.mu.Unlock()

	c.NotifyChanged(ctx)
	return true
}

// Remove unregisters the named tool and reports whether it existed.
func (c *ToolsContainer) Remove(ctx context.Context, name string) bool {
	c.mu.Lock()
	_, ok := c.tools[name]
	if ok {
		delete(c.tools, name)
		c.order = slices.DeleteFunc(c.order, func(n string) bool { return n == name })
	}
	c.mu.Unlock()

	if ok {
		c.NotifyChanged(ctx)
	}
	return ok
}

// NotifyChanged signals list_changed subscribers without altering the tool
// set. Tools whose output depends on outside state, such as the project file
// list, call it when that state changes.
func (c *ToolsContainer) NotifyChanged(context.Context) {
	c.notifier.Notify()
}

// Close ends every change subscription.
func (c *ToolsContainer) Close() { c.notifier.Close() }

func (c *ToolsContainer) Subscribe() (<-chan struct{}, func()) {
	return c.notifier.Subscribe()
}

// Call runs the named tool.
func (c *ToolsContainer) Call(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, errors.New("tool name is required")
	}
	c.mu.RLock()
	def, ok := c.tools[req.Name]
	c.mu.RUnlock()
	if !ok || def.Handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	return def.Handler(ctx, session, req)
}

func (c *ToolsContainer) ListTools(_ context.Context, _ sessions.Session, cursor *string) (Page[mcp.Tool], error) {
	c.mu.RLock()
	all := make([]mcp.Tool, 0, len(c.order))
	for _, name := range c.order {
		all = append(all, c.tools[name].Descriptor)
	}
	size := c.pageSize
	c.mu.RUnlock()
	return paginate(all, size, cursor), nil
}

func (c *ToolsContainer) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	return c.Call(ctx, session, req)
}

func (c *ToolsContainer) GetListChangedCapability(context.Context, sessions.Session) (ToolListChangedCapability, bool, error) {
	return listChangedRegistrar{sub: c}, true, nil
}

// listChangedRegistrar forwards change signals to fn until ctx ends.
type listChangedRegistrar struct{ sub ChangeSubscriber }

func (r listChangedRegistrar) Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (bool, error) {
	if fn == nil {
		return false, nil
	}
	ch, unsubscribe := r.sub.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case _, open := <-ch:
				if !open {
					return
				}
				fn(ctx, session)
			}
		}
	}()
	return true, nil
}
