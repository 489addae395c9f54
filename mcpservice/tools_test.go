package mcpservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/editor-mcp-go/mcp"
	"github.com/ggoodman/editor-mcp-go/mcpservice"
	"github.com/ggoodman/editor-mcp-go/sessions"
)

type moveArgs struct {
	Row    int    `json:"row" jsonschema:"minimum=1,description=1-based row"`
	Column int    `json:"column" jsonschema:"minimum=1,description=1-based column"`
	Note   string `json:"note,omitempty"`
}

func moveTool() mcpservice.StaticTool {
	return mcpservice.NewTool[moveArgs]("move", func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[moveArgs]) error {
		a := r.Args()
		b, _ := json.Marshal(a)
		return w.AppendText(string(b))
	}, mcpservice.WithToolDescription("move it"))
}

func namedTool(name string) mcpservice.StaticTool {
	return mcpservice.NewTool[struct{}](name, func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[struct{}]) error {
		return w.AppendText(name)
	})
}

func TestNewTool_ReflectsInputSchema(t *testing.T) {
	desc := moveTool().Descriptor
	if desc.Name != "move" || desc.Description != "move it" {
		t.Fatalf("unexpected descriptor %+v", desc)
	}
	s := desc.InputSchema
	if s.Type != "object" {
		t.Fatalf("want object schema, got %q", s.Type)
	}
	if s.AdditionalProperties == nil || *s.AdditionalProperties {
		t.Fatalf("want additionalProperties=false, got %v", s.AdditionalProperties)
	}
	row, ok := s.Properties["row"]
	if !ok || row.Type != "integer" {
		t.Fatalf("want integer row property, got %+v", s.Properties)
	}
	if row.Minimum == nil || *row.Minimum != 1 {
		t.Fatalf("want row minimum 1, got %v", row.Minimum)
	}
	if row.Description != "1-based row" {
		t.Fatalf("want description, got %q", row.Description)
	}
	want := map[string]bool{"row": true, "column": true}
	if len(s.Required) != len(want) {
		t.Fatalf("want required %v, got %v", want, s.Required)
	}
	for _, r := range s.Required {
		if !want[r] {
			t.Fatalf("unexpected required %q", r)
		}
	}
}

func TestNewTool_DecodesArguments(t *testing.T) {
	c := mcpservice.NewToolsContainer(moveTool())
	sess := sessions.NewTransport(nil)

	t.Run("valid", func(t *testing.T) {
		res, err := c.Call(context.Background(), sess, &mcp.CallToolRequestReceived{Name: "move", Arguments: json.RawMessage(`{"row":3,"column":4}`)})
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if res.IsError {
			t.Fatalf("unexpected error result: %+v", res)
		}
		if got, want := mcpservice.ResultText(res), `{"row":3,"column":4}`; got != want {
			t.Fatalf("want %s, got %s", want, got)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		res, err := c.Call(context.Background(), sess, &mcp.CallToolRequestReceived{Name: "move", Arguments: json.RawMessage(`{"row":3,"column":4,"bogus":1}`)})
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if !res.IsError {
			t.Fatalf("want error result for unknown field")
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := c.Call(context.Background(), sess, &mcp.CallToolRequestReceived{Name: "nope"})
		if !errors.Is(err, mcpservice.ErrToolNotFound) {
			t.Fatalf("want ErrToolNotFound, got %v", err)
		}
	})
}

func TestToolsContainer_ListToolsPages(t *testing.T) {
	c := mcpservice.NewToolsContainer(namedTool("a"), namedTool("b"), namedTool("c"))
	c.SetPageSize(2)

	first, err := c.ListTools(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Items) != 2 || first.NextCursor == nil {
		t.Fatalf("want 2 items and a cursor, got %d items cursor=%v", len(first.Items), first.NextCursor)
	}
	second, err := c.ListTools(context.Background(), nil, first.NextCursor)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(second.Items) != 1 || second.Items[0].Name != "c" || second.NextCursor != nil {
		t.Fatalf("unexpected second page %+v", second)
	}
}

func TestToolsContainer_ListChangedRegistration(t *testing.T) {
	c := mcpservice.NewToolsContainer(namedTool("a"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lc, ok, err := c.GetListChangedCapability(ctx, nil)
	if err != nil || !ok {
		t.Fatalf("want listChanged capability, got ok=%v err=%v", ok, err)
	}
	fired := make(chan struct{}, 4)
	if ok, err := lc.Register(ctx, nil, func(ctx context.Context, _ sessions.Session) { fired <- struct{}{} }); err != nil || !ok {
		t.Fatalf("register: ok=%v err=%v", ok, err)
	}

	if !c.Add(ctx, namedTool("b")) {
		t.Fatalf("add returned false")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("no list changed callback after Add")
	}

	if c.Add(ctx, namedTool("b")) {
		t.Fatalf("duplicate add should be rejected")
	}
	if !c.Remove(ctx, "a") {
		t.Fatalf("remove returned false")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("no list changed callback after Remove")
	}
}

func TestChangeNotifier_CoalescesAndUnsubscribes(t *testing.T) {
	var cn mcpservice.ChangeNotifier
	ch, cancel := cn.Subscribe()

	for i := 0; i < 3; i++ {
		cn.Notify()
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("bursts should coalesce into a single pending signal")
	default:
	}

	if got := cn.Len(); got != 1 {
		t.Fatalf("want 1 subscriber, got %d", got)
	}
	cancel()
	cancel()
	if got := cn.Len(); got != 0 {
		t.Fatalf("want 0 subscribers after cancel, got %d", got)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}

	cn.Close()
	closedCh, _ := cn.Subscribe()
	if _, ok := <-closedCh; ok {
		t.Fatal("subscribe after close should return a closed channel")
	}
}
