package jsonrpc_test

import (
	"encoding/json"
	"testing"

	"github.com/ggoodman/editor-mcp-go/internal/jsonrpc"
)

func TestAnyMessage_Classification(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType string
		wantID   string
	}{
		{"request with numeric id", `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`, "request", "7"},
		{"request with string id", `{"jsonrpc":"2.0","id":"abc","method":"chat/send","params":{"text":"hi"}}`, "request", "abc"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification", ""},
		{"result response", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response", "1"},
		{"error response", `{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"nope"}}`, "response", "2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var msg jsonrpc.AnyMessage
			if err := json.Unmarshal([]byte(tc.body), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if want, got := tc.wantType, msg.Type(); want != got {
				t.Fatalf("want type %q, got %q", want, got)
			}
			if want, got := tc.wantID, msg.ID.String(); want != got {
				t.Fatalf("want id %q, got %q", want, got)
			}
			if (msg.AsRequest() == nil) == (tc.wantType != "response") {
				t.Fatalf("AsRequest disagrees with type %q", tc.wantType)
			}
		})
	}
}

func TestAnyMessage_RejectsMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"wrong version":          `{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		"request with result":    `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`,
		"result and error":       `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`,
		"neither result nor err": `{"jsonrpc":"2.0","id":1}`,
		"object id":              `{"jsonrpc":"2.0","id":{},"method":"ping"}`,
	} {
		t.Run(name, func(t *testing.T) {
			var msg jsonrpc.AnyMessage
			if err := json.Unmarshal([]byte(body), &msg); err == nil {
				t.Fatalf("want error for %s", body)
			}
		})
	}
}

func TestNewErrorResponse_NullID(t *testing.T) {
	b, err := json.Marshal(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "Parse error", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"Parse error"},"id":null}`
	if got := string(b); want != got {
		t.Fatalf("want %s, got %s", want, got)
	}
}
