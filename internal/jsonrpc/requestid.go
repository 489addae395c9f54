package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC id. It holds the id's canonical JSON token (a
// string or a number); a nil *RequestID stands for an absent or null id.
type RequestID struct {
	raw json.RawMessage
}

// NewRequestID wraps a string or integer id. Other types yield nil.
func NewRequestID(v any) *RequestID {
	switch v.(type) {
	case string, int, int32, int64, uint32, uint64:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return &RequestID{raw: b}
	}
	return nil
}

// String returns the id's text: the unquoted value of a string id or the
// literal of a numeric one. Absent ids render as "".
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if id.raw[0] == '"' {
		var s string
		_ = json.Unmarshal(id.raw, &s)
		return s
	}
	return string(id.raw)
}

// IsNil reports whether the id is absent or null.
func (id *RequestID) IsNil() bool { return id == nil || len(id.raw) == 0 }

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.raw = nil
		return nil
	}
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.(type) {
	case string, float64:
		id.raw = append(json.RawMessage(nil), data...)
		return nil
	default:
		return fmt.Errorf("id must be a string or number, got %s", data)
	}
}
