// Package jsonrpc holds the JSON-RPC 2.0 envelopes exchanged on the MCP
// transport.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only accepted value of the "jsonrpc" member.
const Version = "2.0"

// Message kinds reported by AnyMessage.Type.
const (
	KindRequest      = "request"
	KindNotification = "notification"
	KindResponse     = "response"
)

var (
	errMixedRequest  = errors.New("request carries result or error")
	errMixedResponse = errors.New("response carries both result and error")
	errEmptyResponse = errors.New("response carries neither result nor error")
)

// AnyMessage is a decoded inbound envelope of any kind. Decoding enforces the
// structural rules of JSON-RPC 2.0.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request is a call (with ID) or notification (without).
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Response answers a Request. A nil ID is written as null.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// Error is the error member of a Response.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message) }

// NewResultResponse marshals result into a success Response for id.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPCVersion: Version, Result: b, ID: id}, nil
}

// NewErrorResponse builds an error Response for id.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: Version,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

// NewNotification builds a notification. Nil params are omitted.
func NewNotification(method string, params any) (*Request, error) {
	n := &Request{JSONRPCVersion: Version, Method: method}
	if params == nil {
		return n, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	n.Params = b
	return n, nil
}

func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	type plain AnyMessage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.JSONRPCVersion != Version {
		return fmt.Errorf("unsupported jsonrpc version %q", p.JSONRPCVersion)
	}
	hasResult, hasError := len(p.Result) > 0, p.Error != nil
	switch {
	case p.Method != "" && (hasResult || hasError):
		return errMixedRequest
	case p.Method == "" && hasResult && hasError:
		return errMixedResponse
	case p.Method == "" && !hasResult && !hasError:
		return errEmptyResponse
	}
	*m = AnyMessage(p)
	return nil
}

// Type classifies the message as KindRequest, KindNotification or
// KindResponse.
func (m *AnyMessage) Type() string {
	switch {
	case m.Method == "":
		return KindResponse
	case m.ID.IsNil():
		return KindNotification
	default:
		return KindRequest
	}
}

// AsRequest returns the request or notification view of m, or nil for
// responses.
func (m *AnyMessage) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}
