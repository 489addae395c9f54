package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
)

// Implementation-defined server error codes (-32000 to -32099).
const (
	// ErrorCodeBadSession is returned when a request arrives without a usable
	// session identifier.
	ErrorCodeBadSession ErrorCode = -32000
	// ErrorCodeBackendTransport reports a failed language-model backend call.
	ErrorCodeBackendTransport ErrorCode = -32001
	// ErrorCodeToolArguments reports tool-call arguments that could not be
	// parsed or validated.
	ErrorCodeToolArguments ErrorCode = -32002
	// ErrorCodeToolExecution reports a failed capability invocation.
	ErrorCodeToolExecution ErrorCode = -32003
	// ErrorCodeRoundLimit reports an agent turn that hit its round ceiling.
	ErrorCodeRoundLimit ErrorCode = -32004
)

// ErrorCodeRequestCancelled is used when a request was cancelled by the
// client or by session teardown.
const ErrorCodeRequestCancelled ErrorCode = -32800
