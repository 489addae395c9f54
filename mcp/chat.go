package mcp

// ChatSendRequest is the params of chat/send. An empty Model selects the
// server default.
type ChatSendRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitzero"`
}

type ChatSendResult struct {
	Text string `json:"text"`
}

type ChatToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatMessage is one conversation log entry. Role is one of system, user,
// assistant or tool; ToolCallID and Name are set on tool entries only.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ChatToolCall `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitzero"`
	Name       string         `json:"name,omitzero"`
}

type ChatHistoryResult struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatModelsResult struct {
	Models []string `json:"models"`
}
