package agent

import (
	"fmt"
	"sync"
)

// Role is the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a model-issued request to invoke a named tool. Arguments holds
// the JSON-encoded argument object exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of a Conversation. Content is never null on the wire:
// a missing or null content decodes to "" and always encodes as a string.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

func (m Message) clone() Message {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return m
}

// Conversation is an ordered, append-only message log for one chat context.
// It is safe for concurrent use, though a Loop is its only writer during a
// turn.
type Conversation struct {
	mu      sync.Mutex
	msgs    []Message
	callIDs map[string]struct{}
}

func NewConversation() *Conversation {
	return &Conversation{callIDs: make(map[string]struct{})}
}

// Append adds msgs in order. A tool message must carry the identifier of a
// tool call made by an earlier assistant message; otherwise nothing from the
// batch is stored and ErrOrphanToolMessage is returned. Tool calls within one
// assistant message need distinct, non-empty ids (ErrInvalidToolCall).
func (c *Conversation) Append(msgs ...Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]struct{})
	known := func(id string) bool {
		_, a := c.callIDs[id]
		_, b := pending[id]
		return a || b
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
		}
		if m.Role == RoleTool && (m.ToolCallID == "" || !known(m.ToolCallID)) {
			return fmt.Errorf("%w: message %d references %q", ErrOrphanToolMessage, i, m.ToolCallID)
		}
		if m.Role == RoleAssistant {
			issued := make(map[string]struct{}, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				if _, dup := issued[tc.ID]; tc.ID == "" || dup {
					return fmt.Errorf("%w: message %d call %q (%s)", ErrInvalidToolCall, i, tc.ID, tc.Name)
				}
				issued[tc.ID] = struct{}{}
				pending[tc.ID] = struct{}{}
			}
		}
	}
	for id := range pending {
		c.callIDs[id] = struct{}{}
	}
	for _, m := range msgs {
		c.msgs = append(c.msgs, m.clone())
	}
	return nil
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.clone()
	}
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return Message{}, false
	}
	return c.msgs[len(c.msgs)-1].clone(), true
}

// Clear drops every message.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.msgs = nil
	c.callIDs = make(map[string]struct{})
	c.mu.Unlock()
}
