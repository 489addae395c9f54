// Package agent drives a conversational tool-calling loop.
//
// A Loop takes a user message, asks a Backend (a chat-completions style
// language model) for a reply, and while the reply requests tool calls it
// dispatches them to a CapabilityRegistry, appends the results to the
// Conversation and asks again. The turn ends when the model answers without
// requesting tools.
//
//	conv := agent.NewConversation()
//	adapter := agent.NewSchemaAdapter(agent.NewLocalRegistry(tools, nil))
//	loop := agent.NewLoop(backend, adapter, agent.WithMaxRounds(10))
//	answer, err := loop.Advance(ctx, conv, "how many lines does this file have?", "gpt-4o")
//
// All failures are fatal for the current turn and are reported as one of
// *BackendTransportError, *ToolArgumentError, *ToolExecutionError or
// ErrMaxRoundsExceeded. The Conversation keeps every message appended before
// the failure so that a retry continues the same history.
package agent
