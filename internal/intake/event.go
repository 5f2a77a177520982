// Package intake implements C2: the synchronous pipeline from one raw
// tool-use event to an admitted, redacted, de-duplicated observation (or a
// silent drop). Every step is pure and cheap — the whole pipeline targets
// the host's ≤100ms hook budget, hard ceiling 2s.
package intake

// Event is the hook IPC payload described in §6: one JSON object per
// invocation from the host's hook runtime.
type Event struct {
	HookEventName string         `json:"hook_event_name"`
	SessionID     string         `json:"session_id"`
	Cwd           string         `json:"cwd"`
	ToolName      string         `json:"tool_name,omitempty"`
	ToolInput     map[string]any `json:"tool_input,omitempty"`
	ToolResponse  any            `json:"tool_response,omitempty"`
	ToolUseID     string         `json:"tool_use_id,omitempty"`
}

// laminarkMCPPrefix is the self-reference guard: tool names in Laminark's own
// MCP namespace are dropped silently so the system never observes itself.
const laminarkMCPPrefix = "mcp__laminark__"
