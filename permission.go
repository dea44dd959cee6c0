package claudeagent

import (
	"context"
)

// PermissionMode controls how the agent CLI handles tool permission checks.
type PermissionMode string

// Permission modes accepted by the agent CLI.
const (
	PermissionModeDefault           PermissionMode = "default"
	PermissionModeAcceptEdits       PermissionMode = "acceptEdits"
	PermissionModePlan              PermissionMode = "plan"
	PermissionModeBypassPermissions PermissionMode = "bypassPermissions"
)

// PermissionHandler decides whether the agent may execute a tool.
//
// It is invoked for every can_use_tool request the CLI sends. Returning an
// error produces an error control response for that request only; the
// session and other in-flight requests are unaffected.
type PermissionHandler func(
	ctx context.Context,
	toolName string,
	input map[string]any,
	req PermissionRequest,
) (PermissionResult, error)

// PermissionRequest carries the context of a permission check beyond the
// tool name and input.
type PermissionRequest struct {
	// Suggestions are permission rule updates the CLI proposes, passed
	// through unmodified so a handler can echo selected ones back.
	Suggestions []map[string]any
}

// PermissionResult is the outcome of a permission check. It is implemented
// by PermissionAllow and PermissionDeny.
type PermissionResult interface {
	wireFormat() map[string]any
}

// PermissionAllow grants the tool execution.
//
// UpdatedInput, when set, replaces the tool's input before execution.
// UpdatedPermissions, when set, asks the CLI to persist the given rule
// updates.
type PermissionAllow struct {
	UpdatedInput       map[string]any
	UpdatedPermissions []map[string]any
}

func (p PermissionAllow) wireFormat() map[string]any {
	result := map[string]any{"behavior": "allow"}
	// The CLI expects updatedInput on every allow; default to the
	// original input at the call site when the handler leaves it nil.
	if p.UpdatedInput != nil {
		result["updatedInput"] = p.UpdatedInput
	}
	if len(p.UpdatedPermissions) > 0 {
		result["updatedPermissions"] = p.UpdatedPermissions
	}
	return result
}

// PermissionDeny rejects the tool execution with a message shown to the
// model. Interrupt additionally aborts the current turn.
type PermissionDeny struct {
	Message   string
	Interrupt bool
}

func (p PermissionDeny) wireFormat() map[string]any {
	result := map[string]any{
		"behavior": "deny",
		"message":  p.Message,
	}
	if p.Interrupt {
		result["interrupt"] = true
	}
	return result
}
