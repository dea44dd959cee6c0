package claudeagent

import (
	"context"
	"encoding/json"
	"fmt"
)

// safeHandleControlRequest wraps handleControlRequest so a panicking user
// callback is reported as an error response instead of crashing the process.
func (s *Session) safeHandleControlRequest(
	ctx context.Context,
	req ControlRequest,
) (response map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return s.handleControlRequest(ctx, req)
}

// handleControlRequest executes one CLI-issued control request and returns
// the response payload. Errors become error control responses for this
// request only; other in-flight requests and the session are unaffected.
func (s *Session) handleControlRequest(
	ctx context.Context,
	req ControlRequest,
) (map[string]any, error) {
	body := req.Request

	s.logger.Debug().
		Str("subtype", body.Subtype).
		Str("request_id", req.RequestID).
		Msg("handling control request")

	switch body.Subtype {
	case "can_use_tool":
		return s.handleCanUseTool(ctx, body)

	case "hook_callback":
		return s.handleHookCallback(ctx, body)

	case "mcp_message", "mcp_request":
		return s.handleMCPMessage(ctx, body)

	default:
		return nil, &ErrProtocolViolation{
			Message: fmt.Sprintf("unsupported control request subtype: %s", body.Subtype),
		}
	}
}

// handleCanUseTool consults the registered permission handler.
//
// An allow verdict always carries updatedInput on the wire; when the
// handler leaves it nil the original input is echoed back.
func (s *Session) handleCanUseTool(
	ctx context.Context,
	body ControlRequestBody,
) (map[string]any, error) {
	if s.options.CanUseTool == nil {
		return nil, fmt.Errorf(
			"can_use_tool requested but no permission handler is registered")
	}

	result, err := s.options.CanUseTool(ctx, body.ToolName, body.Input,
		PermissionRequest{Suggestions: body.PermissionSuggestions})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("permission handler returned no result")
	}

	wire := result.wireFormat()
	if allow, ok := result.(PermissionAllow); ok && allow.UpdatedInput == nil {
		wire["updatedInput"] = body.Input
	}
	return wire, nil
}

// handleHookCallback invokes the hook callback addressed by id.
func (s *Session) handleHookCallback(
	ctx context.Context,
	body ControlRequestBody,
) (map[string]any, error) {
	callback, ok := s.hooks.lookup(body.CallbackID)
	if !ok {
		return nil, fmt.Errorf("no hook callback registered for id: %s", body.CallbackID)
	}

	output, err := callback(ctx, body.Input, body.ToolUseID)
	if err != nil {
		return nil, err
	}
	if output == nil {
		output = &HookOutput{}
	}

	// Round-trip through JSON so the response carries the output's wire
	// field names.
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hook output: %w", err)
	}
	response := make(map[string]any)
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to encode hook output: %w", err)
	}
	return response, nil
}

// handleMCPMessage routes a JSON-RPC message to the named in-process tool
// server. JSON-RPC level failures, an unknown server name included, travel
// as inner error objects inside the mcp_response payload of a success
// response; the control exchange itself still worked.
func (s *Session) handleMCPMessage(
	ctx context.Context,
	body ControlRequestBody,
) (map[string]any, error) {
	server, ok := s.options.SDKMCPServers[body.ServerName]
	if !ok {
		id := body.Message["id"]
		response := jsonRPCError(id, jsonRPCMethodNotFound,
			fmt.Sprintf("no in-process MCP server named: %s", body.ServerName))
		return map[string]any{"mcp_response": response}, nil
	}

	response := server.HandleMessage(ctx, body.Message)
	return map[string]any{"mcp_response": response}, nil
}
