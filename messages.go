package claudeagent

import (
	"encoding/json"
)

// Message is the base interface for all records exchanged with the agent CLI.
//
// Records are either one-way conversation messages (user, assistant, system,
// result, stream_event) or control-protocol records used for correlated
// request/response exchanges. The MessageType method returns the wire type
// tag used for routing.
type Message interface {
	MessageType() string
}

// UserMessage represents a user prompt sent to the agent.
//
// The ParentToolUseID field links this message to a specific tool call when
// providing tool results; it is null for ordinary prompts.
type UserMessage struct {
	Type            string          `json:"type"` // Always "user"
	UUID            string          `json:"uuid,omitempty"`
	SessionID       string          `json:"session_id"`
	Message         APIUserMessage  `json:"message"`
	ParentToolUseID *string         `json:"parent_tool_use_id"`
	ToolUseResult   json.RawMessage `json:"tool_use_result,omitempty"`
}

// APIUserMessage is the message content in API format.
type APIUserMessage struct {
	Role    string             `json:"role"` // Always "user"
	Content []UserContentBlock `json:"content"`
}

// UserContentBlock is a content block in a user message.
type UserContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessageType implements Message.
func (m UserMessage) MessageType() string { return "user" }

// NewUserMessage builds a plain text user message for the given session.
func NewUserMessage(sessionID, text string) UserMessage {
	return UserMessage{
		Type:      "user",
		SessionID: sessionID,
		Message: APIUserMessage{
			Role: "user",
			Content: []UserContentBlock{
				{Type: "text", Text: text},
			},
		},
		ParentToolUseID: nil,
	}
}

// AssistantMessage represents a response from the agent.
//
// Assistant messages contain one or more content blocks that can be text,
// tool use requests, or thinking blocks.
type AssistantMessage struct {
	Type      string `json:"type"` // Always "assistant"
	UUID      string `json:"uuid,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Message   struct {
		Role    string         `json:"role"`
		Model   string         `json:"model,omitempty"`
		Content []ContentBlock `json:"content"`
	} `json:"message"`
	ParentToolUseID *string `json:"parent_tool_use_id,omitempty"`
}

// MessageType implements Message.
func (m AssistantMessage) MessageType() string { return "assistant" }

// ContentText returns the concatenated text from all text content blocks,
// ignoring tool use and thinking blocks.
func (m AssistantMessage) ContentText() string {
	var text string
	for _, block := range m.Message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text
}

// ContentBlock represents a single content element in an assistant message.
//
// Content blocks can be:
// - text: plain text response
// - tool_use: request to execute a tool
// - thinking: the model's reasoning process
type ContentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`    // For tool_use blocks
	Name     string          `json:"name,omitempty"`  // For tool_use blocks
	Input    json.RawMessage `json:"input,omitempty"` // For tool_use blocks
}

// SystemMessage represents an out-of-band notification from the agent CLI,
// such as the session init record.
type SystemMessage struct {
	Type      string `json:"type"` // Always "system"
	Subtype   string `json:"subtype"`
	UUID      string `json:"uuid,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Cwd            string   `json:"cwd,omitempty"`
	Tools          []string `json:"tools,omitempty"`
	Model          string   `json:"model,omitempty"`
	PermissionMode string   `json:"permissionMode,omitempty"`
	SlashCommands  []string `json:"slash_commands,omitempty"`
	OutputStyle    string   `json:"output_style,omitempty"`
}

// MessageType implements Message.
func (m SystemMessage) MessageType() string { return "system" }

// ResultMessage represents the final outcome of a conversation turn.
//
// This message signals completion (success or error) and includes cumulative
// usage statistics for the entire interaction.
type ResultMessage struct {
	Type string `json:"type"` // Always "result"

	// Subtype indicates the result kind: "success", "error_max_turns",
	// "error_during_execution".
	Subtype string `json:"subtype"`

	UUID      string `json:"uuid,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Result string `json:"result,omitempty"`

	DurationMs    int64 `json:"duration_ms,omitempty"`
	DurationAPIMs int64 `json:"duration_api_ms,omitempty"`
	IsError       bool  `json:"is_error,omitempty"`
	NumTurns      int   `json:"num_turns,omitempty"`

	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`

	Usage map[string]any `json:"usage,omitempty"`
}

// MessageType implements Message.
func (m ResultMessage) MessageType() string { return "result" }

// StreamEvent represents a progressive delta update during streaming.
//
// These are only emitted when partial message streaming is enabled; the
// Event payload is passed through raw.
type StreamEvent struct {
	Type            string          `json:"type"` // Always "stream_event"
	UUID            string          `json:"uuid,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
	Event           json.RawMessage `json:"event"`
	ParentToolUseID *string         `json:"parent_tool_use_id,omitempty"`
}

// MessageType implements Message.
func (m StreamEvent) MessageType() string { return "stream_event" }

// ControlRequest is a control-protocol request, sent in either direction.
//
// Each request has a unique ID correlating it with its eventual response.
// The host issues initialize/interrupt/set_permission_mode requests; the CLI
// issues can_use_tool/hook_callback/mcp_message requests.
type ControlRequest struct {
	Type      string             `json:"type"` // Always "control_request"
	RequestID string             `json:"request_id"`
	Request   ControlRequestBody `json:"request"`
}

// ControlRequestBody contains the subtype-specific request payload.
// This is a union type: different fields are set for different subtypes.
type ControlRequestBody struct {
	Subtype string `json:"subtype"`

	// initialize
	Hooks map[string][]HookCallbackMatcher `json:"hooks,omitempty"`

	// set_permission_mode
	Mode string `json:"mode,omitempty"`

	// can_use_tool
	ToolName              string           `json:"tool_name,omitempty"`
	Input                 map[string]any   `json:"input,omitempty"`
	PermissionSuggestions []map[string]any `json:"permission_suggestions,omitempty"`

	// hook_callback (Input doubles as the hook payload)
	CallbackID string `json:"callback_id,omitempty"`
	ToolUseID  string `json:"tool_use_id,omitempty"`

	// mcp_message
	ServerName string         `json:"server_name,omitempty"`
	Message    map[string]any `json:"message,omitempty"`
}

// HookCallbackMatcher carries the hook registration sent during initialize:
// an optional matcher pattern plus the callback ids assigned to it.
type HookCallbackMatcher struct {
	Matcher         string   `json:"matcher,omitempty"`
	HookCallbackIDs []string `json:"hookCallbackIds"`
}

// MessageType implements Message.
func (m ControlRequest) MessageType() string { return "control_request" }

// ControlResponse is a control-protocol response, sent in either direction.
//
// Responses correlate to requests via the nested request_id and carry either
// a result payload (subtype "success") or an error string (subtype "error").
type ControlResponse struct {
	Type     string              `json:"type"` // Always "control_response"
	Response ControlResponseBody `json:"response"`
}

// ControlResponseBody contains the response data.
type ControlResponseBody struct {
	Subtype   string         `json:"subtype"` // "success" or "error"
	RequestID string         `json:"request_id"`
	Response  map[string]any `json:"response,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// MessageType implements Message.
func (m ControlResponse) MessageType() string { return "control_response" }

// successResponse builds a success control response for a CLI-issued request.
func successResponse(requestID string, data map[string]any) ControlResponse {
	return ControlResponse{
		Type: "control_response",
		Response: ControlResponseBody{
			Subtype:   "success",
			RequestID: requestID,
			Response:  data,
		},
	}
}

// errorResponse builds an error control response for a CLI-issued request.
func errorResponse(requestID, message string) ControlResponse {
	return ControlResponse{
		Type: "control_response",
		Response: ControlResponseBody{
			Subtype:   "error",
			RequestID: requestID,
			Error:     message,
		},
	}
}

// ControlCancelRequest cancels a pending CLI-issued control request.
type ControlCancelRequest struct {
	Type      string `json:"type"` // Always "control_cancel_request"
	RequestID string `json:"request_id"`
}

// MessageType implements Message.
func (m ControlCancelRequest) MessageType() string { return "control_cancel_request" }

// RawMessage passes through stream records whose type tag the session does
// not model. They are delivered to the caller untouched so that protocol
// additions in the CLI do not break older clients.
type RawMessage struct {
	TypeTag string
	Data    json.RawMessage
}

// MessageType implements Message.
func (m RawMessage) MessageType() string { return m.TypeTag }

// MarshalJSON writes the raw payload unchanged.
func (m RawMessage) MarshalJSON() ([]byte, error) {
	return m.Data, nil
}

// ParseMessage parses a framed JSON record into the appropriate Message type.
//
// The "type" field determines the concrete type. Records with an unknown
// type tag are passed through as RawMessage rather than rejected, matching
// the pass-through contract for plain conversation messages.
func ParseMessage(data []byte) (Message, error) {
	var typeOnly struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &typeOnly); err != nil {
		return nil, &ErrJSONDecode{Message: "message is not a JSON object", Cause: err}
	}

	switch typeOnly.Type {
	case "user":
		var msg UserMessage
		err := json.Unmarshal(data, &msg)
		return msg, err

	case "assistant":
		var msg AssistantMessage
		err := json.Unmarshal(data, &msg)
		return msg, err

	case "system":
		var msg SystemMessage
		err := json.Unmarshal(data, &msg)
		return msg, err

	case "result":
		var msg ResultMessage
		err := json.Unmarshal(data, &msg)
		return msg, err

	case "stream_event":
		var msg StreamEvent
		err := json.Unmarshal(data, &msg)
		return msg, err

	case "control_request":
		var msg ControlRequest
		err := json.Unmarshal(data, &msg)
		return msg, err

	case "control_response":
		var msg ControlResponse
		err := json.Unmarshal(data, &msg)
		return msg, err

	case "control_cancel_request":
		var msg ControlCancelRequest
		err := json.Unmarshal(data, &msg)
		return msg, err

	default:
		// Unknown and untyped records pass through untouched; one odd
		// record must not poison the stream.
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return RawMessage{TypeTag: typeOnly.Type, Data: raw}, nil
	}
}
