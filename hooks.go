package claudeagent

import (
	"context"
	"encoding/json"
	"strconv"
)

// HookEvent identifies a lifecycle point at which the agent CLI consults
// registered hooks before proceeding.
type HookEvent string

// Hook events supported by the agent CLI.
const (
	HookPreToolUse       HookEvent = "PreToolUse"
	HookPostToolUse      HookEvent = "PostToolUse"
	HookUserPromptSubmit HookEvent = "UserPromptSubmit"
	HookStop             HookEvent = "Stop"
	HookSubagentStop     HookEvent = "SubagentStop"
	HookPreCompact       HookEvent = "PreCompact"
)

// HookCallback is invoked when the CLI fires a matching hook.
//
// The input map carries the event payload (tool name, tool input, prompt
// text, depending on the event). toolUseID is set for tool-related events.
// Returning an error converts the invocation into an error control response
// without affecting other callbacks or the session.
type HookCallback func(
	ctx context.Context,
	input map[string]any,
	toolUseID string,
) (*HookOutput, error)

// HookMatcher pairs an optional matcher pattern with the callbacks to run
// when the pattern matches. An empty matcher matches every occurrence of
// the event.
type HookMatcher struct {
	Matcher string
	Hooks   []HookCallback
}

// HookOutput is a callback's verdict on the hooked operation.
//
// The zero value lets the operation proceed untouched. The wire field for
// Continue is literally "continue"; it is only emitted when the callback
// explicitly sets a value, since omitting it means proceed.
type HookOutput struct {
	// Continue, when set to false, stops the agent from proceeding.
	Continue *bool `json:"continue,omitempty"`

	// SuppressOutput hides the hook's stdout from the transcript.
	SuppressOutput bool `json:"suppressOutput,omitempty"`

	// StopReason is shown to the user when Continue is false.
	StopReason string `json:"stopReason,omitempty"`

	// Decision is "block" to reject the operation.
	Decision string `json:"decision,omitempty"`

	// Reason explains a block decision to the model.
	Reason string `json:"reason,omitempty"`

	// SystemMessage injects a message into the conversation.
	SystemMessage string `json:"systemMessage,omitempty"`

	// HookSpecificOutput carries event-specific fields, passed through raw.
	HookSpecificOutput json.RawMessage `json:"hookSpecificOutput,omitempty"`

	// Async marks the hook as still running; AsyncTimeout bounds the wait.
	Async        bool  `json:"async,omitempty"`
	AsyncTimeout int64 `json:"asyncTimeout,omitempty"`
}

// Block builds a hook output that rejects the operation with a reason.
func Block(reason string) *HookOutput {
	return &HookOutput{Decision: "block", Reason: reason}
}

// StopExecution builds a hook output that halts the agent entirely.
func StopExecution(reason string) *HookOutput {
	cont := false
	return &HookOutput{Continue: &cont, StopReason: reason}
}

// hookRegistry assigns stable callback ids to registered hooks and resolves
// incoming callback invocations.
//
// Ids are assigned in registration order as "hook_0", "hook_1", ... and are
// reported to the CLI during initialize so it can address individual
// callbacks.
type hookRegistry struct {
	callbacks map[string]HookCallback
	next      int
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{callbacks: make(map[string]HookCallback)}
}

// register assigns ids to every callback in the matcher configuration and
// returns the initialize-request representation.
func (r *hookRegistry) register(
	hooks map[HookEvent][]HookMatcher,
) map[string][]HookCallbackMatcher {
	if len(hooks) == 0 {
		return nil
	}

	wire := make(map[string][]HookCallbackMatcher, len(hooks))
	for event, matchers := range hooks {
		entries := make([]HookCallbackMatcher, 0, len(matchers))
		for _, matcher := range matchers {
			ids := make([]string, 0, len(matcher.Hooks))
			for _, cb := range matcher.Hooks {
				id := r.assign(cb)
				ids = append(ids, id)
			}
			entries = append(entries, HookCallbackMatcher{
				Matcher:         matcher.Matcher,
				HookCallbackIDs: ids,
			})
		}
		wire[string(event)] = entries
	}
	return wire
}

func (r *hookRegistry) assign(cb HookCallback) string {
	id := "hook_" + strconv.Itoa(r.next)
	r.next++
	r.callbacks[id] = cb
	return id
}

// lookup resolves a callback id received in a hook_callback request.
func (r *hookRegistry) lookup(id string) (HookCallback, bool) {
	cb, ok := r.callbacks[id]
	return cb, ok
}
