package claudeagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopHook(ctx context.Context, input map[string]any, toolUseID string) (*HookOutput, error) {
	return nil, nil
}

func TestHookRegistryAssignsSequentialIDs(t *testing.T) {
	registry := newHookRegistry()

	wire := registry.register(map[HookEvent][]HookMatcher{
		HookPreToolUse: {
			{Matcher: "Bash", Hooks: []HookCallback{nopHook, nopHook}},
			{Matcher: "", Hooks: []HookCallback{nopHook}},
		},
	})

	matchers := wire["PreToolUse"]
	require.Len(t, matchers, 2)
	assert.Equal(t, []string{"hook_0", "hook_1"}, matchers[0].HookCallbackIDs)
	assert.Equal(t, []string{"hook_2"}, matchers[1].HookCallbackIDs)

	for _, id := range []string{"hook_0", "hook_1", "hook_2"} {
		_, ok := registry.lookup(id)
		assert.True(t, ok, "missing callback for %s", id)
	}
	_, ok := registry.lookup("hook_3")
	assert.False(t, ok)
}

func TestHookRegistryEmpty(t *testing.T) {
	registry := newHookRegistry()
	assert.Nil(t, registry.register(nil))
}

// TestHookOutputWireKeys pins the JSON field names the CLI expects.
func TestHookOutputWireKeys(t *testing.T) {
	cont := false
	out := HookOutput{
		Continue:      &cont,
		StopReason:    "done",
		Decision:      "block",
		Reason:        "why",
		SystemMessage: "note",
		Async:         true,
		AsyncTimeout:  5000,
	}

	data, err := json.Marshal(out)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, false, fields["continue"])
	assert.Equal(t, "done", fields["stopReason"])
	assert.Equal(t, "block", fields["decision"])
	assert.Equal(t, "why", fields["reason"])
	assert.Equal(t, "note", fields["systemMessage"])
	assert.Equal(t, true, fields["async"])
	assert.Equal(t, float64(5000), fields["asyncTimeout"])
}

// TestHookOutputZeroValueOmitsContinue verifies that an unset Continue is
// absent from the wire, since omitting it means proceed.
func TestHookOutputZeroValueOmitsContinue(t *testing.T) {
	data, err := json.Marshal(HookOutput{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestBlockHelper(t *testing.T) {
	out := Block("too risky")
	assert.Equal(t, "block", out.Decision)
	assert.Equal(t, "too risky", out.Reason)
	assert.Nil(t, out.Continue)
}

func TestStopExecutionHelper(t *testing.T) {
	out := StopExecution("limit reached")
	require.NotNil(t, out.Continue)
	assert.False(t, *out.Continue)
	assert.Equal(t, "limit reached", out.StopReason)
}
