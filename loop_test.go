package claudeagent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLoopDefaults(t *testing.T) {
	loop := NewTaskLoop(TaskLoopConfig{Task: "fix the build"})
	assert.Equal(t, "TASK COMPLETE", loop.config.CompletionSignal)
	assert.Equal(t, 10, loop.config.MaxPasses)
}

func TestTaskLoopInitialPrompt(t *testing.T) {
	loop := NewTaskLoop(TaskLoopConfig{
		Task:             "write the docs",
		CompletionSignal: "DOCS DONE",
	})

	prompt := loop.initialPrompt()
	assert.Contains(t, prompt, "write the docs")
	assert.Contains(t, prompt, "<done>DOCS DONE</done>")
}

// TestTaskLoopStopHookBlocksUntilComplete walks the hook through a full
// run: block while passes remain, allow once the signal has been seen.
func TestTaskLoopStopHookBlocksUntilComplete(t *testing.T) {
	loop := NewTaskLoop(TaskLoopConfig{Task: "refactor", MaxPasses: 3})
	ctx := context.Background()

	// Pass 1: incomplete, block with a continuation prompt.
	out, err := loop.stopHook(ctx, nil, "")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "block", out.Decision)
	assert.Contains(t, out.Reason, "[Pass 2/3]")
	assert.Equal(t, 1, loop.Pass())

	// Signal observed between passes.
	msg := AssistantMessage{Type: "assistant"}
	msg.Message.Content = []ContentBlock{
		{Type: "text", Text: "All done. <done>TASK COMPLETE</done>"},
	}
	loop.observeAssistant(msg)
	require.True(t, loop.IsComplete())

	// Pass 2: complete, let the session stop.
	out, err = loop.stopHook(ctx, nil, "")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestTaskLoopStopHookHonorsPassBudget(t *testing.T) {
	loop := NewTaskLoop(TaskLoopConfig{Task: "migrate", MaxPasses: 2})
	ctx := context.Background()

	out, err := loop.stopHook(ctx, nil, "")
	require.NoError(t, err)
	require.NotNil(t, out)

	// Second call hits the budget even though the task never completed.
	out, err = loop.stopHook(ctx, nil, "")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.False(t, loop.IsComplete())
}

func TestTaskLoopSignalMustBeTagged(t *testing.T) {
	loop := NewTaskLoop(TaskLoopConfig{Task: "x"})

	msg := AssistantMessage{Type: "assistant"}
	msg.Message.Content = []ContentBlock{
		{Type: "text", Text: "I will output TASK COMPLETE when finished."},
	}
	loop.observeAssistant(msg)
	assert.False(t, loop.IsComplete(), "bare signal text must not complete the loop")
}

// TestTaskLoopRunOverMockTransport runs the loop end to end against a
// scripted CLI that stops after the first pass.
func TestTaskLoopRunOverMockTransport(t *testing.T) {
	runner := NewMockSubprocessRunner()
	loop := NewTaskLoop(TaskLoopConfig{Task: "say hi", MaxPasses: 1})

	options := NewOptions(WithHook(HookStop, "", loop.stopHook))
	transport := NewSubprocessTransportWithRunner(runner, options)
	client := NewClientWithTransport(transport, options)
	t.Cleanup(func() { client.Close() })

	cli := newScriptedCLI(t, runner)
	go func() {
		cli.answerInitialize()

		prompt := cli.next()
		if prompt == nil {
			return
		}
		message := prompt["message"].(map[string]any)
		content := message["content"].([]any)
		text := content[0].(map[string]any)["text"].(string)
		assert.True(t, strings.Contains(text, "say hi"))

		cli.emit(`{"type":"assistant","session_id":"s9","message":{"role":"assistant","content":[{"type":"text","text":"hi <done>TASK COMPLETE</done>"}]}}`)
		cli.emit(`{"type":"result","subtype":"success","session_id":"s9","total_cost_usd":0.01}`)
		cli.finish()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := loop.run(ctx, client)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.Equal(t, "s9", result.SessionID)
	assert.InDelta(t, 0.01, result.TotalCostUSD, 1e-9)
	assert.Len(t, result.Messages, 2)
}
