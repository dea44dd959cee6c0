package claudeagent

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// TaskLoopConfig configures an iterative task loop.
type TaskLoopConfig struct {
	// Task is the work the agent should complete.
	Task string

	// CompletionSignal is the text the agent outputs, wrapped in
	// <done></done> tags, once the task is finished.
	// Default: "TASK COMPLETE".
	CompletionSignal string

	// MaxPasses bounds how many times the loop reinjects the task before
	// giving up. Default: 10.
	MaxPasses int
}

// TaskLoop drives the agent at a task repeatedly until it signals
// completion.
//
// A Stop hook intercepts the agent's attempts to end the session: while
// the completion signal has not been seen and passes remain, the hook
// blocks the stop and reinjects the task prompt. The agent sees its
// previous work (modified files, commits) on every pass.
type TaskLoop struct {
	config TaskLoopConfig

	mu        sync.Mutex
	pass      int
	complete  bool
	totalCost float64
}

// LoopResult summarizes a finished task loop.
type LoopResult struct {
	// Passes is the number of passes the agent made over the task.
	Passes int

	// Complete reports whether the completion signal was observed.
	Complete bool

	// SessionID is the CLI session the loop ran in.
	SessionID string

	// TotalCostUSD is the cumulative cost across all passes.
	TotalCostUSD float64

	// Messages holds every conversation message from the run.
	Messages []Message
}

// NewTaskLoop creates a task loop with the given configuration.
func NewTaskLoop(config TaskLoopConfig) *TaskLoop {
	if config.CompletionSignal == "" {
		config.CompletionSignal = "TASK COMPLETE"
	}
	if config.MaxPasses == 0 {
		config.MaxPasses = 10
	}
	return &TaskLoop{config: config}
}

// Run executes the loop over a new client built from the given options.
//
// The loop installs its own Stop hook; do not register additional Stop
// hooks in opts. A TaskLoop instance runs once; create a new instance for
// another run.
func (l *TaskLoop) Run(ctx context.Context, opts ...Option) (*LoopResult, error) {
	opts = append(append([]Option{}, opts...),
		WithHook(HookStop, "", l.stopHook))

	client, err := NewClient(opts...)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return l.run(ctx, client)
}

// run is the Run body, split out so tests can drive it over a mock
// transport.
func (l *TaskLoop) run(ctx context.Context, client *Client) (*LoopResult, error) {
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	if err := client.SendMessage(ctx, l.initialPrompt()); err != nil {
		return nil, err
	}

	result := &LoopResult{}
	for msg, err := range client.ReceiveMessages(ctx) {
		if err != nil {
			return result, err
		}
		result.Messages = append(result.Messages, msg)

		switch m := msg.(type) {
		case AssistantMessage:
			l.observeAssistant(m)

		case ResultMessage:
			l.mu.Lock()
			l.totalCost = m.TotalCostUSD
			done := l.complete || l.pass >= l.config.MaxPasses
			l.mu.Unlock()

			result.SessionID = m.SessionID
			if done {
				l.finalize(result)
				return result, nil
			}
		}
	}

	l.finalize(result)
	return result, ctx.Err()
}

func (l *TaskLoop) finalize(result *LoopResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	result.Passes = l.pass
	result.Complete = l.complete
	result.TotalCostUSD = l.totalCost
}

// stopHook blocks session exit until the task is complete or the pass
// budget runs out.
func (l *TaskLoop) stopHook(
	ctx context.Context,
	input map[string]any,
	toolUseID string,
) (*HookOutput, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pass++
	if l.complete || l.pass >= l.config.MaxPasses {
		return nil, nil
	}

	out := Block(l.continuationPrompt(l.pass + 1))
	out.SystemMessage = fmt.Sprintf("task loop: pass %d of %d",
		l.pass+1, l.config.MaxPasses)
	return out, nil
}

// observeAssistant scans agent output for the completion signal.
func (l *TaskLoop) observeAssistant(msg AssistantMessage) {
	tag := fmt.Sprintf("<done>%s</done>", l.config.CompletionSignal)
	if strings.Contains(msg.ContentText(), tag) {
		l.mu.Lock()
		l.complete = true
		l.mu.Unlock()
	}
}

// Pass returns how many passes have run so far.
func (l *TaskLoop) Pass() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pass
}

// IsComplete reports whether the completion signal was observed.
func (l *TaskLoop) IsComplete() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.complete
}

func (l *TaskLoop) initialPrompt() string {
	return fmt.Sprintf(
		"%s\n\nWhen you have completed this task, output the completion signal:\n<done>%s</done>",
		l.config.Task, l.config.CompletionSignal)
}

func (l *TaskLoop) continuationPrompt(pass int) string {
	return fmt.Sprintf(
		"[Pass %d/%d] Your previous work is visible in the files. "+
			"Continue toward completion. When finished, output: <done>%s</done>\n\nTask: %s",
		pass, l.config.MaxPasses, l.config.CompletionSignal, l.config.Task)
}
