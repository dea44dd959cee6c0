package claudeagent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportBuildArgs(t *testing.T) {
	options := NewOptions(
		WithModel("claude-sonnet-4-5"),
		WithSystemPrompt("be brief"),
		WithPermissionMode(PermissionModeAcceptEdits),
		WithAllowedTools("Read", "Grep"),
		WithMaxTurns(3),
		WithResume("session-abc"),
		WithPartialMessages(),
	)
	transport := NewSubprocessTransportWithRunner(NewMockSubprocessRunner(), options)

	args := transport.buildArgs()

	assertFlag := func(flag, value string) {
		t.Helper()
		for i, arg := range args {
			if arg == flag && i+1 < len(args) {
				assert.Equal(t, value, args[i+1], "value for %s", flag)
				return
			}
		}
		t.Errorf("flag %s not found in %v", flag, args)
	}

	assertFlag("--output-format", "stream-json")
	assertFlag("--input-format", "stream-json")
	assertFlag("--model", "claude-sonnet-4-5")
	assertFlag("--system-prompt", "be brief")
	assertFlag("--permission-mode", "acceptEdits")
	assertFlag("--allowedTools", "Read,Grep")
	assertFlag("--max-turns", "3")
	assertFlag("--resume", "session-abc")
	assert.Contains(t, args, "--verbose")
	assert.Contains(t, args, "--include-partial-messages")
}

func TestTransportBuildArgsPermissionPromptTool(t *testing.T) {
	options := NewOptions(WithCanUseTool(func(
		ctx context.Context, toolName string, input map[string]any, req PermissionRequest,
	) (PermissionResult, error) {
		return PermissionAllow{}, nil
	}))
	transport := NewSubprocessTransportWithRunner(NewMockSubprocessRunner(), options)

	args := transport.buildArgs()
	assert.Contains(t, args, "--permission-prompt-tool")
}

func TestTransportBuildArgsSDKMCPConfig(t *testing.T) {
	server := NewMCPToolServer("calc", "1.0.0")
	options := NewOptions(WithSDKMCPServer(server))
	transport := NewSubprocessTransportWithRunner(NewMockSubprocessRunner(), options)

	args := transport.buildArgs()

	var config string
	for i, arg := range args {
		if arg == "--mcp-config" && i+1 < len(args) {
			config = args[i+1]
		}
	}
	require.NotEmpty(t, config)

	var decoded struct {
		MCPServers map[string]map[string]any `json:"mcpServers"`
	}
	require.NoError(t, json.Unmarshal([]byte(config), &decoded))
	require.Contains(t, decoded.MCPServers, "calc")
	assert.Equal(t, "sdk", decoded.MCPServers["calc"]["type"])
}

func TestTransportWriteSingleLines(t *testing.T) {
	runner := NewMockSubprocessRunner()
	transport := NewSubprocessTransportWithRunner(runner, NewOptions())
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(runner.StdinPipe)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Concurrent writers must never interleave partial lines.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			msg := NewUserMessage("s1", fmt.Sprintf("prompt %d", n))
			assert.NoError(t, transport.Write(context.Background(), msg))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		select {
		case line := <-lines:
			var decoded map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &decoded),
				"line %d is not standalone JSON: %s", i, line)
			assert.Equal(t, "user", decoded["type"])
		case <-time.After(5 * time.Second):
			t.Fatal("timed out reading written lines")
		}
	}
}

func TestTransportReadMessagesFramesRecords(t *testing.T) {
	runner := NewMockSubprocessRunner()
	transport := NewSubprocessTransportWithRunner(runner, NewOptions())
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	go func() {
		// One record split across writes plus one whole record.
		runner.StdoutPipe.WriteString(`{"type":"assistant","message":{"role":"assistant",`)
		runner.StdoutPipe.WriteString(`"content":[{"type":"text","text":"hi"}]}}` + "\n")
		runner.StdoutPipe.WriteString(`{"type":"result","subtype":"success"}` + "\n")
		runner.StdoutPipe.CloseWrite()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var types []string
	for msg, err := range transport.ReadMessages(ctx) {
		require.NoError(t, err)
		types = append(types, msg.MessageType())
	}
	assert.Equal(t, []string{"assistant", "result"}, types)
}

// TestTransportUntypedRecordPassesThrough checks that a well-formed record
// with no type tag is delivered as a raw passthrough instead of ending the
// stream.
func TestTransportUntypedRecordPassesThrough(t *testing.T) {
	runner := NewMockSubprocessRunner()
	transport := NewSubprocessTransportWithRunner(runner, NewOptions())
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	go func() {
		runner.StdoutPipe.WriteString(`{"event":"heartbeat"}` + "\n")
		runner.StdoutPipe.WriteString(`{"type":"result","subtype":"success"}` + "\n")
		runner.StdoutPipe.CloseWrite()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received []Message
	for msg, err := range transport.ReadMessages(ctx) {
		require.NoError(t, err)
		received = append(received, msg)
	}
	require.Len(t, received, 2)

	raw, ok := received[0].(RawMessage)
	require.True(t, ok, "untyped record arrives as a raw passthrough")
	assert.JSONEq(t, `{"event":"heartbeat"}`, string(raw.Data))
	assert.Equal(t, "result", received[1].MessageType())
}

func TestTransportOversizedRecord(t *testing.T) {
	runner := NewMockSubprocessRunner()
	options := NewOptions(WithMaxBufferSize(128))
	transport := NewSubprocessTransportWithRunner(runner, options)
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	go func() {
		runner.StdoutPipe.WriteString(`{"type":"assistant","text":"`)
		for i := 0; i < 8; i++ {
			runner.StdoutPipe.WriteString("xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var last error
	for _, err := range transport.ReadMessages(ctx) {
		last = err
		if err != nil {
			break
		}
	}
	var decodeErr *ErrJSONDecode
	require.ErrorAs(t, last, &decodeErr)
}

func TestTransportProcessExitError(t *testing.T) {
	runner := NewMockSubprocessRunner()
	transport := NewSubprocessTransportWithRunner(runner, NewOptions())
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	runner.StderrPipe.CloseWrite()
	runner.Exit(fmt.Errorf("exit status 2"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var last error
	for _, err := range transport.ReadMessages(ctx) {
		last = err
	}

	var exited *ErrProcessExited
	require.ErrorAs(t, last, &exited)
	assert.NotZero(t, exited.ExitCode)
}

func TestTransportStderrCapture(t *testing.T) {
	runner := NewMockSubprocessRunner()
	transport := NewSubprocessTransportWithRunner(runner, NewOptions())
	require.NoError(t, transport.Connect(context.Background()))
	defer func() {
		go runner.Exit(nil)
		transport.Close()
	}()

	require.NoError(t, runner.StderrPipe.WriteString("warn: something\nerr: it broke\n"))
	require.Eventually(t, func() bool {
		return strings.Contains(transport.StderrOutput(), "err: it broke")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, transport.StderrOutput(), "warn: something")
}

func TestTransportEndInput(t *testing.T) {
	runner := NewMockSubprocessRunner()
	transport := NewSubprocessTransportWithRunner(runner, NewOptions())
	require.NoError(t, transport.Connect(context.Background()))
	defer transport.Close()

	require.NoError(t, transport.EndInput())
	require.NoError(t, transport.EndInput(), "EndInput is idempotent")

	err := transport.Write(context.Background(), NewUserMessage("s1", "late"))
	var closed *ErrTransportClosed
	assert.ErrorAs(t, err, &closed)
}

// TestTransportWriteAbandonmentPoisonsStdin covers a write abandoned on
// context expiry: the in-flight write still owns stdin, so later writers
// must be refused rather than allowed to interleave partial lines.
func TestTransportWriteAbandonmentPoisonsStdin(t *testing.T) {
	runner := NewMockSubprocessRunner()
	transport := NewSubprocessTransportWithRunner(runner, NewOptions())
	require.NoError(t, transport.Connect(context.Background()))
	defer func() {
		go runner.Exit(nil)
		transport.Close()
	}()

	// Nothing reads the CLI side of stdin, so this write blocks until the
	// context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := transport.Write(ctx, NewUserMessage("s1", "stuck"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = transport.Write(context.Background(), NewUserMessage("s1", "next"))
	var closed *ErrTransportClosed
	assert.ErrorAs(t, err, &closed)
}

func TestTransportCloseIdempotent(t *testing.T) {
	runner := NewMockSubprocessRunner()
	transport := NewSubprocessTransportWithRunner(runner, NewOptions())
	require.NoError(t, transport.Connect(context.Background()))

	go runner.Exit(nil)
	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())

	err := transport.Write(context.Background(), NewUserMessage("s1", "x"))
	var closed *ErrTransportClosed
	assert.ErrorAs(t, err, &closed)
}
