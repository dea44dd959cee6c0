package claudeagent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// maxStderrSize bounds the amount of CLI stderr retained for error
// reporting. 10 MiB.
const maxStderrSize = 10 * 1024 * 1024

// SubprocessTransport manages the agent CLI subprocess lifecycle and
// handles stdin/stdout communication.
//
// The transport spawns the CLI with stream-json input and output, frames
// stdout into complete JSON records, and serializes stdin writes so that
// concurrent senders never interleave partial lines.
type SubprocessTransport struct {
	runner  SubprocessRunner
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser
	options *Options

	framer *jsonFramer

	mu          sync.Mutex
	stdinClosed bool
	closed      atomic.Bool

	// stderr is retained as a ring of recent lines bounded by
	// maxStderrSize so a noisy process cannot grow memory without limit.
	stderrMu    sync.Mutex
	stderrLines []string
	stderrSize  int

	exitOnce sync.Once
	exitErr  error
}

// NewSubprocessTransport creates a new transport for the agent CLI.
//
// The CLI path is discovered from options or PATH. The transport is not
// connected until Connect is called.
func NewSubprocessTransport(options *Options) (*SubprocessTransport, error) {
	cliPath, err := DiscoverCLIPath(options)
	if err != nil {
		return nil, err
	}

	return &SubprocessTransport{
		runner:  NewLocalSubprocessRunner(cliPath),
		options: options,
		framer:  newJSONFramer(options.MaxBufferSize),
	}, nil
}

// NewSubprocessTransportWithRunner creates a transport with a custom
// subprocess runner. This is primarily useful for testing with mock runners.
func NewSubprocessTransportWithRunner(
	runner SubprocessRunner,
	options *Options,
) *SubprocessTransport {
	return &SubprocessTransport{
		runner:  runner,
		options: options,
		framer:  newJSONFramer(options.MaxBufferSize),
	}
}

// buildArgs assembles the CLI argument list from the configured options.
//
// --output-format stream-json gives line-delimited JSON on stdout and
// --input-format stream-json accepts JSON messages on stdin; --verbose is
// required by the CLI when stream-json output is selected.
func (t *SubprocessTransport) buildArgs() []string {
	args := []string{
		"--output-format", "stream-json",
		"--verbose",
		"--input-format", "stream-json",
	}

	opts := t.options

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}
	if opts.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.AppendSystemPrompt)
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", string(opts.PermissionMode))
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if len(opts.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(opts.DisallowedTools, ","))
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.ContinueConversation {
		args = append(args, "--continue")
	}
	if opts.Resume != "" {
		args = append(args, "--resume", opts.Resume)
	}
	if opts.Settings != "" {
		args = append(args, "--settings", opts.Settings)
	}
	for _, dir := range opts.AddDirs {
		args = append(args, "--add-dir", dir)
	}
	if opts.IncludePartialMessages {
		args = append(args, "--include-partial-messages")
	}

	// External MCP servers are passed as JSON config; in-process servers
	// are declared by name only, the CLI routes their traffic back over
	// the control channel.
	if len(opts.MCPServers) > 0 || len(opts.SDKMCPServers) > 0 {
		servers := make(map[string]any)
		for name, config := range opts.MCPServers {
			servers[name] = config
		}
		for name := range opts.SDKMCPServers {
			servers[name] = map[string]any{"type": "sdk", "name": name}
		}
		if data, err := json.Marshal(map[string]any{"mcpServers": servers}); err == nil {
			args = append(args, "--mcp-config", string(data))
		}
	}

	// Route permission prompts through the control channel when a
	// callback is registered.
	if opts.CanUseTool != nil {
		args = append(args, "--permission-prompt-tool", "stdio")
	}

	for flag, value := range opts.ExtraArgs {
		if value == nil {
			args = append(args, "--"+flag)
		} else {
			args = append(args, "--"+flag, *value)
		}
	}

	return args
}

// Connect spawns the agent CLI subprocess and establishes communication.
func (t *SubprocessTransport) Connect(ctx context.Context) error {
	if t.closed.Load() {
		return &ErrTransportClosed{}
	}

	args := t.buildArgs()

	env := os.Environ()
	for k, v := range t.options.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	env = append(env, "CLAUDE_CODE_ENTRYPOINT=sdk-go")

	t.options.Logger.Debug().
		Strs("args", args).
		Str("cwd", t.options.Cwd).
		Msg("starting agent CLI subprocess")

	stdin, stdout, stderr, err := t.runner.Start(ctx, args, env, t.options.Cwd)
	if err != nil {
		return &ErrConnection{Message: "failed to start agent CLI", Cause: err}
	}

	t.stdin = stdin
	t.stdout = stdout
	t.stderr = stderr

	// Capture stderr in a bounded buffer for error reporting, and mirror
	// it to the logger.
	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			t.options.Logger.Debug().Str("stream", "stderr").Msg(line)
			t.stderrMu.Lock()
			t.stderrLines = append(t.stderrLines, line)
			t.stderrSize += len(line) + 1
			for t.stderrSize > maxStderrSize && len(t.stderrLines) > 0 {
				t.stderrSize -= len(t.stderrLines[0]) + 1
				t.stderrLines = t.stderrLines[1:]
			}
			t.stderrMu.Unlock()
		}
	}()

	return nil
}

// Write sends a JSON message to the CLI stdin.
//
// Messages are serialized to JSON and written as a single line followed by
// a newline. Writes are serialized via a mutex so a complete line is always
// emitted per message.
func (t *SubprocessTransport) Write(ctx context.Context, msg Message) error {
	if t.closed.Load() {
		return &ErrTransportClosed{}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdinClosed || t.stdin == nil {
		return &ErrTransportClosed{}
	}

	done := make(chan error, 1)
	go func() {
		_, err := t.stdin.Write(data)
		done <- err
	}()

	select {
	case <-ctx.Done():
		// The abandoned goroutine may still be mid-write on stdin.
		// Letting another writer in would interleave partial lines, so
		// poison the input path: later writes fail fast and stdin is
		// closed once the in-flight write finishes.
		t.stdinClosed = true
		stdin := t.stdin
		go func() {
			<-done
			stdin.Close()
		}()
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return &ErrConnection{Message: "failed to write to agent CLI stdin", Cause: err}
		}
		return nil
	}
}

// EndInput closes the CLI's stdin, signaling that no more messages will be
// sent. The subprocess keeps running and its remaining output can still be
// read.
func (t *SubprocessTransport) EndInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdinClosed || t.stdin == nil {
		return nil
	}
	t.stdinClosed = true
	return t.stdin.Close()
}

// ReadMessages returns an iterator over messages framed from CLI stdout.
//
// Stdout chunks are fed through the JSON framer, so records split across
// reads and multiple records per read are both handled. The iterator stops
// after yielding a framing error, after the context is canceled, or at
// stream end; if the process then turns out to have exited with a non-zero
// status, a final ErrProcessExited is yielded.
func (t *SubprocessTransport) ReadMessages(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		buf := make([]byte, 64*1024)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, readErr := t.stdout.Read(buf)
			if n > 0 {
				records, err := t.framer.Feed(string(buf[:n]))
				for _, record := range records {
					msg, perr := ParseMessage(record)
					if perr != nil {
						if !yield(nil, perr) {
							return
						}
						continue
					}
					if !yield(msg, nil) {
						return
					}
				}
				if err != nil {
					yield(nil, err)
					return
				}
			}

			if readErr != nil {
				if t.closed.Load() {
					return
				}
				if exitErr := t.exitError(); exitErr != nil {
					yield(nil, exitErr)
					return
				}
				if readErr != io.EOF {
					yield(nil, &ErrConnection{Message: "error reading agent CLI stdout", Cause: readErr})
				}
				return
			}
		}
	}
}

// exitError waits briefly for the subprocess to exit and converts a
// non-zero status into ErrProcessExited with captured stderr attached.
func (t *SubprocessTransport) exitError() error {
	if t.closed.Load() || t.runner == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- t.runner.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-time.After(5 * time.Second):
		return nil
	}

	t.exitOnce.Do(func() {
		if waitErr == nil {
			return
		}
		code := 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		t.exitErr = &ErrProcessExited{
			ExitCode: code,
			Stderr:   t.StderrOutput(),
		}
	})
	return t.exitErr
}

// StderrOutput returns the most recent stderr captured from the
// subprocess.
func (t *SubprocessTransport) StderrOutput() string {
	t.stderrMu.Lock()
	defer t.stderrMu.Unlock()
	if len(t.stderrLines) == 0 {
		return ""
	}
	return strings.Join(t.stderrLines, "\n") + "\n"
}

// Close terminates the CLI subprocess and cleans up resources.
//
// Close attempts a graceful shutdown by closing stdin, which signals the
// CLI to exit. If the process does not exit within five seconds it is
// killed. Close is idempotent.
func (t *SubprocessTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.mu.Lock()
	if t.stdin != nil && !t.stdinClosed {
		t.stdinClosed = true
		t.stdin.Close()
	}
	t.mu.Unlock()

	if t.runner != nil {
		done := make(chan error, 1)
		go func() { done <- t.runner.Wait() }()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = t.runner.Kill()
		}
	}

	if t.stdout != nil {
		t.stdout.Close()
	}
	if t.stderr != nil {
		t.stderr.Close()
	}

	return nil
}
