package claudeagent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// SubprocessRunner abstracts over agent CLI subprocess execution.
//
// This interface allows swapping implementations for testing (mock
// subprocess), containerized execution, or remote execution.
type SubprocessRunner interface {
	// Start spawns the subprocess with the given arguments, environment,
	// and working directory. Returns stdin, stdout, stderr pipes.
	Start(ctx context.Context, args []string, env []string, cwd string) (
		stdin io.WriteCloser,
		stdout io.ReadCloser,
		stderr io.ReadCloser,
		err error,
	)

	// Wait blocks until the subprocess exits and returns the exit error.
	Wait() error

	// Kill forcefully terminates the subprocess.
	Kill() error
}

// LocalSubprocessRunner executes the agent CLI as a local subprocess.
//
// This is the standard implementation that spawns the CLI binary using
// os/exec.Cmd.
type LocalSubprocessRunner struct {
	cliPath string
	cmd     *exec.Cmd
}

// NewLocalSubprocessRunner creates a runner for a local CLI binary.
func NewLocalSubprocessRunner(cliPath string) *LocalSubprocessRunner {
	return &LocalSubprocessRunner{
		cliPath: cliPath,
	}
}

// Start spawns the CLI subprocess with the given arguments, environment,
// and working directory.
//
// The command is created without context-based lifecycle: cancelling a
// context tears down the stdout pipe before buffered messages can be
// drained. Callers terminate the process with Kill instead.
func (r *LocalSubprocessRunner) Start(
	ctx context.Context,
	args []string,
	env []string,
	cwd string,
) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	if cwd != "" {
		if _, err := os.Stat(cwd); err != nil {
			return nil, nil, nil, &ErrConnection{
				Message: fmt.Sprintf("working directory does not exist: %s", cwd),
				Cause:   err,
			}
		}
	}

	r.cmd = exec.Command(r.cliPath, args...)
	r.cmd.Env = env
	r.cmd.Dir = cwd

	stdin, err := r.cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := r.cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := r.cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := r.cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, nil, nil, &ErrConnection{
			Message: fmt.Sprintf("failed to start agent CLI: %s", r.cliPath),
			Cause:   err,
		}
	}

	return stdin, stdout, stderr, nil
}

// Wait blocks until the subprocess exits.
func (r *LocalSubprocessRunner) Wait() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return fmt.Errorf("subprocess not started")
	}
	return r.cmd.Wait()
}

// Kill forcefully terminates the subprocess.
func (r *LocalSubprocessRunner) Kill() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	return r.cmd.Process.Kill()
}

// MockSubprocessRunner simulates an agent CLI subprocess for testing.
//
// It provides in-memory pipes and allows tests to inject responses and
// verify requests without spawning an actual subprocess.
type MockSubprocessRunner struct {
	StdinPipe  *MockPipe
	StdoutPipe *MockPipe
	StderrPipe *MockPipe

	// StartArgs captures the arguments passed to Start for assertions.
	StartArgs []string

	mu       sync.Mutex
	started  bool
	exitErr  error
	exitOnce sync.Once
	done     chan struct{}
}

// NewMockSubprocessRunner creates a mock runner for testing.
func NewMockSubprocessRunner() *MockSubprocessRunner {
	return &MockSubprocessRunner{
		StdinPipe:  NewMockPipe(),
		StdoutPipe: NewMockPipe(),
		StderrPipe: NewMockPipe(),
		done:       make(chan struct{}),
	}
}

// Start simulates subprocess startup.
func (m *MockSubprocessRunner) Start(
	ctx context.Context,
	args []string,
	env []string,
	cwd string,
) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	m.mu.Lock()
	m.started = true
	m.StartArgs = args
	m.mu.Unlock()
	return m.StdinPipe, m.StdoutPipe, m.StderrPipe, nil
}

// Wait blocks until Exit or Kill is called.
func (m *MockSubprocessRunner) Wait() error {
	<-m.done
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitErr
}

// Kill simulates killing the subprocess.
func (m *MockSubprocessRunner) Kill() error {
	m.Exit(nil)
	return nil
}

// Exit signals subprocess termination with the given exit error and closes
// all pipes so readers observe EOF. Safe to call more than once.
func (m *MockSubprocessRunner) Exit(err error) {
	m.exitOnce.Do(func() {
		m.mu.Lock()
		m.exitErr = err
		m.mu.Unlock()
		m.StdinPipe.Close()
		m.StdoutPipe.Close()
		m.StderrPipe.Close()
		close(m.done)
	})
}

// MockPipe simulates an in-memory pipe for testing.
type MockPipe struct {
	reader *io.PipeReader
	writer *io.PipeWriter
}

// NewMockPipe creates a mock pipe using io.Pipe.
func NewMockPipe() *MockPipe {
	r, w := io.Pipe()
	return &MockPipe{
		reader: r,
		writer: w,
	}
}

// Read implements io.Reader for the read side of the pipe.
func (p *MockPipe) Read(data []byte) (int, error) {
	return p.reader.Read(data)
}

// Write implements io.Writer for the write side of the pipe.
func (p *MockPipe) Write(data []byte) (int, error) {
	return p.writer.Write(data)
}

// Close closes both sides of the pipe.
func (p *MockPipe) Close() error {
	p.writer.Close()
	p.reader.Close()
	return nil
}

// CloseWrite closes only the write side, signaling EOF to readers.
func (p *MockPipe) CloseWrite() error {
	return p.writer.Close()
}

// WriteString is a helper for writing strings to the pipe.
func (p *MockPipe) WriteString(s string) error {
	_, err := p.writer.Write([]byte(s))
	return err
}

// DiscoverCLIPath locates the agent CLI executable.
//
// Search order:
// 1. Explicit path in options
// 2. "claude" in the system PATH
// 3. Common npm/yarn installation locations
func DiscoverCLIPath(options *Options) (string, error) {
	if options != nil && options.CLIPath != "" {
		return options.CLIPath, nil
	}

	if path, err := exec.LookPath("claude"); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, ".npm-global", "bin", "claude"),
		"/usr/local/bin/claude",
		filepath.Join(home, ".local", "bin", "claude"),
		filepath.Join(home, "node_modules", ".bin", "claude"),
		filepath.Join(home, ".yarn", "bin", "claude"),
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}

	return "", &ErrCLINotFound{Path: "claude"}
}
