package claudeagent

import (
	"fmt"
)

// ErrCLINotFound indicates that the agent CLI executable could not be
// located in the system PATH or at the configured path.
type ErrCLINotFound struct {
	Path string
}

// Error implements the error interface.
func (e *ErrCLINotFound) Error() string {
	if e.Path == "" {
		return "agent CLI not found in PATH"
	}
	return fmt.Sprintf("agent CLI not found at: %s", e.Path)
}

// ErrConnection indicates that connecting to the CLI subprocess failed.
type ErrConnection struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ErrConnection) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

// Unwrap implements the unwrap interface for error chains.
func (e *ErrConnection) Unwrap() error {
	return e.Cause
}

// ErrProcessExited indicates that the CLI subprocess terminated with a
// non-zero exit code. Stderr carries the most recent diagnostic lines
// captured from the process; capture is bounded so a noisy process cannot
// grow memory without limit.
type ErrProcessExited struct {
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *ErrProcessExited) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("agent process exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("agent process exited with code %d: %s", e.ExitCode, e.Stderr)
}

// ErrJSONDecode indicates that the incoming stream could not be framed into
// JSON messages. Once raised, the remainder of the stream is not recoverable.
type ErrJSONDecode struct {
	Message string
	Size    int
	Cause   error
}

// Error implements the error interface.
func (e *ErrJSONDecode) Error() string {
	if e.Size > 0 {
		return fmt.Sprintf("json decode error: %s (%d bytes)", e.Message, e.Size)
	}
	return fmt.Sprintf("json decode error: %s", e.Message)
}

// Unwrap implements the unwrap interface for error chains.
func (e *ErrJSONDecode) Unwrap() error {
	return e.Cause
}

// ErrControlTimeout indicates that a host-issued control request was not
// answered within the deadline. The session remains usable; only the
// originating request fails.
type ErrControlTimeout struct {
	Subtype string
}

// Error implements the error interface.
func (e *ErrControlTimeout) Error() string {
	return fmt.Sprintf("control request timeout: %s", e.Subtype)
}

// ErrControlFailed indicates that the CLI answered a control request with an
// explicit error response.
type ErrControlFailed struct {
	Subtype string
	Message string
}

// Error implements the error interface.
func (e *ErrControlFailed) Error() string {
	return fmt.Sprintf("control request %s failed: %s", e.Subtype, e.Message)
}

// ErrStreamingRequired indicates an attempt to use a control-protocol
// feature (interrupt, permission-mode switch, initialize) on a session that
// was not opened in streaming mode.
type ErrStreamingRequired struct {
	Operation string
}

// Error implements the error interface.
func (e *ErrStreamingRequired) Error() string {
	return fmt.Sprintf("%s requires streaming mode", e.Operation)
}

// ErrTransportClosed indicates an attempt to use a transport that has been
// closed.
type ErrTransportClosed struct{}

// Error implements the error interface.
func (e *ErrTransportClosed) Error() string {
	return "transport is closed"
}

// ErrProtocolViolation indicates that the CLI sent a message that violates
// the control protocol.
type ErrProtocolViolation struct {
	Message string
}

// Error implements the error interface.
func (e *ErrProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Message)
}

// ErrInvalidConfiguration indicates that client configuration is invalid.
type ErrInvalidConfiguration struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ErrInvalidConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}
