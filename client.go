package claudeagent

import (
	"context"
	"iter"
	"sync/atomic"
)

// Client is the high-level entry point for an interactive agent session.
//
// A client owns a subprocess transport and a control session. Messages are
// sent with SendMessage and consumed with ReceiveMessages or
// ReceiveResponse; hooks, permission handlers, and in-process tool servers
// from the options are live for the whole connection.
//
// Example:
//
//	client, err := claudeagent.NewClient(
//	    claudeagent.WithModel("claude-sonnet-4-5"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SendMessage(ctx, "What is 2+2?")
//	for msg, err := range client.ReceiveResponse(ctx) {
//	    ...
//	}
type Client struct {
	options   *Options
	transport Transport
	session   *Session
	sessionID string
	connected atomic.Bool
}

// NewClient creates a client with the given options. The client is not
// connected until Connect is called.
func NewClient(opts ...Option) (*Client, error) {
	options := NewOptions(opts...)

	transport, err := NewSubprocessTransport(options)
	if err != nil {
		return nil, err
	}

	return &Client{
		options:   options,
		transport: transport,
	}, nil
}

// NewClientWithTransport creates a client over a caller-supplied transport.
// This is primarily useful for testing.
func NewClientWithTransport(transport Transport, options *Options) *Client {
	if options == nil {
		options = NewOptions()
	}
	return &Client{
		options:   options,
		transport: transport,
	}
}

// Connect starts the subprocess, begins the session read loop, and performs
// the control handshake.
func (c *Client) Connect(ctx context.Context) error {
	if !c.connected.CompareAndSwap(false, true) {
		return &ErrProtocolViolation{Message: "client already connected"}
	}

	if t, ok := c.transport.(*SubprocessTransport); ok {
		if err := t.Connect(ctx); err != nil {
			c.connected.Store(false)
			return err
		}
	}

	c.session = NewSession(c.transport, c.options)
	if err := c.session.Start(ctx); err != nil {
		c.transport.Close()
		c.connected.Store(false)
		return err
	}

	if _, err := c.session.Initialize(ctx); err != nil {
		c.session.Close()
		c.connected.Store(false)
		return err
	}

	return nil
}

// Session exposes the underlying control session, or nil before Connect.
func (c *Client) Session() *Session {
	return c.session
}

// SendMessage sends a text prompt to the agent.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if c.session == nil {
		return &ErrProtocolViolation{Message: "client is not connected"}
	}
	msg := NewUserMessage(c.sessionID, text)
	c.record(msg)
	return c.session.SendMessage(ctx, msg)
}

// ReceiveMessages iterates over all conversation messages as they arrive.
// The iterator ends when the stream ends or the context is canceled.
func (c *Client) ReceiveMessages(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		if c.session == nil {
			yield(nil, &ErrProtocolViolation{Message: "client is not connected"})
			return
		}
		for msg, err := range c.session.ReceiveMessages(ctx) {
			if err == nil {
				c.trackSession(msg)
				c.record(msg)
			}
			if !yield(msg, err) {
				return
			}
		}
	}
}

// ReceiveResponse iterates over messages until the current turn's result.
//
// The ResultMessage that completes the turn is yielded and then the
// iterator ends, leaving the session open for further prompts.
func (c *Client) ReceiveResponse(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for msg, err := range c.ReceiveMessages(ctx) {
			if !yield(msg, err) {
				return
			}
			if err != nil {
				return
			}
			if _, done := msg.(ResultMessage); done {
				return
			}
		}
	}
}

// record appends a message to the configured transcript, if any. Recording
// failures are logged and never surface on the message stream.
func (c *Client) record(msg Message) {
	if c.options.Transcript == nil {
		return
	}
	if err := c.options.Transcript.Record(c.sessionID, msg); err != nil {
		c.options.Logger.Warn().Err(err).Msg("transcript record failed")
	}
}

// trackSession records the session id from the init record so follow-up
// prompts address the right session.
func (c *Client) trackSession(msg Message) {
	if c.sessionID != "" {
		return
	}
	switch m := msg.(type) {
	case SystemMessage:
		if m.SessionID != "" {
			c.sessionID = m.SessionID
		}
	case AssistantMessage:
		if m.SessionID != "" {
			c.sessionID = m.SessionID
		}
	}
}

// Interrupt aborts the agent's current turn.
func (c *Client) Interrupt(ctx context.Context) error {
	if c.session == nil {
		return &ErrProtocolViolation{Message: "client is not connected"}
	}
	return c.session.Interrupt(ctx)
}

// SetPermissionMode switches the permission mode mid-session.
func (c *Client) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	if c.session == nil {
		return &ErrProtocolViolation{Message: "client is not connected"}
	}
	return c.session.SetPermissionMode(ctx, mode)
}

// EndInput signals that no further prompts will be sent.
func (c *Client) EndInput() error {
	if c.session == nil {
		return &ErrProtocolViolation{Message: "client is not connected"}
	}
	return c.session.EndInput()
}

// Close shuts down the session and subprocess. It is idempotent.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return c.transport.Close()
}

// Query runs a single prompt to completion and iterates over the resulting
// messages.
//
// The subprocess is torn down when the iterator ends. For multi-turn
// conversations use NewClient instead.
//
// Example:
//
//	for msg, err := range claudeagent.Query(ctx, "Say hello") {
//	    if err != nil {
//	        return err
//	    }
//	    if assistant, ok := msg.(claudeagent.AssistantMessage); ok {
//	        fmt.Println(assistant.ContentText())
//	    }
//	}
func Query(ctx context.Context, prompt string, opts ...Option) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		client, err := NewClient(opts...)
		if err != nil {
			yield(nil, err)
			return
		}
		queryWithClient(ctx, client, prompt, yield)
	}
}

// queryWithClient is the Query body, split out so tests can drive it over a
// mock transport.
func queryWithClient(
	ctx context.Context,
	client *Client,
	prompt string,
	yield func(Message, error) bool,
) {
	if err := client.Connect(ctx); err != nil {
		yield(nil, err)
		return
	}
	defer client.Close()

	if err := client.SendMessage(ctx, prompt); err != nil {
		yield(nil, err)
		return
	}
	if err := client.EndInput(); err != nil {
		yield(nil, err)
		return
	}

	for msg, err := range client.ReceiveMessages(ctx) {
		if !yield(msg, err) {
			return
		}
		if err != nil {
			return
		}
		if _, done := msg.(ResultMessage); done {
			return
		}
	}
}
