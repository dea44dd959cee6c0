package claudeagent

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// controlRequestTimeout bounds how long a host-issued control request waits
// for its response.
const controlRequestTimeout = 60 * time.Second

// dispatchDrainTimeout bounds how long Close waits for in-flight callback
// dispatches to finish.
const dispatchDrainTimeout = 5 * time.Second

// Transport is the stream-level connection a Session runs over.
//
// SubprocessTransport is the production implementation; tests substitute
// their own.
type Transport interface {
	Write(ctx context.Context, msg Message) error
	ReadMessages(ctx context.Context) iter.Seq2[Message, error]
	EndInput() error
	Close() error
}

// controlOutcome is the resolution of one pending host-issued request.
type controlOutcome struct {
	response map[string]any
	err      error
}

// queuedMessage is one entry in the conversation message queue.
type queuedMessage struct {
	msg Message
	err error
}

// messageQueue is an unbounded FIFO between the read loop and consumers.
//
// The read loop must never block on slow consumers: a control response
// sitting behind a burst of undrained plain messages still has to reach
// its waiter. A pump goroutine buffers arrivals in a slice and hands them
// to receivers one at a time; closing the inlet drains the buffer and
// then closes the outlet.
type messageQueue struct {
	in  chan queuedMessage
	out chan queuedMessage
}

func newMessageQueue() *messageQueue {
	q := &messageQueue{
		in:  make(chan queuedMessage),
		out: make(chan queuedMessage),
	}
	go q.pump()
	return q
}

func (q *messageQueue) pump() {
	var buffered []queuedMessage
	in := q.in
	for in != nil || len(buffered) > 0 {
		var out chan queuedMessage
		var next queuedMessage
		if len(buffered) > 0 {
			out = q.out
			next = buffered[0]
		}
		select {
		case entry, ok := <-in:
			if !ok {
				in = nil
			} else {
				buffered = append(buffered, entry)
			}
		case out <- next:
			buffered = buffered[1:]
		}
	}
	close(q.out)
}

func (q *messageQueue) push(entry queuedMessage) { q.in <- entry }

func (q *messageQueue) close() { close(q.in) }

// Session multiplexes a bidirectional control protocol and a conversation
// stream over a single transport.
//
// A session owns the read loop: every incoming record is routed either to a
// pending control request awaiting its response, to a callback dispatcher
// (for CLI-issued control requests), or to the conversation queue consumed
// via ReceiveMessages. Outbound writes from any goroutine are serialized by
// the transport.
type Session struct {
	transport Transport
	options   *Options
	logger    zerolog.Logger

	hooks *hookRegistry

	requestCounter atomic.Int64

	// pending maps request ids of host-issued control requests to the
	// channel their response is delivered on.
	pending sync.Map // string -> chan controlOutcome

	// inflight maps request ids of CLI-issued control requests to the
	// cancel function of their dispatch context.
	inflight sync.Map // string -> context.CancelFunc

	dispatchWG sync.WaitGroup

	queue *messageQueue

	readCtx    context.Context
	readCancel context.CancelFunc

	started atomic.Bool
	closed  atomic.Bool

	// inputEnded is set once EndInput is called; deferredEnd marks that
	// the actual stdin close is postponed until the turn's result.
	inputEnded  atomic.Bool
	deferredEnd atomic.Bool

	// timeout for host-issued control requests; settable in tests.
	timeout time.Duration

	initMu     sync.Mutex
	initResult *InitializeResult
}

// InitializeResult is the CLI's answer to the initialize handshake.
type InitializeResult struct {
	// Commands lists the slash commands the CLI supports.
	Commands []string

	// OutputStyle is the active output style.
	OutputStyle string

	// AvailableOutputStyles lists the styles that can be selected.
	AvailableOutputStyles []string
}

// NewSession creates a session over the given transport.
//
// The transport must already be connected. Call Start to begin the read
// loop and Initialize to perform the control handshake.
func NewSession(transport Transport, options *Options) *Session {
	if options == nil {
		options = NewOptions()
	}
	return &Session{
		transport: transport,
		options:   options,
		logger:    options.Logger,
		hooks:     newHookRegistry(),
		queue:     newMessageQueue(),
		timeout:   controlRequestTimeout,
	}
}

// Start launches the session's read loop. It may be called once.
func (s *Session) Start(ctx context.Context) error {
	if s.closed.Load() {
		return &ErrTransportClosed{}
	}
	if !s.started.CompareAndSwap(false, true) {
		return &ErrProtocolViolation{Message: "session already started"}
	}

	s.readCtx, s.readCancel = context.WithCancel(context.WithoutCancel(ctx))
	go s.readLoop()
	return nil
}

// readLoop demultiplexes the incoming stream until it ends or fails.
//
// Plain conversation messages are forwarded to the queue in arrival order.
// Control traffic is consumed here and never surfaces in the queue.
func (s *Session) readLoop() {
	defer s.queue.close()

	for msg, err := range s.transport.ReadMessages(s.readCtx) {
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Debug().Err(err).Msg("read loop terminating on stream error")
			s.queue.push(queuedMessage{err: err})
			s.failPending(err)
			return
		}

		switch m := msg.(type) {
		case ControlResponse:
			s.resolvePending(m.Response)

		case ControlRequest:
			s.dispatchControlRequest(m)

		case ControlCancelRequest:
			if cancel, ok := s.inflight.LoadAndDelete(m.RequestID); ok {
				s.logger.Debug().Str("request_id", m.RequestID).
					Msg("cancelling in-flight callback")
				cancel.(context.CancelFunc)()
			}

		default:
			if _, done := msg.(ResultMessage); done {
				if s.deferredEnd.CompareAndSwap(true, false) {
					if err := s.transport.EndInput(); err != nil {
						s.logger.Debug().Err(err).
							Msg("deferred end of input failed")
					}
				}
			}
			s.queue.push(queuedMessage{msg: msg})
		}
	}
}

// resolvePending delivers a control response to its waiting request.
// Responses with no matching request are dropped; the requester has either
// timed out or been cancelled.
func (s *Session) resolvePending(body ControlResponseBody) {
	ch, ok := s.pending.LoadAndDelete(body.RequestID)
	if !ok {
		s.logger.Debug().Str("request_id", body.RequestID).
			Msg("dropping response for unknown or expired request")
		return
	}

	outcome := controlOutcome{response: body.Response}
	if body.Subtype == "error" {
		outcome.err = &ErrControlFailed{Message: body.Error}
	}
	ch.(chan controlOutcome) <- outcome
}

// failPending resolves every outstanding host-issued request with the given
// error. Called when the stream ends so waiters do not run out the full
// timeout.
func (s *Session) failPending(err error) {
	s.pending.Range(func(key, value any) bool {
		if ch, ok := s.pending.LoadAndDelete(key); ok {
			ch.(chan controlOutcome) <- controlOutcome{err: err}
		}
		return true
	})
}

// dispatchControlRequest runs a CLI-issued request on its own goroutine so
// a slow callback never stalls the read loop.
func (s *Session) dispatchControlRequest(req ControlRequest) {
	ctx, cancel := context.WithCancel(s.readCtx)
	s.inflight.Store(req.RequestID, cancel)

	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()
		defer func() {
			if _, ok := s.inflight.LoadAndDelete(req.RequestID); ok {
				cancel()
			}
		}()

		response, err := s.safeHandleControlRequest(ctx, req)

		var reply ControlResponse
		if err != nil {
			s.logger.Debug().Err(err).
				Str("subtype", req.Request.Subtype).
				Str("request_id", req.RequestID).
				Msg("callback failed")
			reply = errorResponse(req.RequestID, err.Error())
		} else {
			reply = successResponse(req.RequestID, response)
		}

		writeCtx, writeCancel := context.WithTimeout(
			context.WithoutCancel(s.readCtx), controlRequestTimeout)
		defer writeCancel()
		if werr := s.transport.Write(writeCtx, reply); werr != nil {
			s.logger.Debug().Err(werr).
				Str("request_id", req.RequestID).
				Msg("failed to write control response")
		}
	}()
}

// sendControlRequest issues a control request to the CLI and waits for the
// correlated response.
//
// Request ids combine a monotonic counter with a random suffix so they stay
// unique across the session. A response that arrives after the timeout is
// silently discarded.
func (s *Session) sendControlRequest(
	ctx context.Context,
	body ControlRequestBody,
) (map[string]any, error) {
	if s.closed.Load() {
		return nil, &ErrTransportClosed{}
	}

	id := uuid.New()
	requestID := fmt.Sprintf("req_%d_%x",
		s.requestCounter.Add(1), id[:4])

	ch := make(chan controlOutcome, 1)
	s.pending.Store(requestID, ch)
	defer s.pending.Delete(requestID)

	req := ControlRequest{
		Type:      "control_request",
		RequestID: requestID,
		Request:   body,
	}
	if err := s.transport.Write(ctx, req); err != nil {
		return nil, err
	}

	select {
	case outcome := <-ch:
		if outcome.err != nil {
			if failed, ok := outcome.err.(*ErrControlFailed); ok {
				failed.Subtype = body.Subtype
			}
			return nil, outcome.err
		}
		return outcome.response, nil
	case <-time.After(s.timeout):
		return nil, &ErrControlTimeout{Subtype: body.Subtype}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Initialize performs the control handshake with the CLI.
//
// Hook callbacks from the options are assigned ids and announced so the CLI
// can invoke them later. The CLI's capability surface is returned and also
// retained for InitializeResult.
func (s *Session) Initialize(ctx context.Context) (*InitializeResult, error) {
	hooks := s.hooks.register(s.options.Hooks)

	response, err := s.sendControlRequest(ctx, ControlRequestBody{
		Subtype: "initialize",
		Hooks:   hooks,
	})
	if err != nil {
		return nil, err
	}

	result := &InitializeResult{
		Commands:              stringSlice(response["commands"]),
		OutputStyle:           stringValue(response["output_style"]),
		AvailableOutputStyles: stringSlice(response["available_output_styles"]),
	}

	s.initMu.Lock()
	s.initResult = result
	s.initMu.Unlock()

	return result, nil
}

// InitializeResult returns the handshake result, or nil before Initialize
// has completed.
func (s *Session) InitializeResult() *InitializeResult {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.initResult
}

// Interrupt asks the CLI to abort the current turn. It returns once the CLI
// acknowledges the interrupt.
func (s *Session) Interrupt(ctx context.Context) error {
	if s.inputEnded.Load() {
		return &ErrStreamingRequired{Operation: "interrupt"}
	}
	_, err := s.sendControlRequest(ctx, ControlRequestBody{
		Subtype: "interrupt",
	})
	return err
}

// SetPermissionMode switches the CLI's permission mode mid-session.
func (s *Session) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	if s.inputEnded.Load() {
		return &ErrStreamingRequired{Operation: "set_permission_mode"}
	}
	_, err := s.sendControlRequest(ctx, ControlRequestBody{
		Subtype: "set_permission_mode",
		Mode:    string(mode),
	})
	return err
}

// SendMessage writes a conversation message to the CLI.
func (s *Session) SendMessage(ctx context.Context, msg Message) error {
	if s.closed.Load() {
		return &ErrTransportClosed{}
	}
	if s.inputEnded.Load() {
		return &ErrStreamingRequired{Operation: "send_message"}
	}
	return s.transport.Write(ctx, msg)
}

// EndInput signals that no further conversation messages will be sent. The
// CLI finishes processing buffered input and then ends its output stream.
//
// When hooks, a permission handler, or in-process tool servers are
// registered, the stdin close is deferred until the current turn's result
// so late callbacks can still be answered over the control channel. The
// close happens at session Close in any case.
func (s *Session) EndInput() error {
	if !s.inputEnded.CompareAndSwap(false, true) {
		return nil
	}
	if s.usesCallbacks() {
		s.deferredEnd.Store(true)
		return nil
	}
	return s.transport.EndInput()
}

// usesCallbacks reports whether the CLI may still issue control requests
// that need answers written back after input ends.
func (s *Session) usesCallbacks() bool {
	return len(s.options.Hooks) > 0 ||
		s.options.CanUseTool != nil ||
		len(s.options.SDKMCPServers) > 0
}

// ReceiveMessages iterates over conversation messages in arrival order.
//
// Control traffic never appears here. The iterator ends when the stream
// ends; a stream-level failure is yielded as a final error before
// termination.
func (s *Session) ReceiveMessages(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			case entry, ok := <-s.queue.out:
				if !ok {
					return
				}
				if !yield(entry.msg, entry.err) {
					return
				}
				if entry.err != nil {
					return
				}
			}
		}
	}
}

// Close shuts the session down. It is idempotent.
//
// In-flight callback dispatches are given a bounded grace period to finish,
// outstanding host-issued requests are failed, and the transport is closed.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if s.readCancel != nil {
		s.readCancel()
	}

	done := make(chan struct{})
	go func() {
		s.dispatchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(dispatchDrainTimeout):
		s.logger.Debug().Msg("closing with callback dispatches still in flight")
	}

	s.failPending(&ErrTransportClosed{})

	return s.transport.Close()
}

func stringValue(v any) string {
	str, _ := v.(string)
	return str
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch value := item.(type) {
		case string:
			out = append(out, value)
		case map[string]any:
			// Command entries may be objects with a name field.
			if name, ok := value["name"].(string); ok {
				out = append(out, name)
			}
		}
	}
	return out
}
