package lsp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the lifecycle state of a connection.
//
// State transitions:
//
//	NotStarted --Initialize--> Initializing --ok--> Initialized
//	Initializing --error|timeout|spawn failure|crash--> Failed
//	Initialized --crash|stream error--> Failed
//	Initialized --Shutdown+exit--> Shutdown
//	Failed --Initialize--> Initializing (retry on the same Client)
//
// Failed and Shutdown accept no protocol traffic other than the
// lifecycle messages themselves.
type Status int

const (
	// StatusNotStarted means the server process has not been created.
	StatusNotStarted Status = iota
	// StatusInitializing means the initialize request was sent and the
	// connection is waiting for the response.
	StatusInitializing
	// StatusInitialized means the handshake succeeded and the
	// connection accepts requests.
	StatusInitialized
	// StatusFailed means the server crashed, an I/O error occurred, or
	// initialization failed.
	StatusFailed
	// StatusShutdown means the server was shut down and the process has
	// been waited on.
	StatusShutdown
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not started"
	case StatusInitializing:
		return "initializing"
	case StatusInitialized:
		return "initialized"
	case StatusFailed:
		return "failed"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

const (
	defaultQueueSize = 100
	defaultExitGrace = 30 * time.Second
)

// Client manages one language server subprocess: its lifecycle, the
// framed request/response traffic, and notification dispatch.
//
// All methods are safe to call from any goroutine. Request and
// notification callbacks run on the dispatcher goroutine; a slow
// callback delays later message delivery, so callers should hand heavy
// work off promptly.
//
// Known limitations, kept deliberately:
//
//   - The reader can block forever on a server that sends a header but
//     never completes the body; the shutdown path still works because
//     it does not depend on the reader.
//   - There is no automatic reconnection. A Failed client stays failed
//     until the caller retries Initialize.
//   - No per-request timeouts. If the server never answers, the
//     callback is never invoked; callers needing a guarantee run their
//     own timers.
type Client struct {
	mu sync.Mutex

	logger  *zap.Logger
	name    string
	command []string
	env     []string
	workDir string
	start   ProcessStarter

	queueSize int
	exitGrace time.Duration

	// Connection state, guarded by mu. The channels, pending table, and
	// epoch are recreated on every Initialize so a retry after failure
	// never sees stale sentinels.
	status       Status
	epoch        uint64
	proc         Process
	procExited   chan struct{}
	sendq        chan *RequestMessage
	recvq        chan *Message
	writerDone   chan struct{}
	pending      *pendingTable
	capabilities json.RawMessage
	serverInfo   *ServerInfo
	openDocs     map[DocumentURI]struct{}

	// initCb is the current attempt's initialize callback, held so a
	// failure during the handshake can still complete it with a
	// synthetic error. Invoked at most once.
	initCb ResponseHandler

	handlers map[string]NotificationHandler
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithStarter overrides how the server subprocess is spawned.
func WithStarter(start ProcessStarter) Option {
	return func(c *Client) { c.start = start }
}

// WithEnv appends "KEY=VALUE" entries to the server's environment.
func WithEnv(env []string) Option {
	return func(c *Client) { c.env = env }
}

// WithWorkDir sets the server's working directory.
func WithWorkDir(dir string) Option {
	return func(c *Client) { c.workDir = dir }
}

// WithQueueSize sets the capacity of the send and receive channels.
// A full send channel throttles producers instead of growing without
// bound.
func WithQueueSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithExitGrace sets how long exit waits for the server to terminate
// before killing it.
func WithExitGrace(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.exitGrace = d
		}
	}
}

// NewClient creates a client for the server started by command (the
// executable and its arguments). The process is not spawned until
// Initialize.
func NewClient(name string, command []string, opts ...Option) *Client {
	c := &Client{
		logger:    zap.NewNop(),
		name:      name,
		command:   command,
		queueSize: defaultQueueSize,
		exitGrace: defaultExitGrace,
		status:    StatusNotStarted,
		openDocs:  make(map[DocumentURI]struct{}),
		handlers:  make(map[string]NotificationHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("server", name))
	if c.start == nil {
		var exe string
		var args []string
		if len(command) > 0 {
			exe = command[0]
			args = command[1:]
		}
		c.start = CommandStarter(exe, args, c.env, c.workDir)
	}
	return c
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// Status returns the current lifecycle state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ServerInfo returns the server identity captured from the initialize
// response, or nil before initialization.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Capabilities returns the raw capabilities snapshot captured from the
// initialize response, or nil before initialization. The snapshot is
// written once and must not be mutated.
func (c *Client) Capabilities() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// OnNotification registers a handler for a server notification method.
// The method "*" registers a catch-all invoked for any notification
// without a specific handler. Registering nil removes a handler.
func (c *Client) OnNotification(method string, h NotificationHandler) {
	c.mu.Lock()
	if h == nil {
		delete(c.handlers, method)
	} else {
		c.handlers[method] = h
	}
	c.mu.Unlock()
}

func (c *Client) handler(method string) NotificationHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handlers[method]; ok {
		return h
	}
	return c.handlers["*"]
}

// isLifecycleMethod reports whether method is admitted regardless of
// connection state. Without this exception a failed or half-initialized
// connection could never be cleaned up, because its shutdown messages
// would be dropped.
func isLifecycleMethod(method string) bool {
	switch method {
	case MethodInitialize, MethodInitialized, MethodShutdown, MethodExit:
		return true
	}
	return false
}

// enqueue admits msg to the send path. Messages are dropped, with a log
// line, when the connection state does not permit them; this mirrors
// normal editor races and is not an error the caller sees.
func (c *Client) enqueue(msg *RequestMessage, cb ResponseHandler) {
	c.mu.Lock()
	if c.sendq == nil {
		c.mu.Unlock()
		c.logger.Debug("connection never started, dropping message", zap.String("method", msg.Method))
		return
	}
	if c.status != StatusInitialized && !isLifecycleMethod(msg.Method) {
		c.mu.Unlock()
		c.logger.Debug("connection not initialized, dropping message", zap.String("method", msg.Method))
		return
	}
	if c.status == StatusShutdown && msg.Method != MethodExit {
		c.mu.Unlock()
		c.logger.Warn("connection shut down, dropping message", zap.String("method", msg.Method))
		return
	}
	sendq, writerDone := c.sendq, c.writerDone
	if msg.ID != nil && cb != nil {
		// The callback fires when the matching response arrives. It may
		// never fire if the response cannot be read or the server never
		// answers.
		c.pending.register(*msg.ID, cb)
	}
	c.mu.Unlock()

	// Channel send stays outside the lock: a full queue blocks the
	// producer (backpressure), and blocking while holding the lock
	// would deadlock the worker loops. Once the writer has stopped,
	// nothing drains the queue, so the send must give up instead of
	// blocking forever.
	select {
	case sendq <- msg:
	case <-writerDone:
		c.logger.Debug("writer stopped, dropping message", zap.String("method", msg.Method))
	}
}

// Call sends a request. The callback receives the correlated response;
// see enqueue for the admission rules.
func (c *Client) Call(method string, params any, cb ResponseHandler) {
	c.enqueue(newRequest(method, params), cb)
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(method string, params any) {
	c.enqueue(newNotification(method, params), nil)
}

// Initialize spawns the server subprocess and performs the handshake.
// It returns immediately; callback receives the initialize response, a
// synthetic spawn-failure error, or a synthetic timeout error. Admitted
// only from NotStarted or Failed: a failed connection may be retried
// without constructing a new Client.
func (c *Client) Initialize(params any, callback ResponseHandler, timeout time.Duration) {
	if callback == nil {
		callback = func(*ResponseMessage) {}
	}
	var cbOnce sync.Once
	invokeCb := func(resp *ResponseMessage) {
		cbOnce.Do(func() { callback(resp) })
	}

	c.mu.Lock()
	if c.status != StatusNotStarted && c.status != StatusFailed {
		status := c.status
		c.mu.Unlock()
		c.logger.Warn("cannot initialize", zap.Stringer("status", status))
		return
	}
	c.status = StatusInitializing
	c.epoch++
	epoch := c.epoch
	c.sendq = make(chan *RequestMessage, c.queueSize)
	c.recvq = make(chan *Message, c.queueSize)
	c.writerDone = make(chan struct{})
	c.pending = newPendingTable(c.logger)
	c.openDocs = make(map[DocumentURI]struct{})
	c.capabilities = nil
	c.serverInfo = nil
	c.proc = nil
	c.procExited = nil
	c.initCb = invokeCb
	sendq, recvq, pending := c.sendq, c.recvq, c.pending
	writerDone := c.writerDone
	c.mu.Unlock()

	proc, err := c.start()
	if err != nil {
		c.logger.Error("failed to start server process", zap.Error(err))
		c.mu.Lock()
		c.status = StatusFailed
		c.initCb = nil
		c.mu.Unlock()
		// No writer ever runs for this attempt; nothing must block on
		// the send queue waiting for one.
		close(writerDone)
		invokeCb(syntheticError(CodeSpawnFailed, fmt.Sprintf("failed to start server process: %v", err)))
		return
	}

	procExited := make(chan struct{})
	c.mu.Lock()
	c.proc = proc
	c.procExited = procExited
	c.mu.Unlock()

	c.logger.Debug("initializing", zap.Int("pid", proc.Pid()))

	go c.dispatch(recvq, pending)
	go c.write(proc, sendq, recvq, writerDone, epoch)
	go c.read(proc, sendq, recvq, epoch)
	go c.monitor(proc, procExited, sendq, recvq, epoch)
	go c.drainStderr(proc)

	// The timeout timer and the real response race; whichever observes
	// StatusInitializing under the lock first wins, the other is a
	// no-op. The epoch check keeps a stale timer from a previous run
	// away from a retried connection.
	timer := time.AfterFunc(timeout, func() {
		c.mu.Lock()
		if c.epoch != epoch || c.status != StatusInitializing {
			c.mu.Unlock()
			return
		}
		c.status = StatusFailed
		c.initCb = nil
		c.pending.clear()
		c.mu.Unlock()
		c.logger.Error("initialization timed out", zap.Duration("timeout", timeout))
		invokeCb(syntheticError(CodeInitTimeout, fmt.Sprintf("initialization timed out after %s", timeout)))
	})

	c.enqueue(newRequest(MethodInitialize, params), func(resp *ResponseMessage) {
		timer.Stop()
		c.mu.Lock()
		if c.epoch != epoch || c.status != StatusInitializing {
			c.mu.Unlock()
			return
		}
		c.initCb = nil
		if resp.Error != nil {
			c.status = StatusFailed
			c.pending.clear()
			c.mu.Unlock()
			c.logger.Error("initialization failed",
				zap.Int("code", resp.Error.Code),
				zap.String("message", resp.Error.Message))
			invokeCb(resp)
			return
		}
		var result InitializeResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			c.logger.Error("decoding initialize result", zap.Error(err))
		} else {
			c.capabilities = result.Capabilities
			c.serverInfo = result.ServerInfo
		}
		c.mu.Unlock()

		// The initialized notification must precede any other outgoing
		// traffic. It is sent while the status still gates that traffic
		// out; the flip afterwards admits it. The send stays outside the
		// lock so it can never stall the worker loops.
		select {
		case sendq <- newNotification(MethodInitialized, struct{}{}):
		case <-writerDone:
		}

		c.mu.Lock()
		if c.epoch == epoch && c.status == StatusInitializing {
			c.status = StatusInitialized
		}
		c.mu.Unlock()
		c.logger.Info("initialized", zap.Int("pid", proc.Pid()))
		invokeCb(resp)
	})
}

// Shutdown asks the server to shut down, then exits it, blocking until
// the connection reaches Shutdown. If no response arrives within
// timeout, exit is forced. Errors from the shutdown request are logged
// but never prevent cleanup. No-op if the connection was never started
// or is already shut down. Must not be called from a response or
// notification callback.
func (c *Client) Shutdown(timeout time.Duration) {
	c.mu.Lock()
	status := c.status
	epoch := c.epoch
	c.mu.Unlock()

	switch status {
	case StatusShutdown:
		c.logger.Debug("already shut down")
		return
	case StatusNotStarted:
		c.logger.Debug("server was never started")
		return
	}

	c.logger.Info("shutting down")

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	timer := time.AfterFunc(timeout, func() {
		if c.Status() != StatusShutdown {
			c.logger.Warn("shutdown request timed out, forcing exit", zap.Duration("timeout", timeout))
			c.exit(epoch)
		}
		finish()
	})

	c.enqueue(newRequest(MethodShutdown, nil), func(resp *ResponseMessage) {
		timer.Stop()
		if c.Status() != StatusShutdown {
			if resp.Error != nil {
				// The server is likely in a bad state; clean up regardless.
				c.logger.Error("shutdown request returned error",
					zap.Int("code", resp.Error.Code),
					zap.String("message", resp.Error.Message))
			}
			c.exit(epoch)
		}
		finish()
	})

	<-done
}

// exit sends the exit notification, discards pending callbacks, moves
// the connection to Shutdown, unblocks the worker loops, and waits for
// the process to terminate, killing it after the grace period.
// Idempotent: the status guard lets at most one caller past.
func (c *Client) exit(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.status == StatusShutdown {
		c.mu.Unlock()
		return
	}
	c.logger.Info("exiting")
	c.status = StatusShutdown
	c.initCb = nil
	c.pending.clear()
	proc := c.proc
	procExited := c.procExited
	sendq, recvq := c.sendq, c.recvq
	c.mu.Unlock()

	// exit is the one message still admitted after Shutdown.
	c.enqueue(newNotification(MethodExit, nil), nil)

	stopWorkers(sendq, recvq)

	if proc == nil {
		return
	}

	c.logger.Debug("waiting for server to terminate")
	select {
	case <-procExited:
	case <-time.After(c.exitGrace):
		c.logger.Warn("terminate grace period expired, killing server")
		_ = proc.Kill()
		<-procExited
	}
	c.logger.Info("server terminated")
}

// active reports whether the connection is still in a state the reader
// should serve, for this epoch.
func (c *Client) active(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch &&
		(c.status == StatusInitializing || c.status == StatusInitialized)
}

// fail drives the connection into Failed, discards pending callbacks,
// and pushes sentinels to both channels. The transition happens at most
// once per epoch even when reader, writer, and monitor detect the same
// failure concurrently. A failure during the handshake still completes
// the initialize callback, with a synthetic error.
func (c *Client) fail(epoch uint64, sendq chan *RequestMessage, recvq chan *Message) {
	c.mu.Lock()
	if c.epoch != epoch || c.status == StatusFailed || c.status == StatusShutdown {
		c.mu.Unlock()
		return
	}
	c.status = StatusFailed
	initCb := c.initCb
	c.initCb = nil
	c.pending.clear()
	c.mu.Unlock()

	stopWorkers(sendq, recvq)

	if initCb != nil {
		initCb(syntheticError(CodeConnFailed, "connection failed before initialization completed"))
	}
}

// stopWorkers queues stop sentinels for the writer and dispatcher. The
// sends must not block: the writer reports its own write failures, and
// blocking on a full send queue there would deadlock it against its own
// channel. A dropped sentinel means the consumer was not parked on a
// receive; it is the failing goroutine itself, has already stopped, or
// stops once its stream breaks.
func stopWorkers(sendq chan *RequestMessage, recvq chan *Message) {
	select {
	case sendq <- nil:
	default:
	}
	select {
	case recvq <- nil:
	default:
	}
}

// read decodes frames from the server's stdout and enqueues them on the
// receive channel. It terminates on end of stream, a stream-level
// error, or shutdown. A body that fails to decode drops that one
// message only; the in-flight request, if any, never gets its callback.
func (c *Client) read(proc Process, sendq chan *RequestMessage, recvq chan *Message, epoch uint64) {
	c.logger.Debug("reader started")
	defer c.logger.Debug("reader stopped")

	br := bufio.NewReaderSize(proc.Stdout(), 64*1024)

	for c.active(epoch) {
		body, err := readFrame(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug("reader reached end of stream")
			} else {
				c.logger.Error("reader failed", zap.Error(err))
			}
			c.fail(epoch, sendq, recvq)
			return
		}

		msg, err := decodeMessage(body)
		if err != nil {
			c.logger.Error("dropping undecodable message", zap.Error(err))
			continue
		}

		// Blocks when the receive channel is full: a slow dispatcher
		// throttles the reader instead of buffering without bound.
		recvq <- msg
	}
}

// write drains the send channel until it receives a sentinel, encoding
// and writing each message to the server's stdin. A write failure
// (broken pipe) fails the connection and stops the loop. Closing done
// on return releases producers blocked on a full send queue.
func (c *Client) write(proc Process, sendq chan *RequestMessage, recvq chan *Message, done chan struct{}, epoch uint64) {
	c.logger.Debug("writer started")
	defer c.logger.Debug("writer stopped")
	defer close(done)

	for {
		msg := <-sendq
		if msg == nil {
			return
		}

		frame, err := encodeFrame(msg)
		if err != nil {
			c.logger.Error("dropping unencodable message",
				zap.String("method", msg.Method), zap.Error(err))
			continue
		}

		if _, err := proc.Stdin().Write(frame); err != nil {
			c.logger.Error("cannot write to server stdin", zap.Error(err))
			c.fail(epoch, sendq, recvq)
			return
		}
	}
}

// dispatch drains the receive channel until it receives a sentinel.
// Responses resolve their pending callback; notifications route to the
// registered handler or the "*" catch-all. A panicking callback is
// recovered and logged so it cannot stop response delivery.
func (c *Client) dispatch(recvq chan *Message, pending *pendingTable) {
	c.logger.Debug("dispatcher started")
	defer c.logger.Debug("dispatcher stopped")

	for {
		msg := <-recvq
		if msg == nil {
			return
		}

		if msg.ID != nil {
			cb := pending.resolve(*msg.ID)
			if cb == nil {
				// A response to a request whose callback was already
				// cleared (e.g. after a failure).
				c.logger.Debug("discarding response with no pending request",
					zap.String("id", msg.ID.String()))
				continue
			}
			c.invoke("response "+msg.ID.String(), func() { cb(msg.response()) })
			continue
		}

		if msg.Method == "" {
			c.logger.Debug("discarding message with neither id nor method")
			continue
		}

		h := c.handler(msg.Method)
		if h == nil {
			c.logger.Debug("no handler for notification", zap.String("method", msg.Method))
			continue
		}
		c.invoke("notification "+msg.Method, func() { h(msg.notification()) })
	}
}

// invoke runs a caller callback, containing any panic.
func (c *Client) invoke(what string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panicked", zap.String("handling", what), zap.Any("panic", r))
		}
	}()
	f()
}

// monitor blocks on process exit. An exit while the connection is still
// active is a crash and fails the connection; an exit after Shutdown or
// Failed is expected and only logged.
func (c *Client) monitor(proc Process, procExited chan struct{}, sendq chan *RequestMessage, recvq chan *Message, epoch uint64) {
	c.logger.Debug("monitor started")
	defer c.logger.Debug("monitor stopped")

	err := proc.Wait()
	close(procExited)

	c.mu.Lock()
	expected := c.epoch != epoch || c.status == StatusShutdown || c.status == StatusFailed
	c.mu.Unlock()

	if expected {
		c.logger.Debug("server exited", zap.Error(err))
		return
	}

	c.logger.Error("server exited unexpectedly", zap.Error(err))
	c.fail(epoch, sendq, recvq)
}

// drainStderr consumes the server's stderr so the process cannot block
// on a full pipe. The stream is opaque log text, not protocol traffic.
func (c *Client) drainStderr(proc Process) {
	sc := bufio.NewScanner(proc.Stderr())
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		c.logger.Debug("server stderr", zap.String("line", sc.Text()))
	}
}
