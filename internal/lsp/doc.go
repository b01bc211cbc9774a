// Package lsp implements a Language Server Protocol client over a
// server subprocess's stdio.
//
// The package owns the subprocess lifecycle, frames and correlates
// asynchronous JSON-RPC traffic, dispatches server notifications, and
// degrades predictably when the server misbehaves or dies. It knows
// nothing about editors; callers exchange structured messages and
// register callbacks.
//
// # Architecture
//
// One Client per server subprocess. A started Client runs four
// goroutines:
//
//   - reader: decodes one frame at a time from the server's stdout and
//     enqueues it on the bounded receive channel
//   - writer: drains the bounded send channel, encoding and writing
//     each message to the server's stdin
//   - dispatcher: correlates responses to pending request callbacks and
//     routes notifications to registered handlers
//   - monitor: blocks on subprocess exit and fails the connection if
//     the exit was not expected
//
// All shared state (lifecycle status, pending request table, open
// document set, capabilities snapshot) is guarded by a single
// connection lock held only for short, non-blocking critical sections.
//
// # Lifecycle
//
// A Client moves through NotStarted -> Initializing -> Initialized ->
// Shutdown. Spawn failure, a handshake error or timeout, a stream
// error, or an unexpected process exit all move it to Failed. A Failed
// client may be re-initialized without constructing a new Client;
// there is no automatic reconnection.
//
// # Quick start
//
//	client := lsp.NewClient("gopls", []string{"gopls", "serve"},
//	    lsp.WithLogger(logger))
//
//	client.OnNotification("textDocument/publishDiagnostics", func(n *lsp.NotificationMessage) {
//	    // decode n.Params
//	})
//
//	client.Initialize(params, func(resp *lsp.ResponseMessage) {
//	    // resp.Error != nil on handshake failure
//	}, 30*time.Second)
//
// Requests resolve through callbacks, never blocking the caller:
//
//	doc := lsp.TextDocumentIdentifier{URI: "file:///main.go"}
//	client.Hover(doc, lsp.Position{Line: 12, Character: 4},
//	    func(h *lsp.Hover, rerr *lsp.ResponseError) {
//	        // h may be nil (no hover information)
//	    })
//
// Callbacks registered for in-flight requests are discarded, never
// invoked, when the connection fails or shuts down; callers that need
// a guaranteed completion must run their own timeout.
package lsp
