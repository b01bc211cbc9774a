package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the LSP client.
var (
	// ErrMissingContentLength indicates a frame header section without a
	// Content-Length field.
	ErrMissingContentLength = errors.New("lsp: missing Content-Length header")

	// ErrConnExists indicates a registry entry already exists for a root.
	ErrConnExists = errors.New("lsp: connection already registered for root")
)

// ResponseError is the error object carried by a response message.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// LSP-specific errors
	CodeServerNotInitialized = -32002
	CodeUnknownErrorCode     = -32001
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
	CodeServerCancelled      = -32802
	CodeRequestFailed        = -32803
)

// Synthetic transport error codes. These appear only in responses
// fabricated by the client itself (never read off the wire) and carry
// no id.
const (
	// CodeSpawnFailed reports that the server subprocess could not be
	// started.
	CodeSpawnFailed = -1

	// CodeInitTimeout reports that the initialize handshake did not
	// complete within the caller's timeout.
	CodeInitTimeout = -2

	// CodeConnFailed reports that the connection failed (stream error or
	// process exit) before the handshake completed.
	CodeConnFailed = -3
)
