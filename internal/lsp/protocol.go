package lsp

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// jsonrpcVersion tags every message on the wire. The client carries it
// but does not otherwise interpret it.
const jsonrpcVersion = "2.0"

// Lifecycle method names. These are admitted regardless of connection
// state so that a stuck or half-initialized connection stays cleanable.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodShutdown    = "shutdown"
	MethodExit        = "exit"
)

// Request and notification method names.
const (
	MethodDidOpen   = "textDocument/didOpen"
	MethodDidClose  = "textDocument/didClose"
	MethodDidChange = "textDocument/didChange"

	MethodHover             = "textDocument/hover"
	MethodDefinition        = "textDocument/definition"
	MethodTypeDefinition    = "textDocument/typeDefinition"
	MethodImplementation    = "textDocument/implementation"
	MethodReferences        = "textDocument/references"
	MethodDocumentHighlight = "textDocument/documentHighlight"
	MethodDocumentSymbol    = "textDocument/documentSymbol"
	MethodFormatting        = "textDocument/formatting"
	MethodRangeFormatting   = "textDocument/rangeFormatting"
	MethodCompletion        = "textDocument/completion"
	MethodSignatureHelp     = "textDocument/signatureHelp"
	MethodRename            = "textDocument/rename"
	MethodCodeAction        = "textDocument/codeAction"
	MethodWorkspaceSymbol   = "workspace/symbol"

	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
)

// RequestID is a JSON-RPC correlation id: a string or an integer.
// The client generates string ids, but servers echo whatever a peer
// sent, so decoding must accept both.
type RequestID struct {
	value any
}

// NewRequestID returns a fresh string id, unique for this process.
func NewRequestID() RequestID {
	return RequestID{value: uuid.NewString()}
}

// StringID wraps an explicit string id.
func StringID(s string) RequestID { return RequestID{value: s} }

// IntID wraps an explicit integer id.
func IntID(i int64) RequestID { return RequestID{value: i} }

// UnmarshalJSON accepts a string or numeric id.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		id.value = t
	case float64:
		// JSON numbers decode as float64; ids are integral.
		id.value = int64(t)
	case nil:
		id.value = nil
	default:
		return fmt.Errorf("lsp: request id must be a string or integer, got %T", v)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (id RequestID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// String returns a map-key representation of the id.
func (id RequestID) String() string {
	switch t := id.value.(type) {
	case string:
		return t
	case int64:
		return fmt.Sprintf("#%d", t)
	default:
		return "<nil>"
	}
}

// IsZero reports whether the id carries no value.
func (id RequestID) IsZero() bool { return id.value == nil }

// RequestMessage is an outgoing request. Exactly one response is
// expected for every request written to the server.
type RequestMessage struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      *RequestID `json:"id,omitempty"`
	Method  string     `json:"method"`
	Params  any        `json:"params,omitempty"`
}

// newRequest builds a request with a fresh correlation id.
func newRequest(method string, params any) *RequestMessage {
	id := NewRequestID()
	return &RequestMessage{
		JSONRPC: jsonrpcVersion,
		ID:      &id,
		Method:  method,
		Params:  params,
	}
}

// newNotification builds a fire-and-forget message. Notifications share
// the outgoing shape with requests minus the id.
func newNotification(method string, params any) *RequestMessage {
	return &RequestMessage{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
	}
}

// Message is one decoded inbound frame: a response when ID is set, a
// notification (or server-to-client request) otherwise.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseMessage is the response view of an inbound message, handed to
// request callbacks. A nil ID marks a synthetic transport error not
// tied to any request.
type ResponseMessage struct {
	ID     *RequestID
	Result json.RawMessage
	Error  *ResponseError
}

// NotificationMessage is the notification view of an inbound message.
type NotificationMessage struct {
	Method string
	Params json.RawMessage
}

func (m *Message) response() *ResponseMessage {
	return &ResponseMessage{ID: m.ID, Result: m.Result, Error: m.Error}
}

func (m *Message) notification() *NotificationMessage {
	return &NotificationMessage{Method: m.Method, Params: m.Params}
}

// syntheticError fabricates a response for a failure that happened on
// this side of the pipe (spawn failure, handshake timeout).
func syntheticError(code int, message string) *ResponseMessage {
	return &ResponseMessage{Error: &ResponseError{Code: code, Message: message}}
}

// ResponseHandler receives the response correlated to a request. It is
// invoked at most once, and never after the connection has failed or
// shut down.
type ResponseHandler func(*ResponseMessage)

// NotificationHandler receives a server notification.
type NotificationHandler func(*NotificationMessage)

// --- Initialize ---

// ServerInfo identifies the server, as reported by the server itself.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeResult is the payload of a successful initialize response.
// Capabilities stay raw; SupportsMethod queries them in place.
type InitializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *ServerInfo     `json:"serverInfo,omitempty"`
}

// InitializeParams is the handshake request payload. Callers may build
// richer params themselves and pass any value to Initialize; this
// struct covers the common case.
type InitializeParams struct {
	ProcessID             int               `json:"processId"`
	RootURI               DocumentURI       `json:"rootUri,omitempty"`
	Capabilities          map[string]any    `json:"capabilities"`
	InitializationOptions any               `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder `json:"workspaceFolders,omitempty"`
}

// WorkspaceFolder names one root the server should consider.
type WorkspaceFolder struct {
	URI  DocumentURI `json:"uri"`
	Name string      `json:"name"`
}

// --- Text document payloads ---

// DocumentURI identifies a text document. On the wire URIs are strings.
type DocumentURI string

// Position in a text document: zero-based line and character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a (zero-based, end-exclusive) span in a text document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range inside a resource.
type Location struct {
	URI   DocumentURI `json:"uri"`
	Range Range       `json:"range"`
}

// TextDocumentIdentifier refers to a document by URI.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier refers to a specific document version.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem transfers a document from client to server.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams is the common request payload of a
// document plus a position inside it.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// DidOpenTextDocumentParams signals a newly opened document.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidCloseTextDocumentParams signals a closed document.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// TextDocumentContentChangeEvent describes one change to a document.
// A nil Range means full-content replacement.
type TextDocumentContentChangeEvent struct {
	Range       *Range `json:"range,omitempty"`
	RangeLength *int   `json:"rangeLength,omitempty"`
	Text        string `json:"text"`
}

// DidChangeTextDocumentParams signals document changes.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// FormattingOptions describe what options formatting should use.
type FormattingOptions struct {
	TabSize                int  `json:"tabSize"`
	InsertSpaces           bool `json:"insertSpaces"`
	TrimTrailingWhitespace bool `json:"trimTrailingWhitespace,omitempty"`
	InsertFinalNewline     bool `json:"insertFinalNewline,omitempty"`
	TrimFinalNewlines      bool `json:"trimFinalNewlines,omitempty"`
}

// DocumentFormattingParams is the whole-document formatting payload.
type DocumentFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Options      FormattingOptions      `json:"options"`
}

// DocumentRangeFormattingParams formats a range within a document.
type DocumentRangeFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Options      FormattingOptions      `json:"options"`
}

// TextEdit is a textual edit applicable to a document.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// TextDocumentEdit groups edits against one document version.
type TextDocumentEdit struct {
	TextDocument VersionedTextDocumentIdentifier `json:"textDocument"`
	Edits        []TextEdit                      `json:"edits"`
}

// WorkspaceEdit represents changes to many resources.
type WorkspaceEdit struct {
	Changes         map[DocumentURI][]TextEdit `json:"changes,omitempty"`
	DocumentChanges []TextDocumentEdit         `json:"documentChanges,omitempty"`
}

// ReferenceContext controls what a references request returns.
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// ReferenceParams asks for all references to the symbol at a position.
type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

// RenameParams asks for a workspace-wide rename of a symbol.
type RenameParams struct {
	TextDocumentPositionParams
	NewName string `json:"newName"`
}

// WorkspaceSymbolParams filters project-wide symbols by a query string.
type WorkspaceSymbolParams struct {
	Query string `json:"query"`
}

// --- Results ---

// MarkupContent is a string value interpreted by its kind
// ("plaintext" or "markdown").
type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Hover is the result of a hover request. Contents stays raw because
// the protocol allows MarkedString | MarkedString[] | MarkupContent.
type Hover struct {
	Contents json.RawMessage `json:"contents"`
	Range    *Range          `json:"range,omitempty"`
}

// Diagnostic is a compiler error, warning, or hint for a resource.
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity,omitempty"`
	Code     any    `json:"code,omitempty"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

// PublishDiagnosticsParams is the payload of the
// textDocument/publishDiagnostics notification.
type PublishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Version     *int         `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// CompletionItem is one completion proposal.
type CompletionItem struct {
	Label         string          `json:"label"`
	Kind          int             `json:"kind,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	Documentation json.RawMessage `json:"documentation,omitempty"`
	InsertText    string          `json:"insertText,omitempty"`
}

// CompletionList is a (possibly incomplete) set of completion items.
type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// ParameterInformation describes one parameter of a callable signature.
type ParameterInformation struct {
	Label         json.RawMessage `json:"label"`
	Documentation json.RawMessage `json:"documentation,omitempty"`
}

// SignatureInformation describes the signature of a callable.
type SignatureInformation struct {
	Label         string                 `json:"label"`
	Documentation json.RawMessage        `json:"documentation,omitempty"`
	Parameters    []ParameterInformation `json:"parameters,omitempty"`
}

// SignatureHelp is the signature of something callable.
type SignatureHelp struct {
	Signatures      []SignatureInformation `json:"signatures"`
	ActiveSignature *int                   `json:"activeSignature,omitempty"`
	ActiveParameter *int                   `json:"activeParameter,omitempty"`
}

// DocumentHighlight is a range deserving attention, usually rendered by
// changing its background color.
type DocumentHighlight struct {
	Range Range `json:"range"`
	Kind  int   `json:"kind,omitempty"`
}

// DocumentSymbol is a programming construct in a document. Symbols can
// be hierarchical.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           int              `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is the flat symbol representation older servers
// return for document and workspace symbol requests.
type SymbolInformation struct {
	Name          string   `json:"name"`
	Kind          int      `json:"kind"`
	ContainerName string   `json:"containerName,omitempty"`
	Location      Location `json:"location"`
}

// parseLocations normalizes a definition-style result, which the
// protocol allows to be Location | Location[] | null.
func parseLocations(raw json.RawMessage) ([]Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var many []Location
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one Location
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("decode location result: %w", err)
	}
	return []Location{one}, nil
}

// parseCompletions normalizes CompletionItem[] | CompletionList | null.
func parseCompletions(raw json.RawMessage) (*CompletionList, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list CompletionList
	if err := json.Unmarshal(raw, &list); err == nil && list.Items != nil {
		return &list, nil
	}
	var items []CompletionItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode completion result: %w", err)
	}
	return &CompletionList{Items: items}, nil
}
