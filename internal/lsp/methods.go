package lsp

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Typed wrappers over Call and Notify for the standard text-document
// requests. Each wrapper decodes the raw result into its protocol type;
// a result that fails to decode reaches the callback as a parse error.
// The connection-state admission rules of Call apply unchanged.

// decodeHandler adapts a typed callback to a ResponseHandler, decoding
// the raw result into T.
func decodeHandler[T any](c *Client, method string, cb func(*T, *ResponseError)) ResponseHandler {
	return func(resp *ResponseMessage) {
		if resp.Error != nil {
			cb(nil, resp.Error)
			return
		}
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			cb(nil, nil)
			return
		}
		var out T
		if err := json.Unmarshal(resp.Result, &out); err != nil {
			c.logger.Error("decoding result", zap.String("method", method), zap.Error(err))
			cb(nil, &ResponseError{Code: CodeParseError, Message: err.Error()})
			return
		}
		cb(&out, nil)
	}
}

// locationsHandler adapts a callback taking the normalized
// Location-or-Locations result shape.
func locationsHandler(c *Client, method string, cb func([]Location, *ResponseError)) ResponseHandler {
	return func(resp *ResponseMessage) {
		if resp.Error != nil {
			cb(nil, resp.Error)
			return
		}
		locs, err := parseLocations(resp.Result)
		if err != nil {
			c.logger.Error("decoding result", zap.String("method", method), zap.Error(err))
			cb(nil, &ResponseError{Code: CodeParseError, Message: err.Error()})
			return
		}
		cb(locs, nil)
	}
}

// Hover requests hover information at a position.
func (c *Client) Hover(doc TextDocumentIdentifier, pos Position, cb func(*Hover, *ResponseError)) {
	params := TextDocumentPositionParams{TextDocument: doc, Position: pos}
	c.Call(MethodHover, params, decodeHandler(c, MethodHover, cb))
}

// Definition requests the definition sites of the symbol at a position.
func (c *Client) Definition(doc TextDocumentIdentifier, pos Position, cb func([]Location, *ResponseError)) {
	params := TextDocumentPositionParams{TextDocument: doc, Position: pos}
	c.Call(MethodDefinition, params, locationsHandler(c, MethodDefinition, cb))
}

// TypeDefinition requests the type definition of the symbol at a
// position.
func (c *Client) TypeDefinition(doc TextDocumentIdentifier, pos Position, cb func([]Location, *ResponseError)) {
	params := TextDocumentPositionParams{TextDocument: doc, Position: pos}
	c.Call(MethodTypeDefinition, params, locationsHandler(c, MethodTypeDefinition, cb))
}

// Implementation requests the implementation sites of the symbol at a
// position.
func (c *Client) Implementation(doc TextDocumentIdentifier, pos Position, cb func([]Location, *ResponseError)) {
	params := TextDocumentPositionParams{TextDocument: doc, Position: pos}
	c.Call(MethodImplementation, params, locationsHandler(c, MethodImplementation, cb))
}

// References requests all references to the symbol at a position.
func (c *Client) References(doc TextDocumentIdentifier, pos Position, includeDeclaration bool, cb func([]Location, *ResponseError)) {
	params := ReferenceParams{
		TextDocumentPositionParams: TextDocumentPositionParams{TextDocument: doc, Position: pos},
		Context:                    ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
	c.Call(MethodReferences, params, locationsHandler(c, MethodReferences, cb))
}

// DocumentHighlight requests the highlights for the symbol at a
// position.
func (c *Client) DocumentHighlight(doc TextDocumentIdentifier, pos Position, cb func([]DocumentHighlight, *ResponseError)) {
	params := TextDocumentPositionParams{TextDocument: doc, Position: pos}
	c.Call(MethodDocumentHighlight, params, decodeHandler(c, MethodDocumentHighlight, func(hs *[]DocumentHighlight, rerr *ResponseError) {
		if hs == nil {
			cb(nil, rerr)
			return
		}
		cb(*hs, rerr)
	}))
}

// SymbolResult holds a document-symbol result. Servers return either
// the hierarchical or the flat shape; exactly one field is populated.
type SymbolResult struct {
	Symbols []DocumentSymbol
	Flat    []SymbolInformation
}

// DocumentSymbol requests the symbols defined in a document.
func (c *Client) DocumentSymbol(doc TextDocumentIdentifier, cb func(*SymbolResult, *ResponseError)) {
	params := struct {
		TextDocument TextDocumentIdentifier `json:"textDocument"`
	}{TextDocument: doc}
	c.Call(MethodDocumentSymbol, params, func(resp *ResponseMessage) {
		if resp.Error != nil {
			cb(nil, resp.Error)
			return
		}
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			cb(nil, nil)
			return
		}
		res, err := parseSymbols(resp.Result)
		if err != nil {
			c.logger.Error("decoding result", zap.String("method", MethodDocumentSymbol), zap.Error(err))
			cb(nil, &ResponseError{Code: CodeParseError, Message: err.Error()})
			return
		}
		cb(res, nil)
	})
}

// parseSymbols distinguishes DocumentSymbol[] from SymbolInformation[]
// by the shape of the first element: only the flat form carries a
// location.
func parseSymbols(raw json.RawMessage) (*SymbolResult, error) {
	first := gjson.GetBytes(raw, "0")
	if first.Get("location").Exists() {
		var flat []SymbolInformation
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, err
		}
		return &SymbolResult{Flat: flat}, nil
	}
	var symbols []DocumentSymbol
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, err
	}
	return &SymbolResult{Symbols: symbols}, nil
}

// Formatting requests whole-document formatting edits.
func (c *Client) Formatting(doc TextDocumentIdentifier, opts FormattingOptions, cb func([]TextEdit, *ResponseError)) {
	params := DocumentFormattingParams{TextDocument: doc, Options: opts}
	c.Call(MethodFormatting, params, editsHandler(c, MethodFormatting, cb))
}

// RangeFormatting requests formatting edits for a range.
func (c *Client) RangeFormatting(doc TextDocumentIdentifier, rng Range, opts FormattingOptions, cb func([]TextEdit, *ResponseError)) {
	params := DocumentRangeFormattingParams{TextDocument: doc, Range: rng, Options: opts}
	c.Call(MethodRangeFormatting, params, editsHandler(c, MethodRangeFormatting, cb))
}

func editsHandler(c *Client, method string, cb func([]TextEdit, *ResponseError)) ResponseHandler {
	return decodeHandler(c, method, func(edits *[]TextEdit, rerr *ResponseError) {
		if edits == nil {
			cb(nil, rerr)
			return
		}
		cb(*edits, rerr)
	})
}

// Completion requests completion proposals at a position. The two
// result shapes the protocol allows both normalize to a CompletionList.
func (c *Client) Completion(doc TextDocumentIdentifier, pos Position, cb func(*CompletionList, *ResponseError)) {
	params := TextDocumentPositionParams{TextDocument: doc, Position: pos}
	c.Call(MethodCompletion, params, func(resp *ResponseMessage) {
		if resp.Error != nil {
			cb(nil, resp.Error)
			return
		}
		list, err := parseCompletions(resp.Result)
		if err != nil {
			c.logger.Error("decoding result", zap.String("method", MethodCompletion), zap.Error(err))
			cb(nil, &ResponseError{Code: CodeParseError, Message: err.Error()})
			return
		}
		cb(list, nil)
	})
}

// SignatureHelp requests the signature of the callable at a position.
func (c *Client) SignatureHelp(doc TextDocumentIdentifier, pos Position, cb func(*SignatureHelp, *ResponseError)) {
	params := TextDocumentPositionParams{TextDocument: doc, Position: pos}
	c.Call(MethodSignatureHelp, params, decodeHandler(c, MethodSignatureHelp, cb))
}

// WorkspaceSymbol requests project-wide symbols matching a query.
func (c *Client) WorkspaceSymbol(query string, cb func([]SymbolInformation, *ResponseError)) {
	params := WorkspaceSymbolParams{Query: query}
	c.Call(MethodWorkspaceSymbol, params, decodeHandler(c, MethodWorkspaceSymbol, func(syms *[]SymbolInformation, rerr *ResponseError) {
		if syms == nil {
			cb(nil, rerr)
			return
		}
		cb(*syms, rerr)
	}))
}

// Rename requests a workspace-wide rename of the symbol at a position.
func (c *Client) Rename(doc TextDocumentIdentifier, pos Position, newName string, cb func(*WorkspaceEdit, *ResponseError)) {
	params := RenameParams{
		TextDocumentPositionParams: TextDocumentPositionParams{TextDocument: doc, Position: pos},
		NewName:                    newName,
	}
	c.Call(MethodRename, params, decodeHandler(c, MethodRename, cb))
}

// DidOpen tells the server a document is now open. A document already
// open is not re-announced; servers treat a duplicate didOpen as a
// protocol violation.
func (c *Client) DidOpen(item TextDocumentItem) {
	c.mu.Lock()
	if _, open := c.openDocs[item.URI]; open {
		c.mu.Unlock()
		c.logger.Warn("document already open", zap.String("uri", string(item.URI)))
		return
	}
	c.openDocs[item.URI] = struct{}{}
	c.mu.Unlock()

	c.Notify(MethodDidOpen, DidOpenTextDocumentParams{TextDocument: item})
}

// DidClose tells the server a document was closed. Dropped for a
// document that was never announced as open.
func (c *Client) DidClose(uri DocumentURI) {
	c.mu.Lock()
	if _, open := c.openDocs[uri]; !open {
		c.mu.Unlock()
		c.logger.Warn("document not open", zap.String("uri", string(uri)))
		return
	}
	delete(c.openDocs, uri)
	c.mu.Unlock()

	c.Notify(MethodDidClose, DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// DidChange announces changes to an open document. Dropped for a
// document that was never announced as open.
func (c *Client) DidChange(doc VersionedTextDocumentIdentifier, changes []TextDocumentContentChangeEvent) {
	c.mu.Lock()
	if _, open := c.openDocs[doc.URI]; !open {
		c.mu.Unlock()
		c.logger.Warn("document not open", zap.String("uri", string(doc.URI)))
		return
	}
	c.mu.Unlock()

	c.Notify(MethodDidChange, DidChangeTextDocumentParams{
		TextDocument:   doc,
		ContentChanges: changes,
	})
}

// IsOpen reports whether a document has been announced as open.
func (c *Client) IsOpen(uri DocumentURI) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, open := c.openDocs[uri]
	return open
}
