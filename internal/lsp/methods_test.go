package lsp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// respondTo answers the next request on the wire with a raw JSON
// result, asserting its method.
func respondTo(srv *fakeServer, method string, result string) {
	go func() {
		msg := srv.readMessage()
		if msg == nil {
			return
		}
		if msg.Method != method {
			srv.t.Errorf("request method = %q, want %q", msg.Method, method)
		}
		srv.respond(msg.ID, json.RawMessage(result))
	}()
}

func TestHover(t *testing.T) {
	c, srv := startClient(t, `{"hoverProvider":true}`)
	respondTo(srv, MethodHover,
		`{"contents":{"kind":"markdown","value":"func Println"},"range":{"start":{"line":3,"character":0},"end":{"line":3,"character":7}}}`)

	got := make(chan *Hover, 1)
	c.Hover(TextDocumentIdentifier{URI: "file:///a.go"}, Position{Line: 3, Character: 4},
		func(h *Hover, rerr *ResponseError) {
			require.Nil(t, rerr)
			got <- h
		})

	select {
	case h := <-got:
		require.NotNil(t, h)
		assert.Contains(t, string(h.Contents), "func Println")
		require.NotNil(t, h.Range)
		assert.Equal(t, 3, h.Range.Start.Line)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for hover")
	}
}

func TestHoverNullResult(t *testing.T) {
	c, srv := startClient(t, `{"hoverProvider":true}`)
	respondTo(srv, MethodHover, `null`)

	got := make(chan *Hover, 1)
	c.Hover(TextDocumentIdentifier{URI: "file:///a.go"}, Position{},
		func(h *Hover, rerr *ResponseError) {
			require.Nil(t, rerr)
			got <- h
		})

	select {
	case h := <-got:
		assert.Nil(t, h, "nothing under the cursor decodes to nil")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for hover")
	}
}

func TestDefinitionSingleLocation(t *testing.T) {
	c, srv := startClient(t, `{"definitionProvider":true}`)
	respondTo(srv, MethodDefinition,
		`{"uri":"file:///b.go","range":{"start":{"line":10,"character":0},"end":{"line":10,"character":5}}}`)

	got := make(chan []Location, 1)
	c.Definition(TextDocumentIdentifier{URI: "file:///a.go"}, Position{Line: 1},
		func(locs []Location, rerr *ResponseError) {
			require.Nil(t, rerr)
			got <- locs
		})

	select {
	case locs := <-got:
		require.Len(t, locs, 1, "single location normalizes to a one-element slice")
		assert.Equal(t, DocumentURI("file:///b.go"), locs[0].URI)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for definition")
	}
}

func TestReferencesCarriesContext(t *testing.T) {
	c, srv := startClient(t, `{"referencesProvider":true}`)

	paramsCh := make(chan json.RawMessage, 1)
	go func() {
		msg := srv.readMessage()
		if msg == nil {
			return
		}
		paramsCh <- msg.Params
		srv.respond(msg.ID, json.RawMessage(`[]`))
	}()

	done := make(chan struct{}, 1)
	c.References(TextDocumentIdentifier{URI: "file:///a.go"}, Position{Line: 2}, true,
		func([]Location, *ResponseError) { done <- struct{}{} })

	select {
	case params := <-paramsCh:
		var p ReferenceParams
		require.NoError(t, json.Unmarshal(params, &p))
		assert.True(t, p.Context.IncludeDeclaration)
		assert.Equal(t, DocumentURI("file:///a.go"), p.TextDocument.URI)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for references request")
	}
	<-done
}

func TestCompletionItemsArray(t *testing.T) {
	c, srv := startClient(t, `{"completionProvider":{}}`)
	respondTo(srv, MethodCompletion, `[{"label":"Print"},{"label":"Printf"}]`)

	got := make(chan *CompletionList, 1)
	c.Completion(TextDocumentIdentifier{URI: "file:///a.go"}, Position{},
		func(list *CompletionList, rerr *ResponseError) {
			require.Nil(t, rerr)
			got <- list
		})

	select {
	case list := <-got:
		require.NotNil(t, list)
		assert.Len(t, list.Items, 2)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for completion")
	}
}

func TestDocumentSymbolHierarchical(t *testing.T) {
	c, srv := startClient(t, `{"documentSymbolProvider":true}`)
	respondTo(srv, MethodDocumentSymbol,
		`[{"name":"Client","kind":23,"range":{"start":{"line":0,"character":0},"end":{"line":9,"character":0}},"selectionRange":{"start":{"line":0,"character":5},"end":{"line":0,"character":11}},"children":[{"name":"Status","kind":6,"range":{"start":{"line":2,"character":0},"end":{"line":4,"character":0}},"selectionRange":{"start":{"line":2,"character":5},"end":{"line":2,"character":11}}}]}]`)

	got := make(chan *SymbolResult, 1)
	c.DocumentSymbol(TextDocumentIdentifier{URI: "file:///a.go"},
		func(res *SymbolResult, rerr *ResponseError) {
			require.Nil(t, rerr)
			got <- res
		})

	select {
	case res := <-got:
		require.NotNil(t, res)
		require.Len(t, res.Symbols, 1)
		assert.Nil(t, res.Flat)
		assert.Equal(t, "Client", res.Symbols[0].Name)
		require.Len(t, res.Symbols[0].Children, 1)
		assert.Equal(t, "Status", res.Symbols[0].Children[0].Name)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for symbols")
	}
}

func TestDocumentSymbolFlat(t *testing.T) {
	c, srv := startClient(t, `{"documentSymbolProvider":true}`)
	respondTo(srv, MethodDocumentSymbol,
		`[{"name":"main","kind":12,"location":{"uri":"file:///a.go","range":{"start":{"line":5,"character":0},"end":{"line":9,"character":0}}}}]`)

	got := make(chan *SymbolResult, 1)
	c.DocumentSymbol(TextDocumentIdentifier{URI: "file:///a.go"},
		func(res *SymbolResult, rerr *ResponseError) {
			require.Nil(t, rerr)
			got <- res
		})

	select {
	case res := <-got:
		require.NotNil(t, res)
		require.Len(t, res.Flat, 1)
		assert.Nil(t, res.Symbols)
		assert.Equal(t, "main", res.Flat[0].Name)
		assert.Equal(t, DocumentURI("file:///a.go"), res.Flat[0].Location.URI)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for symbols")
	}
}

func TestWorkspaceSymbol(t *testing.T) {
	c, srv := startClient(t, `{"workspaceSymbolProvider":true}`)

	go func() {
		msg := srv.readMessage()
		if msg == nil {
			return
		}
		var p WorkspaceSymbolParams
		_ = json.Unmarshal(msg.Params, &p)
		if p.Query != "Client" {
			srv.t.Errorf("query = %q, want Client", p.Query)
		}
		srv.respond(msg.ID, json.RawMessage(
			`[{"name":"Client","kind":23,"location":{"uri":"file:///c.go","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":6}}}}]`))
	}()

	got := make(chan []SymbolInformation, 1)
	c.WorkspaceSymbol("Client", func(syms []SymbolInformation, rerr *ResponseError) {
		require.Nil(t, rerr)
		got <- syms
	})

	select {
	case syms := <-got:
		require.Len(t, syms, 1)
		assert.Equal(t, "Client", syms[0].Name)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for workspace symbols")
	}
}

func TestRename(t *testing.T) {
	c, srv := startClient(t, `{"renameProvider":true}`)
	respondTo(srv, MethodRename,
		`{"changes":{"file:///a.go":[{"range":{"start":{"line":1,"character":0},"end":{"line":1,"character":3}},"newText":"qux"}]}}`)

	got := make(chan *WorkspaceEdit, 1)
	c.Rename(TextDocumentIdentifier{URI: "file:///a.go"}, Position{Line: 1}, "qux",
		func(edit *WorkspaceEdit, rerr *ResponseError) {
			require.Nil(t, rerr)
			got <- edit
		})

	select {
	case edit := <-got:
		require.NotNil(t, edit)
		edits := edit.Changes["file:///a.go"]
		require.Len(t, edits, 1)
		assert.Equal(t, "qux", edits[0].NewText)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for rename")
	}
}

func TestFormattingError(t *testing.T) {
	c, srv := startClient(t, `{"documentFormattingProvider":true}`)

	go func() {
		msg := srv.readMessage()
		if msg == nil {
			return
		}
		srv.respondError(msg.ID, CodeInternalError, "formatter crashed")
	}()

	got := make(chan *ResponseError, 1)
	c.Formatting(TextDocumentIdentifier{URI: "file:///a.go"}, FormattingOptions{TabSize: 4, InsertSpaces: true},
		func(edits []TextEdit, rerr *ResponseError) {
			assert.Nil(t, edits)
			got <- rerr
		})

	select {
	case rerr := <-got:
		require.NotNil(t, rerr)
		assert.Equal(t, CodeInternalError, rerr.Code)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for formatting error")
	}
}

func TestDocumentOpenCloseBalance(t *testing.T) {
	c, srv := startClient(t, `{"textDocumentSync":1}`)

	seen := make(chan string, 4)
	go func() {
		for {
			msg := srv.readMessage()
			if msg == nil {
				return
			}
			seen <- msg.Method
		}
	}()

	item := TextDocumentItem{URI: "file:///a.go", LanguageID: "go", Version: 1, Text: "package main\n"}

	c.DidOpen(item)
	assert.True(t, c.IsOpen(item.URI))

	// Duplicate open and a change/close for a document never opened are
	// dropped before reaching the wire.
	c.DidOpen(item)
	c.DidChange(
		VersionedTextDocumentIdentifier{TextDocumentIdentifier: TextDocumentIdentifier{URI: "file:///other.go"}, Version: 2},
		[]TextDocumentContentChangeEvent{{Text: "x"}})
	c.DidClose("file:///other.go")

	c.DidChange(
		VersionedTextDocumentIdentifier{TextDocumentIdentifier: TextDocumentIdentifier{URI: item.URI}, Version: 2},
		[]TextDocumentContentChangeEvent{{Text: "package main\n\n"}})
	c.DidClose(item.URI)
	assert.False(t, c.IsOpen(item.URI))

	want := []string{MethodDidOpen, MethodDidChange, MethodDidClose}
	for _, m := range want {
		select {
		case got := <-seen:
			assert.Equal(t, m, got)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s on the wire", m)
		}
	}

	select {
	case extra := <-seen:
		t.Fatalf("unexpected extra message %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}
