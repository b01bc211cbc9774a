package lsp

import "github.com/tidwall/gjson"

// Support is the answer to a capability query.
type Support int

const (
	// SupportUnknown means the method has no known capability mapping,
	// or no capabilities snapshot exists yet. Callers typically treat
	// this as "try it and see".
	SupportUnknown Support = iota
	// SupportNo means the server declared it does not provide the
	// method.
	SupportNo
	// SupportYes means the server declared it provides the method.
	SupportYes
)

// String returns a human-readable support answer.
func (s Support) String() string {
	switch s {
	case SupportNo:
		return "no"
	case SupportYes:
		return "yes"
	default:
		return "unknown"
	}
}

// PositionEncoding returns the position encoding the server declared,
// or "utf-16", the protocol default, when it declared none.
func (c *Client) PositionEncoding() string {
	caps := c.Capabilities()
	if caps != nil {
		if v := gjson.GetBytes(caps, "positionEncoding"); v.Type == gjson.String {
			return v.String()
		}
	}
	return "utf-16"
}

// capabilityFields maps request methods to the server capability field
// that advertises them. Document synchronization methods are handled
// separately because textDocumentSync has two shapes.
var capabilityFields = map[string]string{
	MethodHover:             "hoverProvider",
	MethodDefinition:        "definitionProvider",
	MethodTypeDefinition:    "typeDefinitionProvider",
	MethodImplementation:    "implementationProvider",
	MethodReferences:        "referencesProvider",
	MethodDocumentHighlight: "documentHighlightProvider",
	MethodDocumentSymbol:    "documentSymbolProvider",
	MethodFormatting:        "documentFormattingProvider",
	MethodRangeFormatting:   "documentRangeFormattingProvider",
	MethodCompletion:        "completionProvider",
	MethodSignatureHelp:     "signatureHelpProvider",
	MethodRename:            "renameProvider",
	MethodCodeAction:        "codeActionProvider",
	MethodWorkspaceSymbol:   "workspaceSymbolProvider",
}

// SupportsMethod consults the capabilities snapshot captured during
// initialization and reports whether the server provides method.
// Returns SupportUnknown before initialization completes or for
// methods with no capability mapping.
func (c *Client) SupportsMethod(method string) Support {
	caps := c.Capabilities()
	if caps == nil {
		return SupportUnknown
	}

	switch method {
	case MethodDidOpen, MethodDidClose:
		return syncOpenClose(caps)
	case MethodDidChange:
		return syncChange(caps)
	}

	field, ok := capabilityFields[method]
	if !ok {
		return SupportUnknown
	}

	v := gjson.GetBytes(caps, field)
	switch v.Type {
	case gjson.Null:
		// Absent or explicit null: the server does not provide it.
		return SupportNo
	case gjson.False:
		return SupportNo
	case gjson.True:
		return SupportYes
	case gjson.JSON:
		// An options object counts as providing the method.
		return SupportYes
	default:
		return SupportUnknown
	}
}

// syncOpenClose answers for didOpen/didClose. textDocumentSync is
// either a sync-kind number, where any non-zero kind implies open and
// close are wanted, or an options object with an openClose flag.
func syncOpenClose(caps []byte) Support {
	v := gjson.GetBytes(caps, "textDocumentSync")
	switch v.Type {
	case gjson.Number:
		if v.Int() != 0 {
			return SupportYes
		}
		return SupportNo
	case gjson.JSON:
		if v.Get("openClose").Bool() {
			return SupportYes
		}
		return SupportNo
	default:
		return SupportNo
	}
}

// syncChange answers for didChange. A sync kind of zero means the
// server wants no change notifications at all.
func syncChange(caps []byte) Support {
	v := gjson.GetBytes(caps, "textDocumentSync")
	switch v.Type {
	case gjson.Number:
		if v.Int() != 0 {
			return SupportYes
		}
		return SupportNo
	case gjson.JSON:
		if v.Get("change").Int() != 0 {
			return SupportYes
		}
		return SupportNo
	default:
		return SupportNo
	}
}
