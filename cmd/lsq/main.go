// Package main is the lsq command line tool: it starts a language
// server, runs one query against it, prints the result as JSON, and
// shuts the server down.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/lsq/internal/config"
	"github.com/dshills/lsq/internal/lsp"
	"github.com/dshills/lsq/internal/workspace"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	ConfigPath string
	Server     string
	Language   string
	Command    string
	Root       string
	Query      string
	File       string
	Line       int
	Col        int
	Symbol     string
	Timeout    int
	Debug      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, server, err := resolveServer(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, err := buildLogger(opts.Debug, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	root := opts.Root
	if root == "" {
		if opts.File != "" {
			root = workspace.DetectRoot(opts.File)
		} else {
			root = workspace.DetectRoot(".")
		}
	}
	root, err = filepath.Abs(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad workspace root: %v\n", err)
		return 1
	}

	client := lsp.NewClient(server.Name, server.CommandLine(),
		lsp.WithLogger(logger),
		lsp.WithEnv(server.Env),
		lsp.WithWorkDir(server.WorkDir))

	shutdownTimeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	defer client.Shutdown(shutdownTimeout)

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		client.Shutdown(shutdownTimeout)
		os.Exit(1)
	}()

	initTimeout := time.Duration(cfg.InitTimeoutSeconds) * time.Second
	if opts.Timeout > 0 {
		initTimeout = time.Duration(opts.Timeout) * time.Second
	}

	if err := initialize(client, server, root, initTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	result, err := runQuery(client, opts, initTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot encode result: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}

// resolveServer picks the server definition: an explicit -command wins,
// then -server by name, then -lang by language.
func resolveServer(opts options) (*config.Config, *config.ServerConfig, error) {
	var cfg *config.Config
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	} else if loaded, err := config.Load(config.DefaultPath()); err == nil {
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if opts.Command != "" {
		parts := strings.Fields(opts.Command)
		if len(parts) == 0 {
			return nil, nil, fmt.Errorf("-command must name an executable")
		}
		server := &config.ServerConfig{Name: parts[0], Command: parts[0], Args: parts[1:]}
		return cfg, server, nil
	}
	if opts.Server != "" {
		server, ok := cfg.Server(opts.Server)
		if !ok {
			return nil, nil, fmt.Errorf("no server named %q in configuration", opts.Server)
		}
		return cfg, server, nil
	}
	if opts.Language != "" {
		server, ok := cfg.ServerForLanguage(opts.Language)
		if !ok {
			return nil, nil, fmt.Errorf("no server configured for language %q", opts.Language)
		}
		return cfg, server, nil
	}
	return nil, nil, fmt.Errorf("one of -command, -server, or -lang is required")
}

// initialize performs the handshake and blocks until it settles.
func initialize(client *lsp.Client, server *config.ServerConfig, root string, timeout time.Duration) error {
	params := lsp.InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   fileURI(root),
		Capabilities: map[string]any{
			"textDocument": map[string]any{
				"hover":              map[string]any{"contentFormat": []string{"plaintext", "markdown"}},
				"publishDiagnostics": map[string]any{},
			},
		},
		InitializationOptions: server.InitializationOptions,
		WorkspaceFolders: []lsp.WorkspaceFolder{
			{URI: fileURI(root), Name: filepath.Base(root)},
		},
	}

	done := make(chan *lsp.ResponseMessage, 1)
	client.Initialize(params, func(resp *lsp.ResponseMessage) { done <- resp }, timeout)

	resp := <-done
	if resp.Error != nil {
		return fmt.Errorf("initialize: %s", resp.Error.Message)
	}
	return nil
}

// runQuery executes one query and waits for its result.
func runQuery(client *lsp.Client, opts options, timeout time.Duration) (any, error) {
	if opts.Query == "capabilities" {
		caps := client.Capabilities()
		return map[string]any{
			"serverInfo":   client.ServerInfo(),
			"capabilities": json.RawMessage(caps),
		}, nil
	}
	if opts.Query == "workspace" {
		return await(timeout, func(done func(any, *lsp.ResponseError)) {
			client.WorkspaceSymbol(opts.Symbol, func(syms []lsp.SymbolInformation, rerr *lsp.ResponseError) {
				done(syms, rerr)
			})
		})
	}

	// Document queries need the file announced as open first.
	if opts.File == "" {
		return nil, fmt.Errorf("query %q requires -file", opts.Query)
	}
	path, err := filepath.Abs(opts.File)
	if err != nil {
		return nil, err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	uri := fileURI(path)
	client.DidOpen(lsp.TextDocumentItem{
		URI:        uri,
		LanguageID: opts.Language,
		Version:    1,
		Text:       string(text),
	})
	defer client.DidClose(uri)

	doc := lsp.TextDocumentIdentifier{URI: uri}
	// Flags are 1-based like editors; the protocol is 0-based.
	pos := lsp.Position{Line: opts.Line - 1, Character: opts.Col - 1}

	switch opts.Query {
	case "hover":
		return await(timeout, func(done func(any, *lsp.ResponseError)) {
			client.Hover(doc, pos, func(h *lsp.Hover, rerr *lsp.ResponseError) { done(h, rerr) })
		})
	case "definition":
		return await(timeout, func(done func(any, *lsp.ResponseError)) {
			client.Definition(doc, pos, func(locs []lsp.Location, rerr *lsp.ResponseError) { done(locs, rerr) })
		})
	case "references":
		return await(timeout, func(done func(any, *lsp.ResponseError)) {
			client.References(doc, pos, true, func(locs []lsp.Location, rerr *lsp.ResponseError) { done(locs, rerr) })
		})
	case "symbols":
		return await(timeout, func(done func(any, *lsp.ResponseError)) {
			client.DocumentSymbol(doc, func(res *lsp.SymbolResult, rerr *lsp.ResponseError) { done(res, rerr) })
		})
	default:
		return nil, fmt.Errorf("unknown query %q", opts.Query)
	}
}

// await adapts a callback query to a synchronous call with a timeout.
func await(timeout time.Duration, start func(done func(any, *lsp.ResponseError))) (any, error) {
	type outcome struct {
		result any
		err    *lsp.ResponseError
	}
	ch := make(chan outcome, 1)
	start(func(result any, rerr *lsp.ResponseError) {
		ch <- outcome{result: result, err: rerr}
	})

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, o.err
		}
		return o.result, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("query timed out after %s", timeout)
	}
}

func fileURI(path string) lsp.DocumentURI {
	return lsp.DocumentURI(workspace.PathToURI(path))
}

func buildLogger(debug bool, level string) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	}
	lvl := zapcore.WarnLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			return nil, err
		}
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.Server, "server", "", "Server name from the configuration")
	flag.StringVar(&opts.Server, "s", "", "Server name from the configuration (shorthand)")
	flag.StringVar(&opts.Language, "lang", "", "Language id (selects a server and tags opened files)")
	flag.StringVar(&opts.Command, "command", "", "Server command line, bypassing the configuration")
	flag.StringVar(&opts.Root, "root", "", "Workspace root directory (default: detected from -file)")
	flag.StringVar(&opts.Root, "w", "", "Workspace root directory (shorthand)")
	flag.StringVar(&opts.Query, "query", "capabilities", "Query: capabilities, hover, definition, references, symbols, workspace")
	flag.StringVar(&opts.Query, "q", "capabilities", "Query (shorthand)")
	flag.StringVar(&opts.File, "file", "", "File for document queries")
	flag.IntVar(&opts.Line, "line", 1, "Line for position queries (1-based)")
	flag.IntVar(&opts.Col, "col", 1, "Column for position queries (1-based)")
	flag.StringVar(&opts.Symbol, "symbol", "", "Query string for workspace symbol search")
	flag.IntVar(&opts.Timeout, "timeout", 0, "Query and handshake timeout in seconds (0 uses the configured value)")
	flag.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&opts.Debug, "d", false, "Enable debug logging (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "lsq - query language servers from the command line\n\n")
		fmt.Fprintf(os.Stderr, "Usage: lsq [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lsq -command \"gopls serve\" -q capabilities\n")
		fmt.Fprintf(os.Stderr, "  lsq -s gopls -q hover -file main.go -line 12 -col 8\n")
		fmt.Fprintf(os.Stderr, "  lsq -lang go -q definition -file main.go -line 20 -col 15\n")
		fmt.Fprintf(os.Stderr, "  lsq -s gopls -q workspace -symbol Client\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("lsq %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	return opts
}
