package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lsq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestResolveServerCommand(t *testing.T) {
	_, server, err := resolveServer(options{Command: "gopls serve -rpc.trace"})
	require.NoError(t, err)
	assert.Equal(t, "gopls", server.Command)
	assert.Equal(t, []string{"serve", "-rpc.trace"}, server.Args)
}

func TestResolveServerWhitespaceCommand(t *testing.T) {
	_, _, err := resolveServer(options{Command: "   "})
	require.Error(t, err)
}

func TestResolveServerByName(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: gopls
    command: gopls
    languages: [go]
`)

	_, server, err := resolveServer(options{ConfigPath: path, Server: "gopls"})
	require.NoError(t, err)
	assert.Equal(t, "gopls", server.Name)

	_, _, err = resolveServer(options{ConfigPath: path, Server: "clangd"})
	require.Error(t, err)
}

func TestResolveServerByLanguage(t *testing.T) {
	path := writeConfig(t, `
servers:
  - name: gopls
    command: gopls
    languages: [go]
`)

	_, server, err := resolveServer(options{ConfigPath: path, Language: "go"})
	require.NoError(t, err)
	assert.Equal(t, "gopls", server.Name)

	_, _, err = resolveServer(options{ConfigPath: path, Language: "rust"})
	require.Error(t, err)
}

func TestResolveServerNoSelector(t *testing.T) {
	_, _, err := resolveServer(options{})
	require.Error(t, err)
}
