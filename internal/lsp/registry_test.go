package lsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddGet(t *testing.T) {
	r := NewRegistry(nil)

	c := NewClient("gopls", nil)
	require.NoError(t, r.Add("/home/user/proj", c))

	got, ok := r.Get("/home/user/proj")
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = r.Get("/home/user/other")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDuplicateRoot(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Add("/proj", NewClient("gopls", nil)))
	err := r.Add("/proj", NewClient("gopls", nil))
	assert.ErrorIs(t, err, ErrConnExists)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(nil)

	c := NewClient("gopls", nil)
	require.NoError(t, r.Add("/proj", c))

	assert.Same(t, c, r.Remove("/proj"))
	assert.Nil(t, r.Remove("/proj"))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRoots(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Add("/b", NewClient("b", nil)))
	require.NoError(t, r.Add("/a", NewClient("a", nil)))
	require.NoError(t, r.Add("/c", NewClient("c", nil)))

	assert.Equal(t, []string{"/a", "/b", "/c"}, r.Roots())
}

func TestRegistryShutdownAll(t *testing.T) {
	r := NewRegistry(nil)

	// Never-started clients shut down as no-ops; the registry still
	// empties.
	require.NoError(t, r.Add("/a", NewClient("a", nil)))
	require.NoError(t, r.Add("/b", NewClient("b", nil)))

	done := make(chan struct{})
	go func() {
		r.ShutdownAll(time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ShutdownAll did not return")
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistryShutdownAllLiveClient(t *testing.T) {
	r := NewRegistry(nil)

	c, srv := startClient(t, `{}`)
	require.NoError(t, r.Add("/proj", c))

	go func() {
		msg := srv.readMessage()
		if msg == nil {
			return
		}
		srv.respond(msg.ID, nil)
		srv.readMessage() // exit
		srv.p.exit(nil)
	}()

	r.ShutdownAll(time.Second)

	assert.Equal(t, 0, r.Len())
	assert.Equal(t, StatusShutdown, c.Status())
}
