package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := Open(Options{TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_SetGet(t *testing.T) {
	c := openMemory(t, time.Minute)

	_, ok, err := c.Get("https://example.com/a.png")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set("https://example.com/a.png", []byte("png")))

	got, ok, err := c.Get("https://example.com/a.png")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("png"), got)

	require.NoError(t, c.Delete("https://example.com/a.png"))
	_, ok, err = c.Get("https://example.com/a.png")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := openMemory(t, time.Second)
	require.NoError(t, c.Set("k", []byte("v")))

	// Badger TTLs have one second resolution.
	time.Sleep(2100 * time.Millisecond)

	_, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_OnDisk(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(Options{Path: dir, GCInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, c.Set("k", []byte("persisted")))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	c, err = Open(Options{Path: dir, GCInterval: -1})
	require.NoError(t, err)
	defer c.Close()

	got, ok, err := c.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("persisted"), got)
}
