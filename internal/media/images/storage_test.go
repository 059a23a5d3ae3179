package images

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorage(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "nested", "export")

		storage, err := NewStorage(base)
		require.NoError(t, err)
		require.NotNil(t, storage)

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("returns error for empty path", func(t *testing.T) {
		storage, err := NewStorage("")
		assert.Error(t, err)
		assert.Nil(t, storage)
	})
}

func TestStorage_SaveAndGet(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	data := encodeTestPNG(t, 8, 8)

	path, err := storage.Save("哆啦a梦", 7, data)
	require.NoError(t, err)
	assert.Equal(t, "7.png", filepath.Base(path))
	assert.True(t, storage.Exists("哆啦a梦", 7, "png"))

	got, err := storage.Get("哆啦a梦", 7, "png")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStorage_UnknownFormatUsesBin(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	path, err := storage.Save("x", 1, []byte("opaque"))
	require.NoError(t, err)
	assert.Equal(t, "1.bin", filepath.Base(path))
}

func TestStorage_RejectsEmpty(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	_, err = storage.Save("x", 1, nil)
	assert.Error(t, err)
}

func TestStorage_SanitizesDirectory(t *testing.T) {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)

	p := storage.Path("../evil/name", 3, "gif")
	rel, err := filepath.Rel(storage.basePath, p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".._evil_name", "3.gif"), rel)
	assert.Equal(t, "_", safeSegment(".."))
}
