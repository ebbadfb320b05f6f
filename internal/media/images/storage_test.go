package images

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	return storage
}

func TestNewStorage(t *testing.T) {
	t.Run("creates storage with valid path", func(t *testing.T) {
		tmpDir := t.TempDir()

		storage, err := NewStorage(tmpDir)
		require.NoError(t, err)
		require.NotNil(t, storage)

		// Verify covers directory was created.
		coversPath := filepath.Join(tmpDir, "covers")
		info, err := os.Stat(coversPath)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("returns error for empty path", func(t *testing.T) {
		storage, err := NewStorage("")
		assert.Error(t, err)
		assert.Nil(t, storage)
		assert.Contains(t, err.Error(), "base path cannot be empty")
	})

	t.Run("creates nested directories if needed", func(t *testing.T) {
		tmpDir := t.TempDir()
		nestedPath := filepath.Join(tmpDir, "nested", "path")

		storage, err := NewStorage(nestedPath)
		require.NoError(t, err)
		require.NotNil(t, storage)

		coversPath := filepath.Join(nestedPath, "covers")
		info, err := os.Stat(coversPath)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestStorage_Save(t *testing.T) {
	t.Run("saves image data successfully", func(t *testing.T) {
		storage := setupTestStorage(t)
		testData := []byte("test image data")

		err := storage.Save(123, testData)
		require.NoError(t, err)

		data, err := os.ReadFile(storage.Path(123))
		require.NoError(t, err)
		assert.Equal(t, testData, data)
	})

	t.Run("returns error for empty data", func(t *testing.T) {
		storage := setupTestStorage(t)

		err := storage.Save(123, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "image data cannot be empty")
	})

	t.Run("overwrites existing image", func(t *testing.T) {
		storage := setupTestStorage(t)

		require.NoError(t, storage.Save(1, []byte("first")))
		require.NoError(t, storage.Save(1, []byte("second")))

		data, err := storage.Get(1)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), data)
	})
}

func TestStorage_Get(t *testing.T) {
	t.Run("returns saved data", func(t *testing.T) {
		storage := setupTestStorage(t)
		testData := []byte("cover bytes")
		require.NoError(t, storage.Save(42, testData))

		data, err := storage.Get(42)
		require.NoError(t, err)
		assert.Equal(t, testData, data)
	})

	t.Run("returns error for missing image", func(t *testing.T) {
		storage := setupTestStorage(t)

		data, err := storage.Get(999)
		assert.Error(t, err)
		assert.Nil(t, data)
		assert.Contains(t, err.Error(), "image not found")
	})
}

func TestStorage_Exists(t *testing.T) {
	storage := setupTestStorage(t)

	assert.False(t, storage.Exists(7))

	require.NoError(t, storage.Save(7, []byte("data")))
	assert.True(t, storage.Exists(7))
}

func TestStorage_Delete(t *testing.T) {
	t.Run("removes saved image", func(t *testing.T) {
		storage := setupTestStorage(t)
		require.NoError(t, storage.Save(5, []byte("data")))

		require.NoError(t, storage.Delete(5))
		assert.False(t, storage.Exists(5))
	})

	t.Run("is a no-op for missing image", func(t *testing.T) {
		storage := setupTestStorage(t)

		assert.NoError(t, storage.Delete(404))
	})
}

func TestStorage_Hash(t *testing.T) {
	t.Run("is stable for identical data", func(t *testing.T) {
		storage := setupTestStorage(t)
		require.NoError(t, storage.Save(1, []byte("same bytes")))
		require.NoError(t, storage.Save(2, []byte("same bytes")))

		h1, err := storage.Hash(1)
		require.NoError(t, err)
		h2, err := storage.Hash(2)
		require.NoError(t, err)

		assert.Equal(t, h1, h2)
		assert.Len(t, h1, 64)
	})

	t.Run("differs for different data", func(t *testing.T) {
		storage := setupTestStorage(t)
		require.NoError(t, storage.Save(1, []byte("one")))
		require.NoError(t, storage.Save(2, []byte("two")))

		h1, err := storage.Hash(1)
		require.NoError(t, err)
		h2, err := storage.Hash(2)
		require.NoError(t, err)

		assert.NotEqual(t, h1, h2)
	})

	t.Run("returns error for missing image", func(t *testing.T) {
		storage := setupTestStorage(t)

		_, err := storage.Hash(999)
		assert.Error(t, err)
	})
}
