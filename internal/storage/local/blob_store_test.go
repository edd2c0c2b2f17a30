package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/content-orchestrator/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("ValidConfig", func(t *testing.T) {
		t.Parallel()
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		require.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "images")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir, PublicBaseURL: "https://static.example.com/"})
	require.NoError(t, err)

	url, err := store.PutObject(context.Background(), "featured/a.png", "image/png", []byte("png"))
	require.NoError(t, err)
	require.Equal(t, "https://static.example.com/featured/a.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "featured", "a.png"))
	require.NoError(t, err)
	require.Equal(t, "png", string(data))

	_, err = store.PutObject(context.Background(), "../escape.png", "image/png", []byte("x"))
	require.ErrorContains(t, err, "path traversal")
}

func TestPutObjectFileURI(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	uri, err := store.PutObject(context.Background(), "a.png", "image/png", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "a.png"), uri)
}
