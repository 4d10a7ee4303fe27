package local

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_RequiresBaseDir(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	require.Error(t, err)
}

func TestNew_CreatesMissingBaseDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "archives")

	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestPutObject_WritesFileAndReturnsURI(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "summaries/job-1/FR.json", "application/json",
		bytes.NewReader([]byte(`{"code":"FR"}`)))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "summaries/job-1/FR.json"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "summaries/job-1/FR.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"code":"FR"}`, string(data))
}

func TestPutObject_RejectsPathTraversal(t *testing.T) {
	t.Parallel()
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../outside.json", "", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}
