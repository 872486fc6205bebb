package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/hasher/pkg/hasher/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFile_RotatesAndKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hasher.log")
	w, err := logging.OpenRotating(path, logging.Rotation{MaxSize: 10, MaxBackups: 2})
	require.NoError(t, err)

	for _, line := range []string{"first\n", "second\n", "third\n", "fourth\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	read := func(p string) string {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, "fourth\n", read(path))
	assert.Equal(t, "third\n", read(path+".1"))
	assert.Equal(t, "second\n", read(path+".2"))
	assert.NoFileExists(t, path+".3")
}

func TestRotatingFile_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hasher.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := logging.OpenRotating(path, logging.Rotation{})
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))

	_, err = w.Write([]byte("after close"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestInit_RotatesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hasher.log")
	err := logging.Init(logging.Config{
		Level:    "info",
		Path:     path,
		Rotation: logging.Rotation{MaxSize: 64, MaxBackups: 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logging.Close() })

	logger := logging.Get("rotation")
	for range 10 {
		logger.Info(strings.Repeat("x", 40))
	}
	require.NoError(t, logging.Close())

	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.NoFileExists(t, path+".2")
}
