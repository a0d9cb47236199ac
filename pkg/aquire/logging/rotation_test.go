package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/aquire/pkg/aquire/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_RotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aquire.log")
	w, err := logging.NewRotatingWriter(path, logging.RotationConfig{MaxSize: 10, MaxBackups: 2})
	require.NoError(t, err)
	defer w.Close()

	for _, line := range []string{"aaaaaaaa\n", "bbbbbbbb\n", "cccccccc\n", "dddddddd\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	read := func(p string) string {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(data)
	}

	assert.Equal(t, "dddddddd\n", read(path))
	assert.Equal(t, "cccccccc\n", read(path+".1"))
	assert.Equal(t, "bbbbbbbb\n", read(path+".2"))

	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "backups beyond MaxBackups are dropped")
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aquire.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	w, err := logging.NewRotatingWriter(path, logging.DefaultRotationConfig())
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))
}

func TestRotatingWriter_OversizedWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aquire.log")
	w, err := logging.NewRotatingWriter(path, logging.RotationConfig{MaxSize: 4})
	require.NoError(t, err)
	defer w.Close()

	big := strings.Repeat("x", 32)
	n, err := w.Write([]byte(big))
	require.NoError(t, err)
	assert.Equal(t, len(big), n)

	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err), "first write into an empty file does not rotate")
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := logging.NewRotatingWriter(filepath.Join(t.TempDir(), "a.log"), logging.RotationConfig{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
