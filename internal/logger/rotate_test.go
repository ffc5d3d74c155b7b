package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFile_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "markview.log")

	rf, err := NewRotatingFile(path, WithMaxSize(100), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	data := []byte("render ok\n")
	n, err := rf.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestRotatingFile_Rotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markview.log")

	rf, err := NewRotatingFile(path, WithMaxSize(50), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	first := bytes.Repeat([]byte("a"), 30)
	second := bytes.Repeat([]byte("b"), 30)

	_, err = rf.Write(first)
	require.NoError(t, err)
	_, err = rf.Write(second)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, second, content)

	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, first, backup)
}

func TestRotatingFile_MaxBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markview.log")

	rf, err := NewRotatingFile(path, WithMaxSize(20), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	for i := 0; i < 5; i++ {
		_, err := rf.Write(bytes.Repeat([]byte{'0' + byte(i)}, 15))
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "only two backups should be kept")
}

func TestRotatingFile_WriteAfterClose(t *testing.T) {
	rf, err := NewRotatingFile(filepath.Join(t.TempDir(), "markview.log"))
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	_, err = rf.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, rf.Close())
}
