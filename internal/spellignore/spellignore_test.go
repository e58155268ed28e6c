package spellignore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndContainsIsCaseInsensitive(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add("Gmail"))
	assert.True(t, s.Contains("gmail"))
	assert.True(t, s.Contains("GMAIL"))
	assert.False(t, s.Contains("outlook"))
}

func TestAddDuplicateIsNoOp(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add("hello"))
	require.NoError(t, s.Add("hello"))
	assert.Len(t, s.Words(), 1)
}

func TestOpenPrimesFromExistingFile(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Add("ratmail"))
	require.NoError(t, s1.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()
	assert.True(t, s2.Contains("ratmail"))
}

func TestAddBlankWordIsNoOp(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add("   "))
	assert.Empty(t, s.Words())
}
