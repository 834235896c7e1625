package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandStr(t *testing.T) {
	length := 10
	randStr, err := RandStr(length)
	require.NoError(t, err)
	assert.Equal(t, length, len(randStr))
	for _, c := range randStr {
		assert.True(t, strings.ContainsRune(alphanumeric, c))
	}
}

func TestRandStrUnique(t *testing.T) {
	seen := make(map[string]struct{}, 5000)
	for i := 0; i < 5000; i++ {
		s, err := RandStr(16)
		require.NoError(t, err)
		_, dup := seen[s]
		require.False(t, dup)
		seen[s] = struct{}{}
	}
}

func TestHash(t *testing.T) {
	s := "dddddd"
	hash := Hash(s)
	assert.Equal(t, 64, len(hash))
	assert.Equal(t, hash, Hash(s))
	assert.NotEqual(t, hash, Hash(s+"d"))
}
