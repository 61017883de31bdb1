package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandStr(t *testing.T) {
	assert.Empty(t, RandStr(0))

	s := RandStr(32)
	assert.Len(t, s, 32)
	for _, c := range s {
		assert.True(t, strings.ContainsRune(randStrAlphabet, c))
	}
	assert.NotEqual(t, s, RandStr(32))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "héll...", Truncate("héllo world", 4))
	assert.Len(t, []rune(Truncate80(strings.Repeat("x", 100))), 83)
}

func TestIsPrivateHost(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1", "10.1.2.3", "192.168.0.1", "169.254.1.1", "::1"} {
		assert.True(t, IsPrivateHost(host), host)
	}
	for _, host := range []string{"8.8.8.8", "2001:4860:4860::8888"} {
		assert.False(t, IsPrivateHost(host), host)
	}
}
