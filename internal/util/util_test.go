package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtr(t *testing.T) {
	p := Ptr(8787)
	assert.Equal(t, 8787, *p)

	*p = 1
	assert.Equal(t, 1, *Ptr(1))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 50))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Len(t, Truncate(string(make([]byte, 80)), 50), 50)
}
