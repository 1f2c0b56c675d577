package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAny(t *testing.T) {
	assert.True(t, HasAny("東京の天気は?", "天気", "気温"))
	assert.False(t, HasAny("hello", "天気"))
	assert.True(t, HasAnyFold("Light RAIN shower", "rain"))
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "a b c", TruncateWords("  a b c  ", 5))
	assert.Equal(t, "a b", TruncateWords("a b c d", 2))
	assert.Equal(t, "", TruncateWords("   ", 3))
	assert.Equal(t, "a   b", TruncateWords("a   b", 0))
}
