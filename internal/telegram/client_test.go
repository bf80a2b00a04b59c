package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitByBytes(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitByBytes("short", 10))

	parts := splitByBytes(strings.Repeat("a", 25), 10)
	assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("a", 10), "aaaaa"}, parts)

	// multi-byte runes are never cut in half
	text := strings.Repeat("ж", 9) // 18 bytes
	parts = splitByBytes(text, 5)
	for _, p := range parts {
		assert.True(t, utf8.ValidString(p))
		assert.LessOrEqual(t, len(p), 5)
	}
	assert.Equal(t, text, strings.Join(parts, ""))
}

func TestTruncateByBytes(t *testing.T) {
	assert.Equal(t, "hello", truncateByBytes("hello", 10))
	assert.Equal(t, "hel", truncateByBytes("hello", 3))

	got := truncateByBytes("жжж", 5)
	assert.Equal(t, "жж", got)
	assert.True(t, utf8.ValidString(got))
}
