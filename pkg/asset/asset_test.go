package asset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribeFallsBackForUnreadablePath(t *testing.T) {
	got := Describe("application/pdf", "/no/such/file.pdf", nil)
	assert.Equal(t, "<application/pdf attachment>", got)
}

func TestDescribeFallsBackForUnknownMime(t *testing.T) {
	got := Describe("application/octet-stream", "/no/such/file.bin", nil)
	assert.Equal(t, "<application/octet-stream attachment>", got)
}

func TestTruncate(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, truncate(short))

	long := strings.Repeat("a", maxSnippet+50)
	got := truncate(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, got, maxSnippet+len("..."))
}
