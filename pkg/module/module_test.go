package module

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	got := ResolvePath("/scripts", "lib.strings")
	want := filepath.Join("/scripts", "lib/strings.orch")
	assert.Equal(t, want, got)
}

func TestPluginCandidates(t *testing.T) {
	got := PluginCandidates("fetcher")
	assert.Equal(t, []string{
		"fetcher.js",
		filepath.Join("fetcher", "index.js"),
		"fetcher.orch",
		filepath.Join("fetcher", "index.orch"),
	}, got)
}

func TestStripVersionSuffix(t *testing.T) {
	assert.Equal(t, "lib.strings", StripVersionSuffix("lib.strings@1.2.0"))
	assert.Equal(t, "lib.strings", StripVersionSuffix("lib.strings"))
	assert.Equal(t, "@1.2.0", StripVersionSuffix("@1.2.0"))
}
