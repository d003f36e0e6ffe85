package core

import (
	"strings"
	"testing"

	"brewcore/testutil"
)

func TestCoreStaysBelowTheOuterLayers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(path string) bool {
		return strings.HasPrefix(path, "brewcore/cmd/") ||
			strings.HasPrefix(path, "brewcore/internal/backup") ||
			strings.HasPrefix(path, "brewcore/internal/config") ||
			strings.HasPrefix(path, "github.com/spf13/")
	}, "core is driven by the CLI, not the reverse")
}
