package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		in           string
		third, local bool
	}{
		{"fmt", false, false},
		{"encoding/json", false, false},
		{"github.com/spf13/cobra", true, false},
		{"gopkg.in/yaml.v3", true, false},
		{"brewcore/pkg/domain", false, true},
		{"brewcorefake/x", false, false},
	}
	for _, c := range cases {
		if got := ThirdPartyImport(c.in); got != c.third {
			t.Fatalf("ThirdPartyImport(%q)=%v want %v", c.in, got, c.third)
		}
		if got := ModuleImport(c.in); got != c.local {
			t.Fatalf("ModuleImport(%q)=%v want %v", c.in, got, c.local)
		}
	}
	both := Any(ThirdPartyImport, ModuleImport)
	if !both("brewcore/internal/core") || !both("github.com/x/y") || both("os") {
		t.Fatalf("Any did not combine predicates")
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println() }\n")
	writeFile(t, dir, "bad.go", "package tmp\nimport \"github.com/spf13/cobra\"\nvar _ cobra.Command\n")
	writeFile(t, dir, "bad_test.go", "package tmp\nimport \"brewcore/internal/core\"\n")
	writeFile(t, dir, "notes.txt", "import \"brewcore/x\"")
	if err := os.Mkdir(filepath.Join(dir, "sub.go"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	viols, err := directImportViolations(dir, Any(ThirdPartyImport, ModuleImport))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "github.com/spf13/cobra (in bad.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}

	AssertNoDirectImports(t, dir, ModuleImport, "test files are ignored")
}

func TestDirectImportViolationsErrors(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), ModuleImport); err == nil {
		t.Fatalf("expected missing dir error")
	}
	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, ModuleImport); err == nil {
		t.Fatalf("expected parse error")
	}
}

type recordingLogger struct{ msg string }

func (r *recordingLogger) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var rec recordingLogger
	failIfViolations(&rec, "reason", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
	failIfViolations(&rec, "domain stays pure", []string{"a (in x.go)", "b (in y.go)"})
	if !strings.Contains(rec.msg, "domain stays pure") || !strings.Contains(rec.msg, "b (in y.go)") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}
