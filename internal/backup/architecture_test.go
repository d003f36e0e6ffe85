package backup

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestBackendsStayBehindBackup keeps the object storage backends and the
// AWS SDK out of every package except internal/backup and its children.
func TestBackendsStayBehindBackup(t *testing.T) {
	const owner = "brewcore/internal/backup"
	forbidden := []string{owner + "/fsstore", owner + "/memstore", owner + "/s3store", owner + "/objstore", "github.com/aws/"}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "brewcore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if len(pkgs) == 0 {
		t.Fatalf("no packages loaded")
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if pkg.PkgPath == owner || strings.HasPrefix(pkg.PkgPath, owner+"/") {
			continue
		}
		for importPath := range pkg.Imports {
			for _, prefix := range forbidden {
				if importPath == prefix || strings.HasPrefix(importPath, strings.TrimSuffix(prefix, "/")+"/") {
					seen[pkg.PkgPath+": "+importPath] = struct{}{}
				}
			}
		}
	}
	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import: %s", v)
		}
		t.Fatalf("found %d imports that bypass internal/backup", len(violations))
	}
}
