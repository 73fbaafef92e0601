// Package testutil holds golden-file assertions and a fake console server
// shared by lantern tests.
package testutil

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var update = flag.Bool("update", false, "rewrite golden files under testdata/")

// TB is the subset of testing.TB the golden helpers need.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// AssertGolden compares got with testdata/<name>. Line endings are
// normalized first so goldens checked out on Windows still match. With
// -update the file is rewritten instead.
func AssertGolden(t TB, got, name string) {
	t.Helper()

	path := filepath.Join("testdata", name)
	got = normalizeNewlines(got)

	if *update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create %s: %v", filepath.Dir(path), err)
			return
		}

		if err := os.WriteFile(path, []byte(got), 0o644); err != nil { //nolint:gosec // G306: fixtures are not secret
			t.Fatalf("update golden %s: %v", path, err)
			return
		}

		t.Logf("updated %s", path)

		return
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is under testdata/
	if err != nil {
		t.Fatalf("read golden %s: %v (run with -update to create it)", path, err)
		return
	}

	if want := normalizeNewlines(string(data)); got != want {
		t.Errorf("%s mismatch at %s\n\ngot:\n%s\nwant:\n%s\nrun with -update to refresh", path, firstDiff(got, want), got, want)
	}
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// firstDiff names the first line where got and want differ.
func firstDiff(got, want string) string {
	gotLines := strings.Split(got, "\n")
	wantLines := strings.Split(want, "\n")

	for i := 0; i < max(len(gotLines), len(wantLines)); i++ {
		var g, w string
		if i < len(gotLines) {
			g = gotLines[i]
		}

		if i < len(wantLines) {
			w = wantLines[i]
		}

		if g != w {
			return fmt.Sprintf("line %d: got %q, want %q", i+1, g, w)
		}
	}

	return "end of file"
}
