package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// recordingTB captures failures instead of failing the test.
type recordingTB struct {
	errors []string
	fatal  bool
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingTB) Fatalf(format string, args ...any) {
	r.fatal = true
	r.Errorf(format, args...)
}

func (r *recordingTB) Logf(string, ...any) {}

func writeGolden(t *testing.T, name, content string) {
	t.Helper()

	t.Chdir(t.TempDir())

	if err := os.MkdirAll("testdata", 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join("testdata", name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAssertGolden(t *testing.T) {
	tests := []struct {
		name     string
		golden   string
		got      string
		wantFail string
	}{
		{name: "match", golden: "a\nb\n", got: "a\nb\n"},
		{name: "crlf golden matches", golden: "a\r\nb\r\n", got: "a\nb\n"},
		{name: "changed line", golden: "a\nb\n", got: "a\nc\n", wantFail: `line 2: got "c", want "b"`},
		{name: "extra line", golden: "a\n", got: "a\nb\n", wantFail: `line 2: got "b", want ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeGolden(t, "case.golden", tt.golden)

			rec := &recordingTB{}
			AssertGolden(rec, tt.got, "case.golden")

			if tt.wantFail == "" {
				if len(rec.errors) != 0 {
					t.Fatalf("unexpected failure: %v", rec.errors)
				}

				return
			}

			if len(rec.errors) != 1 || !strings.Contains(rec.errors[0], tt.wantFail) {
				t.Fatalf("failures = %v, want one containing %q", rec.errors, tt.wantFail)
			}
		})
	}
}

func TestAssertGolden_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	rec := &recordingTB{}
	AssertGolden(rec, "anything", "absent.golden")

	if !rec.fatal || !strings.Contains(rec.errors[0], "-update") {
		t.Fatalf("failures = %v, want fatal hint about -update", rec.errors)
	}
}

func TestAssertGolden_Update(t *testing.T) {
	t.Chdir(t.TempDir())

	*update = true
	t.Cleanup(func() { *update = false })

	rec := &recordingTB{}
	AssertGolden(rec, "fresh\r\n", "nested/new.golden")

	if len(rec.errors) != 0 {
		t.Fatalf("unexpected failure: %v", rec.errors)
	}

	data, err := os.ReadFile(filepath.Join("testdata", "nested", "new.golden"))
	if err != nil {
		t.Fatalf("golden not written: %v", err)
	}

	if string(data) != "fresh\n" {
		t.Errorf("golden = %q, want normalized %q", data, "fresh\n")
	}
}
