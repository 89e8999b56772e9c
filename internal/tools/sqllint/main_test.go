package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunAcceptsMarkedQueries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "q.go", "package q\n\nconst QOne = `--sql 11111111-2222-4333-8444-555555555555\nselect 1;\n`\n\nconst Label = \"plain text\"\n")

	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
}

func TestRunFlagsMissingMarker(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "q.go", "package q\n\nconst QBad = `\nupdate users set credits = 0;\n`\n")

	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "QBad") {
		t.Fatalf("expected QBad in output, got %q", stderr.String())
	}
}

func TestRunFlagsDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	marker := "--sql 11111111-2222-4333-8444-555555555555"
	writeFile(t, dir, "a.go", "package q\n\nconst QA = `"+marker+"\nselect 1;\n`\n")
	writeFile(t, dir, "b.go", "package q\n\nconst QB = `"+marker+"\nselect 2;\n`\n")

	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "marker already used by QA") {
		t.Fatalf("expected duplicate report, got %q", stderr.String())
	}
}

func TestRunSkipsTestFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "q_test.go", "package q\n\nconst fixture = `delete from users`\n")

	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
}
