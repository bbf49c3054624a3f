package logger

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConsoleMirrorsOnlyAtOrAboveLevel(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, Warn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	var console bytes.Buffer
	l.console = log.New(&console, "", 0)

	l.Infof("swallowed by console gate")
	l.Errorf("surfaces on console")

	if strings.Contains(console.String(), "swallowed by console gate") {
		t.Fatalf("expected console to skip lines below Warn, got: %s", console.String())
	}
	if !strings.Contains(console.String(), "surfaces on console") {
		t.Fatalf("expected console to receive the error line, got: %s", console.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "operation.log"))
	if err != nil {
		t.Fatalf("read operation.log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "swallowed by console gate") {
		t.Fatalf("expected file sink to receive every level, got: %s", content)
	}
	if !strings.Contains(content, "surfaces on console") {
		t.Fatalf("expected error line in file, got: %s", content)
	}
}

func TestLevelForVerbosity(t *testing.T) {
	cases := map[string]Level{
		"quiet":   Warn,
		"normal":  Info,
		"verbose": Debug,
		"":        Info,
	}
	for verbosity, want := range cases {
		if got := LevelForVerbosity(verbosity); got != want {
			t.Fatalf("LevelForVerbosity(%q) = %v, want %v", verbosity, got, want)
		}
	}
}

func TestNewCreatesOperationDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "run-1")
	l, err := New(dir, Info)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()
	if _, err := os.Stat(filepath.Join(dir, "operation.log")); err != nil {
		t.Fatalf("expected operation.log to exist: %v", err)
	}
}
