package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "skipped_artifacts.txt")

	if err := WriteFileAtomic(path, []byte("a\n")); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("b\n")); err != nil {
		t.Fatalf("WriteFileAtomic overwrite: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(raw) != "b\n" {
		t.Fatalf("unexpected content: %q", string(raw))
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single file, got %d entries", len(entries))
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")

	if err := WriteJSONAtomic(path, map[string]any{"ok": true}); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v["ok"] != true {
		t.Fatalf("unexpected value: %#v", v)
	}
}

func TestScanJSONLSkipsEmptyLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outcomes.jsonl")
	content := "{\"a\":1}\n\n{\"a\":2}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var seen []string
	err := ScanJSONL(path, 0, func(line []byte) error {
		seen = append(seen, string(line))
		return nil
	})
	if err != nil {
		t.Fatalf("ScanJSONL: %v", err)
	}
	if len(seen) != 2 || seen[0] != `{"a":1}` || seen[1] != `{"a":2}` {
		t.Fatalf("unexpected lines: %v", seen)
	}
}

func TestScanJSONLStopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outcomes.jsonl")
	if err := os.WriteFile(path, []byte("x\ny\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	calls := 0
	err := ScanJSONL(path, 0, func([]byte) error {
		calls++
		return fmt.Errorf("stop")
	})
	if err == nil || err.Error() != "stop" {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("scan did not stop after error, calls=%d", calls)
	}
}

func TestDiskFreeReportsNonZero(t *testing.T) {
	free, err := DiskFree(t.TempDir())
	if err != nil {
		t.Fatalf("DiskFree: %v", err)
	}
	if free == 0 {
		t.Fatalf("expected non-zero free space")
	}
}
