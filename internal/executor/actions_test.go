package executor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hochfrequenz/worksim/internal/protocol"
)

func testRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(Config{WorkDir: t.TempDir()})
}

func TestRunEchoesRequestID(t *testing.T) {
	r := testRunner(t)
	result := r.Run("w1", protocol.ActionMessage{ID: "req-42", Kind: "idle"})
	if result.ID != "req-42" {
		t.Errorf("result ID = %q, want %q", result.ID, "req-42")
	}
	if !result.Success {
		t.Errorf("idle action failed: %s", result.Error)
	}
}

func TestRunUnknownKindFails(t *testing.T) {
	r := testRunner(t)
	result := r.Run("w1", protocol.ActionMessage{ID: "req-1", Kind: "format_disk"})
	if result.Success {
		t.Error("unknown kind should fail")
	}
	if result.Error == "" {
		t.Error("expected error message for unknown kind")
	}
}

func TestCreateDocumentWritesFile(t *testing.T) {
	r := testRunner(t)
	result := r.Run("alice", protocol.ActionMessage{
		ID:     "req-2",
		Kind:   "create_document",
		Target: "notes.txt",
		Params: map[string]string{"content": "quarterly summary"},
	})
	if !result.Success {
		t.Fatalf("create_document failed: %s", result.Error)
	}
	data, err := os.ReadFile(result.Metadata["path"])
	if err != nil {
		t.Fatalf("read created document: %v", err)
	}
	if string(data) != "quarterly summary" {
		t.Errorf("document content = %q, want %q", data, "quarterly summary")
	}
	if !filepath.IsAbs(result.Metadata["path"]) {
		t.Errorf("metadata path %q is not absolute", result.Metadata["path"])
	}
}

func TestCreateDocumentStripsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Config{WorkDir: dir})
	result := r.Run("bob", protocol.ActionMessage{
		ID:     "req-3",
		Kind:   "create_document",
		Target: "../../escape.txt",
	})
	if !result.Success {
		t.Fatalf("create_document failed: %s", result.Error)
	}
	want := filepath.Join(dir, "bob", "documents", "escape.txt")
	if result.Metadata["path"] != want {
		t.Errorf("document path = %s, want %s", result.Metadata["path"], want)
	}
}

func TestFileOpOrganizeMovesLooseFiles(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Config{WorkDir: dir})
	workerDir := filepath.Join(dir, "carol")
	if err := os.MkdirAll(workerDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(workerDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	result := r.Run("carol", protocol.ActionMessage{
		ID:     "req-4",
		Kind:   "file_op",
		Params: map[string]string{"operation": "organize"},
	})
	if !result.Success {
		t.Fatalf("file_op failed: %s", result.Error)
	}
	if result.Metadata["moved"] != "2" {
		t.Errorf("moved = %s, want 2", result.Metadata["moved"])
	}
}

func TestFileOpDeleteMissingFileFails(t *testing.T) {
	r := testRunner(t)
	result := r.Run("dave", protocol.ActionMessage{
		ID:     "req-5",
		Kind:   "file_op",
		Target: "no-such-file.txt",
		Params: map[string]string{"operation": "delete"},
	})
	if result.Success {
		t.Error("deleting a missing file should fail")
	}
}

func TestWorkerDirsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(Config{WorkDir: dir})
	r.Run("alice", protocol.ActionMessage{ID: "a", Kind: "create_document", Target: "doc.txt"})
	r.Run("bob", protocol.ActionMessage{ID: "b", Kind: "create_document", Target: "doc.txt"})

	for _, worker := range []string{"alice", "bob"} {
		path := filepath.Join(dir, worker, "documents", "doc.txt")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("worker %s document missing: %v", worker, err)
		}
	}
}

func TestExecuteOnce(t *testing.T) {
	payload, _ := json.Marshal(protocol.ActionMessage{ID: "once-1", Kind: "idle"})
	out, err := ExecuteOnce(Config{WorkDir: t.TempDir()}, payload)
	if err != nil {
		t.Fatalf("ExecuteOnce: %v", err)
	}
	var result protocol.ResultMessage
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.ID != "once-1" || !result.Success {
		t.Errorf("result = %+v, want success echoing once-1", result)
	}
}

func TestExecuteOnceRejectsGarbage(t *testing.T) {
	if _, err := ExecuteOnce(Config{WorkDir: t.TempDir()}, []byte("not json")); err == nil {
		t.Error("expected error for invalid payload")
	}
}
