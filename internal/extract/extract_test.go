package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "readme.md", "# readme")
	writeFile(t, root, "notes/a.txt", "note a")
	writeFile(t, root, "notes/b.pdf", "binary-ish")
	writeFile(t, root, ".git/config.txt", "should be skipped")

	docs, err := New(root, zap.NewNop()).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d: %v", len(docs), docs)
	}

	byID := make(map[string]string)
	for _, d := range docs {
		byID[d.ID] = d.RawText
	}
	if byID["readme.md"] != "# readme" {
		t.Errorf("readme.md content = %q", byID["readme.md"])
	}
	if byID["notes/a.txt"] != "note a" {
		t.Errorf("notes/a.txt content = %q", byID["notes/a.txt"])
	}
}

func TestDiscover_FileTypes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.TXT", "upper case extension")

	docs, err := New(root, zap.NewNop()).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].FileType != "txt" {
		t.Errorf("FileType = %q, want txt", docs[0].FileType)
	}
	if docs[0].LastModified.IsZero() {
		t.Error("LastModified should be populated")
	}
}

func TestDiscover_InvalidUTF8IsDropped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.txt", "fine")
	writeFile(t, root, "bad.txt", string([]byte{0xff, 0xfe, 0xfd}))

	docs, err := New(root, zap.NewNop()).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "good.txt" {
		t.Errorf("expected only good.txt, got %v", docs)
	}
}

func TestDiscover_EmptyRoot(t *testing.T) {
	docs, err := New(t.TempDir(), zap.NewNop()).Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
}

func TestDiscover_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(root, zap.NewNop()).Discover(ctx); err == nil {
		t.Error("expected error from canceled context")
	}
}
