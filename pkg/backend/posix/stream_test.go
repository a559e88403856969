package posix

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExtractUnnamedStreamWritesContent(t *testing.T) {
	root := t.TempDir()
	b := New()
	file := filepath.Join(root, "file.txt")
	if err := b.CreateFile(file, nil); err != nil {
		t.Fatal(err)
	}

	content := "hello, world"
	if err := b.ExtractUnnamedStream(file, strings.NewReader(content), uint64(len(content)), nil); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestExtractEncryptedStreamWritesPlainContent(t *testing.T) {
	root := t.TempDir()
	b := New()
	file := filepath.Join(root, "file.txt")
	if err := b.CreateFile(file, nil); err != nil {
		t.Fatal(err)
	}

	content := "plaintext fallback"
	if err := b.ExtractEncryptedStream(file, strings.NewReader(content), uint64(len(content)), nil); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestExtractNamedStreamUnsupported(t *testing.T) {
	b := New()
	if err := b.ExtractNamedStream("/irrelevant", "ads", strings.NewReader(""), 0, nil); err == nil {
		t.Fatal("expected an error: POSIX has no named data stream primitive")
	}
}
