package imaging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveOrLinkExistingOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "1.jpg")
	if err := os.WriteFile(out, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := ResolveOrLink(out, filepath.Join(dir, "missing.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("existing output should be satisfied")
	}
}

func TestResolveOrLinkCreatesSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link", "1.jpg")
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(link, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "1.jpg")

	ok, err := ResolveOrLink(out, link)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected link resolution to satisfy the output")
	}

	fi, err := os.Lstat(out)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		t.Error("output is not a symlink")
	}
	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "payload" {
		t.Errorf("link content = %q", content)
	}
}

func TestResolveOrLinkNeitherExists(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "1.jpg")

	ok, err := ResolveOrLink(out, filepath.Join(dir, "absent.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("nothing exists, expected false")
	}
	if _, err := os.Lstat(out); !os.IsNotExist(err) {
		t.Error("resolver created something it should not have")
	}
}
