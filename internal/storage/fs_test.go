package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempVault(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempVault(t)
	content := []byte("---\ntitle: A\n---\nbody\n")
	if err := s.Write("doc.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("doc.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempVault(t)
	if err := s.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestExists(t *testing.T) {
	s := tempVault(t)
	if s.Exists("nope.md") {
		t.Error("Exists on missing file")
	}
	_ = s.Write("yes.md", []byte("x"))
	if !s.Exists("yes.md") {
		t.Error("Exists on present file")
	}
}

func TestDelete(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("del.md", []byte("bye"))
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestList_SkipsDotfilesAndDirs(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("doc.md", []byte("one"))
	_ = s.Write("doc.md.sidecar.json", []byte("{}"))
	_ = s.Write("sub/data.bin", []byte{0x00, 0x01})
	_ = os.WriteFile(filepath.Join(s.root, ".hidden"), []byte("x"), 0o644)

	infos, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(infos), infos)
	}
	for _, fi := range infos {
		if len(fi.Checksum) != 64 {
			t.Errorf("%s: bad checksum %q", fi.Path, fi.Checksum)
		}
	}
}

func TestSafePath_RejectsEscape(t *testing.T) {
	s := tempVault(t)
	if _, err := s.Read("../outside.md"); err == nil {
		t.Error("expected traversal rejection")
	}
	if err := s.Write("/abs.md", []byte("x")); err == nil {
		t.Error("expected absolute path rejection")
	}
}
