package fstest

import (
	"path"
	"testing"

	"github.com/horizon-installer/hscript/fs"
)

// TestWrite tests WriteFile, AppendFile and MkdirAll.
func TestWrite(t *testing.T, filesystem fs.Filesystem, root string) {
	t.Run("WriteFileCreatesParents", func(t *testing.T) {
		testWriteFile(t, filesystem, root)
	})
	t.Run("WriteFileReplaces", func(t *testing.T) {
		testWriteFileReplaces(t, filesystem, root)
	})
	t.Run("AppendFile", func(t *testing.T) {
		testAppendFile(t, filesystem, root)
	})
	t.Run("MkdirAll", func(t *testing.T) {
		testMkdirAll(t, filesystem, root)
	})
}

func testWriteFile(t *testing.T, filesystem fs.Filesystem, root string) {
	p := path.Join(root, "etc/conf.d/hostname")
	if err := filesystem.WriteFile(p, []byte("box\n"), 0o644); err != nil {
		t.Fatalf("WriteFile(%q): got error %v, want nil", p, err)
	}
	data, err := filesystem.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile(%q): got error %v, want nil", p, err)
	}
	if string(data) != "box\n" {
		t.Errorf("ReadFile(%q): got %q, want %q", p, data, "box\n")
	}
}

func testWriteFileReplaces(t *testing.T, filesystem fs.Filesystem, root string) {
	p := path.Join(root, "etc/hostname")
	for _, content := range []string{"first, and longer\n", "second\n"} {
		if err := filesystem.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%q): got error %v, want nil", p, err)
		}
	}
	data, err := filesystem.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile(%q): got error %v, want nil", p, err)
	}
	if string(data) != "second\n" {
		t.Errorf("ReadFile(%q): got %q, want %q", p, data, "second\n")
	}
}

func testAppendFile(t *testing.T, filesystem fs.Filesystem, root string) {
	p := path.Join(root, "etc/apk/repositories")
	for _, line := range []string{"a\n", "b\n"} {
		if err := filesystem.AppendFile(p, []byte(line), 0o644); err != nil {
			t.Fatalf("AppendFile(%q): got error %v, want nil", p, err)
		}
	}
	data, err := filesystem.ReadFile(p)
	if err != nil {
		t.Fatalf("ReadFile(%q): got error %v, want nil", p, err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("ReadFile(%q): got %q, want %q", p, data, "a\nb\n")
	}
}

func testMkdirAll(t *testing.T, filesystem fs.Filesystem, root string) {
	p := path.Join(root, "usr/share/zoneinfo")
	for range 2 {
		if err := filesystem.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("MkdirAll(%q): got error %v, want nil", p, err)
		}
	}
	info, err := filesystem.Stat(p)
	if err != nil {
		t.Fatalf("Stat(%q): got error %v, want nil", p, err)
	}
	if !info.IsDir() {
		t.Errorf("Stat(%q): got mode %v, want a directory", p, info.Mode())
	}
}
