package fstest

import (
	"path"
	"testing"

	"github.com/horizon-installer/hscript/fs"
)

// TestManage tests CopyFile, Rename, Remove, ReadDir and the errors
// returned for missing files.
func TestManage(t *testing.T, filesystem fs.Filesystem, root string) {
	t.Run("CopyRenameRemove", func(t *testing.T) {
		testCopyRenameRemove(t, filesystem, root)
	})
	t.Run("ReadDir", func(t *testing.T) {
		testReadDir(t, filesystem, root)
	})
	t.Run("MissingFile", func(t *testing.T) {
		p := path.Join(root, "missing")
		if _, err := filesystem.ReadFile(p); err == nil {
			t.Errorf("ReadFile(%q): got nil error, want error", p)
		}
		if _, err := filesystem.Stat(p); err == nil {
			t.Errorf("Stat(%q): got nil error, want error", p)
		}
	})
}

func testCopyRenameRemove(t *testing.T, filesystem fs.Filesystem, root string) {
	src := path.Join(root, "src.pub")
	dst := path.Join(root, "etc/apk/keys/dst.pub")
	moved := path.Join(root, "etc/apk/keys/moved.pub")

	if err := filesystem.WriteFile(src, []byte("key"), 0o644); err != nil {
		t.Fatalf("WriteFile(%q): got error %v, want nil", src, err)
	}
	if err := filesystem.CopyFile(src, dst, 0o644); err != nil {
		t.Fatalf("CopyFile(%q, %q): got error %v, want nil", src, dst, err)
	}
	if err := filesystem.Rename(dst, moved); err != nil {
		t.Fatalf("Rename(%q, %q): got error %v, want nil", dst, moved, err)
	}
	data, err := filesystem.ReadFile(moved)
	if err != nil {
		t.Fatalf("ReadFile(%q): got error %v, want nil", moved, err)
	}
	if string(data) != "key" {
		t.Errorf("ReadFile(%q): got %q, want %q", moved, data, "key")
	}
	if ok, _ := filesystem.Exists(dst); ok {
		t.Errorf("Exists(%q): got true after rename, want false", dst)
	}

	if err := filesystem.Remove(moved); err != nil {
		t.Fatalf("Remove(%q): got error %v, want nil", moved, err)
	}
	if _, err := filesystem.Stat(moved); err == nil {
		t.Errorf("Stat(%q): got nil error after Remove, want error", moved)
	}
	if data, err := filesystem.ReadFile(src); err != nil || string(data) != "key" {
		t.Errorf("ReadFile(%q): got %q, %v; copy must leave the source alone", src, data, err)
	}
}

func testReadDir(t *testing.T, filesystem fs.Filesystem, root string) {
	dir := path.Join(root, "etc/runlevels/default")
	for _, name := range []string{"sshd", "local"} {
		p := path.Join(dir, name)
		if err := filesystem.WriteFile(p, nil, 0o644); err != nil {
			t.Fatalf("WriteFile(%q): got error %v, want nil", p, err)
		}
	}
	entries, err := filesystem.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%q): got error %v, want nil", dir, err)
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	if len(entries) != 2 || !names["sshd"] || !names["local"] {
		t.Errorf("ReadDir(%q): got %v, want sshd and local", dir, names)
	}
}
