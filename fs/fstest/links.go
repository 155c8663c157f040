package fstest

import (
	"path"
	"testing"

	"github.com/horizon-installer/hscript/fs"
)

// TestLinks tests Symlink, Readlink and Exists.
func TestLinks(t *testing.T, filesystem fs.Filesystem, root string) {
	t.Run("DanglingSymlinkExists", func(t *testing.T) {
		testDanglingSymlink(t, filesystem, root)
	})
	t.Run("RelativeSymlink", func(t *testing.T) {
		testRelativeSymlink(t, filesystem, root)
	})
	t.Run("MissingDoesNotExist", func(t *testing.T) {
		p := path.Join(root, "does/not/exist")
		ok, err := filesystem.Exists(p)
		if err != nil {
			t.Fatalf("Exists(%q): got error %v, want nil", p, err)
		}
		if ok {
			t.Errorf("Exists(%q): got true, want false", p)
		}
	})
}

func testDanglingSymlink(t *testing.T, filesystem fs.Filesystem, root string) {
	link := path.Join(root, "etc/localtime")
	if err := filesystem.Symlink("/usr/share/zoneinfo/UTC", link); err != nil {
		t.Fatalf("Symlink(%q): got error %v, want nil", link, err)
	}
	ok, err := filesystem.Exists(link)
	if err != nil {
		t.Fatalf("Exists(%q): got error %v, want nil", link, err)
	}
	if !ok {
		t.Errorf("Exists(%q): got false for a dangling symlink, want true", link)
	}
	target, err := filesystem.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink(%q): got error %v, want nil", link, err)
	}
	if target != "/usr/share/zoneinfo/UTC" {
		t.Errorf("Readlink(%q): got %q, want %q", link, target, "/usr/share/zoneinfo/UTC")
	}
}

func testRelativeSymlink(t *testing.T, filesystem fs.Filesystem, root string) {
	dir := path.Join(root, "usr/bin")
	if err := filesystem.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll(%q): got error %v, want nil", dir, err)
	}
	link := path.Join(root, "bin")
	if err := filesystem.Symlink("usr/bin", link); err != nil {
		t.Fatalf("Symlink(%q): got error %v, want nil", link, err)
	}
	target, err := filesystem.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink(%q): got error %v, want nil", link, err)
	}
	if target != "usr/bin" {
		t.Errorf("Readlink(%q): got %q, want %q", link, target, "usr/bin")
	}
}
